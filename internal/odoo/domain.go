package odoo

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation runs before Authenticate.
	ErrNotAuthenticated = errors.New("odoo: not authenticated")
	// ErrInvalidLogin indicates the server rejected the credentials.
	ErrInvalidLogin = errors.New("odoo: invalid login")
	// ErrProductNotFound indicates no catalog entry matched the lookup.
	ErrProductNotFound = errors.New("odoo: product not found")
	// ErrNoVariant indicates a template has no stock-bearing variant.
	ErrNoVariant = errors.New("odoo: no product variant for template")
	// ErrNoInternalLocation indicates the catalog has no internal stock location.
	ErrNoInternalLocation = errors.New("odoo: no internal stock location")
	// ErrNoStockRecord indicates no stock quant exists for the product.
	ErrNoStockRecord = errors.New("odoo: no stock record for product")
)

// Credentials identify one catalog instance and its service account.
type Credentials struct {
	URL      string `json:"url" validate:"required,url"`
	Database string `json:"database" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ConnectionInfo summarises the outcome of a successful authentication.
type ConnectionInfo struct {
	Version string `json:"version"`
	UID     int64  `json:"uid"`
}

// ProductRecord is a catalog product as read from the remote instance. It is
// request scoped; the caller never holds one beyond a single operation.
type ProductRecord struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Barcode        string  `json:"barcode"`
	StandardPrice  float64 `json:"standard_price"`
	ListPrice      float64 `json:"list_price"`
	QtyAvailable   float64 `json:"qty_available"`
	Tracking       string  `json:"tracking"`
	Active         bool    `json:"active"`
	AvailableInPOS bool    `json:"available_in_pos"`
}

// KindFields holds the version-appropriate product kind payload, resolved
// once per session by probing the template field schema.
type KindFields map[string]any

// Clone returns a copy safe to merge into a write payload.
func (k KindFields) Clone() map[string]any {
	out := make(map[string]any, len(k))
	for key, val := range k {
		out[key] = val
	}
	return out
}

// Stock update modes.
const (
	StockModeReplace = "replace"
	StockModeAdd     = "add"
)
