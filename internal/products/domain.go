// Package products implements the barcode-keyed catalog upsert engine with
// price protection and tracking-conflict recovery.
package products

import (
	"context"
	"errors"

	"github.com/nexopos/sucursalsync/internal/odoo"
)

// Action tags attached to every sync result.
const (
	ActionCreated            = "created"
	ActionUpdated            = "updated"
	ActionError              = "error"
	ActionRecreated          = "recreated"
	ActionTrackingFixSuccess = "tracking_fix_success"
	ActionTrackingFixFailed  = "tracking_fix_failed"
)

// Quantity update modes.
const (
	QuantityModeReplace = odoo.StockModeReplace
	QuantityModeAdd     = odoo.StockModeAdd
)

// ErrEmptyBatch is returned when a batch sync receives no products.
var ErrEmptyBatch = errors.New("products: empty batch")

var validTracking = map[string]bool{"none": true, "lot": true, "serial": true}

// MappedProduct is one incoming product record, matched against the remote
// catalog solely by barcode. An empty barcode forces create-only behavior.
type MappedProduct struct {
	Name           string  `json:"name" validate:"required"`
	Barcode        string  `json:"barcode"`
	StandardPrice  float64 `json:"standard_price" validate:"gte=0"`
	ListPrice      float64 `json:"list_price" validate:"gte=0"`
	DisplayPrice   float64 `json:"display_price,omitempty"`
	QtyAvailable   float64 `json:"qty_available" validate:"gte=0"`
	QuantityMode   string  `json:"quantity_mode,omitempty" validate:"omitempty,oneof=replace add"`
	Tracking       string  `json:"tracking,omitempty" validate:"omitempty,oneof=none lot serial"`
	AvailableInPOS bool    `json:"available_in_pos"`
}

func (p MappedProduct) quantityMode() string {
	if p.QuantityMode == QuantityModeAdd {
		return QuantityModeAdd
	}
	return QuantityModeReplace
}

// Result reports the outcome of one upsert. Created fresh per operation and
// never mutated after return.
type Result struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ProductID   int64  `json:"product_id,omitempty"`
	Action      string `json:"action"`
	ProductName string `json:"product_name,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// StockMovement is a before/after stock snapshot captured around a batch
// sync, keyed by barcode. Feeds the stock report.
type StockMovement struct {
	Name      string  `json:"name"`
	Barcode   string  `json:"barcode"`
	Before    float64 `json:"stock_before"`
	After     float64 `json:"stock_after"`
	Requested float64 `json:"quantity_requested"`
}

// CatalogPort is the gateway surface the engine depends on. The concrete
// session handle is passed into every operation; the engine holds no
// ambient catalog state.
type CatalogPort interface {
	FindByBarcode(ctx context.Context, barcode string) (int64, error)
	FindByName(ctx context.Context, name string) (int64, error)
	ReadProduct(ctx context.Context, id int64) (*odoo.ProductRecord, error)
	CreateProduct(ctx context.Context, fields map[string]any) (int64, error)
	UpdateProduct(ctx context.Context, id int64, fields map[string]any) error
	WriteTemplate(ctx context.Context, id int64, fields map[string]any) error
	ProductKindFields(ctx context.Context) (odoo.KindFields, error)
	UpdateStockQuantity(ctx context.Context, productID int64, qty float64, mode string) error
	StockByBarcode(ctx context.Context, barcode string) (float64, error)
}
