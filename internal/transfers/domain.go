// Package transfers implements the two phase stock transfer protocol between
// catalogs. Prepare validates and snapshots without touching stock; confirm
// re-validates against live stock and applies the movements.
package transfers

import (
	"context"
	"errors"
	"time"

	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/products"
)

// MaxTransferFraction caps a single transfer at this share of the available
// stock. Quantities above the cap are skipped, never clamped.
const MaxTransferFraction = 0.5

var (
	ErrEmptyTransfer      = errors.New("transfers: no items to transfer")
	ErrTransferNotFound   = errors.New("transfers: transfer not found")
	ErrDuplicateTransfer  = errors.New("transfers: transfer code already exists")
	ErrAlreadyConfirmed   = errors.New("transfers: transfer already confirmed")
	ErrTransferCancelled  = errors.New("transfers: transfer was cancelled")
	ErrNothingTransferred = errors.New("transfers: no item could be transferred")
)

// Pending transfer lifecycle.
const (
	StatusPrepared  = "prepared"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Per-item outcome statuses.
const (
	ItemTransferred          = "transferred"
	ItemPartiallyTransferred = "partially_transferred"
	ItemSkipped              = "skipped"
	ItemFailed               = "failed"
)

// Item is one requested transfer line, keyed by barcode.
type Item struct {
	Barcode  string  `json:"barcode" validate:"required"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

// Snapshot is the product state captured at prepare time. Confirmation
// re-reads live stock, so a snapshot is informational only.
type Snapshot struct {
	ProductID      int64   `json:"product_id"`
	Name           string  `json:"name"`
	Barcode        string  `json:"barcode"`
	Quantity       float64 `json:"quantity"`
	Available      float64 `json:"available"`
	StandardPrice  float64 `json:"standard_price"`
	ListPrice      float64 `json:"list_price"`
	Tracking       string  `json:"tracking"`
	AvailableInPOS bool    `json:"available_in_pos"`
}

// ProcessedItem is the outcome of one line after confirmation.
type ProcessedItem struct {
	Barcode       string  `json:"barcode"`
	Name          string  `json:"name"`
	Requested     float64 `json:"requested"`
	SourceBefore  float64 `json:"source_before"`
	SourceAfter   float64 `json:"source_after"`
	DestBefore    float64 `json:"dest_before,omitempty"`
	DestAfter     float64 `json:"dest_after,omitempty"`
	Status        string  `json:"status"`
	Reason        string  `json:"reason,omitempty"`
	DestCreated   bool    `json:"dest_created,omitempty"`
	DestProductID int64   `json:"dest_product_id,omitempty"`
}

// Outcome summarizes a confirmed transfer.
type Outcome struct {
	Success        bool            `json:"success"`
	Code           string          `json:"code"`
	Total          int             `json:"total"`
	ProcessedCount int             `json:"processed_count"`
	SkippedCount   int             `json:"skipped_count"`
	Items          []ProcessedItem `json:"items"`
	ReportFile     string          `json:"report_file,omitempty"`
}

// Pending is a persisted transfer between prepare and confirm.
type Pending struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Items       []Snapshot `json:"items"`
	ManifestXML string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Transfer kinds.
const (
	KindSingle = "single"
	KindDual   = "dual"
)

// SourcePort is what the coordinator needs from the source catalog.
type SourcePort interface {
	FindByBarcode(ctx context.Context, barcode string) (int64, error)
	ReadProduct(ctx context.Context, id int64) (*odoo.ProductRecord, error)
	ReduceStock(ctx context.Context, templateID int64, qty float64) error
}

// DestinationPort is the branch side of a dual transfer. The sync engine
// drives creation and price alignment through it.
type DestinationPort interface {
	products.CatalogPort
	AddStock(ctx context.Context, templateID int64, qty float64) error
}

// maxAllowed is the largest quantity the cap admits for a given stock level.
func maxAllowed(stock float64) int {
	return int(stock * MaxTransferFraction)
}

// validateQuantity applies the availability and cap rules. It returns a
// skip reason, or empty when the quantity is admissible.
func validateQuantity(requested, stock float64) string {
	if requested > stock {
		return "requested quantity exceeds available stock"
	}
	if requested > float64(maxAllowed(stock)) {
		return "requested quantity exceeds the transfer cap"
	}
	return ""
}

// validateDualQuantity applies only the availability rule. Dual transfers
// trust the principal stock figure and carry no cap.
func validateDualQuantity(requested, stock float64) string {
	if requested > stock {
		return "requested quantity exceeds principal stock"
	}
	return ""
}
