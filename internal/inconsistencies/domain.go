// Package inconsistencies detects and repairs drift between the principal
// and branch catalogs. Products are matched by barcode across the POS
// visible range of both catalogs.
package inconsistencies

import (
	"context"
	"errors"

	"github.com/nexopos/sucursalsync/internal/odoo"
)

// PriceTolerance is the largest absolute price difference that still counts
// as equal. Differences at or below it are rounding noise, not drift.
const PriceTolerance = 0.01

var ErrNoFixData = errors.New("inconsistencies: fix item carries no fields to apply")

// Inconsistency is one detected divergence between the catalogs.
type Inconsistency struct {
	Barcode               string  `json:"barcode"`
	PrincipalID           int64   `json:"principal_id"`
	BranchID              int64   `json:"branch_id"`
	PrincipalName         string  `json:"principal_name"`
	BranchName            string  `json:"branch_name"`
	PrincipalListPrice    float64 `json:"principal_list_price"`
	BranchListPrice       float64 `json:"branch_list_price"`
	PrincipalCostPrice    float64 `json:"principal_cost_price"`
	BranchCostPrice       float64 `json:"branch_cost_price"`
	ListPriceMismatch     bool    `json:"list_price_mismatch"`
	CostPriceMismatch     bool    `json:"cost_price_mismatch"`
	NameMismatch          bool    `json:"name_mismatch"`
}

// FixItem is one requested repair. Nil fields are left untouched on the
// branch product.
type FixItem struct {
	Barcode       string   `json:"barcode" validate:"required"`
	Name          *string  `json:"name,omitempty"`
	ListPrice     *float64 `json:"list_price,omitempty"`
	StandardPrice *float64 `json:"standard_price,omitempty"`
}

// FixResult is the outcome of one repair attempt.
type FixResult struct {
	Barcode string `json:"barcode"`
	Fixed   bool   `json:"fixed"`
	Error   string `json:"error,omitempty"`
}

// Report summarizes a detection run.
type Report struct {
	PrincipalTotal  int             `json:"principal_total"`
	BranchTotal     int             `json:"branch_total"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
}

// FixReport summarizes a repair run. Success means at least one item fixed.
type FixReport struct {
	Success    bool        `json:"success"`
	Total      int         `json:"total"`
	FixedCount int         `json:"fixed_count"`
	Results    []FixResult `json:"results"`
}

// CatalogPort is what the detector needs from each catalog.
type CatalogPort interface {
	ListPOSProducts(ctx context.Context) ([]odoo.ProductRecord, error)
	FindByBarcode(ctx context.Context, barcode string) (int64, error)
	UpdateProduct(ctx context.Context, id int64, fields map[string]any) error
}
