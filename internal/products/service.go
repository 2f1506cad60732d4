package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/nexopos/sucursalsync/internal/odoo"
)

// Service is the sync engine. Batch operations process items sequentially in
// input order; a failed item is recorded in its own result and never aborts
// the batch, except for authentication failures which abort outright.
type Service struct {
	logger *slog.Logger
}

// NewService constructs the sync engine.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// Upsert reconciles one mapped product against the catalog. Matching is
// strictly by barcode; numeric ids from prior lookups are never accepted, so
// a stale id can never write to the wrong product.
func (s *Service) Upsert(ctx context.Context, gw CatalogPort, p MappedProduct) Result {
	if p.Barcode == "" {
		s.logger.Info("product has no barcode, creating", slog.String("name", p.Name))
		return s.create(ctx, gw, p)
	}

	id, err := gw.FindByBarcode(ctx, p.Barcode)
	switch {
	case err == nil:
		return s.update(ctx, gw, id, p)
	case errors.Is(err, odoo.ErrProductNotFound):
		return s.create(ctx, gw, p)
	case errors.Is(err, odoo.ErrNotAuthenticated):
		return errorResult(p, err, "catalog session not established")
	default:
		return errorResult(p, err, classifyGatewayError(err))
	}
}

// SyncBatch upserts every product in order and captures before/after stock
// per barcode for the movement report.
func (s *Service) SyncBatch(ctx context.Context, gw CatalogPort, items []MappedProduct) ([]Result, []StockMovement, error) {
	if len(items) == 0 {
		return nil, nil, ErrEmptyBatch
	}

	movements := make(map[string]*StockMovement, len(items))
	order := make([]string, 0, len(items))
	for _, p := range items {
		if p.Barcode == "" {
			continue
		}
		if _, seen := movements[p.Barcode]; seen {
			continue
		}
		before, err := gw.StockByBarcode(ctx, p.Barcode)
		if err != nil {
			if errors.Is(err, odoo.ErrNotAuthenticated) {
				return nil, nil, err
			}
			s.logger.Warn("stock snapshot failed", slog.String("barcode", p.Barcode), slog.Any("error", err))
		}
		movements[p.Barcode] = &StockMovement{Name: p.Name, Barcode: p.Barcode, Before: before, Requested: p.QtyAvailable}
		order = append(order, p.Barcode)
	}

	results := make([]Result, 0, len(items))
	for _, p := range items {
		results = append(results, s.Upsert(ctx, gw, p))
	}

	for _, barcode := range order {
		after, err := gw.StockByBarcode(ctx, barcode)
		if err != nil {
			s.logger.Warn("stock snapshot failed", slog.String("barcode", barcode), slog.Any("error", err))
			after = movements[barcode].Before
		}
		movements[barcode].After = after
	}

	snapshot := make([]StockMovement, 0, len(order))
	for _, barcode := range order {
		snapshot = append(snapshot, *movements[barcode])
	}
	return results, snapshot, nil
}

func (s *Service) create(ctx context.Context, gw CatalogPort, p MappedProduct) Result {
	fields := map[string]any{
		"name":           p.Name,
		"standard_price": roundPrice(p.StandardPrice),
		"list_price":     roundPrice(p.ListPrice),
	}
	kind, err := gw.ProductKindFields(ctx)
	if err != nil {
		return errorResult(p, err, classifyGatewayError(err))
	}
	for k, v := range kind {
		fields[k] = v
	}
	if validTracking[p.Tracking] {
		fields["tracking"] = p.Tracking
	}
	fields["available_in_pos"] = p.AvailableInPOS
	if barcode := strings.TrimSpace(p.Barcode); barcode != "" {
		fields["barcode"] = barcode
	}

	id, err := gw.CreateProduct(ctx, fields)
	if err != nil {
		s.logger.Error("create product failed", slog.String("name", p.Name), slog.Any("error", err))
		return errorResult(p, err, fmt.Sprintf("failed to create product %q: %s", p.Name, classifyGatewayError(err)))
	}

	s.applyStock(ctx, gw, id, p)

	return Result{
		Success:     true,
		Message:     fmt.Sprintf("product %q created", p.Name),
		ProductID:   id,
		Action:      ActionCreated,
		ProductName: p.Name,
		Barcode:     p.Barcode,
	}
}

func (s *Service) update(ctx context.Context, gw CatalogPort, id int64, p MappedProduct) Result {
	current, err := gw.ReadProduct(ctx, id)
	if err != nil {
		return errorResult(p, err, classifyGatewayError(err))
	}

	fields := map[string]any{
		"standard_price":   roundPrice(p.StandardPrice),
		"available_in_pos": p.AvailableInPOS,
	}

	// Price protection: a previously set customer-facing price only moves up.
	newList := roundPrice(p.ListPrice)
	if newList > current.ListPrice {
		fields["list_price"] = newList
		s.logger.Info("raising sale price",
			slog.String("barcode", p.Barcode),
			slog.Float64("from", current.ListPrice),
			slog.Float64("to", newList),
		)
	} else {
		s.logger.Info("keeping higher sale price",
			slog.String("barcode", p.Barcode),
			slog.Float64("current", current.ListPrice),
			slog.Float64("offered", newList),
		)
	}

	kind, err := gw.ProductKindFields(ctx)
	if err != nil {
		return errorResult(p, err, classifyGatewayError(err))
	}
	for k, v := range kind {
		fields[k] = v
	}
	// Re-write the barcode so an ambiguous match cannot leave the record
	// pointing at a different code.
	if p.Barcode != "" {
		fields["barcode"] = p.Barcode
	}

	if err := gw.UpdateProduct(ctx, id, fields); err != nil {
		if isTrackingConflict(err) {
			s.logger.Warn("tracking change rejected, archiving and recreating",
				slog.String("name", p.Name),
				slog.Int64("product_id", id),
			)
			return s.recreate(ctx, gw, id, p)
		}
		s.logger.Error("update product failed",
			slog.String("name", p.Name),
			slog.Int64("product_id", id),
			slog.Any("error", err),
		)
		return errorResult(p, err, fmt.Sprintf("failed to update product %q: %s", p.Name, classifyGatewayError(err)))
	}

	s.applyStock(ctx, gw, id, p)

	return Result{
		Success:     true,
		Message:     fmt.Sprintf("product %q updated", p.Name),
		ProductID:   id,
		Action:      ActionUpdated,
		ProductName: p.Name,
		Barcode:     p.Barcode,
	}
}

// applyStock performs the best-effort stock write. The product record is
// already committed, so a stock failure is logged rather than turned into an
// upsert error.
func (s *Service) applyStock(ctx context.Context, gw CatalogPort, id int64, p MappedProduct) {
	if p.QtyAvailable <= 0 {
		return
	}
	mode := p.quantityMode()
	if err := gw.UpdateStockQuantity(ctx, id, p.QtyAvailable, mode); err != nil {
		s.logger.Warn("stock update failed",
			slog.String("name", p.Name),
			slog.Int64("product_id", id),
			slog.String("mode", mode),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Info("stock updated",
		slog.String("name", p.Name),
		slog.Float64("qty", p.QtyAvailable),
		slog.String("mode", mode),
	)
}

func errorResult(p MappedProduct, err error, message string) Result {
	detail := err.Error()
	if len(detail) > 500 {
		detail = detail[:500] + "..."
	}
	return Result{
		Success:     false,
		Message:     message,
		Action:      ActionError,
		ProductName: p.Name,
		Barcode:     p.Barcode,
		ErrorDetail: detail,
	}
}

// isTrackingConflict recognises the gateway's refusal to change tracking on
// a product that already has inventory movements. The server message varies
// by locale.
func isTrackingConflict(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cannot change the tracking") ||
		strings.Contains(msg, "no puede cambiar el seguimiento") ||
		strings.Contains(msg, "already used") ||
		strings.Contains(msg, "ya se utiliz")
}

// classifyGatewayError maps raw gateway failures to a small fixed set of
// human-readable causes.
func classifyGatewayError(err error) string {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "Wrong value for") &&
		(strings.Contains(msg, "product.template.type") || strings.Contains(msg, "product.template.detailed_type")):
		return "invalid product kind for this catalog version"
	case strings.Contains(msg, "Wrong value for") && strings.Contains(lower, "tracking"):
		return "invalid tracking value, use none, lot or serial"
	case strings.Contains(lower, "barcode"):
		return "barcode validation failed, check that the barcode is unique and valid"
	default:
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		return msg
	}
}

func roundPrice(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
