package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nexopos/sucursalsync/internal/odoo"
)

// recreateState tracks the archive-and-recreate flow. Every transition is a
// single remote write; a failure after stateArchived must attempt the
// restore transition before the error propagates.
type recreateState int

const (
	stateActive recreateState = iota
	stateArchived
	stateRecreated
)

// recreate replaces a product whose tracking mode can no longer be changed:
// archive the original keeping its barcode, create a replacement without a
// barcode, then hand the barcode over. The replacement carries the higher of
// the old and new sale prices.
func (s *Service) recreate(ctx context.Context, gw CatalogPort, templateID int64, p MappedProduct) Result {
	original, err := gw.ReadProduct(ctx, templateID)
	if err != nil {
		return errorResult(p, err, fmt.Sprintf("failed to recreate product %q: %s", p.Name, classifyGatewayError(err)))
	}

	protectedPrice := roundPrice(p.ListPrice)
	if original.ListPrice > protectedPrice {
		protectedPrice = original.ListPrice
		s.logger.Info("keeping higher sale price on recreated product",
			slog.String("barcode", p.Barcode),
			slog.Float64("price", protectedPrice),
		)
	}

	state := stateActive
	defer func() {
		// A failure after the archive transition always attempts restore
		// before the error result surfaces.
		if state == stateArchived {
			s.restore(ctx, gw, templateID, "")
		}
	}()

	if err := gw.WriteTemplate(ctx, templateID, map[string]any{"active": false}); err != nil {
		return errorResult(p, err, fmt.Sprintf("failed to archive product %q: %s", p.Name, classifyGatewayError(err)))
	}
	state = stateArchived

	fields := map[string]any{
		"name":             p.Name,
		"standard_price":   roundPrice(p.StandardPrice),
		"list_price":       protectedPrice,
		"tracking":         "none",
		"available_in_pos": true,
	}
	kind, kindErr := gw.ProductKindFields(ctx)
	if kindErr == nil {
		for k, v := range kind {
			fields[k] = v
		}
	}

	newID, err := gw.CreateProduct(ctx, fields)
	if err != nil {
		return errorResult(p, err, fmt.Sprintf("failed to recreate product %q: %s", p.Name, classifyGatewayError(err)))
	}
	state = stateRecreated

	if p.Barcode != "" {
		if err := gw.WriteTemplate(ctx, templateID, map[string]any{"barcode": false}); err != nil {
			s.logger.Warn("could not strip barcode from archived product",
				slog.Int64("product_id", templateID),
				slog.Any("error", err),
			)
		}
		if err := gw.WriteTemplate(ctx, newID, map[string]any{"barcode": p.Barcode}); err != nil {
			s.logger.Warn("could not assign barcode to recreated product",
				slog.Int64("product_id", newID),
				slog.Any("error", err),
			)
		}
	}

	s.applyStock(ctx, gw, newID, p)

	return Result{
		Success:     true,
		Message:     fmt.Sprintf("product %q recreated, original archived (id %d), replacement created (id %d)", p.Name, templateID, newID),
		ProductID:   newID,
		Action:      ActionRecreated,
		ProductName: p.Name,
		Barcode:     p.Barcode,
	}
}

// restore re-activates an archived product after a failed recreate. When
// barcode is non-empty it is written back as well.
func (s *Service) restore(ctx context.Context, gw CatalogPort, templateID int64, barcode string) {
	fields := map[string]any{"active": true}
	if barcode != "" {
		fields["barcode"] = barcode
	}
	if err := gw.WriteTemplate(ctx, templateID, fields); err != nil {
		s.logger.Error("could not restore archived product",
			slog.Int64("product_id", templateID),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Info("archived product restored", slog.Int64("product_id", templateID))
}

// FixTracking recreates products whose tracking configuration can no longer
// be applied in place. The original is archived under a temporary barcode so
// the replacement can claim the real one immediately.
func (s *Service) FixTracking(ctx context.Context, gw CatalogPort, items []MappedProduct) []Result {
	results := make([]Result, 0, len(items))
	for _, p := range items {
		results = append(results, s.fixTrackingOne(ctx, gw, p))
	}
	return results
}

func (s *Service) fixTrackingOne(ctx context.Context, gw CatalogPort, p MappedProduct) Result {
	originalID, err := s.locate(ctx, gw, p)
	if err != nil {
		return Result{
			Success:     false,
			Message:     fmt.Sprintf("original product not found: %s", p.Name),
			Action:      ActionTrackingFixFailed,
			ProductName: p.Name,
			Barcode:     p.Barcode,
		}
	}

	if _, err := gw.ReadProduct(ctx, originalID); err != nil {
		return Result{
			Success:     false,
			Message:     fmt.Sprintf("could not read product details: %s", p.Name),
			Action:      ActionTrackingFixFailed,
			ProductName: p.Name,
			Barcode:     p.Barcode,
		}
	}

	archiveFields := map[string]any{"active": false}
	if p.Barcode != "" {
		archiveFields["barcode"] = fmt.Sprintf("TEMP_%s_%d", p.Barcode, originalID)
	}
	if err := gw.WriteTemplate(ctx, originalID, archiveFields); err != nil {
		return Result{
			Success:     false,
			Message:     fmt.Sprintf("failed to archive original product %q: %s", p.Name, classifyGatewayError(err)),
			Action:      ActionTrackingFixFailed,
			ProductName: p.Name,
			Barcode:     p.Barcode,
		}
	}

	fields := map[string]any{
		"name":             p.Name,
		"standard_price":   roundPrice(p.StandardPrice),
		"list_price":       roundPrice(p.ListPrice),
		"tracking":         "none",
		"available_in_pos": true,
	}
	if kind, err := gw.ProductKindFields(ctx); err == nil {
		for k, v := range kind {
			fields[k] = v
		}
	}
	if p.Barcode != "" {
		fields["barcode"] = p.Barcode
	}

	newID, err := gw.CreateProduct(ctx, fields)
	if err != nil {
		s.restore(ctx, gw, originalID, p.Barcode)
		return Result{
			Success:     false,
			Message:     fmt.Sprintf("failed to create replacement for %q: %s", p.Name, classifyGatewayError(err)),
			Action:      ActionTrackingFixFailed,
			ProductName: p.Name,
			Barcode:     p.Barcode,
		}
	}

	if p.QtyAvailable > 0 {
		if err := gw.UpdateStockQuantity(ctx, newID, p.QtyAvailable, QuantityModeReplace); err != nil {
			s.logger.Warn("could not assign stock to replacement product",
				slog.String("name", p.Name),
				slog.Any("error", err),
			)
		}
	}

	return Result{
		Success:     true,
		Message:     fmt.Sprintf("product %q recreated, original archived (id %d), replacement created (id %d)", p.Name, originalID, newID),
		ProductID:   newID,
		Action:      ActionTrackingFixSuccess,
		ProductName: p.Name,
		Barcode:     p.Barcode,
	}
}

func (s *Service) locate(ctx context.Context, gw CatalogPort, p MappedProduct) (int64, error) {
	if p.Barcode != "" {
		if id, err := gw.FindByBarcode(ctx, p.Barcode); err == nil {
			return id, nil
		} else if !errors.Is(err, odoo.ErrProductNotFound) {
			return 0, err
		}
	}
	return gw.FindByName(ctx, p.Name)
}
