package odoo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

var productFields = []any{"name", "barcode", "standard_price", "list_price", "qty_available", "tracking", "available_in_pos"}

// kindPreference is the ordered list of product kind values tried against the
// schema probe result.
var kindPreference = []string{"product", "consu", "service"}

// ProductKindFields resolves the version-appropriate product kind payload.
// The schema probe runs once per session; subsequent calls return the cached
// result until the session is re-authenticated.
func (c *Client) ProductKindFields(ctx context.Context) (KindFields, error) {
	c.mu.Lock()
	cached := c.kind
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	resolved := c.probeKindFields(ctx)

	c.mu.Lock()
	c.kind = resolved
	c.mu.Unlock()
	return resolved, nil
}

func (c *Client) probeKindFields(ctx context.Context) KindFields {
	fallback := KindFields{"type": "consu"}

	result, err := c.ExecuteKw(ctx, "product.template", "fields_get", []any{}, map[string]any{
		"attributes": []any{"type", "selection", "string"},
	})
	if err != nil {
		c.logger.Warn("product kind probe failed", slog.Any("error", err))
		return fallback
	}
	schema, ok := result.(map[string]any)
	if !ok {
		return fallback
	}

	if typeField, ok := schema["type"].(map[string]any); ok {
		if selection, ok := typeField["selection"].([]any); ok {
			available := make(map[string]bool, len(selection))
			first := ""
			for _, entry := range selection {
				pair, ok := entry.([]any)
				if !ok || len(pair) == 0 {
					continue
				}
				value := asString(pair[0])
				if value == "" {
					continue
				}
				if first == "" {
					first = value
				}
				available[value] = true
			}
			for _, candidate := range kindPreference {
				if !available[candidate] {
					continue
				}
				if candidate == "consu" {
					if _, hasStorable := schema["is_storable"]; hasStorable {
						return KindFields{"type": candidate, "is_storable": true}
					}
				}
				return KindFields{"type": candidate}
			}
			if first != "" {
				c.logger.Warn("no preferred product kind, using first available", slog.String("kind", first))
				return KindFields{"type": first}
			}
		}
	}
	if _, ok := schema["detailed_type"]; ok {
		return KindFields{"detailed_type": "storable"}
	}
	return fallback
}

// FindByBarcode returns the template id of the active, POS-visible product
// carrying the barcode. Variants are searched first; their template wins.
func (c *Client) FindByBarcode(ctx context.Context, barcode string) (int64, error) {
	domain := []any{
		[]any{"barcode", "=", barcode},
		[]any{"active", "=", true},
		[]any{"available_in_pos", "=", true},
	}
	result, err := c.ExecuteKw(ctx, "product.product", "search_read", []any{domain}, map[string]any{
		"fields": []any{"product_tmpl_id", "name"},
	})
	if err != nil {
		return 0, err
	}
	if rows, ok := result.([]any); ok && len(rows) > 0 {
		if row, ok := rows[0].(map[string]any); ok {
			// product_tmpl_id arrives as [id, display name].
			if ref, ok := row["product_tmpl_id"].([]any); ok && len(ref) > 0 {
				if id, ok := asInt64(ref[0]); ok {
					return id, nil
				}
			}
		}
	}

	result, err = c.ExecuteKw(ctx, "product.template", "search", []any{domain}, nil)
	if err != nil {
		return 0, err
	}
	if ids, ok := result.([]any); ok && len(ids) > 0 {
		if id, ok := asInt64(ids[0]); ok {
			return id, nil
		}
	}
	return 0, ErrProductNotFound
}

// FindByName returns the first product matching the exact name.
func (c *Client) FindByName(ctx context.Context, name string) (int64, error) {
	result, err := c.ExecuteKw(ctx, "product.product", "search", []any{
		[]any{[]any{"name", "=", name}},
	}, nil)
	if err != nil {
		return 0, err
	}
	if ids, ok := result.([]any); ok && len(ids) > 0 {
		if id, ok := asInt64(ids[0]); ok {
			return id, nil
		}
	}
	return 0, ErrProductNotFound
}

// ReadProduct reads one template record.
func (c *Client) ReadProduct(ctx context.Context, id int64) (*ProductRecord, error) {
	result, err := c.ExecuteKw(ctx, "product.template", "search_read", []any{
		[]any{[]any{"id", "=", id}},
	}, map[string]any{"fields": productFields})
	if err != nil {
		return nil, err
	}
	rows, ok := result.([]any)
	if !ok || len(rows) == 0 {
		return nil, ErrProductNotFound
	}
	row, ok := rows[0].(map[string]any)
	if !ok {
		return nil, ErrProductNotFound
	}
	rec := recordFromRow(row)
	rec.ID = id
	return rec, nil
}

func recordFromRow(row map[string]any) *ProductRecord {
	rec := &ProductRecord{
		Name:           asString(row["name"]),
		Barcode:        asString(row["barcode"]),
		StandardPrice:  asFloat(row["standard_price"]),
		ListPrice:      asFloat(row["list_price"]),
		QtyAvailable:   asFloat(row["qty_available"]),
		Tracking:       asString(row["tracking"]),
		Active:         true,
		AvailableInPOS: asBool(row["available_in_pos"]),
	}
	if rec.Tracking == "" {
		rec.Tracking = "none"
	}
	if id, ok := asInt64(row["id"]); ok {
		rec.ID = id
	}
	return rec
}

// CreateProduct creates a product and returns its id.
func (c *Client) CreateProduct(ctx context.Context, fields map[string]any) (int64, error) {
	result, err := c.ExecuteKw(ctx, "product.product", "create", []any{fields}, nil)
	if err != nil {
		return 0, err
	}
	id, ok := asInt64(result)
	if !ok {
		return 0, fmt.Errorf("odoo: create returned %T", result)
	}
	return id, nil
}

// UpdateProduct writes fields on a product record.
func (c *Client) UpdateProduct(ctx context.Context, id int64, fields map[string]any) error {
	_, err := c.ExecuteKw(ctx, "product.product", "write", []any{[]any{id}, fields}, nil)
	return err
}

// WriteTemplate writes fields on a template record. Archive, restore and
// barcode handover during recreate go through the template.
func (c *Client) WriteTemplate(ctx context.Context, id int64, fields map[string]any) error {
	_, err := c.ExecuteKw(ctx, "product.template", "write", []any{[]any{id}, fields}, nil)
	return err
}

// ListPOSProducts fetches every active, POS-visible, barcoded product. Used
// by the reconciler to snapshot one side of a catalog comparison.
func (c *Client) ListPOSProducts(ctx context.Context) ([]ProductRecord, error) {
	result, err := c.ExecuteKw(ctx, "product.product", "search_read", []any{
		[]any{
			[]any{"available_in_pos", "=", true},
			[]any{"barcode", "!=", false},
		},
	}, map[string]any{
		"fields": []any{"id", "name", "barcode", "list_price", "standard_price", "qty_available"},
	})
	if err != nil {
		return nil, err
	}
	rows, ok := result.([]any)
	if !ok {
		return nil, nil
	}
	records := make([]ProductRecord, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, *recordFromRow(row))
	}
	return records, nil
}

// FindInternalLocation returns the first internal stock location.
func (c *Client) FindInternalLocation(ctx context.Context) (int64, error) {
	result, err := c.ExecuteKw(ctx, "stock.location", "search", []any{
		[]any{[]any{"usage", "=", "internal"}}, int64(0), int64(1),
	}, nil)
	if err != nil {
		return 0, err
	}
	if ids, ok := result.([]any); ok && len(ids) > 0 {
		if id, ok := asInt64(ids[0]); ok {
			return id, nil
		}
	}
	return 0, ErrNoInternalLocation
}

// ResolveVariantID maps a template id to its first stock-bearing variant.
func (c *Client) ResolveVariantID(ctx context.Context, templateID int64) (int64, error) {
	result, err := c.ExecuteKw(ctx, "product.product", "search", []any{
		[]any{[]any{"product_tmpl_id", "=", templateID}},
	}, nil)
	if err != nil {
		return 0, err
	}
	if ids, ok := result.([]any); ok && len(ids) > 0 {
		if id, ok := asInt64(ids[0]); ok {
			return id, nil
		}
	}
	return 0, ErrNoVariant
}

func (c *Client) findQuant(ctx context.Context, productID, locationID int64) (int64, float64, bool, error) {
	result, err := c.ExecuteKw(ctx, "stock.quant", "search", []any{
		[]any{
			[]any{"product_id", "=", productID},
			[]any{"location_id", "=", locationID},
		},
	}, nil)
	if err != nil {
		return 0, 0, false, err
	}
	ids, ok := result.([]any)
	if !ok || len(ids) == 0 {
		return 0, 0, false, nil
	}
	quantID, ok := asInt64(ids[0])
	if !ok {
		return 0, 0, false, nil
	}
	read, err := c.ExecuteKw(ctx, "stock.quant", "read", []any{quantID}, map[string]any{
		"fields": []any{"quantity"},
	})
	if err != nil {
		return 0, 0, false, err
	}
	qty := 0.0
	if rows, ok := read.([]any); ok && len(rows) > 0 {
		if row, ok := rows[0].(map[string]any); ok {
			qty = asFloat(row["quantity"])
		}
	}
	return quantID, qty, true, nil
}

func (c *Client) writeQuant(ctx context.Context, quantID int64, qty float64) error {
	_, err := c.ExecuteKw(ctx, "stock.quant", "write", []any{
		[]any{quantID}, map[string]any{"quantity": roundWire(qty)},
	}, nil)
	return err
}

func (c *Client) createQuant(ctx context.Context, productID, locationID int64, qty float64) error {
	_, err := c.ExecuteKw(ctx, "stock.quant", "create", []any{
		map[string]any{
			"product_id":  productID,
			"location_id": locationID,
			"quantity":    roundWire(qty),
		},
	}, nil)
	return err
}

// UpdateStockQuantity sets or adds stock at the default internal location.
// productID is the id the product was created/matched under; quants are
// keyed on it directly for freshly created products.
func (c *Client) UpdateStockQuantity(ctx context.Context, productID int64, qty float64, mode string) error {
	locationID, err := c.FindInternalLocation(ctx)
	if err != nil {
		return err
	}
	quantID, current, found, err := c.findQuant(ctx, productID, locationID)
	if err != nil {
		return err
	}
	final := qty
	if found {
		if mode == StockModeAdd {
			final = current + qty
		}
		return c.writeQuant(ctx, quantID, final)
	}
	return c.createQuant(ctx, productID, locationID, final)
}

// ReduceStock decrements stock for a template by qty, clamped at zero. Stock
// quants hang off variants, so the template id is resolved first.
func (c *Client) ReduceStock(ctx context.Context, templateID int64, qty float64) error {
	variantID, err := c.ResolveVariantID(ctx, templateID)
	if err != nil {
		return err
	}
	locationID, err := c.FindInternalLocation(ctx)
	if err != nil {
		return err
	}
	quantID, current, found, err := c.findQuant(ctx, variantID, locationID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoStockRecord
	}
	next := math.Max(0, current-qty)
	if err := c.writeQuant(ctx, quantID, next); err != nil {
		return err
	}
	c.logger.Info("stock reduced",
		slog.Int64("variant_id", variantID),
		slog.Float64("from", current),
		slog.Float64("to", next),
	)
	return nil
}

// AddStock increments stock for a template by qty, creating the quant when
// the destination has never stocked the product.
func (c *Client) AddStock(ctx context.Context, templateID int64, qty float64) error {
	variantID, err := c.ResolveVariantID(ctx, templateID)
	if err != nil {
		return err
	}
	locationID, err := c.FindInternalLocation(ctx)
	if err != nil {
		return err
	}
	quantID, current, found, err := c.findQuant(ctx, variantID, locationID)
	if err != nil {
		return err
	}
	if found {
		return c.writeQuant(ctx, quantID, current+qty)
	}
	return c.createQuant(ctx, variantID, locationID, qty)
}

// StockByBarcode returns the available quantity for a barcode, zero when the
// product is unknown. Best-effort, used for report snapshots.
func (c *Client) StockByBarcode(ctx context.Context, barcode string) (float64, error) {
	result, err := c.ExecuteKw(ctx, "product.product", "search_read", []any{
		[]any{[]any{"barcode", "=", barcode}},
	}, map[string]any{"fields": []any{"id", "qty_available", "name"}})
	if err != nil {
		return 0, err
	}
	if rows, ok := result.([]any); ok && len(rows) > 0 {
		if row, ok := rows[0].(map[string]any); ok {
			return asFloat(row["qty_available"]), nil
		}
	}
	return 0, nil
}

// roundWire clamps decimals to 8 places; the remote computes tax-inclusive
// prices from these values and accumulates error beyond that.
func roundWire(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
