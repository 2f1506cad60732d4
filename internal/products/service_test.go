package products

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexopos/sucursalsync/internal/odoo"
)

// memoryCatalog is an in-memory gateway double. Products are keyed by id;
// barcode lookups scan active, POS-visible entries.
type memoryCatalog struct {
	nextID   int64
	products map[int64]*odoo.ProductRecord
	stock    map[int64]float64
	kind     odoo.KindFields

	updateErr   error
	createErr   error
	failStock   bool
	writeCalls  int
	createCalls int
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		products: make(map[int64]*odoo.ProductRecord),
		stock:    make(map[int64]float64),
		kind:     odoo.KindFields{"type": "consu", "is_storable": true},
	}
}

func (m *memoryCatalog) seed(rec odoo.ProductRecord, qty float64) int64 {
	m.nextID++
	rec.ID = m.nextID
	rec.Active = true
	if rec.Tracking == "" {
		rec.Tracking = "none"
	}
	m.products[rec.ID] = &rec
	m.stock[rec.ID] = qty
	return rec.ID
}

func (m *memoryCatalog) FindByBarcode(ctx context.Context, barcode string) (int64, error) {
	for id, p := range m.products {
		if p.Barcode == barcode && p.Active && p.AvailableInPOS {
			return id, nil
		}
	}
	return 0, odoo.ErrProductNotFound
}

func (m *memoryCatalog) FindByName(ctx context.Context, name string) (int64, error) {
	for id, p := range m.products {
		if p.Name == name {
			return id, nil
		}
	}
	return 0, odoo.ErrProductNotFound
}

func (m *memoryCatalog) ReadProduct(ctx context.Context, id int64) (*odoo.ProductRecord, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, odoo.ErrProductNotFound
	}
	cp := *p
	cp.QtyAvailable = m.stock[id]
	return &cp, nil
}

func (m *memoryCatalog) CreateProduct(ctx context.Context, fields map[string]any) (int64, error) {
	m.createCalls++
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	rec := &odoo.ProductRecord{ID: m.nextID, Active: true, Tracking: "none"}
	applyFields(rec, fields)
	m.products[m.nextID] = rec
	return m.nextID, nil
}

func (m *memoryCatalog) UpdateProduct(ctx context.Context, id int64, fields map[string]any) error {
	m.writeCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	p, ok := m.products[id]
	if !ok {
		return odoo.ErrProductNotFound
	}
	applyFields(p, fields)
	return nil
}

func (m *memoryCatalog) WriteTemplate(ctx context.Context, id int64, fields map[string]any) error {
	p, ok := m.products[id]
	if !ok {
		return odoo.ErrProductNotFound
	}
	applyFields(p, fields)
	return nil
}

func (m *memoryCatalog) ProductKindFields(ctx context.Context) (odoo.KindFields, error) {
	return m.kind, nil
}

func (m *memoryCatalog) UpdateStockQuantity(ctx context.Context, productID int64, qty float64, mode string) error {
	if m.failStock {
		return errors.New("stock backend unavailable")
	}
	if mode == QuantityModeAdd {
		m.stock[productID] += qty
		return nil
	}
	m.stock[productID] = qty
	return nil
}

func (m *memoryCatalog) StockByBarcode(ctx context.Context, barcode string) (float64, error) {
	for id, p := range m.products {
		if p.Barcode == barcode {
			return m.stock[id], nil
		}
	}
	return 0, nil
}

func applyFields(rec *odoo.ProductRecord, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "name":
			rec.Name = v.(string)
		case "barcode":
			if s, ok := v.(string); ok {
				rec.Barcode = s
			} else {
				rec.Barcode = ""
			}
		case "standard_price":
			rec.StandardPrice = v.(float64)
		case "list_price":
			rec.ListPrice = v.(float64)
		case "tracking":
			rec.Tracking = v.(string)
		case "available_in_pos":
			rec.AvailableInPOS = v.(bool)
		case "active":
			rec.Active = v.(bool)
		}
	}
}

func TestUpsertCreatesUnknownBarcode(t *testing.T) {
	cat := newMemoryCatalog()
	svc := NewService(nil)

	res := svc.Upsert(context.Background(), cat, MappedProduct{
		Name:           "Shampoo 400ml",
		Barcode:        "7861000000011",
		StandardPrice:  2.10,
		ListPrice:      3.45,
		QtyAvailable:   12,
		Tracking:       "none",
		AvailableInPOS: true,
	})

	require.True(t, res.Success)
	require.Equal(t, ActionCreated, res.Action)
	created := cat.products[res.ProductID]
	require.Equal(t, "7861000000011", created.Barcode)
	require.InDelta(t, 2.10, created.StandardPrice, 1e-9)
	require.InDelta(t, 3.45, created.ListPrice, 1e-9)
	require.InDelta(t, 12, cat.stock[res.ProductID], 1e-9)
}

func TestUpsertPriceProtection(t *testing.T) {
	cat := newMemoryCatalog()
	id := cat.seed(odoo.ProductRecord{
		Name: "Jabon", Barcode: "779111", ListPrice: 5.00, StandardPrice: 2.00, AvailableInPOS: true,
	}, 3)
	svc := NewService(nil)

	// Lower offered price never overwrites the stored one.
	res := svc.Upsert(context.Background(), cat, MappedProduct{
		Name: "Jabon", Barcode: "779111", StandardPrice: 2.50, ListPrice: 4.00, AvailableInPOS: true,
	})
	require.True(t, res.Success)
	require.Equal(t, ActionUpdated, res.Action)
	require.InDelta(t, 5.00, cat.products[id].ListPrice, 1e-9)
	require.InDelta(t, 2.50, cat.products[id].StandardPrice, 1e-9)

	// A strictly higher price does.
	res = svc.Upsert(context.Background(), cat, MappedProduct{
		Name: "Jabon", Barcode: "779111", StandardPrice: 2.75, ListPrice: 6.00, AvailableInPOS: true,
	})
	require.True(t, res.Success)
	require.InDelta(t, 6.00, cat.products[id].ListPrice, 1e-9)
	require.InDelta(t, 2.75, cat.products[id].StandardPrice, 1e-9)
}

func TestUpsertStockModes(t *testing.T) {
	cat := newMemoryCatalog()
	id := cat.seed(odoo.ProductRecord{
		Name: "Atun", Barcode: "779222", ListPrice: 2.00, AvailableInPOS: true,
	}, 10)
	svc := NewService(nil)

	res := svc.Upsert(context.Background(), cat, MappedProduct{
		Name: "Atun", Barcode: "779222", ListPrice: 2.00, QtyAvailable: 4, QuantityMode: QuantityModeReplace, AvailableInPOS: true,
	})
	require.True(t, res.Success)
	require.InDelta(t, 4, cat.stock[id], 1e-9)

	res = svc.Upsert(context.Background(), cat, MappedProduct{
		Name: "Atun", Barcode: "779222", ListPrice: 2.00, QtyAvailable: 5, QuantityMode: QuantityModeAdd, AvailableInPOS: true,
	})
	require.True(t, res.Success)
	require.InDelta(t, 9, cat.stock[id], 1e-9)

	// Two adds of the same delta accumulate, by design.
	res = svc.Upsert(context.Background(), cat, MappedProduct{
		Name: "Atun", Barcode: "779222", ListPrice: 2.00, QtyAvailable: 5, QuantityMode: QuantityModeAdd, AvailableInPOS: true,
	})
	require.True(t, res.Success)
	require.InDelta(t, 14, cat.stock[id], 1e-9)
}

func TestUpsertStockFailureDoesNotFailUpsert(t *testing.T) {
	cat := newMemoryCatalog()
	cat.failStock = true
	svc := NewService(nil)

	res := svc.Upsert(context.Background(), cat, MappedProduct{
		Name: "Vela", Barcode: "779333", ListPrice: 1.00, QtyAvailable: 8, AvailableInPOS: true,
	})
	require.True(t, res.Success)
	require.Equal(t, ActionCreated, res.Action)
}

func TestUpsertTrackingConflictRecreates(t *testing.T) {
	cat := newMemoryCatalog()
	oldID := cat.seed(odoo.ProductRecord{
		Name: "Perfume", Barcode: "779444", ListPrice: 20.00, Tracking: "lot", AvailableInPOS: true,
	}, 6)
	cat.updateErr = fmt.Errorf("odoo: fault 1: You cannot change the tracking of a product that was already used")
	svc := NewService(nil)

	res := svc.Upsert(context.Background(), cat, MappedProduct{
		Name: "Perfume", Barcode: "779444", StandardPrice: 9.00, ListPrice: 18.00, QtyAvailable: 6, AvailableInPOS: true,
	})

	require.True(t, res.Success)
	require.Equal(t, ActionRecreated, res.Action)
	require.NotEqual(t, oldID, res.ProductID)

	archived := cat.products[oldID]
	require.False(t, archived.Active)
	require.Empty(t, archived.Barcode)

	replacement := cat.products[res.ProductID]
	require.True(t, replacement.Active)
	require.Equal(t, "779444", replacement.Barcode)
	// Higher existing price survives on the replacement.
	require.InDelta(t, 20.00, replacement.ListPrice, 1e-9)
}

func TestRecreateRestoresOriginalOnCreateFailure(t *testing.T) {
	cat := newMemoryCatalog()
	oldID := cat.seed(odoo.ProductRecord{
		Name: "Crema", Barcode: "779555", ListPrice: 7.00, AvailableInPOS: true,
	}, 2)
	cat.updateErr = errors.New("no puede cambiar el seguimiento del producto")
	cat.createErr = errors.New("odoo: fault 1: internal error")
	svc := NewService(nil)

	res := svc.Upsert(context.Background(), cat, MappedProduct{
		Name: "Crema", Barcode: "779555", ListPrice: 7.50, AvailableInPOS: true,
	})

	require.False(t, res.Success)
	require.Equal(t, ActionError, res.Action)
	require.True(t, cat.products[oldID].Active)
	require.Equal(t, "779555", cat.products[oldID].Barcode)
}

func TestFixTrackingArchivesUnderTempBarcode(t *testing.T) {
	cat := newMemoryCatalog()
	oldID := cat.seed(odoo.ProductRecord{
		Name: "Tinte", Barcode: "779666", ListPrice: 11.00, AvailableInPOS: true,
	}, 4)
	svc := NewService(nil)

	results := svc.FixTracking(context.Background(), cat, []MappedProduct{{
		Name: "Tinte", Barcode: "779666", StandardPrice: 5.00, ListPrice: 11.00, QtyAvailable: 4,
	}})

	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	require.Equal(t, ActionTrackingFixSuccess, results[0].Action)

	archived := cat.products[oldID]
	require.False(t, archived.Active)
	require.Equal(t, fmt.Sprintf("TEMP_779666_%d", oldID), archived.Barcode)

	replacement := cat.products[results[0].ProductID]
	require.Equal(t, "779666", replacement.Barcode)
	require.InDelta(t, 4, cat.stock[results[0].ProductID], 1e-9)
}

func TestFixTrackingMissingProduct(t *testing.T) {
	cat := newMemoryCatalog()
	svc := NewService(nil)

	results := svc.FixTracking(context.Background(), cat, []MappedProduct{{
		Name: "Fantasma", Barcode: "000000",
	}})
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Equal(t, ActionTrackingFixFailed, results[0].Action)
}

func TestSyncBatchCapturesMovements(t *testing.T) {
	cat := newMemoryCatalog()
	cat.seed(odoo.ProductRecord{
		Name: "Arroz", Barcode: "779777", ListPrice: 1.50, AvailableInPOS: true,
	}, 10)
	svc := NewService(nil)

	results, movements, err := svc.SyncBatch(context.Background(), cat, []MappedProduct{
		{Name: "Arroz", Barcode: "779777", ListPrice: 1.50, QtyAvailable: 5, QuantityMode: QuantityModeAdd, AvailableInPOS: true},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	require.Len(t, movements, 1)
	require.InDelta(t, 10, movements[0].Before, 1e-9)
	require.InDelta(t, 15, movements[0].After, 1e-9)
}

func TestSyncBatchEmpty(t *testing.T) {
	svc := NewService(nil)
	_, _, err := svc.SyncBatch(context.Background(), newMemoryCatalog(), nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}
