package transfers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexopos/sucursalsync/internal/odoo"
	"github.com/nexopos/sucursalsync/internal/products"
)

// memoryCatalog doubles as source and destination.
type memoryCatalog struct {
	nextID   int64
	products map[int64]*odoo.ProductRecord
	stock    map[int64]float64

	failAddStock    bool
	failReduceStock bool
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		products: make(map[int64]*odoo.ProductRecord),
		stock:    make(map[int64]float64),
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
		if p.Barcode == barcode && p.Active {
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
	m.nextID++
	rec := &odoo.ProductRecord{ID: m.nextID, Active: true, Tracking: "none"}
	applyFields(rec, fields)
	m.products[m.nextID] = rec
	return m.nextID, nil
}

func (m *memoryCatalog) UpdateProduct(ctx context.Context, id int64, fields map[string]any) error {
	p, ok := m.products[id]
	if !ok {
		return odoo.ErrProductNotFound
	}
	applyFields(p, fields)
	return nil
}

func (m *memoryCatalog) WriteTemplate(ctx context.Context, id int64, fields map[string]any) error {
	return m.UpdateProduct(ctx, id, fields)
}

func (m *memoryCatalog) ProductKindFields(ctx context.Context) (odoo.KindFields, error) {
	return odoo.KindFields{"type": "consu"}, nil
}

func (m *memoryCatalog) UpdateStockQuantity(ctx context.Context, productID int64, qty float64, mode string) error {
	if mode == odoo.StockModeAdd {
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

func (m *memoryCatalog) ReduceStock(ctx context.Context, templateID int64, qty float64) error {
	if m.failReduceStock {
		return errors.New("reduce rejected")
	}
	cur := m.stock[templateID]
	next := cur - qty
	if next < 0 {
		next = 0
	}
	m.stock[templateID] = next
	return nil
}

func (m *memoryCatalog) AddStock(ctx context.Context, templateID int64, qty float64) error {
	if m.failAddStock {
		return errors.New("add rejected")
	}
	m.stock[templateID] += qty
	return nil
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

// memoryRepo keeps pending transfers in a map.
type memoryRepo struct {
	nextID  int64
	byCode  map[string]*Pending
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byCode: make(map[string]*Pending)}
}

func (r *memoryRepo) Create(ctx context.Context, p *Pending) (int64, error) {
	if _, ok := r.byCode[p.Code]; ok {
		return 0, ErrDuplicateTransfer
	}
	r.nextID++
	cp := *p
	cp.ID = r.nextID
	r.byCode[p.Code] = &cp
	return r.nextID, nil
}

func (r *memoryRepo) FindByCode(ctx context.Context, code string) (*Pending, error) {
	p, ok := r.byCode[code]
	if !ok {
		return nil, ErrTransferNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) List(ctx context.Context, limit int) ([]Pending, error) {
	var out []Pending
	for _, p := range r.byCode {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryRepo) MarkConfirmed(ctx context.Context, code string, at time.Time) error {
	p, ok := r.byCode[code]
	if !ok {
		return ErrTransferNotFound
	}
	p.Status = StatusConfirmed
	p.ConfirmedAt = &at
	return nil
}

func (r *memoryRepo) MarkCancelled(ctx context.Context, code string) error {
	p, ok := r.byCode[code]
	if !ok {
		return ErrTransferNotFound
	}
	p.Status = StatusCancelled
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(nil, products.NewService(nil), repo, nil, nil)
}

func TestValidateQuantityCap(t *testing.T) {
	// stock 10: half is 5, so 5 passes and 6 does not.
	require.Empty(t, validateQuantity(5, 10))
	require.NotEmpty(t, validateQuantity(6, 10))
	// stock 3: the cap truncates to 1.
	require.Empty(t, validateQuantity(1, 3))
	require.NotEmpty(t, validateQuantity(2, 3))
	// availability is checked before the cap.
	require.Equal(t, "requested quantity exceeds available stock", validateQuantity(11, 10))
}

func TestPrepareSnapshotsWithoutMutation(t *testing.T) {
	cat := newMemoryCatalog()
	id := cat.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101", StandardPrice: 3.0, ListPrice: 5.0}, 10)
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pending, err := svc.Prepare(context.Background(), cat, KindSingle, []Item{{Barcode: "101", Quantity: 4}})
	require.NoError(t, err)
	require.Equal(t, StatusPrepared, pending.Status)
	require.Len(t, pending.Items, 1)
	require.InDelta(t, 10, pending.Items[0].Available, 1e-9)
	require.NotEmpty(t, pending.ManifestXML)

	// Stock is untouched until confirmation.
	require.InDelta(t, 10, cat.stock[id], 1e-9)

	stored, err := repo.FindByCode(context.Background(), pending.Code)
	require.NoError(t, err)
	require.Equal(t, pending.Code, stored.Code)
}

func TestPrepareDropsInadmissibleItems(t *testing.T) {
	cat := newMemoryCatalog()
	cat.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101"}, 10)
	cat.seed(odoo.ProductRecord{Name: "Te", Barcode: "102"}, 4)
	svc := newTestService(newMemoryRepo())

	pending, err := svc.Prepare(context.Background(), cat, KindSingle, []Item{
		{Barcode: "101", Quantity: 5},
		{Barcode: "102", Quantity: 3},  // over the cap for stock 4
		{Barcode: "999", Quantity: 1},  // unknown barcode
	})
	require.NoError(t, err)
	require.Len(t, pending.Items, 1)
	require.Equal(t, "101", pending.Items[0].Barcode)
}

func TestPrepareAllDropped(t *testing.T) {
	cat := newMemoryCatalog()
	cat.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101"}, 2)
	svc := newTestService(newMemoryRepo())

	_, err := svc.Prepare(context.Background(), cat, KindSingle, []Item{{Barcode: "101", Quantity: 2}})
	require.ErrorIs(t, err, ErrNothingTransferred)
}

func TestConfirmReducesStock(t *testing.T) {
	cat := newMemoryCatalog()
	id := cat.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101"}, 10)
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pending, err := svc.Prepare(context.Background(), cat, KindSingle, []Item{{Barcode: "101", Quantity: 4}})
	require.NoError(t, err)

	out, err := svc.Confirm(context.Background(), cat, pending.Code)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, 1, out.ProcessedCount)
	require.Equal(t, ItemTransferred, out.Items[0].Status)
	require.InDelta(t, 10, out.Items[0].SourceBefore, 1e-9)
	require.InDelta(t, 6, out.Items[0].SourceAfter, 1e-9)
	require.InDelta(t, 6, cat.stock[id], 1e-9)

	stored, err := repo.FindByCode(context.Background(), pending.Code)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, stored.Status)

	// A second confirmation is rejected.
	_, err = svc.Confirm(context.Background(), cat, pending.Code)
	require.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestConfirmRevalidatesAgainstLiveStock(t *testing.T) {
	cat := newMemoryCatalog()
	id := cat.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101"}, 10)
	svc := newTestService(newMemoryRepo())

	pending, err := svc.Prepare(context.Background(), cat, KindSingle, []Item{{Barcode: "101", Quantity: 5}})
	require.NoError(t, err)

	// Stock dropped between the phases; 5 is now over the cap for 6.
	cat.stock[id] = 6

	out, err := svc.Confirm(context.Background(), cat, pending.Code)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, 1, out.SkippedCount)
	require.Equal(t, ItemSkipped, out.Items[0].Status)
	require.InDelta(t, 6, cat.stock[id], 1e-9)
}

func TestConfirmDualMovesBothSides(t *testing.T) {
	principal := newMemoryCatalog()
	branch := newMemoryCatalog()
	pID := principal.seed(odoo.ProductRecord{
		Name: "Cafe", Barcode: "101", StandardPrice: 3.0, ListPrice: 5.0, AvailableInPOS: true,
	}, 20)
	svc := newTestService(newMemoryRepo())

	pending, err := svc.Prepare(context.Background(), principal, KindDual, []Item{{Barcode: "101", Quantity: 8}})
	require.NoError(t, err)

	out, err := svc.ConfirmDual(context.Background(), principal, branch, pending.Code)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, ItemTransferred, out.Items[0].Status)
	require.True(t, out.Items[0].DestCreated)
	require.InDelta(t, 12, principal.stock[pID], 1e-9)

	// The branch product was created with the principal prices and received
	// the full quantity.
	bID, err := branch.FindByBarcode(context.Background(), "101")
	require.NoError(t, err)
	require.InDelta(t, 8, branch.stock[bID], 1e-9)
	require.InDelta(t, 5.0, branch.products[bID].ListPrice, 1e-9)
	require.InDelta(t, 3.0, branch.products[bID].StandardPrice, 1e-9)
}

func TestConfirmDualPreservesBranchSettings(t *testing.T) {
	principal := newMemoryCatalog()
	branch := newMemoryCatalog()
	principal.seed(odoo.ProductRecord{
		Name: "Cafe Nuevo", Barcode: "101", StandardPrice: 3.5, ListPrice: 6.0, AvailableInPOS: true,
	}, 20)
	bID := branch.seed(odoo.ProductRecord{
		Name: "Cafe Viejo", Barcode: "101", StandardPrice: 3.0, ListPrice: 5.0,
		Tracking: "lot", AvailableInPOS: true,
	}, 2)
	svc := newTestService(newMemoryRepo())

	pending, err := svc.Prepare(context.Background(), principal, KindDual, []Item{{Barcode: "101", Quantity: 8}})
	require.NoError(t, err)

	out, err := svc.ConfirmDual(context.Background(), principal, branch, pending.Code)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.False(t, out.Items[0].DestCreated)
	require.InDelta(t, 2, out.Items[0].DestBefore, 1e-9)
	require.InDelta(t, 10, out.Items[0].DestAfter, 1e-9)

	got := branch.products[bID]
	require.Equal(t, "Cafe Nuevo", got.Name)
	require.InDelta(t, 6.0, got.ListPrice, 1e-9)
	require.Equal(t, "lot", got.Tracking)
	require.InDelta(t, 10, branch.stock[bID], 1e-9)
}

func TestConfirmDualSkipsBeyondPrincipalStock(t *testing.T) {
	principal := newMemoryCatalog()
	branch := newMemoryCatalog()
	id := principal.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101", AvailableInPOS: true}, 20)
	svc := newTestService(newMemoryRepo())

	// The dual path has no cap, 15 of 20 is admissible at prepare.
	pending, err := svc.Prepare(context.Background(), principal, KindDual, []Item{{Barcode: "101", Quantity: 15}})
	require.NoError(t, err)

	principal.stock[id] = 10
	out, err := svc.ConfirmDual(context.Background(), principal, branch, pending.Code)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, ItemSkipped, out.Items[0].Status)
	require.InDelta(t, 10, principal.stock[id], 1e-9)
}

func TestConfirmDualPartialFailureKeepsReduction(t *testing.T) {
	principal := newMemoryCatalog()
	branch := newMemoryCatalog()
	pID := principal.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101", AvailableInPOS: true}, 20)
	branch.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101", AvailableInPOS: true}, 0)
	branch.failAddStock = true
	svc := newTestService(newMemoryRepo())

	pending, err := svc.Prepare(context.Background(), principal, KindDual, []Item{{Barcode: "101", Quantity: 5}})
	require.NoError(t, err)

	out, err := svc.ConfirmDual(context.Background(), principal, branch, pending.Code)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, ItemPartiallyTransferred, out.Items[0].Status)
	// The principal reduction stands, no rollback.
	require.InDelta(t, 15, principal.stock[pID], 1e-9)
}

func TestCancelBlocksConfirmation(t *testing.T) {
	cat := newMemoryCatalog()
	cat.seed(odoo.ProductRecord{Name: "Cafe", Barcode: "101"}, 10)
	svc := newTestService(newMemoryRepo())

	pending, err := svc.Prepare(context.Background(), cat, KindSingle, []Item{{Barcode: "101", Quantity: 4}})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), pending.Code))

	_, err = svc.Confirm(context.Background(), cat, pending.Code)
	require.ErrorIs(t, err, ErrTransferCancelled)
}
