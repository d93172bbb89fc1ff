package catalog_test

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/catalog"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory/inventorytest"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

type memoryRepo struct {
	inv         *inventorytest.Store
	products    map[int64]catalog.Product
	units       map[int64]catalog.AirconUnit
	mappings    []catalog.ModelMapping
	vendors     map[int64]catalog.Vendor
	vendorUsers map[int64]catalog.VendorUser
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		inv:         inventorytest.NewStore(),
		products:    map[int64]catalog.Product{},
		units:       map[int64]catalog.AirconUnit{},
		vendors:     map[int64]catalog.Vendor{},
		vendorUsers: map[int64]catalog.VendorUser{},
	}
}

type memoryTx struct {
	*inventorytest.Tx
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	return r.inv.Tx(ctx, func(ctx context.Context, tx *inventorytest.Tx) error {
		products := make(map[int64]catalog.Product, len(r.products))
		for k, v := range r.products {
			products[k] = v
		}
		units := make(map[int64]catalog.AirconUnit, len(r.units))
		for k, v := range r.units {
			units[k] = v
		}
		mappings := append([]catalog.ModelMapping(nil), r.mappings...)
		if err := fn(ctx, &memoryTx{Tx: tx, repo: r}); err != nil {
			r.products, r.units, r.mappings = products, units, mappings
			return err
		}
		return nil
	})
}

func (t *memoryTx) InsertProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	for _, existing := range t.repo.products {
		if existing.Code == p.Code {
			return catalog.Product{}, catalog.ErrDuplicateCode
		}
	}
	t.repo.nextID++
	p.ID = t.repo.nextID
	p.CreatedAt = time.Now()
	t.repo.products[p.ID] = p
	t.Register(inventory.ProductRef(p.ID), p.Code, p.Name, p.MinStock)
	return p, nil
}

func (t *memoryTx) InsertAirconUnit(_ context.Context, u catalog.AirconUnit) (catalog.AirconUnit, error) {
	t.repo.nextID++
	u.ID = t.repo.nextID
	t.repo.units[u.ID] = u
	t.Register(inventory.AirconRef(u.ID), u.Code, u.Code, u.MinStock)
	return u, nil
}

func (t *memoryTx) AirconUnitExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.repo.units[id]
	return ok, nil
}

func (t *memoryTx) LockActiveMapping(_ context.Context, model string) (catalog.ModelMapping, bool, error) {
	for _, m := range t.repo.mappings {
		if m.ModelNumber == model && m.Active() {
			return m, true, nil
		}
	}
	return catalog.ModelMapping{}, false, nil
}

func (t *memoryTx) LatestMappingVersion(_ context.Context, model string) (int, error) {
	latest := 0
	for _, m := range t.repo.mappings {
		if m.ModelNumber == model && m.Version > latest {
			latest = m.Version
		}
	}
	return latest, nil
}

func (t *memoryTx) RetireMapping(_ context.Context, id int64, at time.Time) error {
	for i := range t.repo.mappings {
		if t.repo.mappings[i].ID == id {
			t.repo.mappings[i].RetiredAt = &at
		}
	}
	return nil
}

func (t *memoryTx) InsertMapping(_ context.Context, m catalog.ModelMapping) (catalog.ModelMapping, error) {
	t.repo.nextID++
	m.ID = t.repo.nextID
	m.CreatedAt = time.Now()
	t.repo.mappings = append(t.repo.mappings, m)
	return m, nil
}

func (r *memoryRepo) withStock(p catalog.Product) catalog.Product {
	p.Stock = r.inv.Qty(inventory.ProductRef(p.ID))
	return p
}

func (r *memoryRepo) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return r.withStock(p), nil
}

func (r *memoryRepo) UpdateProduct(_ context.Context, p catalog.Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return catalog.ErrProductNotFound
	}
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepo) ListProducts(_ context.Context, filter catalog.ProductFilter) ([]catalog.Product, int, error) {
	var out []catalog.Product
	for _, p := range r.products {
		p = r.withStock(p)
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name+p.Code), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.BelowMinimum && !p.BelowMinimum() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, len(out), nil
}

func (r *memoryRepo) GetAirconUnit(_ context.Context, id int64) (catalog.AirconUnit, error) {
	u, ok := r.units[id]
	if !ok {
		return catalog.AirconUnit{}, catalog.ErrUnitNotFound
	}
	u.Stock = r.inv.Qty(inventory.AirconRef(id))
	return u, nil
}

func (r *memoryRepo) ListAirconUnits(ctx context.Context) ([]catalog.AirconUnit, error) {
	var out []catalog.AirconUnit
	for id := range r.units {
		u, _ := r.GetAirconUnit(ctx, id)
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryRepo) ResolveModel(ctx context.Context, model string) (catalog.AirconUnit, bool, error) {
	for _, m := range r.mappings {
		if m.ModelNumber == model && m.Active() {
			u, err := r.GetAirconUnit(ctx, m.UnitID)
			return u, err == nil, err
		}
	}
	return catalog.AirconUnit{}, false, nil
}

func (r *memoryRepo) ListModelMappings(_ context.Context, model string) ([]catalog.ModelMapping, error) {
	var out []catalog.ModelMapping
	for i := len(r.mappings) - 1; i >= 0; i-- {
		if r.mappings[i].ModelNumber == model {
			out = append(out, r.mappings[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertVendor(_ context.Context, v catalog.Vendor) (catalog.Vendor, error) {
	r.nextID++
	v.ID = r.nextID
	r.vendors[v.ID] = v
	return v, nil
}

func (r *memoryRepo) GetVendor(_ context.Context, id int64) (catalog.Vendor, error) {
	v, ok := r.vendors[id]
	if !ok {
		return catalog.Vendor{}, catalog.ErrVendorNotFound
	}
	return v, nil
}

func (r *memoryRepo) ListVendors(context.Context) ([]catalog.Vendor, error) {
	var out []catalog.Vendor
	for _, v := range r.vendors {
		out = append(out, v)
	}
	return out, nil
}

func (r *memoryRepo) InsertVendorUser(_ context.Context, u catalog.VendorUser) (catalog.VendorUser, error) {
	r.nextID++
	u.ID = r.nextID
	r.vendorUsers[u.ID] = u
	return u, nil
}

func (r *memoryRepo) GetVendorUser(_ context.Context, id int64) (catalog.VendorUser, error) {
	u, ok := r.vendorUsers[id]
	if !ok {
		return catalog.VendorUser{}, catalog.ErrVendorUserNotFound
	}
	return u, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestCreateProductRecordsOpeningBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := catalog.NewService(repo, nil, nil, nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, catalog.ProductInput{
		Code: "CU-1/4", Name: "Copper pipe 1/4", Unit: catalog.UnitMeter,
		Price: decimal.RequireFromString("350"), MinStock: 20, InitialStock: 100,
	})
	require.NoError(t, err)
	require.Equal(t, int64(100), p.Stock)
	require.Equal(t, int64(1), p.QtyPerBox)

	ref := inventory.ProductRef(p.ID)
	entries := repo.inv.Entries(ref)
	require.Len(t, entries, 1)
	require.Equal(t, inventory.EventInitial, entries[0].EventType)
	require.Equal(t, repo.inv.Qty(ref), repo.inv.Sum(ref))
}

func TestCreateProductValidation(t *testing.T) {
	svc := catalog.NewService(newMemoryRepo(), nil, nil, nil)
	_, err := svc.CreateProduct(context.Background(), catalog.ProductInput{Code: "X", Name: "X", Unit: "crate"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateProduct(context.Background(), catalog.ProductInput{Code: "X", Name: "X", Unit: catalog.UnitPiece, InitialStock: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateProduct(context.Background(), catalog.ProductInput{Code: "X", Name: "X", Unit: catalog.UnitPiece, Price: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateProduct(context.Background(), catalog.ProductInput{Code: "X", Name: "X", Unit: catalog.UnitBox, QtyPerBox: catalog.MaxQtyPerBox + 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateProductNeverTouchesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := catalog.NewService(repo, nil, nil, nil)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, catalog.ProductInput{Code: "TAPE", Name: "Vinyl tape", Unit: catalog.UnitRoll, InitialStock: 8})
	require.NoError(t, err)

	minStock := int64(12)
	price2 := decimal.NewNullDecimal(decimal.RequireFromString("95.50"))
	updated, err := svc.UpdateProduct(ctx, p.ID, catalog.ProductUpdate{MinStock: &minStock, Price2: &price2})
	require.NoError(t, err)
	require.Equal(t, int64(12), updated.MinStock)
	require.Equal(t, int64(8), updated.Stock)
	require.True(t, updated.BelowMinimum())

	below, page, err := svc.ListProducts(ctx, catalog.ProductFilter{BelowMinimum: true})
	require.NoError(t, err)
	require.Len(t, below, 1)
	require.Equal(t, 1, page.Total)

	zero := int64(0)
	_, err = svc.UpdateProduct(ctx, p.ID, catalog.ProductUpdate{QtyPerBox: &zero})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPriceTier(t *testing.T) {
	p := catalog.Product{Price: decimal.NewFromInt(100)}
	require.True(t, p.PriceFor(2).Equal(decimal.NewFromInt(100)))
	p.Price2 = decimal.NewNullDecimal(decimal.NewFromInt(90))
	require.True(t, p.PriceFor(2).Equal(decimal.NewFromInt(90)))
	require.True(t, p.PriceFor(1).Equal(decimal.NewFromInt(100)))
}

func TestNormalizeModel(t *testing.T) {
	require.Equal(t, "RAS-2210 TX", catalog.NormalizeModel("  ras-2210   tx "))
	require.Equal(t, "CS-X221D", catalog.NormalizeModel("ＣＳ－Ｘ２２１Ｄ"))
	require.Equal(t, "", catalog.NormalizeModel("   "))
}

func TestMapModelVersionsMappings(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := catalog.NewService(repo, nil, audit, nil)
	ctx := context.Background()

	u1, err := svc.CreateAirconUnit(ctx, catalog.AirconUnitInput{Code: "2.2kW-24", InitialStock: 3})
	require.NoError(t, err)
	u2, err := svc.CreateAirconUnit(ctx, catalog.AirconUnitInput{Code: "2.2kW-25"})
	require.NoError(t, err)

	_, found, err := svc.ResolveModel(ctx, "CS-221DFL")
	require.NoError(t, err)
	require.False(t, found)

	m1, err := svc.MapModel(ctx, "cs-221dfl", u1.ID, 7)
	require.NoError(t, err)
	require.Equal(t, 1, m1.Version)

	unit, found, err := svc.ResolveModel(ctx, "ＣＳ-221DFL")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, u1.ID, unit.ID)
	require.Equal(t, int64(3), unit.Stock)

	same, err := svc.MapModel(ctx, "CS-221DFL", u1.ID, 7)
	require.NoError(t, err)
	require.Equal(t, m1.ID, same.ID)

	m2, err := svc.MapModel(ctx, "CS-221DFL", u2.ID, 7)
	require.NoError(t, err)
	require.Equal(t, 2, m2.Version)

	unit, found, err = svc.ResolveModel(ctx, "CS-221DFL")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, u2.ID, unit.ID)

	history, err := svc.ListModelMappings(ctx, "cs-221dfl")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].Active())
	require.False(t, history[1].Active())
	require.Len(t, audit.logs, 2)

	_, found, err = svc.ResolveModel(ctx, "CS-221")
	require.NoError(t, err)
	require.False(t, found, "no suffix inference")

	_, err = svc.MapModel(ctx, "CS-9", 999, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestVendors(t *testing.T) {
	svc := catalog.NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	v, err := svc.CreateVendor(ctx, catalog.VendorInput{Code: "V01", Name: "Kanto Setsubi"})
	require.NoError(t, err)
	require.Equal(t, 1, v.PriceTier)
	require.True(t, v.Active)

	_, err = svc.CreateVendor(ctx, catalog.VendorInput{Code: "V02", Name: "Bad", PriceTier: 3})
	require.ErrorIs(t, err, shared.ErrValidation)

	u, err := svc.AddVendorUser(ctx, v.ID, "Sato")
	require.NoError(t, err)
	require.Equal(t, v.ID, u.VendorID)

	_, err = svc.AddVendorUser(ctx, 404, "Nobody")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
