package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/checkout"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory/inventorytest"
	"github.com/odyssey-erp/kiosk-inventory/internal/reconcile"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

type memoryRepo struct {
	inv  *inventorytest.Store
	mu   sync.Mutex
	txns []checkout.Transaction
}

func (r *memoryRepo) TransactionsReferencing(_ context.Context, ref inventory.StockRef) ([]checkout.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []checkout.Transaction
	for _, txn := range r.txns {
		if txn.StockDelta(ref) != 0 {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (r *memoryRepo) DriftRows(ctx context.Context) ([]reconcile.DriftItem, int, error) {
	refs := r.inv.Refs()
	var items []reconcile.DriftItem
	for _, ref := range refs {
		st, err := r.inv.GetStock(ctx, ref)
		if err != nil {
			return nil, 0, err
		}
		sum := r.inv.Sum(ref)
		if st.Qty != sum {
			items = append(items, reconcile.DriftItem{Ref: ref, Code: st.Code, Name: st.Name, LiveStock: st.Qty, LedgerSum: sum, Drift: st.Qty - sum})
		}
	}
	return items, len(refs), nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type recordingGauge struct {
	last  int
	calls int
}

func (g *recordingGauge) SetDriftItems(n int) {
	g.last = n
	g.calls++
}

var (
	productA = inventory.ProductRef(1)
	productB = inventory.ProductRef(2)
	unitRAS  = inventory.AirconRef(10)
)

type fixture struct {
	inv      *inventorytest.Store
	repo     *memoryRepo
	recorder *inventory.Recorder
	audit    *memoryAudit
	gauge    *recordingGauge
	svc      *reconcile.Service
}

func newFixture(t *testing.T, cache *reconcile.Cache) fixture {
	t.Helper()
	inv := inventorytest.NewStore()
	inv.Seed(productA, "GLOVES", 10)
	inv.Seed(productB, "TAPE", 4)
	inv.Seed(unitRAS, "RAS-22", 2)
	f := fixture{
		inv:      inv,
		repo:     &memoryRepo{inv: inv},
		recorder: inventory.NewRecorder(nil),
		audit:    &memoryAudit{},
		gauge:    &recordingGauge{},
	}
	f.svc = reconcile.NewService(inv, f.repo, f.recorder, cache, f.gauge, f.audit, nil)
	return f
}

// checkout records a CHECKOUT row for ledgerUnits and a transaction claiming
// itemUnits of productID.
func (f fixture) checkout(t *testing.T, productID, itemUnits, ledgerUnits int64) checkout.Transaction {
	t.Helper()
	txn := checkout.Transaction{
		ID:   int64(len(f.repo.txns) + 1),
		Code: uuid.New(),
		Items: []checkout.LineItem{
			{Kind: checkout.ItemCatalog, ProductID: productID, Quantity: itemUnits, Units: itemUnits},
		},
	}
	if ledgerUnits > 0 {
		f.apply(t, inventory.MovementInput{
			Ref:       inventory.ProductRef(productID),
			Delta:     -ledgerUnits,
			EventType: inventory.EventCheckout,
			RefModule: "checkout",
			RefID:     txn.Code.String(),
		})
	}
	f.repo.mu.Lock()
	f.repo.txns = append(f.repo.txns, txn)
	f.repo.mu.Unlock()
	return txn
}

func (f fixture) apply(t *testing.T, in inventory.MovementInput) {
	t.Helper()
	err := f.inv.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := f.recorder.Apply(ctx, tx, in)
		return err
	})
	require.NoError(t, err)
}

func TestAuditProductConsistent(t *testing.T) {
	f := newFixture(t, nil)
	f.checkout(t, 1, 3, 3)

	report, err := f.svc.AuditProduct(context.Background(), productA)
	require.NoError(t, err)
	require.Equal(t, "GLOVES", report.Code)
	require.Equal(t, int64(7), report.LedgerSum)
	require.Equal(t, int64(7), report.LiveStock)
	require.Zero(t, report.Drift)
	require.Empty(t, report.Findings)
	require.True(t, report.Consistent())

	require.Len(t, report.Timeline, 2)
	require.Equal(t, inventory.EventInitial, report.Timeline[0].EventType)
	require.Equal(t, int64(10), report.Timeline[0].RunningTotal)
	require.Equal(t, int64(7), report.Timeline[1].RunningTotal)
	require.Equal(t, int64(7), report.Timeline[1].StockAfter)
	for _, row := range report.Timeline {
		require.Zero(t, row.Gap)
	}
}

func TestAuditProductFlagsOutOfBandWrite(t *testing.T) {
	f := newFixture(t, nil)
	f.checkout(t, 1, 3, 3)
	f.inv.Tamper(productA, 12)
	f.apply(t, inventory.MovementInput{Ref: productA, Delta: 5, EventType: inventory.EventReceipt, RefModule: "order", RefID: "PO-1"})

	report, err := f.svc.AuditProduct(context.Background(), productA)
	require.NoError(t, err)
	require.Equal(t, int64(17), report.LiveStock)
	require.Equal(t, int64(12), report.LedgerSum)
	require.Equal(t, int64(5), report.Drift)
	require.False(t, report.Consistent())

	require.Len(t, report.Timeline, 3)
	last := report.Timeline[2]
	require.Equal(t, int64(12), last.RunningTotal)
	require.Equal(t, int64(17), last.StockAfter)
	require.Equal(t, int64(5), last.Gap, "counter moved from 7 to 12 between rows")
}

func TestAuditProductCrossChecksTransactions(t *testing.T) {
	f := newFixture(t, nil)
	ok := f.checkout(t, 1, 2, 2)
	short := f.checkout(t, 1, 3, 2)
	missing := f.checkout(t, 1, 1, 0)
	orphan := uuid.New().String()
	f.apply(t, inventory.MovementInput{Ref: productA, Delta: -1, EventType: inventory.EventCheckout, RefModule: "checkout", RefID: orphan})

	report, err := f.svc.AuditProduct(context.Background(), productA)
	require.NoError(t, err)
	require.Zero(t, report.Drift, "ledger and counter agree")
	require.False(t, report.Consistent())

	byCode := map[string]reconcile.Finding{}
	for _, fd := range report.Findings {
		byCode[fd.TransactionCode] = fd
	}
	require.Len(t, byCode, 3)
	require.NotContains(t, byCode, ok.Code.String())

	require.Equal(t, reconcile.FindingQuantityMismatch, byCode[short.Code.String()].Kind)
	require.Equal(t, int64(-3), byCode[short.Code.String()].Expected)
	require.Equal(t, int64(-2), byCode[short.Code.String()].Recorded)

	require.Equal(t, reconcile.FindingMissingLedger, byCode[missing.Code.String()].Kind)
	require.Equal(t, missing.ID, byCode[missing.Code.String()].TransactionID)

	require.Equal(t, reconcile.FindingOrphanLedger, byCode[orphan].Kind)
	require.Equal(t, int64(-1), byCode[orphan].Recorded)
}

func TestAuditProductUnknownRef(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.AuditProduct(context.Background(), inventory.ProductRef(99))
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.AuditProduct(context.Background(), inventory.StockRef{Kind: "pallet", ID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAuditProductConcurrentCallers(t *testing.T) {
	f := newFixture(t, nil)
	f.checkout(t, 1, 3, 3)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := f.svc.AuditProduct(context.Background(), productA)
			if err == nil && report.LedgerSum != 7 {
				err = errors.New("unexpected ledger sum")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestCorrectDrift(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.inv.Tamper(productA, 13)

	_, err := f.svc.CorrectDrift(ctx, productA, 7, "  ")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, int64(10), f.inv.Sum(productA), "rejected correction writes nothing")

	res, err := f.svc.CorrectDrift(ctx, productA, 7, "found an extra carton")
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Drift)
	require.NotNil(t, res.Entry)
	require.Equal(t, inventory.EventAdjustment, res.Entry.EventType)
	require.Equal(t, int64(3), res.Entry.Delta)
	require.Equal(t, int64(13), res.Entry.StockAfter)
	require.Equal(t, int64(13), f.inv.Qty(productA), "counter is not moved")
	require.Equal(t, int64(13), f.inv.Sum(productA))

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "reconcile.drift_corrected", f.audit.logs[0].Action)
	require.Equal(t, int64(7), f.audit.logs[0].ActorID)

	report, err := f.svc.AuditProduct(ctx, productA)
	require.NoError(t, err)
	require.True(t, report.Consistent())
	require.Zero(t, report.Timeline[len(report.Timeline)-1].Gap, "correction row absorbs the out-of-band change")

	again, err := f.svc.CorrectDrift(ctx, productA, 7, "found an extra carton")
	require.NoError(t, err)
	require.Zero(t, again.Drift)
	require.Nil(t, again.Entry)
	require.Len(t, f.audit.logs, 1)
}

func TestCorrectDriftUnknownRef(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.CorrectDrift(context.Background(), inventory.AirconRef(77), 1, "note")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func newRedisCache(t *testing.T) *reconcile.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return reconcile.NewCache(client, 0)
}

func TestScanDriftCachesSummary(t *testing.T) {
	f := newFixture(t, newRedisCache(t))
	ctx := context.Background()
	f.inv.Tamper(productA, 8)
	f.inv.Tamper(unitRAS, 1)

	summary, err := f.svc.ScanDrift(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Scanned)
	require.Len(t, summary.Items, 2)
	require.Equal(t, productA, summary.Items[0].Ref)
	require.Equal(t, int64(-2), summary.Items[0].Drift)
	require.Equal(t, unitRAS, summary.Items[1].Ref)
	require.Equal(t, 2, f.gauge.last)

	f.inv.Tamper(productB, 0)
	cached, err := f.svc.ScanDrift(ctx, false)
	require.NoError(t, err)
	require.Len(t, cached.Items, 2, "served from cache")

	fresh, err := f.svc.ScanDrift(ctx, true)
	require.NoError(t, err)
	require.Len(t, fresh.Items, 3)
	require.Equal(t, 3, f.gauge.last)

	_, err = f.svc.CorrectDrift(ctx, productB, 1, "spoiled stock binned")
	require.NoError(t, err)
	afterFix, err := f.svc.ScanDrift(ctx, false)
	require.NoError(t, err)
	require.Len(t, afterFix.Items, 2, "correction invalidates the cached summary")
}

func TestScanDriftWithoutCache(t *testing.T) {
	f := newFixture(t, nil)

	summary, err := f.svc.ScanDrift(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Scanned)
	require.Empty(t, summary.Items)
	require.NotNil(t, summary.Items)
	require.Equal(t, 1, f.gauge.calls)
}
