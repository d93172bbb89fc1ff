package inventory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory/inventorytest"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

type countingObserver struct {
	mu       sync.Mutex
	recorded map[inventory.EventType]int
	rejected map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{recorded: map[inventory.EventType]int{}, rejected: map[string]int{}}
}

func (o *countingObserver) MovementRecorded(evt inventory.MovementRecordedEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorded[evt.EventType]++
}

func (o *countingObserver) MovementRejected(evt inventory.MovementRejectedEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected[evt.Reason]++
}

func newService(t *testing.T) (*inventory.Service, *inventorytest.Store, *countingObserver) {
	t.Helper()
	store := inventorytest.NewStore()
	obs := newCountingObserver()
	svc := inventory.NewService(store, inventory.NewRecorder(obs), nil, nil)
	return svc, store, obs
}

func TestRecordMovementKeepsLedgerAndCounterInStep(t *testing.T) {
	svc, store, obs := newService(t)
	ctx := context.Background()
	ref := inventory.ProductRef(1)
	store.Seed(ref, "CBL-2.0", 10)

	moves := []inventory.MovementInput{
		{Ref: ref, Delta: -3, EventType: inventory.EventCheckout},
		{Ref: ref, Delta: 5, EventType: inventory.EventReceipt},
		{Ref: ref, Delta: 1, EventType: inventory.EventReturn},
		{Ref: ref, Delta: -2, EventType: inventory.EventAdjustment, Reason: "damaged"},
		{Ref: ref, Delta: -4, EventType: inventory.EventStocktake},
	}
	want := int64(10)
	for _, m := range moves {
		entry, err := svc.RecordMovement(ctx, m)
		require.NoError(t, err)
		want += m.Delta
		require.Equal(t, want, entry.StockAfter)
		require.Equal(t, m.EventType, entry.EventType)
	}

	require.Equal(t, int64(7), store.Qty(ref))
	require.Equal(t, store.Qty(ref), store.Sum(ref))
	require.Len(t, store.Entries(ref), 6)
	require.Equal(t, 1, obs.recorded[inventory.EventCheckout])
	require.Equal(t, 1, obs.recorded[inventory.EventStocktake])
}

func TestCheckoutCannotDriveStockNegative(t *testing.T) {
	svc, store, obs := newService(t)
	ctx := context.Background()
	ref := inventory.ProductRef(2)
	store.Seed(ref, "DUCT-75", 2)

	_, err := svc.RecordMovement(ctx, inventory.MovementInput{Ref: ref, Delta: -3, EventType: inventory.EventCheckout})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	var short *inventory.InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Equal(t, int64(2), short.Available)
	require.Equal(t, int64(3), short.Requested)
	require.Equal(t, "DUCT-75", short.Code)

	require.Equal(t, int64(2), store.Qty(ref))
	require.Len(t, store.Entries(ref), 1)
	require.Equal(t, 1, obs.rejected[inventory.RejectInsufficientStock])
}

func TestCorrectionsMayGoBelowZero(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	ref := inventory.AirconRef(3)
	store.Seed(ref, "RAS-221", 0)

	entry, err := svc.RecordMovement(ctx, inventory.MovementInput{Ref: ref, Delta: -1, EventType: inventory.EventAdjustment, Reason: "miscount"})
	require.NoError(t, err)
	require.Equal(t, int64(-1), entry.StockAfter)
	require.Equal(t, store.Sum(ref), store.Qty(ref))
}

func TestMovementSignRules(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	ref := inventory.ProductRef(4)
	store.Seed(ref, "TAPE", 10)

	cases := []struct {
		name string
		in   inventory.MovementInput
	}{
		{"zero delta", inventory.MovementInput{Ref: ref, Delta: 0, EventType: inventory.EventAdjustment, Reason: "x"}},
		{"positive checkout", inventory.MovementInput{Ref: ref, Delta: 1, EventType: inventory.EventCheckout}},
		{"negative return", inventory.MovementInput{Ref: ref, Delta: -1, EventType: inventory.EventReturn}},
		{"negative receipt", inventory.MovementInput{Ref: ref, Delta: -1, EventType: inventory.EventReceipt}},
		{"negative initial", inventory.MovementInput{Ref: ref, Delta: -1, EventType: inventory.EventInitial}},
		{"unknown type", inventory.MovementInput{Ref: ref, Delta: 1, EventType: "TRANSFER"}},
		{"adjustment without reason", inventory.MovementInput{Ref: ref, Delta: 1, EventType: inventory.EventAdjustment}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordMovement(ctx, tc.in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Equal(t, int64(10), store.Qty(ref))
	require.Len(t, store.Entries(ref), 1)
}

func TestRecordMovementUnknownProduct(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.RecordMovement(context.Background(), inventory.MovementInput{Ref: inventory.ProductRef(99), Delta: 1, EventType: inventory.EventReceipt})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestApplyBatchReportsEveryShortageAndWritesNothing(t *testing.T) {
	store := inventorytest.NewStore()
	rec := inventory.NewRecorder(nil)
	a, b, c := inventory.ProductRef(1), inventory.ProductRef(2), inventory.ProductRef(3)
	store.Seed(a, "A", 5)
	store.Seed(b, "B", 1)
	store.Seed(c, "C", 0)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := rec.ApplyBatch(ctx, tx, []inventory.MovementInput{
			{Ref: c, Delta: -1, EventType: inventory.EventCheckout},
			{Ref: a, Delta: -2, EventType: inventory.EventCheckout},
			{Ref: b, Delta: -4, EventType: inventory.EventCheckout},
		})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	shortages := inventory.AsShortage(err)
	require.Len(t, shortages, 2)
	require.Equal(t, b, shortages[0].Ref)
	require.Equal(t, c, shortages[1].Ref)

	require.Equal(t, int64(5), store.Qty(a))
	require.Equal(t, 2, store.Len())
}

func TestApplyBatchRejectsDuplicateRefs(t *testing.T) {
	store := inventorytest.NewStore()
	ref := inventory.ProductRef(1)
	store.Seed(ref, "A", 5)
	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := inventory.NewRecorder(nil).ApplyBatch(ctx, tx, []inventory.MovementInput{
			{Ref: ref, Delta: -1, EventType: inventory.EventCheckout},
			{Ref: ref, Delta: -1, EventType: inventory.EventCheckout},
		})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrDuplicateRef)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	svc, store, _ := newService(t)
	ref := inventory.ProductRef(7)
	store.Seed(ref, "PIPE-3/8", 10)

	var ok, short atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordMovement(context.Background(), inventory.MovementInput{Ref: ref, Delta: -1, EventType: inventory.EventCheckout})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, shared.ErrInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(10), ok.Load())
	require.Equal(t, int64(15), short.Load())
	require.Equal(t, int64(0), store.Qty(ref))
	require.Equal(t, int64(0), store.Sum(ref))
}

func TestAcknowledgeDriftLeavesCounterAlone(t *testing.T) {
	store := inventorytest.NewStore()
	rec := inventory.NewRecorder(nil)
	ref := inventory.ProductRef(1)
	store.Seed(ref, "A", 10)
	store.Tamper(ref, 8)

	var drift int64
	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		entry, d, err := rec.AcknowledgeDrift(ctx, tx, ref, "counter edited outside ledger", 42)
		drift = d
		require.Equal(t, inventory.EventAdjustment, entry.EventType)
		require.Equal(t, int64(8), entry.StockAfter)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(-2), drift)
	require.Equal(t, int64(8), store.Qty(ref))
	require.Equal(t, int64(8), store.Sum(ref))

	err = store.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		_, d, err := rec.AcknowledgeDrift(ctx, tx, ref, "again", 42)
		drift = d
		return err
	})
	require.NoError(t, err)
	require.Zero(t, drift)
}

func TestAdjustRequiresReason(t *testing.T) {
	svc, store, _ := newService(t)
	ref := inventory.ProductRef(1)
	store.Seed(ref, "A", 1)

	_, err := svc.Adjust(context.Background(), inventory.AdjustInput{Ref: ref, Delta: 2})
	require.ErrorIs(t, err, inventory.ErrReasonRequired)

	entry, err := svc.Adjust(context.Background(), inventory.AdjustInput{Ref: ref, Delta: 2, Reason: "found in van", ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, "adjustment", entry.RefModule)
	require.NotEmpty(t, entry.RefID)
	require.Equal(t, int64(3), store.Qty(ref))
}

func TestStockCardValidatesRange(t *testing.T) {
	svc, store, _ := newService(t)
	ref := inventory.ProductRef(1)
	store.Seed(ref, "A", 1)

	entries, err := svc.StockCard(context.Background(), inventory.StockCardFilter{Ref: ref})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = svc.StockCard(context.Background(), inventory.StockCardFilter{Ref: inventory.ProductRef(2)})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestParseRef(t *testing.T) {
	ref, err := inventory.ParseRef("Aircon", "12")
	require.NoError(t, err)
	require.Equal(t, inventory.AirconRef(12), ref)
	require.Equal(t, "aircon:12", ref.String())

	_, err = inventory.ParseRef("warehouse", "1")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = inventory.ParseRef("product", "0")
	require.ErrorIs(t, err, shared.ErrValidation)
}
