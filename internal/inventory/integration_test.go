//go:build integration

package inventory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db/dbtest"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

func TestPostgresConcurrentCheckouts(t *testing.T) {
	pool := dbtest.Start(t)
	ctx := context.Background()

	var productID int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO products (code, name, unit) VALUES ('PIPE-1/4', 'Copper pipe 1/4', 'meter') RETURNING id`).Scan(&productID))

	repo := inventory.NewRepository(pool)
	svc := inventory.NewService(repo, inventory.NewRecorder(nil), nil, nil)
	ref := inventory.ProductRef(productID)

	_, err := svc.RecordMovement(ctx, inventory.MovementInput{Ref: ref, Delta: 20, EventType: inventory.EventInitial})
	require.NoError(t, err)

	var ok, short atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordMovement(ctx, inventory.MovementInput{Ref: ref, Delta: -1, EventType: inventory.EventCheckout})
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

	require.Equal(t, int64(20), ok.Load())
	require.Equal(t, int64(20), short.Load())

	stock, err := repo.GetStock(ctx, ref)
	require.NoError(t, err)
	require.Zero(t, stock.Qty)
	sum, err := repo.SumEntries(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, stock.Qty, sum)

	entries, err := svc.StockCard(ctx, inventory.StockCardFilter{Ref: ref})
	require.NoError(t, err)
	require.Len(t, entries, 21)
	require.Zero(t, entries[len(entries)-1].StockAfter)
}

func TestPostgresLedgerIsAppendOnly(t *testing.T) {
	pool := dbtest.Start(t)
	ctx := context.Background()

	var unitID int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO aircon_units (code, capacity) VALUES ('RAS-2210', '2.2kW') RETURNING id`).Scan(&unitID))
	svc := inventory.NewService(inventory.NewRepository(pool), inventory.NewRecorder(nil), nil, nil)
	entry, err := svc.RecordMovement(ctx, inventory.MovementInput{Ref: inventory.AirconRef(unitID), Delta: 2, EventType: inventory.EventInitial})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE inventory_logs SET delta = 5 WHERE id = $1`, entry.ID)
	require.Error(t, err)
}
