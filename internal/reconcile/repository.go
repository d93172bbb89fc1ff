package reconcile

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kiosk-inventory/internal/checkout"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
)

// Repository reads counters, ledger sums and transactions for reconciliation.
type Repository struct {
	pool *pgxpool.Pool
	txns *checkout.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, txns: checkout.NewRepository(pool)}
}

// TransactionsReferencing lists the checkouts whose items name ref.
func (r *Repository) TransactionsReferencing(ctx context.Context, ref inventory.StockRef) ([]checkout.Transaction, error) {
	return r.txns.TransactionsReferencing(ctx, ref)
}

const driftSQL = `SELECT 'product', p.id, p.code, p.name, p.stock, COALESCE(l.total, 0)
    FROM products p
    LEFT JOIN (SELECT product_id, SUM(delta) AS total FROM inventory_logs
               WHERE product_id IS NOT NULL GROUP BY product_id) l ON l.product_id = p.id
    UNION ALL
    SELECT 'aircon', u.id, u.code, TRIM(u.code || ' ' || u.capacity), u.stock, COALESCE(l.total, 0)
    FROM aircon_units u
    LEFT JOIN (SELECT unit_id, SUM(delta) AS total FROM inventory_logs
               WHERE unit_id IS NOT NULL GROUP BY unit_id) l ON l.unit_id = u.id
    ORDER BY 1 DESC, 2`

// DriftRows compares every counter with its ledger sum in one pass. It
// returns the drifting counters and the number of counters scanned.
func (r *Repository) DriftRows(ctx context.Context) ([]DriftItem, int, error) {
	rows, err := r.pool.Query(ctx, driftSQL)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		items   []DriftItem
		scanned int
	)
	for rows.Next() {
		var (
			item DriftItem
			kind string
		)
		if err := rows.Scan(&kind, &item.Ref.ID, &item.Code, &item.Name, &item.LiveStock, &item.LedgerSum); err != nil {
			return nil, 0, err
		}
		scanned++
		item.Ref.Kind = inventory.StockKind(kind)
		item.Drift = item.LiveStock - item.LedgerSum
		if item.Drift != 0 {
			items = append(items, item)
		}
	}
	return items, scanned, rows.Err()
}
