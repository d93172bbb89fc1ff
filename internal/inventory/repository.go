package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
)

// TxRepository exposes the row-level operations the Recorder needs inside a
// transaction.
type TxRepository interface {
	LockStock(ctx context.Context, ref StockRef) (Stock, error)
	SetStock(ctx context.Context, ref StockRef, qty int64) error
	InsertEntry(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
	SumEntries(ctx context.Context, ref StockRef) (int64, error)
}

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction. Repositories of other packages
// embed it so their own writes share the ledger transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside a READ COMMITTED transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func refColumns(ref StockRef) (productID, unitID any) {
	if ref.Kind == KindAircon {
		return nil, ref.ID
	}
	return ref.ID, nil
}

const (
	lockProductSQL = `SELECT code, name, stock, min_stock, updated_at FROM products WHERE id = $1 FOR UPDATE`
	lockAirconSQL  = `SELECT code, TRIM(code || ' ' || capacity), stock, min_stock, updated_at FROM aircon_units WHERE id = $1 FOR UPDATE`
	getProductSQL  = `SELECT code, name, stock, min_stock, updated_at FROM products WHERE id = $1`
	getAirconSQL   = `SELECT code, TRIM(code || ' ' || capacity), stock, min_stock, updated_at FROM aircon_units WHERE id = $1`
)

func scanStock(row pgx.Row, ref StockRef) (Stock, error) {
	stock := Stock{Ref: ref}
	if err := row.Scan(&stock.Code, &stock.Name, &stock.Qty, &stock.MinStock, &stock.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, fmt.Errorf("%w: %s", ErrStockNotFound, ref)
		}
		return Stock{}, err
	}
	return stock, nil
}

func (r *txRepo) LockStock(ctx context.Context, ref StockRef) (Stock, error) {
	query := lockProductSQL
	if ref.Kind == KindAircon {
		query = lockAirconSQL
	}
	return scanStock(r.tx.QueryRow(ctx, query, ref.ID), ref)
}

func (r *txRepo) SetStock(ctx context.Context, ref StockRef, qty int64) error {
	table := "products"
	if ref.Kind == KindAircon {
		table = "aircon_units"
	}
	tag, err := r.tx.Exec(ctx, `UPDATE `+table+` SET stock = $2, updated_at = NOW() WHERE id = $1`, ref.ID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrStockNotFound, ref)
	}
	return nil
}

func (r *txRepo) InsertEntry(ctx context.Context, entry LedgerEntry) (LedgerEntry, error) {
	productID, unitID := refColumns(entry.Ref)
	var actor any
	if entry.ActorID != 0 {
		actor = entry.ActorID
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_logs
        (product_id, unit_id, delta, event_type, reason, ref_module, ref_id, stock_after, actor_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at`,
		productID, unitID, entry.Delta, string(entry.EventType), entry.Reason, entry.RefModule, entry.RefID, entry.StockAfter, actor,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

func (r *txRepo) SumEntries(ctx context.Context, ref StockRef) (int64, error) {
	return sumEntries(ctx, r.tx, ref)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumEntries(ctx context.Context, q rowQuerier, ref StockRef) (int64, error) {
	column := "product_id"
	if ref.Kind == KindAircon {
		column = "unit_id"
	}
	var sum int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0)::BIGINT FROM inventory_logs WHERE `+column+` = $1`, ref.ID).Scan(&sum)
	return sum, err
}

// GetStock reads the counter without locking.
func (r *Repository) GetStock(ctx context.Context, ref StockRef) (Stock, error) {
	query := getProductSQL
	if ref.Kind == KindAircon {
		query = getAirconSQL
	}
	return scanStock(r.pool.QueryRow(ctx, query, ref.ID), ref)
}

// SumEntries totals the ledger for one counter.
func (r *Repository) SumEntries(ctx context.Context, ref StockRef) (int64, error) {
	return sumEntries(ctx, r.pool, ref)
}

// ListEntries returns ledger rows for one counter in append order.
func (r *Repository) ListEntries(ctx context.Context, filter StockCardFilter) ([]LedgerEntry, error) {
	column := "product_id"
	if filter.Ref.Kind == KindAircon {
		column = "unit_id"
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := r.pool.Query(ctx, `SELECT id, delta, event_type, reason, ref_module, ref_id, stock_after, COALESCE(actor_id, 0), created_at
        FROM inventory_logs
        WHERE `+column+` = $1
          AND ($2::timestamptz IS NULL OR created_at >= $2)
          AND ($3::timestamptz IS NULL OR created_at <= $3)
        ORDER BY id
        LIMIT $4`, filter.Ref.ID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		entry := LedgerEntry{Ref: filter.Ref}
		var eventType string
		if err := rows.Scan(&entry.ID, &entry.Delta, &eventType, &entry.Reason, &entry.RefModule, &entry.RefID,
			&entry.StockAfter, &entry.ActorID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.EventType = EventType(eventType)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
