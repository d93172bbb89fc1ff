package stocktake

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	inventory.TxRepository
	InsertCount(ctx context.Context, c Count) (Count, error)
	LockCount(ctx context.Context, id int64) (Count, error)
	UpdateCount(ctx context.Context, c Count) error
	ProductExists(ctx context.Context, id int64) (bool, error)
	UpsertItem(ctx context.Context, countID, productID, qty int64) (CountItem, error)
	DeleteItem(ctx context.Context, countID, productID int64) error
	SetItemResult(ctx context.Context, itemID, systemQty, delta int64) error
	AcquireAdvisoryLock(ctx context.Context, key string) error
}

// Repository persists count sessions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside a READ COMMITTED transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const countColumns = `id, status, note, COALESCE(started_by, 0), started_at, completed_at`

func scanCount(row pgx.Row) (Count, error) {
	var c Count
	var status string
	if err := row.Scan(&c.ID, &status, &c.Note, &c.StartedBy, &c.StartedAt, &c.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Count{}, ErrCountNotFound
		}
		return Count{}, err
	}
	c.Status = Status(status)
	return c, nil
}

const itemSelect = `SELECT ci.id, ci.count_id, ci.product_id, p.code, p.name, ci.counted_qty, ci.system_qty, ci.applied_delta, ci.counted_at
    FROM inventory_count_items ci JOIN products p ON p.id = ci.product_id`

func scanItem(row pgx.Row) (CountItem, error) {
	var it CountItem
	err := row.Scan(&it.ID, &it.CountID, &it.ProductID, &it.ProductCode, &it.ProductName, &it.CountedQty, &it.SystemQty, &it.AppliedDelta, &it.CountedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CountItem{}, ErrItemNotFound
	}
	return it, err
}

func loadCount(ctx context.Context, q queryer, query string, id int64) (Count, error) {
	c, err := scanCount(q.QueryRow(ctx, query, id))
	if err != nil {
		return Count{}, err
	}
	rows, err := q.Query(ctx, itemSelect+` WHERE ci.count_id = $1 ORDER BY ci.product_id`, id)
	if err != nil {
		return Count{}, err
	}
	defer rows.Close()
	c.Items = []CountItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return Count{}, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

func (r *txRepo) InsertCount(ctx context.Context, c Count) (Count, error) {
	var startedBy any
	if c.StartedBy != 0 {
		startedBy = c.StartedBy
	}
	out, err := scanCount(r.tx.QueryRow(ctx, `INSERT INTO inventory_counts (status, note, started_by)
        VALUES ($1, $2, $3) RETURNING `+countColumns, string(c.Status), c.Note, startedBy))
	if err != nil {
		return Count{}, err
	}
	out.Items = []CountItem{}
	return out, nil
}

func (r *txRepo) LockCount(ctx context.Context, id int64) (Count, error) {
	return loadCount(ctx, r.tx, `SELECT `+countColumns+` FROM inventory_counts WHERE id = $1 FOR UPDATE`, id)
}

func (r *txRepo) UpdateCount(ctx context.Context, c Count) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_counts SET status = $2, completed_at = $3 WHERE id = $1`, c.ID, string(c.Status), c.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCountNotFound
	}
	return nil
}

func (r *txRepo) ProductExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// UpsertItem records a counted quantity, replacing any earlier count of the
// same product in the session.
func (r *txRepo) UpsertItem(ctx context.Context, countID, productID, qty int64) (CountItem, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_count_items (count_id, product_id, counted_qty)
        VALUES ($1, $2, $3)
        ON CONFLICT (count_id, product_id) DO UPDATE SET counted_qty = EXCLUDED.counted_qty, counted_at = NOW()
        RETURNING id`, countID, productID, qty).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return CountItem{}, ErrProductNotFound
		}
		return CountItem{}, err
	}
	return scanItem(r.tx.QueryRow(ctx, itemSelect+` WHERE ci.id = $1`, id))
}

func (r *txRepo) DeleteItem(ctx context.Context, countID, productID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM inventory_count_items WHERE count_id = $1 AND product_id = $2`, countID, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) SetItemResult(ctx context.Context, itemID, systemQty, delta int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_count_items SET system_qty = $2, applied_delta = $3 WHERE id = $1`, itemID, systemQty, delta)
	return err
}

func (r *txRepo) AcquireAdvisoryLock(ctx context.Context, key string) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

// GetCount loads a count with its items.
func (r *Repository) GetCount(ctx context.Context, id int64) (Count, error) {
	return loadCount(ctx, r.pool, `SELECT `+countColumns+` FROM inventory_counts WHERE id = $1`, id)
}

// ListCounts returns a page of counts, newest first, without items.
func (r *Repository) ListCounts(ctx context.Context, filter ListFilter) ([]Count, int, error) {
	where := ``
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = ` WHERE status = $1`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_counts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, `SELECT `+countColumns+` FROM inventory_counts`+where+
		` ORDER BY started_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Count
	for rows.Next() {
		c, err := scanCount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
