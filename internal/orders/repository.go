package orders

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	inventory.TxRepository
	InsertOrder(ctx context.Context, o Order) (Order, error)
	LockOrder(ctx context.Context, id int64) (Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	UpdateOrderStatus(ctx context.Context, o Order) error
	ProductExists(ctx context.Context, id int64) (bool, error)
	AddItem(ctx context.Context, orderID, productID, qty int64) (Item, error)
	ItemOrderID(ctx context.Context, id int64) (int64, error)
	LockItem(ctx context.Context, id int64) (Item, error)
	SetItemOrdered(ctx context.Context, id, qty int64) error
	SetItemReceived(ctx context.Context, id, qty int64) error
	DeleteItem(ctx context.Context, id int64) error
	AcquireAdvisoryLock(ctx context.Context, key string) error
	ReorderCandidates(ctx context.Context) ([]Candidate, error)
}

// Repository persists orders in PostgreSQL.
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

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const orderColumns = `id, number, supplier, status, note, COALESCE(created_by, 0), ordered_at, received_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.Number, &o.Supplier, &status, &o.Note, &o.CreatedBy, &o.OrderedAt, &o.ReceivedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.Status = Status(status)
	return o, nil
}

const itemSelect = `SELECT oi.id, oi.order_id, oi.product_id, p.code, p.name, oi.qty_ordered, oi.qty_received
    FROM order_items oi JOIN products p ON p.id = oi.product_id`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	if err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductCode, &it.ProductName, &it.QtyOrdered, &it.QtyReceived); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func loadItems(ctx context.Context, q queryer, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, itemSelect+` WHERE oi.order_id = $1 ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadOrder(ctx context.Context, q queryer, query string, id int64) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = loadItems(ctx, q, o.ID)
	return o, err
}

func expectRow(ctx context.Context, e execer, notFound error, sql string, args ...any) error {
	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func (r *txRepo) InsertOrder(ctx context.Context, o Order) (Order, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO orders (number, supplier, status, note, created_by)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+orderColumns,
		o.Number, o.Supplier, string(o.Status), o.Note, nullActor(o.CreatedBy))
	out, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	out.Items = []Item{}
	return out, nil
}

func (r *txRepo) LockOrder(ctx context.Context, id int64) (Order, error) {
	return loadOrder(ctx, r.tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	return expectRow(ctx, r.tx, ErrOrderNotFound, `DELETE FROM orders WHERE id = $1`, id)
}

func (r *txRepo) UpdateOrderStatus(ctx context.Context, o Order) error {
	return expectRow(ctx, r.tx, ErrOrderNotFound, `UPDATE orders
        SET status = $2, ordered_at = $3, received_at = $4, updated_at = NOW()
        WHERE id = $1`, o.ID, string(o.Status), o.OrderedAt, o.ReceivedAt)
}

func (r *txRepo) ProductExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// AddItem inserts a line or, when the product is already on the order,
// raises its ordered quantity.
func (r *txRepo) AddItem(ctx context.Context, orderID, productID, qty int64) (Item, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, qty_ordered)
        VALUES ($1, $2, $3)
        ON CONFLICT (order_id, product_id) DO UPDATE SET qty_ordered = order_items.qty_ordered + EXCLUDED.qty_ordered
        RETURNING id`, orderID, productID, qty).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Item{}, ErrProductNotFound
		}
		return Item{}, err
	}
	return scanItem(r.tx.QueryRow(ctx, itemSelect+` WHERE oi.id = $1`, id))
}

func (r *txRepo) LockItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, itemSelect+` WHERE oi.id = $1 FOR UPDATE OF oi`, id))
}

// ItemOrderID reads a line's order without locking the line.
func (r *txRepo) ItemOrderID(ctx context.Context, id int64) (int64, error) {
	var orderID int64
	if err := r.tx.QueryRow(ctx, `SELECT order_id FROM order_items WHERE id = $1`, id).Scan(&orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrItemNotFound
		}
		return 0, err
	}
	return orderID, nil
}

func (r *txRepo) SetItemOrdered(ctx context.Context, id, qty int64) error {
	return expectRow(ctx, r.tx, ErrItemNotFound, `UPDATE order_items SET qty_ordered = $2 WHERE id = $1`, id, qty)
}

func (r *txRepo) SetItemReceived(ctx context.Context, id, qty int64) error {
	return expectRow(ctx, r.tx, ErrItemNotFound, `UPDATE order_items SET qty_received = $2 WHERE id = $1`, id, qty)
}

func (r *txRepo) DeleteItem(ctx context.Context, id int64) error {
	return expectRow(ctx, r.tx, ErrItemNotFound, `DELETE FROM order_items WHERE id = $1`, id)
}

// AcquireAdvisoryLock takes a transaction-scoped advisory lock released on
// commit or rollback.
func (r *txRepo) AcquireAdvisoryLock(ctx context.Context, key string) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

func (r *txRepo) ReorderCandidates(ctx context.Context) ([]Candidate, error) {
	rows, err := r.tx.Query(ctx, `SELECT p.id, p.code, p.name, p.stock, p.min_stock, p.qty_per_box
        FROM products p
        WHERE p.stock < p.min_stock
          AND NOT EXISTS (
            SELECT 1 FROM order_items oi JOIN orders o ON o.id = oi.order_id
            WHERE oi.product_id = p.id AND o.status IN ('DRAFT', 'ORDERED', 'PARTIAL'))
        ORDER BY p.category, p.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ProductID, &c.Code, &c.Name, &c.Stock, &c.MinStock, &c.QtyPerBox); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetOrder loads an order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return loadOrder(ctx, r.pool, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// ListOrders returns a page of orders, newest first, without items.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	where := ``
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = ` WHERE status = $1`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func nullActor(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
