package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	inventory.TxRepository
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	InsertAirconLog(ctx context.Context, l AirconLog) (AirconLog, error)
	LockAirconLog(ctx context.Context, id int64) (AirconLog, error)
	MarkLogReturned(ctx context.Context, id int64, at time.Time) error
	CountOpenLogs(ctx context.Context, transactionID int64) (int, error)
	MarkTransactionReturned(ctx context.Context, id int64) error
}

// Repository persists checkout data in PostgreSQL.
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

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (r *txRepo) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return Transaction{}, fmt.Errorf("checkout: encode items: %w", err)
	}
	var createdBy any
	if t.CreatedBy != 0 {
		createdBy = t.CreatedBy
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO transactions
        (code, vendor_id, vendor_user_id, items, total_amount, is_proxy, transaction_date, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at`,
		t.Code, t.VendorID, nullInt(t.VendorUserID), items, t.TotalAmount, t.IsProxy, t.TransactionDate, createdBy,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

const logColumns = `id, transaction_id, management_no, customer_name, contractor, model_number, vendor_id, vendor_user_id, unit_id, is_returned, returned_at, created_at`

func scanLog(row pgx.Row) (AirconLog, error) {
	var l AirconLog
	err := row.Scan(&l.ID, &l.TransactionID, &l.ManagementNo, &l.CustomerName, &l.Contractor, &l.ModelNumber,
		&l.VendorID, &l.VendorUserID, &l.UnitID, &l.IsReturned, &l.ReturnedAt, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AirconLog{}, ErrLogNotFound
	}
	return l, err
}

func (r *txRepo) InsertAirconLog(ctx context.Context, l AirconLog) (AirconLog, error) {
	return scanLog(r.tx.QueryRow(ctx, `INSERT INTO aircon_logs
        (transaction_id, management_no, customer_name, contractor, model_number, vendor_id, vendor_user_id, unit_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+logColumns,
		nullInt(l.TransactionID), l.ManagementNo, l.CustomerName, l.Contractor, l.ModelNumber, l.VendorID, nullInt(l.VendorUserID), nullInt(l.UnitID)))
}

func (r *txRepo) LockAirconLog(ctx context.Context, id int64) (AirconLog, error) {
	return scanLog(r.tx.QueryRow(ctx, `SELECT `+logColumns+` FROM aircon_logs WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) MarkLogReturned(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE aircon_logs SET is_returned = TRUE, returned_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *txRepo) CountOpenLogs(ctx context.Context, transactionID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM aircon_logs WHERE transaction_id = $1 AND NOT is_returned`, transactionID).Scan(&n)
	return n, err
}

func (r *txRepo) MarkTransactionReturned(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE transactions SET is_returned = TRUE WHERE id = $1`, id)
	return err
}

const transactionColumns = `id, code, vendor_id, vendor_user_id, items, total_amount, is_proxy, is_returned, transaction_date, COALESCE(created_by, 0), created_at`

// scanTransaction decodes one row selected with transactionColumns.
func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var items []byte
	err := row.Scan(&t.ID, &t.Code, &t.VendorID, &t.VendorUserID, &items, &t.TotalAmount, &t.IsProxy, &t.IsReturned,
		&t.TransactionDate, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	if err := json.Unmarshal(items, &t.Items); err != nil {
		return Transaction{}, fmt.Errorf("checkout: decode items of transaction %d: %w", t.ID, err)
	}
	return t, nil
}

// GetTransaction loads a transaction by id.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// ListTransactions returns a page of transactions, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		where += ` AND vendor_id = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += ` AND transaction_date >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += ` AND transaction_date <= $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions`+where+
		` ORDER BY transaction_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// TransactionsReferencing returns every transaction whose item list names
// ref, oldest first.
func (r *Repository) TransactionsReferencing(ctx context.Context, ref inventory.StockRef) ([]Transaction, error) {
	var probe []map[string]any
	switch ref.Kind {
	case inventory.KindProduct:
		probe = []map[string]any{{"kind": string(ItemCatalog), "product_id": ref.ID}}
	case inventory.KindAircon:
		probe = []map[string]any{{"kind": string(ItemUnit), "unit_id": ref.ID}}
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, ref)
	}
	raw, err := json.Marshal(probe)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE items @> $1::jsonb ORDER BY id`, string(raw))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListHeldLogs returns a vendor's un-returned logs without a management number.
func (r *Repository) ListHeldLogs(ctx context.Context, vendorID int64) ([]AirconLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+logColumns+` FROM aircon_logs
        WHERE vendor_id = $1 AND management_no IS NULL AND NOT is_returned
        ORDER BY id`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AirconLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CountHeldUnits counts units of one type held informally by any vendor.
func (r *Repository) CountHeldUnits(ctx context.Context, unitID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM aircon_logs
        WHERE unit_id = $1 AND management_no IS NULL AND NOT is_returned`, unitID).Scan(&n)
	return n, err
}
