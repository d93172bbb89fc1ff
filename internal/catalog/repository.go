package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/platform/db"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	inventory.TxRepository
	InsertProduct(ctx context.Context, p Product) (Product, error)
	InsertAirconUnit(ctx context.Context, u AirconUnit) (AirconUnit, error)
	AirconUnitExists(ctx context.Context, id int64) (bool, error)
	LockActiveMapping(ctx context.Context, model string) (ModelMapping, bool, error)
	LatestMappingVersion(ctx context.Context, model string) (int, error)
	RetireMapping(ctx context.Context, id int64, at time.Time) error
	InsertMapping(ctx context.Context, m ModelMapping) (ModelMapping, error)
}

// Repository persists catalog data in PostgreSQL.
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

const productColumns = `id, code, name, category, subcategory, product_type, unit, qty_per_box, cost, price, price2, min_stock, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var unit string
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Subcategory, &p.ProductType, &unit, &p.QtyPerBox,
		&p.Cost, &p.Price, &p.Price2, &p.MinStock, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	p.Unit = Unit(unit)
	return p, nil
}

func (r *txRepo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO products
        (code, name, category, subcategory, product_type, unit, qty_per_box, cost, price, price2, min_stock, stock)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0)
        RETURNING `+productColumns,
		p.Code, p.Name, p.Category, p.Subcategory, p.ProductType, string(p.Unit), p.QtyPerBox, p.Cost, p.Price, p.Price2, p.MinStock)
	out, err := scanProduct(row)
	if db.IsUniqueViolation(err) {
		return Product{}, fmt.Errorf("%w: %s", ErrDuplicateCode, p.Code)
	}
	return out, err
}

const unitColumns = `id, code, capacity, year_suffix, stock, min_stock, created_at, updated_at`

func scanUnit(row pgx.Row) (AirconUnit, error) {
	var u AirconUnit
	if err := row.Scan(&u.ID, &u.Code, &u.Capacity, &u.YearSuffix, &u.Stock, &u.MinStock, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AirconUnit{}, ErrUnitNotFound
		}
		return AirconUnit{}, err
	}
	return u, nil
}

func (r *txRepo) InsertAirconUnit(ctx context.Context, u AirconUnit) (AirconUnit, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO aircon_units (code, capacity, year_suffix, min_stock, stock)
        VALUES ($1, $2, $3, $4, 0) RETURNING `+unitColumns, u.Code, u.Capacity, u.YearSuffix, u.MinStock)
	out, err := scanUnit(row)
	if db.IsUniqueViolation(err) {
		return AirconUnit{}, fmt.Errorf("%w: %s", ErrDuplicateCode, u.Code)
	}
	return out, err
}

func (r *txRepo) AirconUnitExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM aircon_units WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

const mappingColumns = `id, model_number, unit_id, version, COALESCE(created_by, 0), created_at, retired_at`

func scanMapping(row pgx.Row) (ModelMapping, error) {
	var m ModelMapping
	err := row.Scan(&m.ID, &m.ModelNumber, &m.UnitID, &m.Version, &m.CreatedBy, &m.CreatedAt, &m.RetiredAt)
	return m, err
}

func (r *txRepo) LockActiveMapping(ctx context.Context, model string) (ModelMapping, bool, error) {
	m, err := scanMapping(r.tx.QueryRow(ctx, `SELECT `+mappingColumns+` FROM aircon_model_mappings
        WHERE model_number = $1 AND retired_at IS NULL FOR UPDATE`, model))
	if errors.Is(err, pgx.ErrNoRows) {
		return ModelMapping{}, false, nil
	}
	if err != nil {
		return ModelMapping{}, false, err
	}
	return m, true, nil
}

func (r *txRepo) LatestMappingVersion(ctx context.Context, model string) (int, error) {
	var version int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM aircon_model_mappings WHERE model_number = $1`, model).Scan(&version)
	return version, err
}

func (r *txRepo) RetireMapping(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE aircon_model_mappings SET retired_at = $2 WHERE id = $1 AND retired_at IS NULL`, id, at)
	return err
}

func (r *txRepo) InsertMapping(ctx context.Context, m ModelMapping) (ModelMapping, error) {
	var createdBy any
	if m.CreatedBy != 0 {
		createdBy = m.CreatedBy
	}
	out, err := scanMapping(r.tx.QueryRow(ctx, `INSERT INTO aircon_model_mappings (model_number, unit_id, version, created_by)
        VALUES ($1, $2, $3, $4) RETURNING `+mappingColumns, m.ModelNumber, m.UnitID, m.Version, createdBy))
	if db.IsUniqueViolation(err) {
		return ModelMapping{}, fmt.Errorf("%w: concurrent mapping of %s", shared.ErrRetryable, m.ModelNumber)
	}
	return out, err
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// UpdateProduct persists editable attributes. The stock column is never written here.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET name = $2, category = $3, subcategory = $4, product_type = $5,
        qty_per_box = $6, cost = $7, price = $8, price2 = $9, min_stock = $10, updated_at = NOW()
        WHERE id = $1`,
		p.ID, p.Name, p.Category, p.Subcategory, p.ProductType, p.QtyPerBox, p.Cost, p.Price, p.Price2, p.MinStock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListProducts returns a page of products and the total count.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += ` AND category = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filter.BelowMinimum {
		where += ` AND stock < min_stock`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY category, subcategory, code`
	if filter.PerPage > 0 {
		args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// GetAirconUnit loads a unit by id.
func (r *Repository) GetAirconUnit(ctx context.Context, id int64) (AirconUnit, error) {
	return scanUnit(r.pool.QueryRow(ctx, `SELECT `+unitColumns+` FROM aircon_units WHERE id = $1`, id))
}

// ListAirconUnits returns every unit ordered by code.
func (r *Repository) ListAirconUnits(ctx context.Context) ([]AirconUnit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+unitColumns+` FROM aircon_units ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []AirconUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// ResolveModel looks up the unit currently mapped to a normalized model number.
func (r *Repository) ResolveModel(ctx context.Context, model string) (AirconUnit, bool, error) {
	u, err := scanUnit(r.pool.QueryRow(ctx, `SELECT u.id, u.code, u.capacity, u.year_suffix, u.stock, u.min_stock, u.created_at, u.updated_at
        FROM aircon_model_mappings m
        JOIN aircon_units u ON u.id = m.unit_id
        WHERE m.model_number = $1 AND m.retired_at IS NULL`, model))
	if errors.Is(err, ErrUnitNotFound) {
		return AirconUnit{}, false, nil
	}
	if err != nil {
		return AirconUnit{}, false, err
	}
	return u, true, nil
}

// ListModelMappings returns the mapping history for a model number, newest first.
func (r *Repository) ListModelMappings(ctx context.Context, model string) ([]ModelMapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+mappingColumns+` FROM aircon_model_mappings WHERE model_number = $1 ORDER BY version DESC`, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModelMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertVendor creates a vendor.
func (r *Repository) InsertVendor(ctx context.Context, v Vendor) (Vendor, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO vendors (code, name, price_tier, active) VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`, v.Code, v.Name, v.PriceTier, v.Active).Scan(&v.ID, &v.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Vendor{}, fmt.Errorf("%w: %s", ErrDuplicateCode, v.Code)
	}
	return v, err
}

// GetVendor loads a vendor.
func (r *Repository) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	var v Vendor
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, price_tier, active, created_at FROM vendors WHERE id = $1`, id).
		Scan(&v.ID, &v.Code, &v.Name, &v.PriceTier, &v.Active, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, ErrVendorNotFound
	}
	return v, err
}

// ListVendors returns every vendor ordered by code.
func (r *Repository) ListVendors(ctx context.Context) ([]Vendor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, price_tier, active, created_at FROM vendors ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Code, &v.Name, &v.PriceTier, &v.Active, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// InsertVendorUser adds a user to a vendor.
func (r *Repository) InsertVendorUser(ctx context.Context, u VendorUser) (VendorUser, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO vendor_users (vendor_id, name, active) VALUES ($1, $2, $3)
        RETURNING id, created_at`, u.VendorID, u.Name, u.Active).Scan(&u.ID, &u.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return VendorUser{}, ErrVendorNotFound
	}
	return u, err
}

// GetVendorUser loads a vendor user.
func (r *Repository) GetVendorUser(ctx context.Context, id int64) (VendorUser, error) {
	var u VendorUser
	err := r.pool.QueryRow(ctx, `SELECT id, vendor_id, name, active, created_at FROM vendor_users WHERE id = $1`, id).
		Scan(&u.ID, &u.VendorID, &u.Name, &u.Active, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return VendorUser{}, ErrVendorUserNotFound
	}
	return u, err
}
