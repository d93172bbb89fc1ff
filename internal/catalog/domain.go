package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"

	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Unit is the unit of measure a product is stocked in.
type Unit string

const (
	UnitPiece Unit = "piece"
	UnitMeter Unit = "meter"
	UnitRoll  Unit = "roll"
	UnitBox   Unit = "box"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitPiece, UnitMeter, UnitRoll, UnitBox:
		return true
	}
	return false
}

// Product is a stock-tracked consumable.
type Product struct {
	ID          int64               `json:"id"`
	Code        string              `json:"code"`
	Name        string              `json:"name"`
	Category    string              `json:"category"`
	Subcategory string              `json:"subcategory"`
	ProductType string              `json:"product_type"`
	Unit        Unit                `json:"unit"`
	QtyPerBox   int64               `json:"qty_per_box"`
	Cost        decimal.Decimal     `json:"cost"`
	Price       decimal.Decimal     `json:"price"`
	Price2      decimal.NullDecimal `json:"price2"`
	MinStock    int64               `json:"min_stock"`
	Stock       int64               `json:"stock"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// PriceFor returns the unit price for a vendor price tier. Tier 2 falls back
// to the standard price when no secondary price is set.
func (p Product) PriceFor(tier int) decimal.Decimal {
	if tier == 2 && p.Price2.Valid {
		return p.Price2.Decimal
	}
	return p.Price
}

// BelowMinimum reports whether the product needs replenishment.
func (p Product) BelowMinimum() bool {
	return p.Stock < p.MinStock
}

// AirconUnit is a stock-tracked air-conditioner model.
type AirconUnit struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Capacity   string    `json:"capacity"`
	YearSuffix string    `json:"year_suffix"`
	Stock      int64     `json:"stock"`
	MinStock   int64     `json:"min_stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ModelMapping links a normalized vendor model number to a unit. Only one
// version per model number is active at a time.
type ModelMapping struct {
	ID          int64      `json:"id"`
	ModelNumber string     `json:"model_number"`
	UnitID      int64      `json:"unit_id"`
	Version     int        `json:"version"`
	CreatedBy   int64      `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RetiredAt   *time.Time `json:"retired_at,omitempty"`
}

// Active reports whether the mapping is current.
func (m ModelMapping) Active() bool { return m.RetiredAt == nil }

// Vendor is a contractor company drawing stock from the kiosk.
type Vendor struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	PriceTier int       `json:"price_tier"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// VendorUser is an individual working for a vendor.
type VendorUser struct {
	ID        int64     `json:"id"`
	VendorID  int64     `json:"vendor_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductInput creates a product.
type ProductInput struct {
	Code         string
	Name         string
	Category     string
	Subcategory  string
	ProductType  string
	Unit         Unit
	QtyPerBox    int64
	Cost         decimal.Decimal
	Price        decimal.Decimal
	Price2       decimal.NullDecimal
	MinStock     int64
	InitialStock int64
	ActorID      int64
}

// ProductUpdate patches editable product attributes. Stock is deliberately
// absent; counters only move through ledger movements.
type ProductUpdate struct {
	Name        *string
	Category    *string
	Subcategory *string
	ProductType *string
	QtyPerBox   *int64
	Cost        *decimal.Decimal
	Price       *decimal.Decimal
	Price2      *decimal.NullDecimal
	MinStock    *int64
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Category     string
	Search       string
	BelowMinimum bool
	Page         int
	PerPage      int
}

// AirconUnitInput creates a unit.
type AirconUnitInput struct {
	Code         string
	Capacity     string
	YearSuffix   string
	MinStock     int64
	InitialStock int64
	ActorID      int64
}

// VendorInput creates a vendor.
type VendorInput struct {
	Code      string
	Name      string
	PriceTier int
}

var (
	ErrProductNotFound    = fmt.Errorf("%w: catalog: product", shared.ErrNotFound)
	ErrUnitNotFound       = fmt.Errorf("%w: catalog: aircon unit", shared.ErrNotFound)
	ErrVendorNotFound     = fmt.Errorf("%w: catalog: vendor", shared.ErrNotFound)
	ErrVendorUserNotFound = fmt.Errorf("%w: catalog: vendor user", shared.ErrNotFound)
	ErrDuplicateCode      = fmt.Errorf("%w: catalog: code already exists", shared.ErrInvalidState)
	ErrInvalidProduct     = fmt.Errorf("%w: catalog: invalid product", shared.ErrValidation)
	ErrInvalidModel       = fmt.Errorf("%w: catalog: model number required", shared.ErrValidation)
)

// NormalizeModel folds full-width characters to ASCII, uppercases and
// collapses whitespace so that model numbers typed on different keyboards
// compare equal. No suffix is stripped.
func NormalizeModel(model string) string {
	folded := width.Fold.String(model)
	return strings.ToUpper(strings.Join(strings.Fields(folded), " "))
}

// MaxQtyPerBox bounds the units packed in one box.
const MaxQtyPerBox = 10_000

func validateProductInput(in ProductInput) error {
	var problems []string
	if strings.TrimSpace(in.Code) == "" {
		problems = append(problems, "code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name required")
	}
	if !in.Unit.Valid() {
		problems = append(problems, fmt.Sprintf("unit %q not supported", in.Unit))
	}
	if in.QtyPerBox < 1 || in.QtyPerBox > MaxQtyPerBox {
		problems = append(problems, fmt.Sprintf("qty_per_box must be between 1 and %d", MaxQtyPerBox))
	}
	if in.Price.IsNegative() || in.Cost.IsNegative() || (in.Price2.Valid && in.Price2.Decimal.IsNegative()) {
		problems = append(problems, "prices must not be negative")
	}
	if in.MinStock < 0 {
		problems = append(problems, "min_stock must not be negative")
	}
	if in.InitialStock < 0 {
		problems = append(problems, "initial stock must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProduct, strings.Join(problems, ", "))
	}
	return nil
}
