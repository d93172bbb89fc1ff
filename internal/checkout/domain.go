package checkout

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// ItemKind tags the variant of a serialized line item.
type ItemKind string

const (
	// ItemCatalog is a stock-tracked product.
	ItemCatalog ItemKind = "catalog"
	// ItemManual is a free-text line with no stock effect.
	ItemManual ItemKind = "manual"
	// ItemUnit is one serialized air-conditioner unit.
	ItemUnit ItemKind = "unit"
)

// LineItem is one entry of the ordered item list stored with a transaction.
type LineItem struct {
	Kind         ItemKind        `json:"kind"`
	ProductID    int64           `json:"product_id,omitempty"`
	Code         string          `json:"code,omitempty"`
	Name         string          `json:"name"`
	Quantity     int64           `json:"quantity"`
	IsBox        bool            `json:"is_box,omitempty"`
	QtyPerBox    int64           `json:"qty_per_box,omitempty"`
	Units        int64           `json:"units,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Amount       decimal.Decimal `json:"amount"`
	ModelNumber  string          `json:"model_number,omitempty"`
	ManagementNo string          `json:"management_no,omitempty"`
	UnitID       *int64          `json:"unit_id,omitempty"`
}

// StockDelta is the signed counter change implied by the item.
func (li LineItem) StockDelta() int64 {
	switch li.Kind {
	case ItemCatalog:
		return -li.Units
	case ItemUnit:
		if li.UnitID != nil {
			return -1
		}
	}
	return 0
}

// Transaction is one checkout by one vendor.
type Transaction struct {
	ID              int64           `json:"id"`
	Code            uuid.UUID       `json:"code"`
	VendorID        int64           `json:"vendor_id"`
	VendorUserID    *int64          `json:"vendor_user_id,omitempty"`
	Items           []LineItem      `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	IsProxy         bool            `json:"is_proxy"`
	IsReturned      bool            `json:"is_returned"`
	TransactionDate time.Time       `json:"transaction_date"`
	CreatedBy       int64           `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ProductDeltas sums the stock deltas per product across catalog items.
func (t Transaction) ProductDeltas() map[int64]int64 {
	out := make(map[int64]int64)
	for _, li := range t.Items {
		if li.Kind == ItemCatalog && li.ProductID > 0 {
			out[li.ProductID] += li.StockDelta()
		}
	}
	return out
}

// StockDelta sums the counter change the transaction implies for ref.
func (t Transaction) StockDelta(ref inventory.StockRef) int64 {
	var sum int64
	for _, li := range t.Items {
		switch {
		case ref.Kind == inventory.KindProduct && li.Kind == ItemCatalog && li.ProductID == ref.ID:
			sum += li.StockDelta()
		case ref.Kind == inventory.KindAircon && li.Kind == ItemUnit && li.UnitID != nil && *li.UnitID == ref.ID:
			sum += li.StockDelta()
		}
	}
	return sum
}

// CartItem is one kiosk cart line. Exactly one of ProductID and ManualName
// must be set.
type CartItem struct {
	ProductID  int64
	ManualName string
	Quantity   int64
	IsBox      bool
	UnitPrice  *decimal.Decimal
}

// CheckoutInput captures a checkout request. VendorUserID zero means none.
type CheckoutInput struct {
	VendorID        int64
	VendorUserID    int64
	Items           []CartItem
	IsProxy         bool
	TransactionDate *time.Time
	ActorID         int64
	IdempotencyKey  string
}

// StockSnapshot is the informational post-checkout stock of one product.
type StockSnapshot struct {
	ProductID     int64  `json:"productId"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	ExpectedStock int64  `json:"expectedStock"`
}

// Result is returned by CreateTransaction.
type Result struct {
	Transaction Transaction
	Snapshot    []StockSnapshot
}

// AirconItem is one unit in an air-conditioner checkout.
type AirconItem struct {
	ModelNumber  string
	ManagementNo string
	CustomerName string
	Contractor   string
}

// AirconCheckoutInput captures an air-conditioner checkout request.
type AirconCheckoutInput struct {
	VendorID        int64
	VendorUserID    int64
	Items           []AirconItem
	IsProxy         bool
	TransactionDate *time.Time
	ActorID         int64
	IdempotencyKey  string
}

// AirconLog records one unit leaving with a vendor.
type AirconLog struct {
	ID            int64      `json:"id"`
	TransactionID *int64     `json:"transaction_id,omitempty"`
	ManagementNo  *string    `json:"management_no,omitempty"`
	CustomerName  string     `json:"customer_name"`
	Contractor    string     `json:"contractor"`
	ModelNumber   string     `json:"model_number"`
	VendorID      int64      `json:"vendor_id"`
	VendorUserID  *int64     `json:"vendor_user_id,omitempty"`
	UnitID        *int64     `json:"unit_id,omitempty"`
	IsReturned    bool       `json:"is_returned"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// VendorHeld reports whether the log represents informal stock held by the
// vendor rather than a unit installed at a job site.
func (l AirconLog) VendorHeld() bool {
	return !l.IsReturned && l.ManagementNo == nil
}

// UnitSnapshot is the informational post-checkout stock of one unit.
type UnitSnapshot struct {
	UnitID        int64  `json:"unitId"`
	Code          string `json:"code"`
	ExpectedStock int64  `json:"expectedStock"`
}

// AirconResult is returned by CheckoutAircon.
type AirconResult struct {
	Transaction Transaction
	Logs        []AirconLog
	Snapshot    []UnitSnapshot
	Unmatched   []string
}

// HeldUnit groups a vendor's un-returned generic units by model.
type HeldUnit struct {
	ModelNumber string  `json:"model_number"`
	UnitID      *int64  `json:"unit_id,omitempty"`
	Count       int64   `json:"count"`
	LogIDs      []int64 `json:"log_ids"`
}

// Availability combines warehouse and vendor-held stock for one unit.
type Availability struct {
	UnitID     int64  `json:"unit_id"`
	Code       string `json:"code"`
	Warehouse  int64  `json:"warehouse"`
	VendorHeld int64  `json:"vendor_held"`
	Total      int64  `json:"total"`
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	VendorID int64
	From     time.Time
	To       time.Time
	Page     int
	PerPage  int
}

const (
	// MaxLineQuantity bounds the quantity on one cart line.
	MaxLineQuantity = 100_000
	// MaxProductUnits bounds the units of one product moved by a single checkout.
	MaxProductUnits = 1_000_000_000
)

// ShortageError lists every cart line that exceeds available stock.
type ShortageError = inventory.ShortageError

var (
	ErrEmptyCart           = fmt.Errorf("%w: checkout: cart is empty", shared.ErrValidation)
	ErrInvalidItem         = fmt.Errorf("%w: checkout: invalid cart item", shared.ErrValidation)
	ErrVendorInactive      = fmt.Errorf("%w: checkout: vendor inactive", shared.ErrInvalidState)
	ErrVendorUserMismatch  = fmt.Errorf("%w: checkout: vendor user does not belong to vendor", shared.ErrValidation)
	ErrFutureDate          = fmt.Errorf("%w: checkout: transaction date in the future", shared.ErrValidation)
	ErrDateRequiresProxy   = fmt.Errorf("%w: checkout: explicit date only allowed for proxy entry", shared.ErrValidation)
	ErrLogNotFound         = fmt.Errorf("%w: checkout: aircon log", shared.ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: checkout: transaction", shared.ErrNotFound)
	// ErrAlreadyReturned is reported when a unit is returned twice.
	ErrAlreadyReturned = fmt.Errorf("%w: checkout: unit already returned", shared.ErrAlreadyProcessed)
)
