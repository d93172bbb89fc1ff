package orders

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Status is the replenishment order lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusOrdered   Status = "ORDERED"
	StatusPartial   Status = "PARTIAL"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusOrdered, StatusPartial, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether an order in this status still covers its products
// for reorder purposes.
func (s Status) Open() bool {
	return s == StatusDraft || s == StatusOrdered || s == StatusPartial
}

// Receivable reports whether goods may be received against the order.
func (s Status) Receivable() bool {
	return s == StatusOrdered || s == StatusPartial
}

// Order is a purchase order to a supplier.
type Order struct {
	ID         int64      `json:"id"`
	Number     string     `json:"number"`
	Supplier   string     `json:"supplier"`
	Status     Status     `json:"status"`
	Note       string     `json:"note"`
	CreatedBy  int64      `json:"created_by,omitempty"`
	OrderedAt  *time.Time `json:"ordered_at,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Items      []Item     `json:"items"`
}

// Item is one product line of an order.
type Item struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	ProductCode string `json:"product_code"`
	ProductName string `json:"product_name"`
	QtyOrdered  int64  `json:"qty_ordered"`
	QtyReceived int64  `json:"qty_received"`
}

// Outstanding is the quantity still expected.
func (i Item) Outstanding() int64 {
	return i.QtyOrdered - i.QtyReceived
}

// DeriveStatus recomputes the status of a placed order from its items.
// RECEIVED when every item is complete, PARTIAL when anything has arrived,
// otherwise the current status is kept. Draft and terminal orders are
// returned unchanged.
func DeriveStatus(current Status, items []Item) Status {
	if !current.Receivable() || len(items) == 0 {
		return current
	}
	complete, started := true, false
	for _, it := range items {
		if it.QtyReceived < it.QtyOrdered {
			complete = false
		}
		if it.QtyReceived > 0 {
			started = true
		}
	}
	switch {
	case complete:
		return StatusReceived
	case started:
		return StatusPartial
	}
	return current
}

// DraftInput creates a draft order.
type DraftInput struct {
	Supplier string
	Note     string
	Items    []ItemInput
	ActorID  int64
}

// ItemInput adds a product line to a draft.
type ItemInput struct {
	ProductID int64
	Quantity  int64
}

// ReceiveInput confirms goods arriving for one order item.
type ReceiveInput struct {
	ItemID   int64
	Quantity int64
	ActorID  int64
}

// ReorderPolicy drives automatic draft generation.
type ReorderPolicy struct {
	Multiplier int64
	Supplier   string
	ActorID    int64
}

// Candidate is a product below its minimum stock.
type Candidate struct {
	ProductID int64
	Code      string
	Name      string
	Stock     int64
	MinStock  int64
	QtyPerBox int64
}

// ProposedQty is the quantity that lifts stock to multiplier × minimum,
// rounded up to whole boxes.
func (c Candidate) ProposedQty(multiplier int64) int64 {
	qty := multiplier*c.MinStock - c.Stock
	if qty <= 0 {
		return 0
	}
	if c.QtyPerBox > 1 {
		if rem := qty % c.QtyPerBox; rem != 0 {
			qty += c.QtyPerBox - rem
		}
	}
	return qty
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status  Status
	Page    int
	PerPage int
}

const autoReorderSupplier = "auto-reorder"

var (
	ErrOrderNotFound   = fmt.Errorf("%w: orders: order", shared.ErrNotFound)
	ErrItemNotFound    = fmt.Errorf("%w: orders: item", shared.ErrNotFound)
	ErrProductNotFound = fmt.Errorf("%w: orders: product", shared.ErrNotFound)
	ErrInvalidQuantity = fmt.Errorf("%w: orders: quantity must be positive", shared.ErrValidation)
	ErrOverReceipt     = fmt.Errorf("%w: orders: receipt exceeds ordered quantity", shared.ErrValidation)
	ErrEmptyOrder      = fmt.Errorf("%w: orders: order has no items", shared.ErrValidation)
	ErrNotDraft        = fmt.Errorf("%w: orders: only draft orders can be edited", shared.ErrInvalidState)
	ErrNotReceivable   = fmt.Errorf("%w: orders: order is not open for receipt", shared.ErrInvalidState)
	// ErrAlreadyReceived is reported for receipts against a completed order.
	ErrAlreadyReceived = fmt.Errorf("%w: orders: order already received", shared.ErrAlreadyProcessed)
)
