package inventory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// EventType enumerates supported stock movements.
type EventType string

const (
	// EventInitial records the opening balance of a new product or unit.
	EventInitial EventType = "INITIAL"
	// EventCheckout represents stock taken by a vendor at the kiosk.
	EventCheckout EventType = "CHECKOUT"
	// EventReturn puts a previously checked-out unit back.
	EventReturn EventType = "RETURN"
	// EventReceipt is stock received against a replenishment order.
	EventReceipt EventType = "RECEIPT"
	// EventAdjustment indicates manual corrections.
	EventAdjustment EventType = "ADJUSTMENT"
	// EventStocktake aligns system stock with a physical count.
	EventStocktake EventType = "STOCKTAKE"
)

// EventTypes lists every movement type in declaration order.
var EventTypes = []EventType{EventInitial, EventCheckout, EventReturn, EventReceipt, EventAdjustment, EventStocktake}

// Valid reports whether e belongs to the fixed tag set.
func (e EventType) Valid() bool {
	switch e {
	case EventInitial, EventCheckout, EventReturn, EventReceipt, EventAdjustment, EventStocktake:
		return true
	}
	return false
}

// EnforcesFloor reports whether the movement may not drive stock below zero.
// Physical counts and administrative corrections are ground truth and may set
// any value.
func (e EventType) EnforcesFloor() bool {
	return e == EventCheckout
}

func (e EventType) checkSign(delta int64) error {
	switch e {
	case EventCheckout:
		if delta > 0 {
			return fmt.Errorf("%w: %s requires a negative delta", ErrInvalidQuantity, e)
		}
	case EventInitial, EventReturn, EventReceipt:
		if delta < 0 {
			return fmt.Errorf("%w: %s requires a positive delta", ErrInvalidQuantity, e)
		}
	}
	return nil
}

// StockKind distinguishes the two counter tables.
type StockKind string

const (
	// KindProduct addresses products.stock.
	KindProduct StockKind = "product"
	// KindAircon addresses aircon_units.stock.
	KindAircon StockKind = "aircon"
)

// StockRef identifies one stock counter.
type StockRef struct {
	Kind StockKind `json:"kind"`
	ID   int64     `json:"id"`
}

// ProductRef builds a reference to a product counter.
func ProductRef(id int64) StockRef { return StockRef{Kind: KindProduct, ID: id} }

// AirconRef builds a reference to an air-conditioner unit counter.
func AirconRef(id int64) StockRef { return StockRef{Kind: KindAircon, ID: id} }

func (r StockRef) String() string {
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

// Valid reports whether the reference can resolve to a row.
func (r StockRef) Valid() bool {
	return (r.Kind == KindProduct || r.Kind == KindAircon) && r.ID > 0
}

// Less orders references for deterministic lock acquisition.
func (r StockRef) Less(o StockRef) bool {
	if r.Kind != o.Kind {
		return r.Kind > o.Kind // products before aircon units
	}
	return r.ID < o.ID
}

// ParseRef parses "product:12" style references as well as a bare kind/id pair.
func ParseRef(kind, id string) (StockRef, error) {
	k := StockKind(strings.ToLower(strings.TrimSpace(kind)))
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	ref := StockRef{Kind: k, ID: n}
	if err != nil || !ref.Valid() {
		return StockRef{}, fmt.Errorf("%w: invalid stock reference %q/%q", shared.ErrValidation, kind, id)
	}
	return ref, nil
}

// Stock is the denormalized counter row.
type Stock struct {
	Ref       StockRef
	Code      string
	Name      string
	Qty       int64
	MinStock  int64
	UpdatedAt time.Time
}

// LedgerEntry is one append-only inventory_logs row.
type LedgerEntry struct {
	ID         int64
	Ref        StockRef
	Delta      int64
	EventType  EventType
	Reason     string
	RefModule  string
	RefID      string
	StockAfter int64
	ActorID    int64
	CreatedAt  time.Time
}

// MovementInput describes one stock-affecting event.
type MovementInput struct {
	Ref       StockRef
	Delta     int64
	EventType EventType
	Reason    string
	RefModule string
	RefID     string
	ActorID   int64
}

// StockCardFilter filters ledger entries for one counter.
type StockCardFilter struct {
	Ref   StockRef
	From  time.Time
	To    time.Time
	Limit int
}

var (
	// ErrInvalidQuantity indicates a zero or wrongly signed delta.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: invalid quantity", shared.ErrValidation)
	// ErrInvalidEventType indicates a tag outside the fixed set.
	ErrInvalidEventType = fmt.Errorf("%w: inventory: unknown event type", shared.ErrValidation)
	// ErrReasonRequired is returned for adjustments without a reason.
	ErrReasonRequired = fmt.Errorf("%w: inventory: reason required", shared.ErrValidation)
	// ErrStockNotFound indicates the product or unit does not exist.
	ErrStockNotFound = fmt.Errorf("%w: inventory: stock item", shared.ErrNotFound)
	// ErrDuplicateRef is returned when a batch names the same counter twice.
	ErrDuplicateRef = fmt.Errorf("%w: inventory: duplicate stock reference in batch", shared.ErrValidation)
)

// InsufficientStockError reports a CHECKOUT that would drive stock negative.
type InsufficientStockError struct {
	Ref       StockRef
	Code      string
	Name      string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	label := e.Code
	if label == "" {
		label = e.Ref.String()
	}
	return fmt.Sprintf("inventory: insufficient stock for %s: available %d, requested %d", label, e.Available, e.Requested)
}

// Is matches shared.ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == shared.ErrInsufficientStock
}

// ShortageError aggregates every shortfall found in one batch.
type ShortageError struct {
	Shortages []InsufficientStockError
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for i := range e.Shortages {
		s := e.Shortages[i]
		label := s.Code
		if label == "" {
			label = s.Ref.String()
		}
		parts = append(parts, fmt.Sprintf("%s (available %d, requested %d)", label, s.Available, s.Requested))
	}
	return "inventory: insufficient stock: " + strings.Join(parts, ", ")
}

// Is matches shared.ErrInsufficientStock.
func (e *ShortageError) Is(target error) bool {
	return target == shared.ErrInsufficientStock
}

// AsShortage extracts every shortfall carried by err.
func AsShortage(err error) []InsufficientStockError {
	var batch *ShortageError
	if errors.As(err, &batch) {
		return batch.Shortages
	}
	var single *InsufficientStockError
	if errors.As(err, &single) {
		return []InsufficientStockError{*single}
	}
	return nil
}
