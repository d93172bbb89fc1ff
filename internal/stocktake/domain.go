package stocktake

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
)

// Status is the lifecycle state of a physical count session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusInProgress || s == StatusCompleted || s == StatusCancelled
}

// Count is one physical stock count session.
type Count struct {
	ID          int64       `json:"id"`
	Status      Status      `json:"status"`
	Note        string      `json:"note"`
	StartedBy   int64       `json:"started_by,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Items       []CountItem `json:"items"`
}

// CountItem is the counted quantity of one product. SystemQty and
// AppliedDelta are filled in when the count completes.
type CountItem struct {
	ID           int64     `json:"id"`
	CountID      int64     `json:"count_id"`
	ProductID    int64     `json:"product_id"`
	ProductCode  string    `json:"product_code"`
	ProductName  string    `json:"product_name"`
	CountedQty   int64     `json:"counted_qty"`
	SystemQty    *int64    `json:"system_qty,omitempty"`
	AppliedDelta *int64    `json:"applied_delta,omitempty"`
	CountedAt    time.Time `json:"counted_at"`
}

// Variance compares a counted quantity with live stock.
type Variance struct {
	ProductID  int64  `json:"product_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	CountedQty int64  `json:"counted_qty"`
	SystemQty  int64  `json:"system_qty"`
	Delta      int64  `json:"delta"`
}

// ListFilter narrows count listings.
type ListFilter struct {
	Status  Status
	Page    int
	PerPage int
}

var (
	ErrCountNotFound   = fmt.Errorf("%w: stocktake: count", shared.ErrNotFound)
	ErrItemNotFound    = fmt.Errorf("%w: stocktake: count item", shared.ErrNotFound)
	ErrProductNotFound = fmt.Errorf("%w: stocktake: product", shared.ErrNotFound)
	ErrNegativeCount   = fmt.Errorf("%w: stocktake: counted quantity must not be negative", shared.ErrValidation)
	ErrEmptyCount      = fmt.Errorf("%w: stocktake: count has no items", shared.ErrValidation)
	ErrNotInProgress   = fmt.Errorf("%w: stocktake: count is not in progress", shared.ErrInvalidState)
	// ErrAlreadyCompleted is reported when a finished count is completed again.
	ErrAlreadyCompleted = fmt.Errorf("%w: stocktake: count already completed", shared.ErrAlreadyProcessed)
)
