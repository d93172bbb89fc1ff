package inventory

import "time"

// MovementRecordedEvent is emitted after the transaction carrying a movement commits.
type MovementRecordedEvent struct {
	Ref        StockRef
	EventType  EventType
	Delta      int64
	StockAfter int64
	RecordedAt time.Time
}

// MovementRejectedEvent is emitted when a movement fails a business rule.
type MovementRejectedEvent struct {
	Ref       StockRef
	EventType EventType
	Reason    string
}

// Rejection reasons.
const (
	RejectInsufficientStock = "insufficient_stock"
	RejectInvalidMovement   = "invalid_movement"
)

func recordedEvents(entries []LedgerEntry) []MovementRecordedEvent {
	out := make([]MovementRecordedEvent, 0, len(entries))
	for _, e := range entries {
		out = append(out, MovementRecordedEvent{
			Ref:        e.Ref,
			EventType:  e.EventType,
			Delta:      e.Delta,
			StockAfter: e.StockAfter,
			RecordedAt: e.CreatedAt,
		})
	}
	return out
}
