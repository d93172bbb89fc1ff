package inventory

// Observer receives ledger events for metrics.
type Observer interface {
	MovementRecorded(evt MovementRecordedEvent)
	MovementRejected(evt MovementRejectedEvent)
}

type nopObserver struct{}

func (nopObserver) MovementRecorded(MovementRecordedEvent) {}
func (nopObserver) MovementRejected(MovementRejectedEvent) {}
