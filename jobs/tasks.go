package jobs

import (
	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDriftScan compares every stock counter with its ledger.
	TaskDriftScan = "inventory:drift-scan"
	// TaskReorderDrafts drafts replenishment for products below minimum.
	TaskReorderDrafts = "orders:reorder-drafts"
)

// DriftScanPayload controls a drift scan run.
type DriftScanPayload struct {
	// Refresh bypasses the cached summary.
	Refresh bool `json:"refresh"`
}

// NewDriftScanTask constructs an Asynq task for the drift scan.
func NewDriftScanTask(refresh bool) (*asynq.Task, error) {
	body, err := json.Marshal(DriftScanPayload{Refresh: refresh})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDriftScan, body, asynq.Queue(QueueDefault)), nil
}

// ReorderDraftsPayload overrides the configured multiplier when positive.
type ReorderDraftsPayload struct {
	Multiplier int64 `json:"multiplier,omitempty"`
}

// NewReorderDraftsTask constructs an Asynq task for reorder draft generation.
func NewReorderDraftsTask(multiplier int64) (*asynq.Task, error) {
	body, err := json.Marshal(ReorderDraftsPayload{Multiplier: multiplier})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderDrafts, body, asynq.Queue(QueueDefault)), nil
}
