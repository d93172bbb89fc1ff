package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/kiosk-inventory/internal/jobs"
	"github.com/odyssey-erp/kiosk-inventory/internal/orders"
)

// DraftGenerator produces one replenishment draft for low stock.
type DraftGenerator interface {
	GenerateReorderDrafts(ctx context.Context, policy orders.ReorderPolicy) (orders.Order, bool, error)
}

// ReorderDraftsJob drafts replenishment orders on a schedule. Drafts are
// never placed automatically.
type ReorderDraftsJob struct {
	Generator DraftGenerator
	Policy    orders.ReorderPolicy
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewReorderDraftsJob wires dependencies for the reorder handler.
func NewReorderDraftsJob(generator DraftGenerator, policy orders.ReorderPolicy, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderDraftsJob {
	return &ReorderDraftsJob{Generator: generator, Policy: policy, Logger: logger, Metrics: metrics}
}

// Handle executes draft generation.
func (j *ReorderDraftsJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Generator == nil {
		return errors.New("reorder drafts: handler not configured")
	}
	var payload ReorderDraftsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	policy := j.Policy
	if payload.Multiplier > 0 {
		policy.Multiplier = payload.Multiplier
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskReorderDrafts)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.Int64("multiplier", policy.Multiplier))

	order, created, err := j.Generator.GenerateReorderDrafts(ctx, policy)
	if err != nil {
		resultErr = err
		logger.Error("reorder draft generation failed", slog.Any("error", err))
		return resultErr
	}
	if !created {
		logger.Info("no products need reordering")
		return nil
	}
	metrics.AddDraftCreated()
	logger.Info("reorder draft created",
		slog.Int64("order_id", order.ID),
		slog.String("number", order.Number),
		slog.Int("items", len(order.Items)),
	)
	return nil
}
