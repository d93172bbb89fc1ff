package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/kiosk-inventory/internal/jobs"
	"github.com/odyssey-erp/kiosk-inventory/internal/reconcile"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// DriftScanner runs a drift scan.
type DriftScanner interface {
	ScanDrift(ctx context.Context, refresh bool) (reconcile.ScanSummary, error)
}

// DriftScanJob reports stock counters that no longer match their ledger.
// It never corrects them.
type DriftScanJob struct {
	Scanner DriftScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDriftScanJob wires dependencies for the drift scan handler.
func NewDriftScanJob(scanner DriftScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *DriftScanJob {
	return &DriftScanJob{
		Scanner: scanner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the drift scan.
func (j *DriftScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("drift scan: handler not configured")
	}
	payload := DriftScanPayload{Refresh: true}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.now()
	tracker := j.metrics().Track(TaskDriftScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Bool("refresh", payload.Refresh))
	logger.Info("starting drift scan")

	summary, err := j.Scanner.ScanDrift(ctx, payload.Refresh)
	if err != nil {
		resultErr = err
		logger.Error("drift scan failed", slog.Any("error", err))
		return resultErr
	}

	byKind := make(map[string]int)
	for _, item := range summary.Items {
		logger.Warn("stock drift detected",
			slog.String("ref", item.Ref.String()),
			slog.String("code", item.Code),
			slog.Int64("live_stock", item.LiveStock),
			slog.Int64("ledger_sum", item.LedgerSum),
			slog.Int64("drift", item.Drift),
		)
		byKind[string(item.Ref.Kind)]++
	}
	for kind, n := range byKind {
		j.metrics().AddDriftFound(kind, n)
	}

	logger.Info("completed drift scan",
		slog.Int("scanned", summary.Scanned),
		slog.Int("drifting", len(summary.Items)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *DriftScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *DriftScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DriftScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
