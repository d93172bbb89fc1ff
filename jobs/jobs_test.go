package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/kiosk-inventory/internal/jobs"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/orders"
	"github.com/odyssey-erp/kiosk-inventory/internal/reconcile"
)

type stubScanner struct {
	refresh []bool
	summary reconcile.ScanSummary
	err     error
}

func (s *stubScanner) ScanDrift(_ context.Context, refresh bool) (reconcile.ScanSummary, error) {
	s.refresh = append(s.refresh, refresh)
	return s.summary, s.err
}

type stubGenerator struct {
	policies []orders.ReorderPolicy
	order    orders.Order
	created  bool
	err      error
}

func (g *stubGenerator) GenerateReorderDrafts(_ context.Context, policy orders.ReorderPolicy) (orders.Order, bool, error) {
	g.policies = append(g.policies, policy)
	return g.order, g.created, g.err
}

func TestDriftScanJobHandlesTask(t *testing.T) {
	scanner := &stubScanner{summary: reconcile.ScanSummary{
		Scanned: 4,
		Items: []reconcile.DriftItem{
			{Ref: inventory.ProductRef(1), Drift: 2},
			{Ref: inventory.AirconRef(9), Drift: -1},
		},
	}}
	job := NewDriftScanJob(scanner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewDriftScanTask(false)
	require.NoError(t, err)
	require.Equal(t, TaskDriftScan, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []bool{false}, scanner.refresh)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskDriftScan, nil)))
	require.Equal(t, []bool{false, true}, scanner.refresh, "empty payload forces a fresh scan")
}

func TestDriftScanJobPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewDriftScanJob(&stubScanner{err: boom}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewDriftScanTask(true)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)

	err = job.Handle(context.Background(), asynq.NewTask(TaskDriftScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReorderDraftsJob(t *testing.T) {
	gen := &stubGenerator{created: true, order: orders.Order{ID: 5, Number: "PO-ABCD1234"}}
	job := NewReorderDraftsJob(gen, orders.ReorderPolicy{Multiplier: 2, Supplier: "auto-reorder"}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewReorderDraftsTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	task, err = NewReorderDraftsTask(4)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, gen.policies, 2)
	require.Equal(t, int64(2), gen.policies[0].Multiplier)
	require.Equal(t, int64(4), gen.policies[1].Multiplier)
	require.Equal(t, "auto-reorder", gen.policies[1].Supplier)
}

func TestUnconfiguredJobsFail(t *testing.T) {
	var drift *DriftScanJob
	require.Error(t, drift.Handle(context.Background(), asynq.NewTask(TaskDriftScan, nil)))
	var reorder *ReorderDraftsJob
	require.Error(t, reorder.Handle(context.Background(), asynq.NewTask(TaskReorderDrafts, nil)))
}
