package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/reconcile"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
	"github.com/odyssey-erp/kiosk-inventory/jobs"
)

type stubAuditor struct {
	report reconcile.Report
	err    error
	refs   []inventory.StockRef
}

func (s *stubAuditor) AuditProduct(_ context.Context, ref inventory.StockRef) (reconcile.Report, error) {
	s.refs = append(s.refs, ref)
	return s.report, s.err
}

func TestAuditCommandConsistent(t *testing.T) {
	auditor := &stubAuditor{report: reconcile.Report{Ref: inventory.ProductRef(3), LedgerSum: 5, LiveStock: 5, Findings: []reconcile.Finding{}}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := AuditCommand(context.Background(), auditor, AuditOptions{Kind: "product", ID: "3", Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitOK, code)
	require.Empty(t, stderr.String())
	require.Equal(t, []inventory.StockRef{inventory.ProductRef(3)}, auditor.refs)

	var out reconcile.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Equal(t, int64(5), out.LedgerSum)
}

func TestAuditCommandDrift(t *testing.T) {
	auditor := &stubAuditor{report: reconcile.Report{Ref: inventory.AirconRef(1), LedgerSum: 2, LiveStock: 1, Drift: -1}}
	code := AuditCommand(context.Background(), auditor, AuditOptions{Kind: "aircon", ID: "1", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitInconsistent, code)
}

func TestAuditCommandErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := AuditCommand(context.Background(), &stubAuditor{}, AuditOptions{Kind: "pallet", ID: "x", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, ExitFailure, code)
	require.Contains(t, stderr.String(), "invalid stock reference")

	stderr.Reset()
	code = AuditCommand(context.Background(), &stubAuditor{err: shared.ErrNotFound}, AuditOptions{Kind: "product", ID: "9", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, ExitFailure, code)
	require.Contains(t, stderr.String(), "not found")
}

func TestTaskType(t *testing.T) {
	typ, err := TaskType("drift-scan")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskDriftScan, typ)

	typ, err = TaskType(jobs.TaskReorderDrafts)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskReorderDrafts, typ)

	_, err = TaskType("gl-integrity")
	require.Error(t, err)
}

func newTestJobsCLI(t *testing.T) (*JobsCLI, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := &JobsCLI{client: jobs.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestTriggerDedupesDriftScan(t *testing.T) {
	c, mr := newTestJobsCLI(t)
	ctx := context.Background()

	info, err := c.Trigger(ctx, "drift-scan")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskDriftScan, info.Type)
	require.Equal(t, jobs.QueueDefault, info.Queue)

	_, err = c.Trigger(ctx, jobs.TaskDriftScan)
	require.ErrorIs(t, err, ErrAlreadyQueued)

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	mr.FastForward(jobs.DriftScanDedupe + time.Second)
	_, err = c.Trigger(ctx, "drift-scan")
	require.NoError(t, err)
}

func TestTriggerReorderDrafts(t *testing.T) {
	c, mr := newTestJobsCLI(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		info, err := c.Trigger(ctx, "reorder-drafts")
		require.NoError(t, err)
		require.Equal(t, jobs.TaskReorderDrafts, info.Type)
	}
	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	_, err = c.Trigger(ctx, "fin-refresh")
	require.Error(t, err)
}
