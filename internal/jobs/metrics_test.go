package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("inventory:drift-scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("inventory:drift-scan").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:drift-scan", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:drift-scan", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("inventory:drift-scan")))
}

func TestCountersIgnoreNilAndEmpty(t *testing.T) {
	var nilMetrics *Metrics
	nilMetrics.AddDriftFound("product", 3)
	nilMetrics.AddDraftCreated()
	require.NoError(t, nilMetrics.Track("x").End(nil))

	m := NewMetrics(prometheus.NewRegistry())
	m.AddDriftFound("product", 0)
	m.AddDriftFound("aircon", 2)
	m.AddDraftCreated()
	require.Equal(t, 0.0, testutil.ToFloat64(m.driftFound.WithLabelValues("product")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.driftFound.WithLabelValues("aircon")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.drafts))
}
