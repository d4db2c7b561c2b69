package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	m.ObserveDuration("ledger-reconciliation", 250*time.Millisecond)
	m.IncSuccess("ledger-reconciliation")
	m.IncFailure("ledger-reconciliation")
	m.IncFailure("")

	if got := testutil.ToFloat64(m.runs.WithLabelValues("ledger-reconciliation", outcomeSuccess)); got != 1 {
		t.Fatalf("expected one success, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("unknown", outcomeFailure)); got != 1 {
		t.Fatalf("expected unnamed failure under unknown, got %f", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("ledger-reconciliation")); got != float64(fixed.Unix()) {
		t.Fatalf("unexpected last success %f", got)
	}
	if count := testutil.CollectAndCount(m.duration, "cron_job_duration_seconds"); count != 1 {
		t.Fatalf("expected one duration series, got %d", count)
	}
}

func TestCronJobMetricsWithoutRegistry(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.ObserveDuration("outbox-retention", time.Second)
	m.IncSuccess("outbox-retention")
	m.IncFailure("outbox-retention")

	var missing *CronJobMetrics
	missing.IncSuccess("outbox-retention")
}
