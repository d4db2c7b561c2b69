package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks balance mutations, rejections and reconciliation drift.
type LedgerMetrics struct {
	entries       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	retries       prometheus.Counter
	exhausted     prometheus.Counter
	discrepancies prometheus.Gauge
	webhooks      *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Committed ledger entries by transaction type and source.",
	}, []string{"type", "source"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Ledger entries rejected before commit, by reason.",
	}, []string{"reason"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_concurrent_retries_total",
		Help: "Atomic units retried after losing a version race.",
	})
	exhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_retry_exhausted_total",
		Help: "Atomic units that gave up after the retry budget.",
	})
	discrepancies := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_reconciliation_discrepancies",
		Help: "Accounts whose balance disagreed with the log on the last reconciliation run.",
	})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_webhook_events_total",
		Help: "Payment webhook deliveries by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(entries, rejections, retries, exhausted, discrepancies, webhooks)
	return &LedgerMetrics{
		entries:       entries,
		rejections:    rejections,
		retries:       retries,
		exhausted:     exhausted,
		discrepancies: discrepancies,
		webhooks:      webhooks,
	}
}

func (m *LedgerMetrics) IncEntry(txType, source string) {
	if m == nil || m.entries == nil {
		return
	}
	m.entries.WithLabelValues(normalizeLabel(txType), normalizeLabel(source)).Inc()
}

func (m *LedgerMetrics) IncRejection(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

func (m *LedgerMetrics) IncExhausted() {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.Inc()
}

// SetDiscrepancies records the mismatch count of the latest reconciliation run.
func (m *LedgerMetrics) SetDiscrepancies(count int) {
	if m == nil || m.discrepancies == nil {
		return
	}
	m.discrepancies.Set(float64(count))
}

func (m *LedgerMetrics) IncWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}
