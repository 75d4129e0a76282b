package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsCollector gathers engine metrics on a private registry.
type MetricsCollector struct {
	registry           *prometheus.Registry
	itemsEvaluated     prometheus.Counter
	amountsAdjusted    prometheus.Counter
	issuesFound        *prometheus.CounterVec
	ledgerLookups      prometheus.Counter
	cacheHitRate       prometheus.Gauge
	evaluationDuration prometheus.Histogram
	logger             *zap.Logger
}

// NewMetricsCollector creates a collector with all engine metrics registered.
func NewMetricsCollector(logger *zap.Logger) *MetricsCollector {
	registry := prometheus.NewRegistry()

	return &MetricsCollector{
		registry: registry,
		itemsEvaluated: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "expense_items_evaluated_total",
			Help: "Total number of expense items evaluated for compliance",
		}),
		amountsAdjusted: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "expense_amounts_adjusted_total",
			Help: "Total number of item amounts capped by a limit",
		}),
		issuesFound: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_issues_total",
			Help: "Total number of compliance issues emitted",
		}, []string{"severity"}),
		ledgerLookups: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_lookups_total",
			Help: "Total number of historical ledger queries",
		}),
		cacheHitRate: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "policy_cache_hit_rate",
			Help: "Hit rate of the policy snapshot cache",
		}),
		evaluationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_check_duration_seconds",
			Help:    "Time taken to run a full compliance check",
			Buckets: prometheus.DefBuckets,
		}),
		logger: logger,
	}
}

// RecordItemEvaluated counts one evaluated expense item.
func (m *MetricsCollector) RecordItemEvaluated() {
	m.itemsEvaluated.Inc()
}

// RecordAdjustment counts one capped amount.
func (m *MetricsCollector) RecordAdjustment() {
	m.amountsAdjusted.Inc()
}

// RecordIssue counts one emitted compliance issue by severity.
func (m *MetricsCollector) RecordIssue(severity string) {
	m.issuesFound.WithLabelValues(severity).Inc()
}

// RecordLedgerLookup counts one historical ledger query.
func (m *MetricsCollector) RecordLedgerLookup() {
	m.ledgerLookups.Inc()
}

// SetCacheHitRate publishes the snapshot cache hit rate.
func (m *MetricsCollector) SetCacheHitRate(rate float64) {
	m.cacheHitRate.Set(rate)
}

// ObserveCheckDuration records the duration of one compliance check.
func (m *MetricsCollector) ObserveCheckDuration(d time.Duration) {
	m.evaluationDuration.Observe(d.Seconds())
}

// Handler returns the HTTP handler serving the collector's registry.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
