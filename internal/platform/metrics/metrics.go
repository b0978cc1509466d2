// Package metrics provides Prometheus instrumentation for the intake
// service. Collectors live on a custom registry so the /metrics endpoint
// exposes only our own series, not the default Go runtime set.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace         string
	subsystem         string
	confidenceBuckets []float64
	registry          prometheus.Registerer

	// Intake pipeline
	intakeRequests       *prometheus.CounterVec
	extractionConfidence prometheus.Histogram

	// Downstream hand-off
	chainTriggers *prometheus.CounterVec

	// Document AI providers
	docaiRequests *prometheus.CounterVec

	// Live dictation
	dictationSessions prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "leqvio",
		subsystem: "",
		// Confidence is additive in 0.5 steps, so the interesting
		// boundaries are the step values themselves.
		confidenceBuckets: []float64{0, 0.25, 0.5, 0.75, 1},
		registry:          prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus collectors.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.intakeRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "intake_requests_total",
			Help:      "Total number of intake requests by channel and resulting status",
		},
		[]string{"channel", "status"},
	)

	m.extractionConfidence = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "extraction_confidence",
		Help:      "Histogram of identity extraction confidence scores",
		Buckets:   m.confidenceBuckets,
	})

	m.chainTriggers = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "chain_triggers_total",
			Help:      "Total number of chain automation triggers by outcome",
		},
		[]string{"outcome"},
	)

	m.docaiRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "docai_requests_total",
			Help:      "Total number of document AI extraction calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	m.dictationSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dictation_sessions_active",
		Help:      "Current number of open dictation WebSocket sessions",
	})
}

// RegisterDocAICache exposes the extraction cache's hit and lookup counters.
// The cache keeps its own atomic counts; we read them lazily at scrape time
// so the cache package stays free of Prometheus types. Call at most once per
// registry.
func (m *Manager) RegisterDocAICache(hits, lookups func() uint64) {
	auto := promauto.With(m.registry)

	auto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "docai_cache_hits_total",
		Help:      "Total number of document AI cache hits",
	}, func() float64 { return float64(hits()) })

	auto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "docai_cache_lookups_total",
		Help:      "Total number of document AI cache lookups",
	}, func() float64 { return float64(lookups()) })
}

// RecordIntakeRequest counts one intake request for a channel/status pair.
func RecordIntakeRequest(channel, status string) {
	globalManager.intakeRequests.WithLabelValues(channel, status).Inc()
}

// RecordExtractionConfidence records the confidence score of one extraction.
func RecordExtractionConfidence(confidence float64) {
	globalManager.extractionConfidence.Observe(confidence)
}

// RecordChainTrigger counts one chain trigger attempt by outcome
// ("triggered", "failed", "disabled").
func RecordChainTrigger(outcome string) {
	globalManager.chainTriggers.WithLabelValues(outcome).Inc()
}

// RecordDocAIRequest counts one provider extraction call by outcome
// ("ok", "error").
func RecordDocAIRequest(provider, outcome string) {
	globalManager.docaiRequests.WithLabelValues(provider, outcome).Inc()
}

// RegisterDocAICache wires the extraction cache counters into the global
// registry.
func RegisterDocAICache(hits, lookups func() uint64) {
	globalManager.RegisterDocAICache(hits, lookups)
}

// DictationSessionStarted increments the active dictation session gauge.
func DictationSessionStarted() {
	globalManager.dictationSessions.Inc()
}

// DictationSessionEnded decrements the active dictation session gauge.
func DictationSessionEnded() {
	globalManager.dictationSessions.Dec()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler returns an echo handler serving the /metrics scrape endpoint for
// the custom registry.
func Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	return echo.WrapHandler(h)
}
