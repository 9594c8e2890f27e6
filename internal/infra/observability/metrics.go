package observability

import (
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const (
	metricStatisticsComputed = "finance_statistics_computed_total"
	metricEventsEmitted      = "finance_events_emitted_total"
)

// Metrics holds all Prometheus metrics for the finance core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	storeErrors        *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	merchantUpdates    *prometheus.CounterVec
	statisticsComputed *prometheus.CounterVec
	eventsEmitted      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it, so NewMetrics can be called once per test.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_operation_duration_seconds",
				Help:    "Duration of core operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_store_errors_total",
				Help: "Total document store failures.",
			},
			[]string{"backend", "collection"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		merchantUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_merchant_updates_total",
				Help: "Merchant aggregate updates by result.",
			},
			[]string{"result"},
		),
		statisticsComputed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricStatisticsComputed,
				Help: "Statistics computations by period.",
			},
			[]string{"period"},
		),
		eventsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricEventsEmitted,
				Help: "Change events emitted by name.",
			},
			[]string{"event"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store failure counter.
func (m *Metrics) IncrStoreError(backend, collection string) {
	m.storeErrors.WithLabelValues(backend, collection).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrMerchantUpdate counts a merchant aggregate update; result is "success" or "error".
func (m *Metrics) IncrMerchantUpdate(result string) {
	m.merchantUpdates.WithLabelValues(result).Inc()
}

// IncrStatistics counts a statistics computation for a period.
func (m *Metrics) IncrStatistics(period string) {
	m.statisticsComputed.WithLabelValues(period).Inc()
}

// IncrEvent counts an emitted change event.
func (m *Metrics) IncrEvent(event string) {
	m.eventsEmitted.WithLabelValues(event).Inc()
}

// Snapshot returns the current counter values for GET /v1/metrics/core.
func (m *Metrics) Snapshot() *domain.CoreMetrics {
	snap := &domain.CoreMetrics{
		MerchantUpdates:      int64(getCounterValue(m.merchantUpdates, "success")),
		MerchantUpdateErrors: int64(getCounterValue(m.merchantUpdates, "error")),
		StatisticsComputed:   map[string]int64{},
		EventsEmitted:        map[string]int64{},
	}

	hits := getCounterValue(m.cacheHits, "categories")
	misses := getCounterValue(m.cacheMisses, "categories")
	if hits+misses > 0 {
		snap.CategoryCacheHitRate = hits / (hits + misses)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		return snap
	}
	for _, mf := range families {
		switch mf.GetName() {
		case metricStatisticsComputed:
			collectByLabel(mf, "period", snap.StatisticsComputed)
		case metricEventsEmitted:
			collectByLabel(mf, "event", snap.EventsEmitted)
		case "finance_store_errors_total":
			for _, metric := range mf.GetMetric() {
				snap.StoreErrors += int64(metric.GetCounter().GetValue())
			}
		}
	}
	return snap
}

func collectByLabel(mf *dto.MetricFamily, label string, into map[string]int64) {
	for _, metric := range mf.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label {
				into[lp.GetValue()] += int64(metric.GetCounter().GetValue())
			}
		}
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
