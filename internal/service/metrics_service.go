package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-lms-api/internal/dto"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	promotionsExecuted *prometheus.CounterVec
	feesGenerated      prometheus.Counter
	feePayments        prometheus.Counter
	sweeperRuns        *prometheus.CounterVec
	feesMarkedOverdue  prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	promotionsExecuted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotions_executed_total",
		Help: "Promotion records applied by outcome",
	}, []string{"outcome"})

	feesGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fees_generated_total",
		Help: "Monthly fee entries generated",
	})

	feePayments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fee_payments_total",
		Help: "Monthly fees settled",
	})

	sweeperRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fee_sweeper_runs_total",
		Help: "Overdue sweeper runs by result",
	}, []string{"result"})

	feesMarkedOverdue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fees_marked_overdue_total",
		Help: "Monthly fees moved to OVERDUE by the sweeper",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		promotionsExecuted, feesGenerated, feePayments, sweeperRuns, feesMarkedOverdue, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		promotionsExecuted: promotionsExecuted,
		feesGenerated:      feesGenerated,
		feePayments:        feePayments,
		sweeperRuns:        sweeperRuns,
		feesMarkedOverdue:  feesMarkedOverdue,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordPromotionExecution counts applied records by outcome.
func (m *MetricsService) RecordPromotionExecution(result *dto.ExecutePromotionsResult) {
	if m == nil || result == nil {
		return
	}
	m.promotionsExecuted.WithLabelValues("promoted").Add(float64(result.Promoted))
	m.promotionsExecuted.WithLabelValues("detained").Add(float64(result.Detained))
	m.promotionsExecuted.WithLabelValues("graduated").Add(float64(result.Graduated))
	m.feesGenerated.Add(float64(result.FeesGenerated))
}

// RecordFeesGenerated counts fee entries written outside promotion runs.
func (m *MetricsService) RecordFeesGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.feesGenerated.Add(float64(n))
}

// RecordFeePayment counts a settled fee.
func (m *MetricsService) RecordFeePayment() {
	if m == nil {
		return
	}
	m.feePayments.Inc()
}

// RecordSweeperRun counts a sweeper run and the fees it moved.
func (m *MetricsService) RecordSweeperRun(err error, affected int64) {
	if m == nil {
		return
	}
	if err != nil {
		m.sweeperRuns.WithLabelValues("error").Inc()
		return
	}
	m.sweeperRuns.WithLabelValues("ok").Inc()
	m.feesMarkedOverdue.Add(float64(affected))
}
