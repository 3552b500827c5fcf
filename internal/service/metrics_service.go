package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the admission
// lifecycle engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	transitionTotal *prometheus.CounterVec
	offerTotal      *prometheus.CounterVec
	enrollmentTotal prometheus.Counter
	waitlistDepth   *prometheus.GaugeVec
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_transitions_total",
		Help: "Status transitions by source, target and outcome",
	}, []string{"from", "to", "outcome"})

	offerTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_waitlist_offers_total",
		Help: "Waitlist offers by event (promoted, expired)",
	}, []string{"event"})

	enrollmentTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admission_enrollments_total",
		Help: "Applications finalized into student records",
	})

	waitlistDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "admission_waitlist_depth",
		Help: "Current waitlist length per class",
	}, []string{"class"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		transitionTotal, offerTotal, enrollmentTotal, waitlistDepth, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		transitionTotal: transitionTotal,
		offerTotal:      offerTotal,
		enrollmentTotal: enrollmentTotal,
		waitlistDepth:   waitlistDepth,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordCacheOperation records a cache lookup outcome.
func (s *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if s == nil {
		return
	}
	s.cacheLatency.Observe(duration.Seconds())
	if hit {
		s.cacheHits.Inc()
	} else {
		s.cacheMisses.Inc()
	}
}

// RecordTransition records one transition attempt.
func (s *MetricsService) RecordTransition(from, to, outcome string) {
	if s == nil {
		return
	}
	s.transitionTotal.WithLabelValues(from, to, outcome).Inc()
}

// RecordOfferEvent records a waitlist offer promotion or expiry.
func (s *MetricsService) RecordOfferEvent(event string) {
	if s == nil {
		return
	}
	s.offerTotal.WithLabelValues(event).Inc()
}

// RecordEnrollment records a finalized enrollment.
func (s *MetricsService) RecordEnrollment() {
	if s == nil {
		return
	}
	s.enrollmentTotal.Inc()
}

// SetWaitlistDepth publishes the current queue length for a class.
func (s *MetricsService) SetWaitlistDepth(class string, depth int) {
	if s == nil {
		return
	}
	s.waitlistDepth.WithLabelValues(class).Set(float64(depth))
}
