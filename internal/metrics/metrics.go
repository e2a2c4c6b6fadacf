// Package metrics exposes Prometheus metrics for the emotion pipeline and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"emotionserver/internal/service/emotion"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets the latency buckets, in seconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager owns every metric of the service. It implements emotion.Observer.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	predictions  *prometheus.CounterVec
	noFace       prometheus.Counter
	confidence   prometheus.Histogram
	stageLatency *prometheus.HistogramVec
	stored       prometheus.Counter

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager registers all metrics on a fresh registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "emotion",
		histogramBuckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "predictions_total",
		Help:      "Classified faces by emotion label",
	}, []string{"emotion"})

	m.noFace = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "no_face_total",
		Help:      "Frames in which no face was found",
	})

	m.confidence = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "prediction_confidence",
		Help:      "Confidence of the selected emotion",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	m.stageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage latency",
		Buckets:   m.histogramBuckets,
	}, []string{"stage"})

	m.stored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "predictions_stored_total",
		Help:      "Predictions written to the history store",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	return m
}

// ObserveStage records one pipeline stage.
func (m *Manager) ObserveStage(stage string, d time.Duration) {
	m.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveResult counts a decision.
func (m *Manager) ObserveResult(r emotion.Result) {
	switch v := r.(type) {
	case emotion.Emotion:
		m.predictions.WithLabelValues(v.Label).Inc()
		m.confidence.Observe(v.Confidence)
	case emotion.NoFace:
		m.noFace.Inc()
	}
}

// RecordStored counts a persisted prediction.
func (m *Manager) RecordStored() {
	m.stored.Inc()
}

// RecordHTTPRequest records a served request.
func (m *Manager) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
