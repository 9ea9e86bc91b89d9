package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	answersTotal        *prometheus.CounterVec
	refusalsTotal       *prometheus.CounterVec
	decompositionsTotal *prometheus.CounterVec
	gateDecisionsTotal  *prometheus.CounterVec
	regenerationsTotal  *prometheus.CounterVec
	chunksUsed          *prometheus.HistogramVec
	pipelineDuration    *prometheus.HistogramVec
	breakerRejections   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "pipeline",
			Name:      "answers_total",
			Help:      "Total answers returned by confidence tier.",
		},
		[]string{"service", "tier"},
	)
	refusalsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "pipeline",
			Name:      "refusals_total",
			Help:      "Total safe not-found responses.",
		},
		[]string{"service"},
	)
	decompositionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "pipeline",
			Name:      "decompositions_total",
			Help:      "Total decomposed queries by decomposition kind.",
		},
		[]string{"service", "kind"},
	)
	gateDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "pipeline",
			Name:      "gate_decisions_total",
			Help:      "Total corrective gate decisions by action.",
		},
		[]string{"service", "action"},
	)
	regenerationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "pipeline",
			Name:      "regenerations_total",
			Help:      "Total critique-triggered regeneration passes.",
		},
		[]string{"service"},
	)
	chunksUsed := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pqa",
			Subsystem: "pipeline",
			Name:      "chunks_used",
			Help:      "Distribution of context passages used per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		},
		[]string{"service"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pqa",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end answer pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	breakerRejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "pipeline",
			Name:      "breaker_rejections_total",
			Help:      "Total requests rejected by an open dependency breaker.",
		},
		[]string{"service", "dependency"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		answersTotal,
		refusalsTotal,
		decompositionsTotal,
		gateDecisionsTotal,
		regenerationsTotal,
		chunksUsed,
		pipelineDuration,
		breakerRejections,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		answersTotal:        answersTotal,
		refusalsTotal:       refusalsTotal,
		decompositionsTotal: decompositionsTotal,
		gateDecisionsTotal:  gateDecisionsTotal,
		regenerationsTotal:  regenerationsTotal,
		chunksUsed:          chunksUsed,
		pipelineDuration:    pipelineDuration,
		breakerRejections:   breakerRejections,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// PipelineObserver binds the service label once so the use case can be
// wired with a plain stage observer.
type PipelineObserver struct {
	service string
	metrics *HTTPServerMetrics
}

func (m *HTTPServerMetrics) PipelineObserver(service string) *PipelineObserver {
	return &PipelineObserver{service: service, metrics: m}
}

func (o *PipelineObserver) DecompositionDetected(kind domain.DecompositionType) {
	o.metrics.decompositionsTotal.WithLabelValues(o.service, string(kind)).Inc()
}

func (o *PipelineObserver) GateDecision(action domain.ActionTag) {
	o.metrics.gateDecisionsTotal.WithLabelValues(o.service, string(action)).Inc()
}

func (o *PipelineObserver) CritiqueRegeneration() {
	o.metrics.regenerationsTotal.WithLabelValues(o.service).Inc()
}

func (m *HTTPServerMetrics) RecordAnswer(service string, result *domain.AnswerResult, duration time.Duration) {
	if result == nil {
		return
	}
	m.answersTotal.WithLabelValues(service, string(result.Confidence)).Inc()
	m.chunksUsed.WithLabelValues(service).Observe(float64(result.ChunksUsed))
	m.pipelineDuration.WithLabelValues(service).Observe(duration.Seconds())
	if !result.Found {
		m.refusalsTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordBreakerRejection(service, dependency string) {
	if dependency == "" {
		dependency = "unknown"
	}
	m.breakerRejections.WithLabelValues(service, dependency).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
