package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	guardDecisionsTotal  *prometheus.CounterVec
	investigationsTotal  *prometheus.CounterVec
	retrievedEvidence    *prometheus.HistogramVec
	noEvidenceTotal      *prometheus.CounterVec
	degradedReportsTotal *prometheus.CounterVec
	pipelineDuration     *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptoinv",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cryptoinv",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cryptoinv",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	guardDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptoinv",
			Subsystem: "pipeline",
			Name:      "guard_decisions_total",
			Help:      "Total guard decisions by outcome.",
		},
		[]string{"service", "decision"},
	)
	investigationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptoinv",
			Subsystem: "pipeline",
			Name:      "investigations_total",
			Help:      "Total completed investigations by retrieval strategy.",
		},
		[]string{"service", "strategy"},
	)
	retrievedEvidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cryptoinv",
			Subsystem: "pipeline",
			Name:      "retrieved_evidence",
			Help:      "Distribution of unique evidence items per investigation.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service"},
	)
	noEvidenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptoinv",
			Subsystem: "pipeline",
			Name:      "no_evidence_total",
			Help:      "Total admitted investigations that found no evidence.",
		},
		[]string{"service"},
	)
	degradedReportsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptoinv",
			Subsystem: "pipeline",
			Name:      "degraded_reports_total",
			Help:      "Total reports generated in degraded mode after a synthesis failure.",
		},
		[]string{"service"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cryptoinv",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end investigation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		guardDecisionsTotal,
		investigationsTotal,
		retrievedEvidence,
		noEvidenceTotal,
		degradedReportsTotal,
		pipelineDuration,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		guardDecisionsTotal:  guardDecisionsTotal,
		investigationsTotal:  investigationsTotal,
		retrievedEvidence:    retrievedEvidence,
		noEvidenceTotal:      noEvidenceTotal,
		degradedReportsTotal: degradedReportsTotal,
		pipelineDuration:     pipelineDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/corpus/documents/"):
		return "/v1/corpus/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordGuardDecision(service string, admitted bool) {
	decision := "rejected"
	if admitted {
		decision = "admitted"
	}
	m.guardDecisionsTotal.WithLabelValues(service, decision).Inc()
}

func (m *HTTPServerMetrics) RecordInvestigation(service, strategy string, evidenceCount int, duration time.Duration) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.investigationsTotal.WithLabelValues(service, strategy).Inc()
	m.retrievedEvidence.WithLabelValues(service).Observe(float64(evidenceCount))
	m.pipelineDuration.WithLabelValues(service).Observe(duration.Seconds())

	if evidenceCount == 0 {
		m.noEvidenceTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordDegradedReport(service string) {
	m.degradedReportsTotal.WithLabelValues(service).Inc()
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
