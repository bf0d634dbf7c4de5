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

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	submissionsTotal       *prometheus.CounterVec
	submissionDuration     *prometheus.HistogramVec
	secondaryFailuresTotal *prometheus.CounterVec
	activeWizards          prometheus.Gauge
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civic",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "civic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "civic",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civic",
			Subsystem: "wizard",
			Name:      "submissions_total",
			Help:      "Total contribution submissions by mode and outcome.",
		},
		[]string{"service", "mode", "outcome"},
	)
	submissionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "civic",
			Subsystem: "wizard",
			Name:      "submission_duration_seconds",
			Help:      "Contribution submission duration in seconds, uploads included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "mode"},
	)
	secondaryFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civic",
			Subsystem: "wizard",
			Name:      "secondary_upload_failures_total",
			Help:      "Total best-effort artifact uploads that failed.",
		},
		[]string{"service", "artifact"},
	)
	activeWizards := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "civic",
			Subsystem: "wizard",
			Name:      "active_sessions",
			Help:      "Number of open wizard sessions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		submissionsTotal,
		submissionDuration,
		secondaryFailuresTotal,
		activeWizards,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		submissionsTotal:       submissionsTotal,
		submissionDuration:     submissionDuration,
		secondaryFailuresTotal: secondaryFailuresTotal,
		activeWizards:          activeWizards,
	}
}

// Registerer lets other collectors of the API process share the /metrics registry.
func (m *HTTPServerMetrics) Registerer() prometheus.Registerer {
	return m.registry
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

// normalizePath folds ids out of the path so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/wizards/"):
		rest := strings.TrimPrefix(path, "/v1/wizards/")
		if _, action, ok := strings.Cut(rest, "/"); ok {
			return "/v1/wizards/{wizard_id}/" + action
		}
		return "/v1/wizards/{wizard_id}"
	case strings.HasPrefix(path, "/v1/contributions/"):
		return "/v1/contributions/{contribution_id}"
	case strings.HasPrefix(path, "/files/"):
		return "/files/{key}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) SetActiveWizards(n int) {
	m.activeWizards.Set(float64(n))
}

// Submissions returns an observer that records submission outcomes under service.
func (m *HTTPServerMetrics) Submissions(service string) *SubmissionRecorder {
	return &SubmissionRecorder{metrics: m, service: service}
}

type SubmissionRecorder struct {
	metrics *HTTPServerMetrics
	service string
}

func (r *SubmissionRecorder) ObserveSubmission(mode domain.WizardMode, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	r.metrics.submissionsTotal.WithLabelValues(r.service, string(mode), outcome).Inc()
	r.metrics.submissionDuration.WithLabelValues(r.service, string(mode)).Observe(duration.Seconds())
}

func (r *SubmissionRecorder) ObserveSecondaryFailure(kind domain.ArtifactKind) {
	r.metrics.secondaryFailuresTotal.WithLabelValues(r.service, string(kind)).Inc()
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
