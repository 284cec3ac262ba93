// Package metrics provides the Prometheus instrumentation backing the
// /stats endpoint: HTTP request counters/latency, per-worker processed/
// failed gauges refreshed from the Worker Supervisor, and the Message
// Store Gateway's circuit breaker state.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps an isolated prometheus.Registry with the pipeline's named
// collectors, so tests can assert against a fresh registry instead of the
// global default one.
type Registry struct {
	reg *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	workerProc    *prometheus.GaugeVec
	workerFailed  *prometheus.GaugeVec
	workerRestart *prometheus.GaugeVec
	breakerState  prometheus.Gauge
	streamLength  *prometheus.GaugeVec
	presenceOnline prometheus.Gauge
}

// New constructs a Registry with every collector registered against a
// fresh prometheus.Registry; no Go runtime or process collectors are
// registered on it.
func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		httpRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency.", Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		workerProc: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "worker_processed_total", Help: "Records processed per worker.",
		}, []string{"worker"}),
		workerFailed: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "worker_failed_total", Help: "Records failed per worker.",
		}, []string{"worker"}),
		workerRestart: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "worker_restarts_total", Help: "Supervisor restarts per worker.",
		}, []string{"worker"}),
		breakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "breaker_open", Help: "1 if the store circuit breaker is OPEN, else 0.",
		}),
		streamLength: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stream_length", Help: "Current length of a named stream.",
		}, []string{"stream"}),
		presenceOnline: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "presence_online_identities", Help: "Identities currently registered online.",
		}),
	}
	return r
}

// Handler exposes the registry's collectors for Prometheus scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveHTTP records one completed HTTP request.
func (r *Registry) ObserveHTTP(method, path string, status int, dur time.Duration) {
	r.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(dur.Seconds())
}

// SetWorkerStats refreshes the per-worker gauges from the Supervisor's
// latest snapshot.
func (r *Registry) SetWorkerStats(stats map[string]domain.WorkerStats) {
	for name, s := range stats {
		r.workerProc.WithLabelValues(name).Set(float64(s.Processed))
		r.workerFailed.WithLabelValues(name).Set(float64(s.Failed))
		r.workerRestart.WithLabelValues(name).Set(float64(s.Restarts))
	}
}

// SetBreakerOpen reflects the Message Store Gateway's circuit breaker state.
func (r *Registry) SetBreakerOpen(open bool) {
	if open {
		r.breakerState.Set(1)
		return
	}
	r.breakerState.Set(0)
}

// SetStreamLength records a named stream's current length.
func (r *Registry) SetStreamLength(stream string, length int64) {
	r.streamLength.WithLabelValues(stream).Set(float64(length))
}

// SetPresenceOnline records the number of currently-registered identities.
func (r *Registry) SetPresenceOnline(n int) {
	r.presenceOnline.Set(float64(n))
}

// Middleware wraps next, recording request count and latency per
// (method, path, status). path is used verbatim when non-empty; pass "" to
// have Middleware resolve the chi-matched route pattern at request time
// instead (falling back to the raw URL path), keeping label cardinality
// bounded to the registered routes instead of one series per resource id.
func Middleware(r *Registry, path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, req)

		label := path
		if label == "" {
			label = req.URL.Path
			if rc := chi.RouteContext(req.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					label = p
				}
			}
		}
		r.ObserveHTTP(req.Method, label, rw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
