// Package metrics exposes the playground's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so components can be built
// in tests without a registry.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "playground"

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Preview pipeline
	runs          *prometheus.CounterVec
	superseded    prometheus.Counter
	assemblyFails *prometheus.CounterVec
	consoleEvents *prometheus.CounterVec
	bridgeDropped *prometheus.CounterVec
	workspaces    prometheus.Gauge
	sockets       prometheus.Gauge

	// Grading
	grades        *prometheus.CounterVec
	gradeDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_runs_total",
			Help:      "Preview runs by trigger.",
		}, []string{"trigger"}),
		superseded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_runs_superseded_total",
			Help:      "Pending auto runs cancelled by a newer edit or a manual run.",
		}),
		assemblyFails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assembly_problems_total",
			Help:      "Recovered assembly problems by kind.",
		}, []string{"kind"}),
		consoleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "console_events_total",
			Help:      "Console events accepted from sandboxed documents.",
		}, []string{"method"}),
		bridgeDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_dropped_total",
			Help:      "Inbound bridge frames discarded, by reason.",
		}, []string{"reason"}),
		workspaces: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workspaces_active",
			Help:      "Live workspaces.",
		}),
		sockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sockets_active",
			Help:      "Connected workspace sockets.",
		}),
		grades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grades_total",
			Help:      "Graded submissions by engine and result.",
		}, []string{"engine", "result"}),
		gradeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grade_duration_seconds",
			Help:      "Time spent grading a submission.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"engine"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Run counts a preview run by trigger.
func (m *Metrics) Run(trigger string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger).Inc()
}

// Superseded counts auto runs cancelled by a later edit.
func (m *Metrics) Superseded() {
	if m == nil {
		return
	}
	m.superseded.Inc()
}

// AssemblyProblem counts recovered assembly problems by kind.
func (m *Metrics) AssemblyProblem(kind string) {
	if m == nil {
		return
	}
	m.assemblyFails.WithLabelValues(kind).Inc()
}

// ConsoleEvent counts accepted console events by method.
func (m *Metrics) ConsoleEvent(method string) {
	if m == nil {
		return
	}
	m.consoleEvents.WithLabelValues(method).Inc()
}

// BridgeDropped counts rejected bridge frames by reason.
func (m *Metrics) BridgeDropped(reason string) {
	if m == nil {
		return
	}
	m.bridgeDropped.WithLabelValues(reason).Inc()
}

// WorkspaceOpened and WorkspaceClosed track the live workspace gauge.
func (m *Metrics) WorkspaceOpened() {
	if m == nil {
		return
	}
	m.workspaces.Inc()
}

// WorkspaceClosed decrements the open workspace gauge.
func (m *Metrics) WorkspaceClosed() {
	if m == nil {
		return
	}
	m.workspaces.Dec()
}

// SocketOpened increments the open socket gauge.
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.sockets.Inc()
}

// SocketClosed decrements the open socket gauge.
func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.sockets.Dec()
}

// Grade records one graded submission.
func (m *Metrics) Grade(engine string, passed bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "fail"
	if passed {
		result = "pass"
	}
	m.grades.WithLabelValues(engine, result).Inc()
	m.gradeDuration.WithLabelValues(engine).Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes WebSocket upgrades through to the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", r.ResponseWriter)
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware counts requests by chi route pattern, so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
