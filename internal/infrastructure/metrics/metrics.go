// Package metrics owns the Prometheus collectors of the Vitality Hub API.
//
// Collectors live on a private registry so tests can build as many
// instances as they like. Handler exposes the registry for /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/scheduler"
	"github.com/wellness-escape/vitality-hub/pkg/circuitbreaker"
)

const namespace = "vitality_hub"

// Metrics groups every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	mediumFailures *prometheus.CounterVec
	events         *prometheus.CounterVec
	policyDenials  *prometheus.CounterVec
	flushedWrites  prometheus.Counter
	breakerState   *prometheus.GaugeVec
	jobRuns        *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		mediumFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "medium_failures_total",
			Help:      "Progress medium failures by operation (load, save, parse).",
		}, []string{"op"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "events_total",
			Help:      "Progress events published by type.",
		}, []string{"type"}),
		policyDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "denials_total",
			Help:      "Commands refused by the access policy or the progression gate.",
		}, []string{"reason"}),
		flushedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "flushed_writes_total",
			Help:      "Pending progress writes later persisted by Flush.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Background job runs by job and result.",
		}, []string{"job", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.mediumFailures,
		m.events,
		m.policyDenials,
		m.flushedWrites,
		m.breakerState,
		m.jobRuns,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// MediumFailure counts a progress medium failure.
func (m *Metrics) MediumFailure(op progress.Op) {
	m.mediumFailures.WithLabelValues(string(op)).Inc()
}

// Denied counts a refused command. reason is "policy" or "gate".
func (m *Metrics) Denied(reason string) {
	m.policyDenials.WithLabelValues(reason).Inc()
}

// Flushed counts pending writes persisted by a flush.
func (m *Metrics) Flushed(n int) {
	if n > 0 {
		m.flushedWrites.Add(float64(n))
	}
}

// BreakerStateChanged matches circuitbreaker.WithOnStateChange.
func (m *Metrics) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	m.breakerState.WithLabelValues(name).Set(float64(to))
}

// JobFinished matches scheduler.Config.OnResult.
func (m *Metrics) JobFinished(r scheduler.JobResult) {
	result := "success"
	if !r.Success() {
		result = "failure"
	}
	m.jobRuns.WithLabelValues(r.JobName, result).Inc()
}

// TrackPending exports the store's in-memory overlay size as a gauge.
func (m *Metrics) TrackPending(store *progress.Store) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "progress",
		Name:      "pending_writes",
		Help:      "Progress values held in memory because the medium rejected them.",
	}, func() float64 {
		return float64(store.Pending())
	}))
}

// Subscribe counts every event published on the bus.
func (m *Metrics) Subscribe(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(func(e shared.Event) error {
		m.events.WithLabelValues(string(e.EventType())).Inc()
		return nil
	})
}
