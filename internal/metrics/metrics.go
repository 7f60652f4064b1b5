// Package metrics instruments a light.Repository with Prometheus counters and histograms.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dokzlo13/sitelight/internal/light"
)

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	historyWrites prometheus.Counter
}

// New creates collectors on a fresh registry. backend labels every series.
func New(backend string) *Metrics {
	labels := prometheus.Labels{"backend": backend}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "sitelight_store_operations_total",
			Help:        "Total repository operations by operation and result.",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "sitelight_store_operation_duration_seconds",
			Help:        "Histogram of repository operation durations.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"op"}),
		historyWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "sitelight_history_writes_total",
			Help:        "Total history entries submitted.",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.storeOps,
		m.storeDuration,
		m.historyWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	m.storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.storeOps.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, light.ErrValidation):
		return "invalid"
	case errors.Is(err, light.ErrUnresolvedSite):
		return "unresolved"
	default:
		return "error"
	}
}

// Repository decorates a light.Repository with store metrics.
type Repository struct {
	next    light.Repository
	metrics *Metrics
}

var _ light.Repository = (*Repository)(nil)

// Wrap instruments next.
func (m *Metrics) Wrap(next light.Repository) *Repository {
	return &Repository{next: next, metrics: m}
}

func (r *Repository) GetOrCreate(ctx context.Context, siteID int) (*light.Status, error) {
	start := time.Now()
	status, err := r.next.GetOrCreate(ctx, siteID)
	r.metrics.observe("get_or_create", start, err)
	return status, err
}

func (r *Repository) Update(ctx context.Context, siteID int, state light.State, brightness int, scheduleOn, scheduleOff *string) (*light.Status, error) {
	start := time.Now()
	status, err := r.next.Update(ctx, siteID, state, brightness, scheduleOn, scheduleOff)
	r.metrics.observe("update", start, err)
	return status, err
}

// AddHistory has no error to observe; failures are only visible in the logs.
func (r *Repository) AddHistory(ctx context.Context, siteID int, action string) {
	start := time.Now()
	r.next.AddHistory(ctx, siteID, action)
	r.metrics.storeDuration.WithLabelValues("add_history").Observe(time.Since(start).Seconds())
	r.metrics.historyWrites.Inc()
}

func (r *Repository) GetHistory(ctx context.Context, siteID *int) ([]light.HistoryEntry, error) {
	start := time.Now()
	entries, err := r.next.GetHistory(ctx, siteID)
	r.metrics.observe("get_history", start, err)
	return entries, err
}

func (r *Repository) SaveFullSchedule(ctx context.Context, siteID int, rules []light.Rule) (*light.FullSchedule, error) {
	start := time.Now()
	sched, err := r.next.SaveFullSchedule(ctx, siteID, rules)
	r.metrics.observe("save_full_schedule", start, err)
	return sched, err
}

func (r *Repository) GetFullSchedule(ctx context.Context, siteID int) (*light.FullSchedule, error) {
	start := time.Now()
	sched, err := r.next.GetFullSchedule(ctx, siteID)
	r.metrics.observe("get_full_schedule", start, err)
	return sched, err
}
