// Package metrics exposes toast manager activity to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oktsec/toastd/internal/toast"
)

const namespace = "toastd"

// StatsSource reports current registry counts. *toast.Manager satisfies it.
type StatsSource interface {
	Stats() toast.Stats
}

// Collector holds the metrics of one toastd instance on its own registry.
type Collector struct {
	registry *prometheus.Registry

	created  *prometheus.CounterVec
	removed  *prometheus.CounterVec
	actions  *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New registers the toastd metrics on a fresh registry. Gauges are read
// from src at scrape time.
func New(src StatsSource) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toasts_created_total",
			Help:      "Toasts created, by kind.",
		}, []string{"kind"}),
		removed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toasts_removed_total",
			Help:      "Toasts removed, by reason.",
		}, []string{"reason"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Toast action buttons pressed, by action id.",
		}, []string{"action"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	gauge := func(name, help string, fn func(toast.Stats) int) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn(src.Stats())) })
	}
	gauge("toasts_live", "Toasts currently held in the registry.", func(s toast.Stats) int { return s.Live })
	gauge("toasts_visible", "Toasts currently rendered.", func(s toast.Stats) int { return s.Visible })
	gauge("toasts_queued", "Toasts waiting for a free slot.", func(s toast.Stats) int { return s.Queued })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Lifecycle events dropped because a subscriber was slow.",
	}, func() float64 { return float64(src.Stats().DroppedEvents) })

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Observe counts one lifecycle event.
func (c *Collector) Observe(ev toast.Event) {
	switch ev.Type {
	case toast.EventAdded:
		c.created.WithLabelValues(string(ev.Toast.Kind)).Inc()
	case toast.EventRemoved:
		c.removed.WithLabelValues(string(ev.Reason)).Inc()
	case toast.EventAction:
		c.actions.WithLabelValues(ev.Action).Inc()
	}
}

// Run observes events until the channel closes or ctx is done.
func (c *Collector) Run(ctx context.Context, events <-chan toast.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Observe(ev)
		}
	}
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(route string, code int, d time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.latency.WithLabelValues(route).Observe(d.Seconds())
}
