// Package metrics exposes Prometheus collectors for the billing loop, the
// activity bus and wallet creation.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lncurl/lncurl/internal/activity"
)

const namespace = "lncurl"

// Registry owns the collectors. Each instance has its own prometheus
// registry so tests can build as many as they like.
type Registry struct {
	reg *prometheus.Registry

	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	Wallets         *prometheus.CounterVec
	SatsCollected   prometheus.Counter
	Events          *prometheus.CounterVec
	RateLimited     prometheus.Counter
	FundRefreshErrs prometheus.Counter
}

// New registers every collector along with the Go runtime collectors.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "cycles_total",
			Help:      "Billing cycles by outcome (completed or skipped while another ran).",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of completed billing cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Wallets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "wallets_total",
			Help:      "Wallets visited by billing cycles, by result.",
		}, []string{"result"}),
		SatsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "sats_collected_total",
			Help:      "Sats collected by successful charges.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "events_total",
			Help:      "Activity events published, by type.",
		}, []string{"type"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "creations_rate_limited_total",
			Help:      "Wallet creations rejected by the origin rate limit.",
		}),
		FundRefreshErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "fund_refresh_errors_total",
			Help:      "Failed fund balance reads.",
		}),
	}
	r.reg.MustRegister(
		r.Cycles,
		r.CycleDuration,
		r.Wallets,
		r.SatsCollected,
		r.Events,
		r.RateLimited,
		r.FundRefreshErrs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Listener counts published activity events by type.
func (r *Registry) Listener() activity.Listener {
	return func(_ context.Context, e activity.Event) error {
		r.Events.WithLabelValues(string(e.Type)).Inc()
		return nil
	}
}
