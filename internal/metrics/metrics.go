// Package metrics records verdict engine activity with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Recorder implements verdict.Observer on a dedicated Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	verdicts  *prometheus.CounterVec
	gates     *prometheus.CounterVec
	rules     *prometheus.CounterVec
	defaulted *prometheus.CounterVec
	cache     *prometheus.CounterVec
	duration  prometheus.Histogram
}

// New creates a Recorder with its own registry, plus Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_verdicts_total",
				Help: "Total number of verdicts issued",
			},
			[]string{"verdict", "conviction"},
		),
		gates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_critical_gates_total",
				Help: "Total number of verdicts short-circuited by a critical conflict",
			},
			[]string{"conflict_type"},
		),
		rules: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_rules_applied_total",
				Help: "Total number of times a resolution rule fired",
			},
			[]string{"rule"},
		),
		defaulted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_defaulted_inputs_total",
				Help: "Total number of non-finite inputs counted as zero",
			},
			[]string{"input"},
		),
		cache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_decision_cache_total",
				Help: "Decision memo lookups by result",
			},
			[]string{"result"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kestrel_decision_duration_seconds",
				Help:    "Time spent producing one verdict",
				Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
		),
	}
}

// ObserveDecision records one processed decision.
func (r *Recorder) ObserveDecision(d *domain.Decision, elapsed time.Duration) {
	if d == nil {
		return
	}

	r.verdicts.WithLabelValues(string(d.Result.Verdict), string(d.Result.Conviction)).Inc()
	if d.Gated {
		r.gates.WithLabelValues(d.GatedBy).Inc()
	}
	for _, rule := range d.Resolution.AppliedRules {
		r.rules.WithLabelValues(rule).Inc()
	}
	for _, input := range d.Result.Diagnostics.DefaultedInputs {
		r.defaulted.WithLabelValues(input).Inc()
	}
	r.duration.Observe(elapsed.Seconds())
}

// ObserveCacheLookup records a decision memo hit or miss.
func (r *Recorder) ObserveCacheLookup(hit bool) {
	if hit {
		r.cache.WithLabelValues("hit").Inc()
		return
	}
	r.cache.WithLabelValues("miss").Inc()
}

// Watch exports counters kept by the cache and bus themselves: LRU size
// and evictions, channel-bus drops, NATS traffic. Components that keep
// none are skipped. Call it once.
func (r *Recorder) Watch(c domain.Cache, b domain.EventBus) {
	factory := promauto.With(r.registry)

	if s, ok := c.(interface{ Stats() cache.LRUStats }); ok {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "kestrel_cache_entries",
			Help: "Entries held by the in-process decision cache",
		}, func() float64 { return float64(s.Stats().Size) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "kestrel_cache_evictions_total",
			Help: "Entries evicted from the in-process decision cache for capacity",
		}, func() float64 { return float64(s.Stats().Evictions) })
	}

	if d, ok := b.(interface{ Dropped() uint64 }); ok {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "kestrel_bus_dropped_total",
			Help: "Messages dropped because a subscriber inbox was full",
		}, func() float64 { return float64(d.Dropped()) })
	}

	if n, ok := b.(interface{ Stats() nats.Statistics }); ok {
		counters := []struct {
			name, help string
			pick       func(nats.Statistics) uint64
		}{
			{"kestrel_nats_in_msgs_total", "Messages received over NATS", func(s nats.Statistics) uint64 { return s.InMsgs }},
			{"kestrel_nats_out_msgs_total", "Messages sent over NATS", func(s nats.Statistics) uint64 { return s.OutMsgs }},
			{"kestrel_nats_reconnects_total", "NATS reconnections", func(s nats.Statistics) uint64 { return s.Reconnects }},
		}
		for _, ctr := range counters {
			factory.NewCounterFunc(prometheus.CounterOpts{
				Name: ctr.name,
				Help: ctr.help,
			}, func() float64 { return float64(ctr.pick(n.Stats())) })
		}
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
