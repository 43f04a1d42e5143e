// Package prom implements the observability hooks with Prometheus metrics.
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/quiver/pkg/observability"
)

const namespace = "quiver"

// Metrics implements every hook interface of package observability.
type Metrics struct {
	resolveTotal    *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	resolveSteps    prometheus.Histogram
	backtracks      prometheus.Counter
	stateChanges    *prometheus.CounterVec

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	negativeHits   *prometheus.CounterVec
	cacheSetBytes  *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec

	installTotal    *prometheus.CounterVec
	installDuration prometheus.Histogram
	installsActive  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

var (
	_ observability.ResolverHooks = (*Metrics)(nil)
	_ observability.CacheHooks    = (*Metrics)(nil)
	_ observability.InstallHooks  = (*Metrics)(nil)
	_ observability.HTTPHooks     = (*Metrics)(nil)
)

// New creates the metrics and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resolve_total",
			Help: "Resolution sessions by terminal state.",
		}, []string{"state"}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "resolve_duration_seconds",
			Help:    "Time taken by resolution sessions.",
			Buckets: prometheus.DefBuckets,
		}),
		resolveSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "resolve_steps",
			Help:    "Candidates tried per resolution session.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		backtracks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "resolve_backtracks_total",
			Help: "Decisions revisited by the resolver.",
		}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resolve_state_transitions_total",
			Help: "Resolver state transitions.",
		}, []string{"from", "to"}),

		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Cache hits by key type and tier.",
		}, []string{"key_type", "tier"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Cache misses by key type.",
		}, []string{"key_type"}),
		negativeHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "negative_hits_total",
			Help: "Lookups answered by the negative filter.",
		}, []string{"key_type"}),
		cacheSetBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "written_bytes_total",
			Help: "Bytes written to the cache.",
		}, []string{"key_type"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Entries evicted from the memory tier.",
		}, []string{"key_type", "spilled"}),

		installTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "install", Name: "packages_total",
			Help: "Installed packages by outcome.",
		}, []string{"status"}),
		installDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "install", Name: "duration_seconds",
			Help:    "Time to fetch and extract one package.",
			Buckets: prometheus.DefBuckets,
		}),
		installsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "install", Name: "active",
			Help: "Packages currently being installed.",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Outgoing registry requests.",
		}, []string{"host", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Registry request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "errors_total",
			Help: "Registry requests that failed without a response.",
		}, []string{"host"}),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.resolveTotal, m.resolveDuration, m.resolveSteps, m.backtracks, m.stateChanges,
		m.cacheHits, m.cacheMisses, m.negativeHits, m.cacheSetBytes, m.cacheEvictions,
		m.installTotal, m.installDuration, m.installsActive,
		m.httpRequests, m.httpDuration, m.httpErrors,
	}
}

// Install registers m as the process-wide hooks.
func (m *Metrics) Install() {
	observability.SetResolverHooks(m)
	observability.SetCacheHooks(m)
	observability.SetInstallHooks(m)
	observability.SetHTTPHooks(m)
}

func (m *Metrics) OnResolveStart(context.Context, int) {}

func (m *Metrics) OnStateChange(_ context.Context, from, to string) {
	m.stateChanges.WithLabelValues(from, to).Inc()
}

func (m *Metrics) OnBacktrack(context.Context, string, int) { m.backtracks.Inc() }

func (m *Metrics) OnResolveComplete(_ context.Context, state string, _, steps int, d time.Duration, _ error) {
	m.resolveTotal.WithLabelValues(state).Inc()
	m.resolveDuration.Observe(d.Seconds())
	m.resolveSteps.Observe(float64(steps))
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType, tier string) {
	m.cacheHits.WithLabelValues(keyType, tier).Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheMisses.WithLabelValues(keyType).Inc()
}

func (m *Metrics) OnNegativeHit(_ context.Context, keyType string) {
	m.negativeHits.WithLabelValues(keyType).Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheSetBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnEviction(_ context.Context, keyType string, spilled bool) {
	label := "false"
	if spilled {
		label = "true"
	}
	m.cacheEvictions.WithLabelValues(keyType, label).Inc()
}

func (m *Metrics) OnInstallStart(context.Context, string, string) { m.installsActive.Inc() }

// OnInstallComplete only decrements the active gauge for packages that
// reported a start; skipped and dependency-failed packages never start.
func (m *Metrics) OnInstallComplete(_ context.Context, _, _, status string, d time.Duration, _ error) {
	m.installTotal.WithLabelValues(status).Inc()
	if status == "installed" || status == "failed" {
		m.installsActive.Dec()
		m.installDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(host, statusClass(code)).Inc()
	m.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.httpErrors.WithLabelValues(host).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
