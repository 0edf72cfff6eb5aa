// Package metrics wraps the prometheus client in the small set of
// counters/histograms the manager and cache expose, following the
// counter/histogram grouping style of client_golang itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks item-state cache hit/miss/eviction counts.
type CacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
}

// ManagerMetrics tracks commit outcomes and latency for the shared
// item-state manager.
type ManagerMetrics struct {
	CommitsTotal        *prometheus.CounterVec
	CommitDuration      prometheus.Histogram
	ReferentialFailures prometheus.Counter
}

// Registry bundles the metrics exposed by this module.
type Registry struct {
	Cache   *CacheMetrics
	Manager *ManagerMetrics
}

// NewRegistry constructs and registers all metrics against reg. Passing a
// fresh prometheus.NewRegistry() keeps tests isolated from the global
// default registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	cacheMetrics := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jcrcore",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Item-state cache lookups that found a cached shared state.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jcrcore",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Item-state cache lookups that required a persistence load.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jcrcore",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Item states removed from the cache, explicit or capacity-driven.",
		}),
	}
	managerMetrics := &ManagerMetrics{
		CommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jcrcore",
			Subsystem: "manager",
			Name:      "commits_total",
			Help:      "Commits processed by the shared item-state manager, by outcome.",
		}, []string{"outcome"}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jcrcore",
			Subsystem: "manager",
			Name:      "commit_duration_seconds",
			Help:      "Wall-clock duration of the commit critical section.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReferentialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jcrcore",
			Subsystem: "manager",
			Name:      "referential_integrity_failures_total",
			Help:      "Commits aborted in Phase A for a dangling REFERENCE target.",
		}),
	}

	reg.MustRegister(
		cacheMetrics.Hits, cacheMetrics.Misses, cacheMetrics.Evictions,
		managerMetrics.CommitsTotal, managerMetrics.CommitDuration, managerMetrics.ReferentialFailures,
	)

	return &Registry{Cache: cacheMetrics, Manager: managerMetrics}
}

// NewUnregistered returns a Registry backed by a private prometheus
// registry, for tests and for embedders that do not want global metrics
// registration as a side effect of construction.
func NewUnregistered() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}
