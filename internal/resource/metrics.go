package resource

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waha_resource_cache_hits_total",
		Help: "Resource reads served from the cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waha_resource_cache_misses_total",
		Help: "Resource reads that went upstream",
	})
	cachePruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waha_resource_cache_pruned_total",
		Help: "Expired cache entries removed by the prune sweep",
	})
)
