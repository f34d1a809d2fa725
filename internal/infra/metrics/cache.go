package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheLookupsTotal) }

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "user_cache_lookups_total",
		Help: "Redis read-through lookups in front of the user store, by key family and outcome.",
	},
	[]string{"cache", "outcome"},
)

// IncCacheRequest counts one lookup. Outcomes other than hit, miss and error are
// reported as "other" to keep the label set bounded.
func IncCacheRequest(cacheName, outcome string) {
	o := norm(outcome)
	switch o {
	case "hit", "miss", "error":
	default:
		o = "other"
	}
	cacheLookupsTotal.WithLabelValues(norm(cacheName), o).Inc()
}
