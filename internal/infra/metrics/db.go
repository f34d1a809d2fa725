package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats) }

var dbPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_stats",
		Help: "Current state of the database connection pool per backend.",
	},
	[]string{"backend", "state"}, // backend: 'postgres', 'sqlite'; state: 'total', 'idle', 'in_use'
)

func SetDBPoolStats(backend string, total, idle, inUse int32) {
	b := norm(backend)
	dbPoolStats.WithLabelValues(b, "total").Set(float64(total))
	dbPoolStats.WithLabelValues(b, "idle").Set(float64(idle))
	dbPoolStats.WithLabelValues(b, "in_use").Set(float64(inUse))
}
