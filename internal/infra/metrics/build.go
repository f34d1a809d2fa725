package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(buildInfo)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "x_monitor_build_info",
		Help: "A constant metric with labels for version, commit and Go runtime.",
	},
	[]string{"version", "commit", "goversion"},
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
