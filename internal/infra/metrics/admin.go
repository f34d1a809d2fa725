package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminCommandTotal, accessRequestsTotal) }

var (
	adminCommandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_command_total",
			Help: "Tracks attempts to use admin commands.",
		},
		[]string{"command", "status"}, // status: 'authorized', 'unauthorized'
	)

	accessRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_requests_total",
			Help: "Access requests by outcome.",
		},
		[]string{"status"}, // 'requested', 'approved', 'denied'
	)
)

func IncAdminCommand(command, status string) {
	adminCommandTotal.WithLabelValues(norm(command), norm(status)).Inc()
}

func IncAccessRequest(status string) {
	accessRequestsTotal.WithLabelValues(norm(status)).Inc()
}
