package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		usersRegisteredTotal,
		telegramCommandsReceivedTotal,
		telegramRateLimitTriggeredTotal,
		telegramDeliveriesTotal,
	)
}

var (
	usersRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of new users registered.",
		},
	)

	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming messages and commands from users.",
		},
		[]string{"command"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	telegramDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_deliveries_total",
			Help: "Outbound messages by kind and result.",
		},
		[]string{"kind", "status"}, // kind: 'post', 'notice'; status: 'sent', 'failed'
	)
)

func IncUsersRegistered() {
	usersRegisteredTotal.Inc()
}

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncDelivery(kind, status string) {
	telegramDeliveriesTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}
