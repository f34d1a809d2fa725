package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		monitorRunning,
		monitorTicksTotal,
		monitorPausesTotal,
		monitorTrackedEntities,
		xFetchOutcomesTotal,
		xCredentialRemaining,
		postsRelayedTotal,
		webhookEventsTotal,
		jobsProcessedTotal,
	)
}

var (
	monitorRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_running",
			Help: "1 while the polling loop is active.",
		},
	)

	monitorTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_ticks_total",
			Help: "Polling iterations started.",
		},
	)

	monitorPausesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_pauses_total",
			Help: "Times polling paused because every credential ran out of quota.",
		},
	)

	monitorTrackedEntities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_tracked_entities",
			Help: "Number of accounts the polling loop is tracking.",
		},
	)

	xFetchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x_fetch_outcomes_total",
			Help: "X API calls by credential and outcome.",
		},
		[]string{"credential", "outcome"},
	)

	xCredentialRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "x_credential_remaining_requests",
			Help: "Last reported remaining requests per credential.",
		},
		[]string{"credential"},
	)

	postsRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_relayed_total",
			Help: "Posts handed to the dispatcher by source.",
		},
		[]string{"source"}, // 'poll', 'init', 'webhook'
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x_webhook_events_total",
			Help: "Webhook requests by result.",
		},
		[]string{"result"}, // 'accepted', 'bad_signature', 'bad_payload', 'crc'
	)

	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Background jobs processed, labeled by job and status.",
		},
		[]string{"job", "status"}, // status: 'completed', 'failed'
	)
)

func SetMonitorRunning(running bool) {
	if running {
		monitorRunning.Set(1)
		return
	}
	monitorRunning.Set(0)
}

func IncMonitorTick() { monitorTicksTotal.Inc() }

func IncMonitorPause() { monitorPausesTotal.Inc() }

func SetTrackedEntities(n int) { monitorTrackedEntities.Set(float64(n)) }

func IncFetchOutcome(credential, outcome string) {
	xFetchOutcomesTotal.WithLabelValues(norm(credential), norm(outcome)).Inc()
}

func SetCredentialRemaining(credential string, remaining int) {
	xCredentialRemaining.WithLabelValues(norm(credential)).Set(float64(remaining))
}

func AddPostsRelayed(source string, n int) {
	postsRelayedTotal.WithLabelValues(norm(source)).Add(float64(n))
}

func IncWebhookEvent(result string) {
	webhookEventsTotal.WithLabelValues(norm(result)).Inc()
}

func IncJob(job, status string) {
	jobsProcessedTotal.WithLabelValues(norm(job), norm(status)).Inc()
}
