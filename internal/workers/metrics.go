package workers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the Worker Fleet (C8), labeled by queue so one
// dashboard panel covers every poller. The Reaper's DLQ processor reads the
// same dead-letter counter's underlying state through storage, not through
// these metrics; these exist for operator-facing rate/volume monitoring.
var (
	eventsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustlexp_worker_events_claimed_total",
		Help: "Outbox events claimed by a Worker Fleet poller, by queue.",
	}, []string{"queue"})

	eventsAcked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustlexp_worker_events_acked_total",
		Help: "Outbox events successfully processed and acked, by queue.",
	}, []string{"queue"})

	eventsNacked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustlexp_worker_events_nacked_total",
		Help: "Outbox events that failed and were rescheduled, by queue.",
	}, []string{"queue"})

	eventsDead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustlexp_worker_events_dead_total",
		Help: "Outbox events dead-lettered after exhausting retries, by queue.",
	}, []string{"queue"})
)
