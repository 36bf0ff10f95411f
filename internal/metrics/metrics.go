package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	verificationOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_verification_outcomes_total",
			Help: "Join verifications by terminal outcome.",
		},
		[]string{"outcome"},
	)
	moderationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_moderation_actions_total",
			Help: "Moderation commands executed by administrators.",
		},
		[]string{"action"},
	)
	transportErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_transport_errors_total",
			Help: "Failed calls to the messaging platform.",
		},
		[]string{"call"},
	)
	pendingVerifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_pending_verifications",
			Help: "Members currently waiting for captcha or admin approval.",
		},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_events_total",
			Help: "Events processed by the moderation loop.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		verificationOutcomesTotal,
		moderationActionsTotal,
		transportErrorsTotal,
		pendingVerifications,
		eventsTotal,
	)
}

func IncOutcome(outcome string) {
	verificationOutcomesTotal.WithLabelValues(outcome).Inc()
}

func IncModeration(action string) {
	moderationActionsTotal.WithLabelValues(action).Inc()
}

func IncTransportError(call string) {
	transportErrorsTotal.WithLabelValues(call).Inc()
}

func SetPending(n int) {
	pendingVerifications.Set(float64(n))
}

func IncEvent(kind, result string) {
	eventsTotal.WithLabelValues(kind, result).Inc()
}
