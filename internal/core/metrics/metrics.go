// Package metrics defines the Prometheus metrics exported by emailsieve.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value used for decisions that came from rule exhaustion.
const DefaultRuleLabel = "(default)"

// Routing metrics
var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emailsieve_messages_total",
			Help: "Total number of processed messages by outcome",
		},
		[]string{"action"},
	)

	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emailsieve_rule_matches_total",
			Help: "Total number of decisions per deciding rule",
		},
		[]string{"rule"},
	)

	EvaluationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emailsieve_evaluation_errors_total",
			Help: "Total number of messages whose rule evaluation failed",
		},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "emailsieve_processing_seconds",
			Help:    "Time from message receipt to decision execution",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
)

// Delivery metrics
var (
	ForwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emailsieve_forwards_total",
			Help: "Total number of forward attempts by transport and result",
		},
		[]string{"transport", "result"},
	)
)

// ObserveDecision records the outcome of one message.
// action is "forward", "reject", "error" or "dropped"; rule is the deciding rule label.
func ObserveDecision(action, rule string, started time.Time) {
	MessagesTotal.WithLabelValues(action).Inc()
	if rule != "" {
		RuleMatchesTotal.WithLabelValues(rule).Inc()
	}
	ProcessingDuration.Observe(time.Since(started).Seconds())
}

// ObserveForward records one forward attempt.
func ObserveForward(transport string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ForwardsTotal.WithLabelValues(transport, result).Inc()
}
