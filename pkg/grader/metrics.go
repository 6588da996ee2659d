package grader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gradeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autograde",
		Subsystem: "grader",
		Name:      "request_duration_seconds",
		Help:      "Duration of grading requests per provider",
	}, []string{"provider"})

	gradeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autograde",
		Subsystem: "grader",
		Name:      "request_failures_total",
		Help:      "Number of failed grading requests",
	}, []string{"provider", "reason"})

	replyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autograde",
		Subsystem: "grader",
		Name:      "replies_total",
		Help:      "Grading replies by validation outcome",
	}, []string{"outcome"})
)

func observeReply(outcome Outcome) {
	replyOutcomes.WithLabelValues(string(outcome)).Inc()
}

func failureReason(err error) string {
	switch {
	case IsFatal(err):
		return "unauthorized"
	case IsRetryable(err):
		return "transient"
	default:
		return "permanent"
	}
}
