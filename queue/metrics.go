package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricEnqueued counts messages sent to the backend.
	metricEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqsqueue",
			Subsystem: "lifecycle",
			Name:      "enqueued_total",
			Help:      "Total messages enqueued",
		},
		[]string{"queue"},
	)

	// metricReserved counts successful reservations.
	metricReserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqsqueue",
			Subsystem: "lifecycle",
			Name:      "reserved_total",
			Help:      "Total messages reserved",
		},
		[]string{"queue"},
	)

	// metricAcknowledged counts successful acknowledgments.
	metricAcknowledged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqsqueue",
			Subsystem: "lifecycle",
			Name:      "acknowledged_total",
			Help:      "Total messages acknowledged",
		},
		[]string{"queue"},
	)

	// metricRejected counts rejections by outcome.
	metricRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqsqueue",
			Subsystem: "lifecycle",
			Name:      "rejected_total",
			Help:      "Total messages rejected",
		},
		[]string{"queue", "outcome"}, // outcome: requeued, dropped, deadlettered
	)

	// metricDeadLetterFailures counts messages lost because the source
	// delete succeeded but the dead-letter enqueue failed.
	metricDeadLetterFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqsqueue",
			Subsystem: "lifecycle",
			Name:      "dead_letter_failures_total",
			Help:      "Messages lost during dead-letter forwarding",
		},
		[]string{"queue"},
	)
)

const (
	outcomeRequeued     = "requeued"
	outcomeDropped      = "dropped"
	outcomeDeadlettered = "deadlettered"
)
