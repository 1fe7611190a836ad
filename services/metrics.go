package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	completionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatdesk",
		Name:      "completion_requests_total",
		Help:      "Completion requests by transport and outcome.",
	}, []string{"transport", "outcome"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatdesk",
		Name:      "completion_request_duration_seconds",
		Help:      "Wall time of completion requests.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"transport"})

	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatdesk",
		Name:      "store_writes_total",
		Help:      "Full-collection writes to the store by outcome.",
	}, []string{"outcome"})

	sendsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatdesk",
		Name:      "sends_rejected_total",
		Help:      "Send attempts rejected before reaching the completion endpoint.",
	}, []string{"reason"})
)
