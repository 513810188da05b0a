// Package metrics defines Prometheus instrumentation for the ingest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed counts messages that completed the pipeline.
	MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "messages_processed_total",
		Help:      "Total number of messages processed successfully.",
	})

	// MessagesFailed counts messages whose processing failed.
	MessagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "messages_failed_total",
		Help:      "Total number of messages that failed processing.",
	})

	// ListingsCreated counts listings by resulting status.
	ListingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "listings_created_total",
		Help:      "Total number of listings created, by status.",
	}, []string{"status"})

	// ExtractionsDiscarded counts extraction results dropped for low confidence.
	ExtractionsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "extractions_discarded_total",
		Help:      "Total number of extraction results discarded for low confidence.",
	})

	// SoldTransitions counts listings marked sold by reply detection.
	SoldTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "sold_transitions_total",
		Help:      "Total number of listings transitioned to sold.",
	})

	// NotificationsDispatched counts rule matches dispatched.
	NotificationsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "notifications_dispatched_total",
		Help:      "Total number of notification rule matches dispatched.",
	})

	// CatchupRuns counts catchup sweeps by outcome.
	CatchupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "catchup_runs_total",
		Help:      "Total number of catchup runs, by outcome.",
	}, []string{"outcome"})

	// ExtractionDuration observes LLM extraction latency.
	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracker",
		Name:      "extraction_duration_seconds",
		Help:      "Time spent on LLM extraction per message.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
