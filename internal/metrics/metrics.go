// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "seal_agent"

var (
	// Reward policy outcomes partitioned by decision kind
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Reward policy decisions by kind",
		},
		[]string{"kind"},
	)

	// Wallet transfers partitioned by currency and result (ok/failed)
	Transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer attempts by currency and result",
		},
		[]string{"currency", "result"},
	)

	// Oracle calls that degraded to a failed verdict
	ClassifierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Oracle calls that could not produce a verdict",
		},
		[]string{"call"},
	)

	// Campaigns reaching a status
	Campaigns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaigns_total",
			Help:      "Campaigns entering a status",
		},
		[]string{"status"},
	)

	ThanksPosts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thanks_posts_total",
			Help:      "Thank-you posts for incoming transfers",
		},
	)

	// Candidates seen by the ingestion loop partitioned by outcome
	Candidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidate responses by handling outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
