// Package metrics holds the Prometheus collectors shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redirect outcomes.
const (
	OutcomeRecorded   = "recorded"
	OutcomeSuppressed = "suppressed"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
)

// Export outcomes.
const (
	ExportDelivered = "delivered"
	ExportEmpty     = "empty"
	ExportOversized = "oversized"
	ExportFailed    = "failed"
)

var (
	Redirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clicktrail",
		Name:      "redirects_total",
		Help:      "Redirect resolutions by outcome.",
	}, []string{"outcome"})

	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clicktrail",
		Name:      "tokens_issued_total",
		Help:      "Redirect tokens issued.",
	})

	TokenCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clicktrail",
		Name:      "token_collisions_total",
		Help:      "Token inserts rejected because the token already existed.",
	})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clicktrail",
		Name:      "exports_total",
		Help:      "Hit exports by outcome.",
	}, []string{"outcome"})

	ExportBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "clicktrail",
		Name:      "export_artifact_bytes",
		Help:      "Size of delivered export artifacts.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
	})

	Summaries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clicktrail",
		Name:      "summaries_total",
		Help:      "Window summaries computed.",
	})
)
