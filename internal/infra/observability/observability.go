// Package observability defines the Prometheus metrics of the stars engine.
// Metrics are registered on the default registry via promauto and served by
// the API's /metrics endpoint when enabled.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reason labels for GrantRejections.
const (
	RejectRecipientNotFound = "recipient_not_found"
	RejectSelfRecognition   = "self_recognition"
	RejectInvalidReason     = "invalid_reason"
	RejectEmptyMessage      = "empty_message"
	RejectQuotaExhausted    = "quota_exhausted"
	RejectStorage           = "storage_unavailable"
)

var (
	// GrantsIssued counts successfully appended star grants.
	GrantsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starled_grants_issued_total",
		Help: "Star grants appended to the ledger.",
	})

	// GrantRejections counts rejected giveStar calls by reason.
	GrantRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starled_grant_rejections_total",
		Help: "Rejected giveStar calls by reason.",
	}, []string{"reason"})

	// ConflictRetries counts optimistic-conflict retries of the append.
	ConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starled_conflict_retries_total",
		Help: "Grant appends retried after an optimistic concurrency conflict.",
	})

	// StoreOpDuration tracks ledger store operation latency.
	StoreOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "starled_store_op_duration_seconds",
		Help:    "Ledger store operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// ObserveStoreOp records the elapsed time of a store operation.
func ObserveStoreOp(op string, start time.Time) {
	StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
