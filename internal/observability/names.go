// Package observability provides OpenTelemetry metrics and trace-aware logging for embedkit.
package observability

import "github.com/embedkit/embedkit/pkg/embeddings"

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameEmbeddingRequests        = "embedkit_embedding_requests_total"
	MetricNameEmbeddingAttemptFailures = "embedkit_embedding_attempt_failures_total"
	MetricNameEmbeddingBatchSize       = "embedkit_embedding_batch_size"
	MetricNameEmbeddingDuration        = "embedkit_embedding_request_duration_seconds"
)

// Attribute keys.
const (
	AttrReason = "reason"
	AttrStatus = "status"
)

// AllowedRequestStatuses for embedkit_embedding_requests_total and the duration histogram.
var AllowedRequestStatuses = map[string]bool{
	embeddings.RequestStatusSuccess:         true,
	embeddings.RequestStatusTransientFailed: true,
	embeddings.RequestStatusRejected:        true,
	embeddings.RequestStatusCanceled:        true,
}

// AllowedFailureReasons for embedkit_embedding_attempt_failures_total.
var AllowedFailureReasons = map[string]bool{
	embeddings.FailureReasonRateLimited: true,
	embeddings.FailureReasonServerError: true,
	embeddings.FailureReasonTimeout:     true,
	embeddings.FailureReasonNetwork:     true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeStatus returns status if in AllowedRequestStatuses, otherwise "other".
func NormalizeStatus(status string) string {
	if AllowedRequestStatuses[status] {
		return status
	}

	return "other"
}
