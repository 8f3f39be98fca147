package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/embedkit/embedkit/pkg/embeddings"
)

// embeddingMetrics implements embeddings.Metrics on OpenTelemetry instruments.
type embeddingMetrics struct {
	requests        metric.Int64Counter
	attemptFailures metric.Int64Counter
	batchSize       metric.Int64Histogram
	duration        metric.Float64Histogram
}

// NewEmbeddingMetrics creates embeddings.Metrics backed by the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewEmbeddingMetrics(meter metric.Meter) (embeddings.Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	requests, err := meter.Int64Counter(
		MetricNameEmbeddingRequests,
		metric.WithDescription("Total embedding requests by terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding requests counter: %w", err)
	}

	attemptFailures, err := meter.Int64Counter(
		MetricNameEmbeddingAttemptFailures,
		metric.WithDescription("Total failed embedding attempts by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding attempt failures counter: %w", err)
	}

	batchSize, err := meter.Int64Histogram(
		MetricNameEmbeddingBatchSize,
		metric.WithDescription("Token sequences per embedding request"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding batch size histogram: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Embedding request duration including retries (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	return &embeddingMetrics{
		requests:        requests,
		attemptFailures: attemptFailures,
		batchSize:       batchSize,
		duration:        duration,
	}, nil
}

func (e *embeddingMetrics) RecordRequest(ctx context.Context, status string, duration time.Duration) {
	status = NormalizeStatus(status)
	e.requests.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
	e.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (e *embeddingMetrics) RecordAttemptFailure(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedFailureReasons)
	e.attemptFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (e *embeddingMetrics) RecordBatchSize(ctx context.Context, size int64) {
	e.batchSize.Record(ctx, size)
}
