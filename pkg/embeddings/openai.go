package embeddings

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// defaultMaxAttempts is the total attempt budget (first try + retries).
	defaultMaxAttempts = 6
	// defaultRetryWaitMin is the lower bound of the randomized backoff wait.
	defaultRetryWaitMin = 1 * time.Second
	// defaultRetryWaitMax is the upper bound of the randomized backoff wait.
	defaultRetryWaitMax = 20 * time.Second
)

// Attempt failure reasons recorded via Metrics.RecordAttemptFailure.
const (
	FailureReasonRateLimited = "rate_limited"
	FailureReasonServerError = "server_error"
	FailureReasonTimeout     = "timeout"
	FailureReasonNetwork     = "network"
)

// Request statuses recorded via Metrics.RecordRequest.
const (
	RequestStatusSuccess         = "success"
	RequestStatusTransientFailed = "transient_failed"
	RequestStatusRejected        = "rejected"
	RequestStatusCanceled        = "canceled"
)

// OpenAIClient fetches embeddings through the official OpenAI Go SDK.
//
// The SDK's built-in retries are disabled; this client owns the retry policy
// so the attempt budget and backoff bounds are exact: transient failures are
// retried with randomized exponential backoff between the configured wait
// bounds, up to the configured number of total attempts.
type OpenAIClient struct {
	sdk          openaisdk.Client
	model        string
	baseURL      string
	maxAttempts  int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	metrics      Metrics
	logger       *slog.Logger
}

// OpenAIOption configures the OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithModel sets the embedding model identifier. Empty uses DefaultModel.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL points the client at a custom API endpoint (e.g. a proxy or a
// test server).
func WithBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.baseURL = baseURL
	}
}

// WithMaxAttempts sets the total attempt budget (first try + retries).
// Values below 1 are ignored.
func WithMaxAttempts(attempts int) OpenAIOption {
	return func(c *OpenAIClient) {
		if attempts >= 1 {
			c.maxAttempts = attempts
		}
	}
}

// WithRetryWait sets the bounds of the randomized backoff wait between
// attempts. Non-positive values are ignored.
func WithRetryWait(min, max time.Duration) OpenAIOption {
	return func(c *OpenAIClient) {
		if min > 0 {
			c.retryWaitMin = min
		}
		if max > 0 {
			c.retryWaitMax = max
		}
	}
}

// WithMetrics attaches metrics recording. nil disables metrics.
func WithMetrics(m Metrics) OpenAIOption {
	return func(c *OpenAIClient) {
		c.metrics = m
	}
}

// NewOpenAIClient creates an OpenAI embeddings client.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := &OpenAIClient{
		model:        DefaultModel,
		maxAttempts:  defaultMaxAttempts,
		retryWaitMin: defaultRetryWaitMin,
		retryWaitMax: defaultRetryWaitMax,
		logger:       slog.Default().With("component", "openai-embedder"),
	}

	for _, opt := range opts {
		opt(client)
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are handled here, not inside the SDK.
		option.WithMaxRetries(0),
	}
	if client.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(client.baseURL))
	}

	client.sdk = openaisdk.NewClient(sdkOpts...)

	return client, nil
}

// GetEmbedding generates an embedding vector for a single token sequence.
func (c *OpenAIClient) GetEmbedding(ctx context.Context, tokens TokenSequence) (Embedding, error) {
	result, err := c.GetEmbeddings(ctx, []TokenSequence{tokens})
	if err != nil {
		return nil, err
	}

	return result[0], nil
}

// GetEmbeddings generates embedding vectors for a batch of token sequences
// in a single API call per attempt. Response items are reordered by their
// index field so result[i] always corresponds to batch[i].
func (c *OpenAIClient) GetEmbeddings(ctx context.Context, batch []TokenSequence) ([]Embedding, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	log := c.logger.With(
		"request_id", uuid.NewString(),
		"batch_size", len(batch),
		"model", c.model,
	)

	if c.metrics != nil {
		c.metrics.RecordBatchSize(ctx, int64(len(batch)))
	}

	input := make([][]int64, len(batch))
	for i, tokens := range batch {
		input[i] = tokens
	}

	var (
		result   []Embedding
		attempts int
	)

	start := time.Now()

	operation := func() error {
		attempts++

		resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
			Input: openaisdk.EmbeddingNewParamsInputUnion{
				OfArrayOfTokenArrays: input,
			},
			Model: openaisdk.EmbeddingModel(c.model),
			// Pin the wire format; the SDK may otherwise negotiate base64.
			EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
		})
		if err != nil {
			reason, transient := transientReason(err)
			if !transient {
				return backoff.Permanent(err)
			}

			if c.metrics != nil {
				c.metrics.RecordAttemptFailure(ctx, reason)
			}

			log.Warn("embedding request failed",
				"attempt", attempts,
				"reason", reason,
				"error", err,
			)

			return err
		}

		ordered, err := orderedEmbeddings(resp.Data, len(batch))
		if err != nil {
			// A malformed response will not be fixed by retrying.
			return backoff.Permanent(err)
		}

		result = ordered

		return nil
	}

	err := backoff.Retry(operation, c.retryPolicy(ctx))
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.recordRequest(ctx, RequestStatusCanceled, duration)

			return nil, err
		}

		if _, transient := transientReason(err); transient {
			c.recordRequest(ctx, RequestStatusTransientFailed, duration)

			log.Error("embedding request failed after retries",
				"attempts", attempts,
				"error", err,
			)

			return nil, &TransientError{Attempts: attempts, Err: err}
		}

		c.recordRequest(ctx, RequestStatusRejected, duration)

		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	c.recordRequest(ctx, RequestStatusSuccess, duration)

	log.Debug("embeddings generated",
		"attempts", attempts,
		"duration", duration,
	)

	return result, nil
}

// retryPolicy builds the randomized exponential backoff policy for one call:
// waits grow from retryWaitMin toward retryWaitMax with jitter, the attempt
// budget is maxAttempts in total, and the context bounds the whole sequence.
func (c *OpenAIClient) retryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryWaitMin
	bo.MaxInterval = c.retryWaitMax
	bo.MaxElapsedTime = 0 // attempts are bounded by count, not elapsed time

	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)
}

func (c *OpenAIClient) recordRequest(ctx context.Context, status string, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordRequest(ctx, status, duration)
	}
}

// transientReason classifies an SDK error. Transient conditions (rate
// limiting, request timeouts, server errors, transport failures) are
// retried; everything else is permanent.
func transientReason(err error) (string, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", false
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return FailureReasonRateLimited, true
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return FailureReasonTimeout, true
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return FailureReasonServerError, true
		default:
			return "", false
		}
	}

	// No API status code: the request never got a well-formed response
	// (connection refused, reset, timeout below the context deadline).
	return FailureReasonNetwork, true
}

// orderedEmbeddings sorts response items ascending by index and rebuilds the
// result in input order. The API is free to return items in any order; the
// index field is authoritative.
func orderedEmbeddings(data []openaisdk.Embedding, want int) ([]Embedding, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}

	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(data), want)
	}

	items := slices.Clone(data)
	slices.SortFunc(items, func(a, b openaisdk.Embedding) int {
		return cmp.Compare(a.Index, b.Index)
	})

	result := make([]Embedding, len(items))
	for i, item := range items {
		result[i] = Embedding(item.Embedding)
	}

	return result, nil
}

// Ensure OpenAIClient implements Client interface
var _ Client = (*OpenAIClient)(nil)
