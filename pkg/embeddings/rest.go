package embeddings

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultRESTTimeout = 30 * time.Second

// maxErrorBodyBytes caps how much of an error response body is read for the
// error message.
const maxErrorBodyBytes = 4096

// RESTClientOptions configures the RESTClient.
type RESTClientOptions struct {
	// BaseURL is the server base URL, without the /v1/embeddings suffix
	// (e.g. "http://localhost:8080"). Required.
	BaseURL string
	// APIKey is sent as a bearer token when non-empty. Self-hosted servers
	// often need none.
	APIKey string
	// Model is the embedding model identifier (default: DefaultModel).
	Model string
	// MaxAttempts is the total attempt budget (default: 6).
	MaxAttempts int
	// RetryWaitMin is the lower bound of the randomized backoff wait (default: 1s).
	RetryWaitMin time.Duration
	// RetryWaitMax is the upper bound of the randomized backoff wait (default: 20s).
	RetryWaitMax time.Duration
	// Timeout is the per-attempt HTTP timeout (default: 30 seconds).
	Timeout time.Duration
	// Metrics records client instrumentation. nil disables metrics.
	Metrics Metrics
}

// RESTClient fetches embeddings from any server exposing the OpenAI-compatible
// POST /v1/embeddings endpoint (self-hosted TEI, vLLM, LocalAI and the like).
//
// Retries live in the HTTP transport: 408, 429 and 5xx responses and network
// failures are retried with randomized exponential backoff between the
// configured wait bounds, up to the configured number of total attempts.
// Ordering, batch limit, error, and metrics semantics match OpenAIClient.
type RESTClient struct {
	baseURL     string
	apiKey      string
	model       string
	maxAttempts int
	httpClient  *retryablehttp.Client
	metrics     Metrics
	logger      *slog.Logger
}

// attemptCountKey carries the per-call attempt counter through the request
// context, so the shared transport's hook can report how many attempts one
// call actually made.
type attemptCountKey struct{}

// NewRESTClient creates a client for an OpenAI-compatible embeddings endpoint.
func NewRESTClient(opts RESTClientOptions) (*RESTClient, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("embeddings: base URL is required")
	}

	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = defaultRetryWaitMin
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = defaultRetryWaitMax
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultRESTTimeout
	}

	metrics := opts.Metrics

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxAttempts - 1
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Backoff = randomExponentialBackoff
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil // disable retryablehttp's default logger; we log at client layer

	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, retryNumber int) {
		if counter, ok := req.Context().Value(attemptCountKey{}).(*atomic.Int32); ok {
			counter.Store(int32(retryNumber) + 1)
		}
	}

	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		// 408 is transient alongside 429 and 5xx; the default policy skips it.
		retry := resp != nil && resp.StatusCode == http.StatusRequestTimeout

		var checkErr error
		if !retry {
			retry, checkErr = retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}

		if retry && metrics != nil {
			metrics.RecordAttemptFailure(ctx, restFailureReason(resp, err))
		}

		return retry, checkErr
	}

	return &RESTClient{
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		maxAttempts: opts.MaxAttempts,
		httpClient:  retryClient,
		metrics:     metrics,
		logger:      slog.Default().With("component", "rest-embedder"),
	}, nil
}

// restFailureReason classifies one failed attempt for metrics.
func restFailureReason(resp *http.Response, err error) string {
	if err != nil || resp == nil {
		return FailureReasonNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return FailureReasonRateLimited
	case resp.StatusCode == http.StatusRequestTimeout:
		return FailureReasonTimeout
	case resp.StatusCode >= http.StatusInternalServerError:
		return FailureReasonServerError
	}

	return FailureReasonNetwork
}

// embeddingRequest is the wire format of the batch request.
// The original OpenAI API named the model field "engine"; every current
// compatible server expects "model".
type embeddingRequest struct {
	Input [][]int64 `json:"input"`
	Model string    `json:"model"`
}

// embeddingItem is one entry of the response data list.
type embeddingItem struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// embeddingResponse is the wire format of the batch response.
type embeddingResponse struct {
	Data []embeddingItem `json:"data"`
}

// GetEmbedding generates an embedding vector for a single token sequence.
func (c *RESTClient) GetEmbedding(ctx context.Context, tokens TokenSequence) (Embedding, error) {
	result, err := c.GetEmbeddings(ctx, []TokenSequence{tokens})
	if err != nil {
		return nil, err
	}

	return result[0], nil
}

// GetEmbeddings generates embedding vectors for a batch of token sequences.
// The result is reordered by the response index field to match input order.
func (c *RESTClient) GetEmbeddings(ctx context.Context, batch []TokenSequence) ([]Embedding, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordBatchSize(ctx, int64(len(batch)))
	}

	input := make([][]int64, len(batch))
	for i, tokens := range batch {
		input[i] = tokens
	}

	body, err := json.Marshal(embeddingRequest{Input: input, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("embeddings: encode request: %w", err)
	}

	attempts := &atomic.Int32{}
	reqCtx := context.WithValue(ctx, attemptCountKey{}, attempts)

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("embeddings: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.recordRequest(ctx, RequestStatusCanceled, duration)

			return nil, err
		}

		made := int(attempts.Load())
		if made < c.maxAttempts {
			// The transport refused to retry (untrusted certificate, redirect
			// loop, unsupported scheme): the condition is permanent, not an
			// exhausted attempt budget.
			c.recordRequest(ctx, RequestStatusRejected, duration)

			return nil, fmt.Errorf("embeddings: request failed: %w", err)
		}

		c.recordRequest(ctx, RequestStatusTransientFailed, duration)

		c.logger.Error("embedding request failed after retries",
			"batch_size", len(batch),
			"model", c.model,
			"attempts", made,
			"error", err,
		)

		return nil, &TransientError{Attempts: made, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Retryable statuses were already retried by the transport; anything
		// still non-200 here is a permanent rejection.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		c.recordRequest(ctx, RequestStatusRejected, duration)

		return nil, fmt.Errorf("embeddings: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.recordRequest(ctx, RequestStatusRejected, duration)

		return nil, fmt.Errorf("embeddings: decode response: %w", err)
	}

	if len(payload.Data) == 0 {
		c.recordRequest(ctx, RequestStatusRejected, duration)

		return nil, ErrNoData
	}

	if len(payload.Data) != len(batch) {
		c.recordRequest(ctx, RequestStatusRejected, duration)

		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(payload.Data), len(batch))
	}

	slices.SortFunc(payload.Data, func(a, b embeddingItem) int {
		return cmp.Compare(a.Index, b.Index)
	})

	result := make([]Embedding, len(payload.Data))
	for i, item := range payload.Data {
		result[i] = Embedding(item.Embedding)
	}

	c.recordRequest(ctx, RequestStatusSuccess, duration)

	return result, nil
}

func (c *RESTClient) recordRequest(ctx context.Context, status string, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordRequest(ctx, status, duration)
	}
}

// randomExponentialBackoff waits a random duration drawn from a window that
// widens exponentially with each retry: [min, min<<(attempt+1)], capped at
// max. attemptNum is 0 for the first retry.
func randomExponentialBackoff(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	ceil := min << uint(attemptNum+1)
	if ceil > max || ceil <= 0 {
		ceil = max
	}

	if ceil <= min {
		return min
	}

	return min + rand.N(ceil-min)
}

// Ensure RESTClient implements Client interface
var _ Client = (*RESTClient)(nil)
