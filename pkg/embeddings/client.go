// Package embeddings provides clients for generating dense vector embeddings
// from pre-tokenized text via OpenAI-compatible embedding APIs.
//
// Inputs are token ID sequences, not raw text. Tokenization (including any
// newline stripping the provider recommends) is expected to happen upstream,
// before the tokens reach this package.
package embeddings

import (
	"context"
	"time"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-ada-002"

// MaxBatchSize is the maximum number of token sequences accepted per call.
// Larger batches are rejected before any network call is made.
const MaxBatchSize = 2048

// TokenSequence holds the token IDs of one tokenized input.
type TokenSequence []int64

// Embedding is the dense vector generated for one input.
type Embedding []float64

// Client generates embeddings for pre-tokenized inputs.
//
// Implementations must be safe for concurrent use. Every call is independent
// and stateless; no state is retained between calls. Cancellation is driven
// by the context, which bounds the whole retry sequence of a call.
type Client interface {
	// GetEmbedding generates an embedding vector for a single token sequence.
	GetEmbedding(ctx context.Context, tokens TokenSequence) (Embedding, error)

	// GetEmbeddings generates embedding vectors for a batch of token
	// sequences in a single API call. The returned slice has one embedding
	// per input, in input order, regardless of the order the API returned
	// them in.
	GetEmbeddings(ctx context.Context, batch []TokenSequence) ([]Embedding, error)
}

// Metrics records client instrumentation. A nil Metrics disables recording.
type Metrics interface {
	// RecordRequest records the terminal outcome of one GetEmbeddings call
	// (covering all retry attempts) with its total duration.
	RecordRequest(ctx context.Context, status string, duration time.Duration)

	// RecordAttemptFailure records one failed attempt by reason.
	RecordAttemptFailure(ctx context.Context, reason string)

	// RecordBatchSize records the number of token sequences in one call.
	RecordBatchSize(ctx context.Context, size int64)
}

// validateBatch enforces the batch preconditions shared by all clients.
// It runs before any network call.
func validateBatch(batch []TokenSequence) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}

	if len(batch) > MaxBatchSize {
		return &BatchTooLargeError{Size: len(batch), Limit: MaxBatchSize}
	}

	for i, tokens := range batch {
		if len(tokens) == 0 {
			return &EmptySequenceError{Index: i}
		}
	}

	return nil
}
