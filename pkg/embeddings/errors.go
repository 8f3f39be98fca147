package embeddings

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey is returned when a client is constructed without an API key.
	ErrMissingAPIKey = errors.New("embeddings: API key is required")
	// ErrEmptyBatch is returned when GetEmbeddings is called with no inputs.
	ErrEmptyBatch = errors.New("embeddings: batch is empty")
	// ErrNoData is returned when the API response contains no embedding data.
	ErrNoData = errors.New("embeddings: no embedding data in response")
	// ErrCountMismatch is returned when the API returns a different number of
	// embeddings than inputs submitted.
	ErrCountMismatch = errors.New("embeddings: embedding count does not match input count")
)

// ErrBatchTooLarge is a sentinel for errors.Is comparisons against
// *BatchTooLargeError values.
var ErrBatchTooLarge = &BatchTooLargeError{}

// BatchTooLargeError is returned when a batch exceeds MaxBatchSize.
// No network call is attempted; the caller must split the batch and resubmit.
type BatchTooLargeError struct {
	Size  int
	Limit int
}

// Error implements the error interface
func (e *BatchTooLargeError) Error() string {
	if e.Size > 0 {
		return fmt.Sprintf("embeddings: batch size %d exceeds limit %d", e.Size, e.Limit)
	}
	return "embeddings: batch too large"
}

// Is implements the error interface for error comparison
func (e *BatchTooLargeError) Is(target error) bool {
	_, ok := target.(*BatchTooLargeError)
	return ok
}

// ErrEmptySequence is a sentinel for errors.Is comparisons against
// *EmptySequenceError values.
var ErrEmptySequence = &EmptySequenceError{}

// EmptySequenceError is returned when a batch contains a token sequence with
// no tokens. The Index field identifies the offending input.
type EmptySequenceError struct {
	Index int
}

// Error implements the error interface
func (e *EmptySequenceError) Error() string {
	return fmt.Sprintf("embeddings: token sequence at index %d is empty", e.Index)
}

// Is implements the error interface for error comparison
func (e *EmptySequenceError) Is(target error) bool {
	_, ok := target.(*EmptySequenceError)
	return ok
}

// ErrTransient is a sentinel for errors.Is comparisons against
// *TransientError values.
var ErrTransient = &TransientError{}

// TransientError is returned when every retry attempt against the embedding
// API failed with a transient condition (network failure, rate limiting,
// server error). It wraps the error from the final attempt.
type TransientError struct {
	// Attempts is the number of attempts made before giving up.
	Attempts int
	// Err is the failure from the final attempt.
	Err error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embeddings: giving up after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return "embeddings: transient service error"
}

// Unwrap returns the final attempt error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison
func (e *TransientError) Is(target error) bool {
	_, ok := target.(*TransientError)
	return ok
}
