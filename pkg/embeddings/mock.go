package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// mockDimensions matches text-embedding-ada-002's output size.
const mockDimensions = 1536

// MockClient implements the Client interface for testing purposes.
// It generates deterministic embeddings from a hash of the input token IDs
// and never makes network calls.
type MockClient struct {
	dimensions int
}

// NewMockClient creates a new mock embedding client with default dimensions.
func NewMockClient() *MockClient {
	return &MockClient{dimensions: mockDimensions}
}

// NewMockClientWithDimensions creates a mock client with custom dimensions.
func NewMockClientWithDimensions(dimensions int) *MockClient {
	return &MockClient{dimensions: dimensions}
}

// GetEmbedding generates a deterministic embedding for one token sequence.
func (c *MockClient) GetEmbedding(ctx context.Context, tokens TokenSequence) (Embedding, error) {
	result, err := c.GetEmbeddings(ctx, []TokenSequence{tokens})
	if err != nil {
		return nil, err
	}

	return result[0], nil
}

// GetEmbeddings generates deterministic embeddings for a batch, in input order.
func (c *MockClient) GetEmbeddings(ctx context.Context, batch []TokenSequence) ([]Embedding, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	result := make([]Embedding, len(batch))
	for i, tokens := range batch {
		result[i] = c.deterministicEmbedding(tokens)
	}

	return result, nil
}

// deterministicEmbedding derives an embedding vector from the token ID hash.
func (c *MockClient) deterministicEmbedding(tokens TokenSequence) Embedding {
	hash := sha256.New()
	buf := make([]byte, 8)
	for _, token := range tokens {
		binary.BigEndian.PutUint64(buf, uint64(token))
		hash.Write(buf)
	}
	sum := hash.Sum(nil)

	embedding := make(Embedding, c.dimensions)
	for i := range embedding {
		// Use hash bytes cyclically, mapped into [-1, 1].
		embedding[i] = (float64(sum[i%len(sum)]) / 127.5) - 1.0
	}

	return embedding
}

// Ensure MockClient implements Client interface
var _ Client = (*MockClient)(nil)
