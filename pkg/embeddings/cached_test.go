package embeddings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient records calls and the batches it was asked to fetch.
type countingClient struct {
	mu           sync.Mutex
	singleCalls  atomic.Int64
	batchCalls   atomic.Int64
	lastBatch    []TokenSequence
	err          error
	embeddingFor func(tokens TokenSequence) Embedding
}

func newCountingClient() *countingClient {
	return &countingClient{
		embeddingFor: func(tokens TokenSequence) Embedding {
			return Embedding{float64(tokens[0])}
		},
	}
}

func (c *countingClient) GetEmbedding(_ context.Context, tokens TokenSequence) (Embedding, error) {
	c.singleCalls.Add(1)

	if c.err != nil {
		return nil, c.err
	}

	return c.embeddingFor(tokens), nil
}

func (c *countingClient) GetEmbeddings(_ context.Context, batch []TokenSequence) ([]Embedding, error) {
	c.batchCalls.Add(1)

	c.mu.Lock()
	c.lastBatch = append([]TokenSequence(nil), batch...)
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	result := make([]Embedding, len(batch))
	for i, tokens := range batch {
		result[i] = c.embeddingFor(tokens)
	}

	return result, nil
}

func TestCachedClient_GetEmbedding_MissThenHit(t *testing.T) {
	inner := newCountingClient()

	client, err := NewCachedClient(inner, 10)
	require.NoError(t, err)

	first, err := client.GetEmbedding(context.Background(), TokenSequence{7})
	require.NoError(t, err)
	assert.Equal(t, Embedding{7}, first)
	assert.Equal(t, int64(1), inner.singleCalls.Load())

	second, err := client.GetEmbedding(context.Background(), TokenSequence{7})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.singleCalls.Load(), "cache hit must not call upstream")
}

func TestCachedClient_GetEmbeddings_FetchesOnlyMisses(t *testing.T) {
	inner := newCountingClient()

	client, err := NewCachedClient(inner, 10)
	require.NoError(t, err)

	_, err = client.GetEmbedding(context.Background(), TokenSequence{1})
	require.NoError(t, err)

	result, err := client.GetEmbeddings(context.Background(), []TokenSequence{{1}, {2}, {3}})
	require.NoError(t, err)

	assert.Equal(t, []Embedding{{1}, {2}, {3}}, result)
	assert.Equal(t, int64(1), inner.batchCalls.Load())

	inner.mu.Lock()
	defer inner.mu.Unlock()
	assert.Equal(t, []TokenSequence{{2}, {3}}, inner.lastBatch, "cached sequence must not be refetched")
}

func TestCachedClient_GetEmbeddings_DeduplicatesWithinBatch(t *testing.T) {
	inner := newCountingClient()

	client, err := NewCachedClient(inner, 10)
	require.NoError(t, err)

	result, err := client.GetEmbeddings(context.Background(), []TokenSequence{{5}, {5}, {6}})
	require.NoError(t, err)

	assert.Equal(t, []Embedding{{5}, {5}, {6}}, result)

	inner.mu.Lock()
	defer inner.mu.Unlock()
	assert.Equal(t, []TokenSequence{{5}, {6}}, inner.lastBatch, "duplicate sequences share one upstream slot")
}

func TestCachedClient_GetEmbeddings_FullCacheHitSkipsUpstream(t *testing.T) {
	inner := newCountingClient()

	client, err := NewCachedClient(inner, 10)
	require.NoError(t, err)

	batch := []TokenSequence{{1}, {2}}

	_, err = client.GetEmbeddings(context.Background(), batch)
	require.NoError(t, err)

	result, err := client.GetEmbeddings(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, []Embedding{{1}, {2}}, result)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedClient_GetEmbeddings_UpstreamErrorNotCached(t *testing.T) {
	inner := newCountingClient()
	inner.err = errors.New("boom")

	client, err := NewCachedClient(inner, 10)
	require.NoError(t, err)

	_, err = client.GetEmbeddings(context.Background(), []TokenSequence{{1}})
	require.Error(t, err)

	inner.err = nil

	result, err := client.GetEmbeddings(context.Background(), []TokenSequence{{1}})
	require.NoError(t, err)
	assert.Equal(t, []Embedding{{1}}, result)
	assert.Equal(t, int64(2), inner.batchCalls.Load(), "failed fetch must not be cached")
}

func TestCachedClient_GetEmbeddings_ValidatesBatch(t *testing.T) {
	inner := newCountingClient()

	client, err := NewCachedClient(inner, 10)
	require.NoError(t, err)

	_, err = client.GetEmbeddings(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = client.GetEmbeddings(context.Background(), []TokenSequence{{}})
	assert.ErrorIs(t, err, ErrEmptySequence)

	assert.Equal(t, int64(0), inner.batchCalls.Load())
}

func TestCachedClient_GetEmbedding_CoalescesConcurrentMisses(t *testing.T) {
	inner := newCountingClient()

	client, err := NewCachedClient(inner, 10)
	require.NoError(t, err)

	var gate sync.WaitGroup
	gate.Add(1)

	var arrived atomic.Int32

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if arrived.Add(1) == 10 {
				gate.Done()
			}

			gate.Wait()

			embedding, err := client.GetEmbedding(context.Background(), TokenSequence{42})
			if err != nil {
				t.Error(err)

				return
			}

			assert.Equal(t, Embedding{42}, embedding)
		}()
	}

	wg.Wait()

	// All ten callers release together; singleflight coalesces the ones that
	// overlap, and the rest hit the freshly filled cache. Scheduling decides
	// how many overlap, so only the upper bound is exact.
	calls := inner.singleCalls.Load()
	assert.GreaterOrEqual(t, calls, int64(1))
	assert.LessOrEqual(t, calls, int64(10))
}

func TestCachedClient_LRUEviction(t *testing.T) {
	inner := newCountingClient()

	client, err := NewCachedClient(inner, 1)
	require.NoError(t, err)

	_, err = client.GetEmbedding(context.Background(), TokenSequence{1})
	require.NoError(t, err)

	_, err = client.GetEmbedding(context.Background(), TokenSequence{2})
	require.NoError(t, err)

	// {1} was evicted by {2} in a single-slot cache.
	_, err = client.GetEmbedding(context.Background(), TokenSequence{1})
	require.NoError(t, err)

	assert.Equal(t, int64(3), inner.singleCalls.Load())
}

func TestNewCachedClient_RequiresInner(t *testing.T) {
	_, err := NewCachedClient(nil, 10)
	assert.Error(t, err)
}
