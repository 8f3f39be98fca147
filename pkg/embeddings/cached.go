package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the LRU capacity used when none is configured.
const DefaultCacheSize = 4096

// CachedClient wraps a Client with an LRU cache keyed by token sequence.
// Identical sequences hit the cache instead of the API; concurrent single
// lookups for the same sequence are coalesced so only one upstream call runs.
// Without coalescing, a burst of N concurrent misses for the same sequence
// would trigger N upstream calls; with it, one runs and the rest share its result.
type CachedClient struct {
	inner Client
	lru   *lru.Cache[string, Embedding]
	group singleflight.Group
}

// NewCachedClient wraps inner with a cache holding up to maxEntries embeddings.
func NewCachedClient(inner Client, maxEntries int) (*CachedClient, error) {
	if inner == nil {
		return nil, fmt.Errorf("embeddings: inner client is required")
	}

	cache, err := lru.New[string, Embedding](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("embeddings: creating cache: %w", err)
	}

	return &CachedClient{inner: inner, lru: cache}, nil
}

// sequenceKey digests a token sequence into a fixed-size cache key.
func sequenceKey(tokens TokenSequence) string {
	h := sha256.New()

	var buf [8]byte
	for _, tok := range tokens {
		binary.BigEndian.PutUint64(buf[:], uint64(tok))
		h.Write(buf[:])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// GetEmbedding returns the cached embedding for tokens, calling the wrapped
// client on miss. Concurrent misses for the same sequence share one call.
func (c *CachedClient) GetEmbedding(ctx context.Context, tokens TokenSequence) (Embedding, error) {
	if len(tokens) == 0 {
		return nil, &EmptySequenceError{Index: 0}
	}

	key := sequenceKey(tokens)
	if cached, ok := c.lru.Get(key); ok {
		return cached, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// A coalesced waiter may arrive after the leader already stored the value.
		if cached, ok := c.lru.Get(key); ok {
			return cached, nil
		}

		embedding, err := c.inner.GetEmbedding(ctx, tokens)
		if err != nil {
			return nil, err
		}

		c.lru.Add(key, embedding)

		return embedding, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(Embedding), nil
}

// GetEmbeddings returns embeddings for batch in input order, fetching only the
// sequences missing from the cache in a single upstream call. Errors from the
// upstream call are returned as-is; no partial results are produced.
func (c *CachedClient) GetEmbeddings(ctx context.Context, batch []TokenSequence) ([]Embedding, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	result := make([]Embedding, len(batch))

	var missing []TokenSequence

	// missIndex maps a sequence key to every batch position that needs it, so
	// duplicate sequences in the batch cost one upstream slot.
	missIndex := make(map[string][]int)
	for i, tokens := range batch {
		key := sequenceKey(tokens)
		if cached, ok := c.lru.Get(key); ok {
			result[i] = cached

			continue
		}

		if _, seen := missIndex[key]; !seen {
			missing = append(missing, tokens)
		}

		missIndex[key] = append(missIndex[key], i)
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.inner.GetEmbeddings(ctx, missing)
	if err != nil {
		return nil, err
	}

	if len(fetched) != len(missing) {
		return nil, ErrCountMismatch
	}

	for j, tokens := range missing {
		key := sequenceKey(tokens)
		c.lru.Add(key, fetched[j])

		for _, i := range missIndex[key] {
			result[i] = fetched[j]
		}
	}

	return result, nil
}

var _ Client = (*CachedClient)(nil)
