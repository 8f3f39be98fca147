package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_GetEmbedding_Deterministic(t *testing.T) {
	client := NewMockClient()

	first, err := client.GetEmbedding(context.Background(), TokenSequence{1, 2, 3})
	require.NoError(t, err)

	second, err := client.GetEmbedding(context.Background(), TokenSequence{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, mockDimensions)
}

func TestMockClient_GetEmbedding_DiffersByInput(t *testing.T) {
	client := NewMockClient()

	a, err := client.GetEmbedding(context.Background(), TokenSequence{1, 2, 3})
	require.NoError(t, err)

	b, err := client.GetEmbedding(context.Background(), TokenSequence{3, 2, 1})
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "token order must change the embedding")
}

func TestMockClient_GetEmbeddings_PreservesOrder(t *testing.T) {
	client := NewMockClientWithDimensions(8)

	batch := []TokenSequence{{1}, {2}, {3}}

	result, err := client.GetEmbeddings(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, result, len(batch))

	for i, tokens := range batch {
		single, err := client.GetEmbedding(context.Background(), tokens)
		require.NoError(t, err)
		assert.Equal(t, single, result[i], "result[%d]", i)
	}
}

func TestMockClient_GetEmbeddings_ValuesInRange(t *testing.T) {
	client := NewMockClientWithDimensions(64)

	embedding, err := client.GetEmbedding(context.Background(), TokenSequence{99})
	require.NoError(t, err)

	for _, v := range embedding {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestMockClient_GetEmbeddings_ValidatesBatch(t *testing.T) {
	client := NewMockClient()

	_, err := client.GetEmbeddings(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	batch := make([]TokenSequence, MaxBatchSize+1)
	for i := range batch {
		batch[i] = TokenSequence{int64(i)}
	}

	_, err = client.GetEmbeddings(context.Background(), batch)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}
