package embeddings_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/embedkit/embedkit/pkg/embeddings"
)

func ExampleOpenAIClient_GetEmbeddings() {
	// Create a mock HTTP server that simulates the embeddings API.
	// Items are returned out of order; the client reorders them by index.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]any{
			"object": "list",
			"model":  embeddings.DefaultModel,
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float64{0.3, 0.4}},
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2}},
			},
			"usage": map[string]int{"prompt_tokens": 0, "total_tokens": 0},
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			slog.Error("Failed to encode mock response", "error", err)
		}
	}))
	defer server.Close()

	// Create a client pointing to the mock server.
	client, err := embeddings.NewOpenAIClient("test-api-key",
		embeddings.WithBaseURL(server.URL),
	)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	// The inputs are already tokenized; each sequence is one text.
	batch := []embeddings.TokenSequence{
		{464, 2068, 7586},
		{1169, 16931, 3290},
	}

	result, err := client.GetEmbeddings(context.Background(), batch)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	for i, embedding := range result {
		fmt.Printf("input %d: %v\n", i, embedding)
	}

	// Output:
	// input 0: [0.1 0.2]
	// input 1: [0.3 0.4]
}
