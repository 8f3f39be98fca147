// embed fetches embeddings for a batch of pre-tokenized inputs. It reads a
// JSON array of token ID arrays on stdin and writes a JSON array of vectors
// to stdout, one per input, in input order. Run it for one-off backfills or
// to smoke-test provider configuration.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/embedkit/embedkit/internal/config"
	"github.com/embedkit/embedkit/internal/observability"
	"github.com/embedkit/embedkit/pkg/embeddings"
)

const (
	exitSuccess = 0
	exitFailure = 1

	shutdownTimeout = 5 * time.Second
)

// meterScope names the instrumentation scope for embedkit metrics.
const meterScope = "github.com/embedkit/embedkit/internal/observability"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	slog.SetDefault(observability.NewLogger(cfg.LogLevel))

	ctx := context.Background()

	meterProvider, err := observability.NewMeterProvider(cfg)
	if err != nil {
		slog.Error("Failed to create meter provider", "error", err)

		return exitFailure
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := observability.ShutdownMeterProvider(shutdownCtx, meterProvider); err != nil {
			slog.Error("Failed to shut down meter provider", "error", err)
		}
	}()

	var metrics embeddings.Metrics
	if meterProvider != nil {
		metrics, err = observability.NewEmbeddingMetrics(meterProvider.Meter(meterScope))
		if err != nil {
			slog.Error("Failed to create embedding metrics", "error", err)

			return exitFailure
		}
	}

	client, err := newClient(cfg, metrics)
	if err != nil {
		slog.Error("Failed to create embedding client", "error", err)

		return exitFailure
	}

	var batch []embeddings.TokenSequence
	if err := json.NewDecoder(os.Stdin).Decode(&batch); err != nil {
		slog.Error("Failed to decode input batch", "error", err)

		return exitFailure
	}

	result, err := client.GetEmbeddings(ctx, batch)
	if err != nil {
		slog.Error("Failed to fetch embeddings", "batch_size", len(batch), "error", err)

		return exitFailure
	}

	encoder := json.NewEncoder(os.Stdout)
	if err := encoder.Encode(result); err != nil {
		slog.Error("Failed to encode result", "error", err)

		return exitFailure
	}

	slog.Info("Embeddings fetched", "batch_size", len(batch), "provider", cfg.Provider)

	return exitSuccess
}

// newClient builds the embedding client selected by EMBEDDING_PROVIDER,
// optionally wrapped in an LRU cache when EMBEDDING_CACHE_SIZE is set.
func newClient(cfg *config.Config, metrics embeddings.Metrics) (embeddings.Client, error) {
	client, err := newProviderClient(cfg, metrics)
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return embeddings.NewCachedClient(client, cfg.CacheSize)
	}

	return client, nil
}

func newProviderClient(cfg *config.Config, metrics embeddings.Metrics) (embeddings.Client, error) {
	switch cfg.Provider {
	case config.ProviderREST:
		return embeddings.NewRESTClient(embeddings.RESTClientOptions{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			MaxAttempts:  cfg.MaxAttempts,
			RetryWaitMin: cfg.RetryWaitMin,
			RetryWaitMax: cfg.RetryWaitMax,
			Metrics:      metrics,
		})
	default:
		opts := []embeddings.OpenAIOption{
			embeddings.WithMaxAttempts(cfg.MaxAttempts),
			embeddings.WithRetryWait(cfg.RetryWaitMin, cfg.RetryWaitMax),
			embeddings.WithMetrics(metrics),
		}
		if cfg.Model != "" {
			opts = append(opts, embeddings.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embeddings.WithBaseURL(cfg.BaseURL))
		}

		return embeddings.NewOpenAIClient(cfg.APIKey, opts...)
	}
}
