// Package config provides embedkit configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted in EMBEDDING_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderREST   = "rest"
)

// Config holds all embedkit configuration.
type Config struct {
	// Provider selects the embedding client: "openai" (default) or "rest".
	Provider string

	// APIKey authenticates against the provider. Required for openai;
	// optional for rest (self-hosted servers often need none).
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// BaseURL overrides the provider endpoint. Required for rest.
	BaseURL string

	// MaxAttempts is the total attempt budget per call (first try + retries).
	MaxAttempts int

	// RetryWaitMin / RetryWaitMax bound the randomized backoff wait.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// CacheSize is the LRU capacity of the embedding cache. Zero disables caching.
	CacheSize int

	LogLevel string

	// OtelMetricsExporter enables OTLP metrics push when set to "otlp".
	OtelMetricsExporter string
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// Load reads configuration from environment variables and returns a Config struct.
// It automatically loads .env file if it exists.
// Returns default values for any missing environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists. Skip logging when absent (e.g. env from secrets/parameter store).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	provider := getEnv("EMBEDDING_PROVIDER", ProviderOpenAI)
	if provider != ProviderOpenAI && provider != ProviderREST {
		return nil, fmt.Errorf("EMBEDDING_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderREST, provider)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")

	if provider == ProviderOpenAI && apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable is required but not set")
	}

	if provider == ProviderREST && baseURL == "" {
		return nil, errors.New("OPENAI_BASE_URL is required when EMBEDDING_PROVIDER is rest")
	}

	maxAttempts := getEnvAsInt("EMBEDDING_MAX_ATTEMPTS", 6)
	if maxAttempts <= 0 {
		return nil, errors.New("EMBEDDING_MAX_ATTEMPTS must be a positive integer")
	}

	retryWaitMin := getEnvAsInt("EMBEDDING_RETRY_WAIT_MIN_SECONDS", 1)
	if retryWaitMin <= 0 {
		return nil, errors.New("EMBEDDING_RETRY_WAIT_MIN_SECONDS must be a positive integer")
	}

	retryWaitMax := getEnvAsInt("EMBEDDING_RETRY_WAIT_MAX_SECONDS", 20)
	if retryWaitMax < retryWaitMin {
		return nil, errors.New("EMBEDDING_RETRY_WAIT_MAX_SECONDS must not be smaller than EMBEDDING_RETRY_WAIT_MIN_SECONDS")
	}

	cacheSize := getEnvAsInt("EMBEDDING_CACHE_SIZE", 0)
	if cacheSize < 0 {
		return nil, errors.New("EMBEDDING_CACHE_SIZE must not be negative")
	}

	cfg := &Config{
		Provider:            provider,
		APIKey:              apiKey,
		Model:               getEnv("EMBEDDING_MODEL", ""),
		BaseURL:             baseURL,
		MaxAttempts:         maxAttempts,
		RetryWaitMin:        time.Duration(retryWaitMin) * time.Second,
		RetryWaitMax:        time.Duration(retryWaitMax) * time.Second,
		CacheSize:           cacheSize,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		OtelMetricsExporter: getEnv("OTEL_METRICS_EXPORTER", ""),
	}

	return cfg, nil
}
