package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum environment for Load to succeed.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-api-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "test-api-key", cfg.APIKey)
	assert.Equal(t, 6, cfg.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.RetryWaitMin)
	assert.Equal(t, 20*time.Second, cfg.RetryWaitMax)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_RequiresAPIKeyForOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RESTProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EMBEDDING_PROVIDER", "rest")

	t.Run("requires base URL", func(t *testing.T) {
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("accepts base URL without API key", func(t *testing.T) {
		t.Setenv("OPENAI_BASE_URL", "http://localhost:8080")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ProviderREST, cfg.Provider)
		assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
		assert.Empty(t, cfg.APIKey)
	})
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "azure")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RetryKnobs(t *testing.T) {
	setRequiredEnv(t)

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("EMBEDDING_MAX_ATTEMPTS", "3")
		t.Setenv("EMBEDDING_RETRY_WAIT_MIN_SECONDS", "2")
		t.Setenv("EMBEDDING_RETRY_WAIT_MAX_SECONDS", "8")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.RetryWaitMin)
		assert.Equal(t, 8*time.Second, cfg.RetryWaitMax)
	})

	t.Run("rejects non-positive attempts", func(t *testing.T) {
		t.Setenv("EMBEDDING_MAX_ATTEMPTS", "0")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects max wait below min wait", func(t *testing.T) {
		t.Setenv("EMBEDDING_RETRY_WAIT_MIN_SECONDS", "10")
		t.Setenv("EMBEDDING_RETRY_WAIT_MAX_SECONDS", "5")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed integers fall back to defaults", func(t *testing.T) {
		t.Setenv("EMBEDDING_MAX_ATTEMPTS", "many")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.MaxAttempts)
	})
}

func TestLoad_CacheSize(t *testing.T) {
	setRequiredEnv(t)

	t.Run("disabled by default", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.CacheSize)
	})

	t.Run("custom size", func(t *testing.T) {
		t.Setenv("EMBEDDING_CACHE_SIZE", "256")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 256, cfg.CacheSize)
	})

	t.Run("rejects negative size", func(t *testing.T) {
		t.Setenv("EMBEDDING_CACHE_SIZE", "-1")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoad_Model(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-small")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
}
