package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8787", c.Addr)
		assert.Equal(t, "https://openrouter.ai/api/v1", c.OpenRouterBaseURL)
		assert.Equal(t, time.Hour, c.ModelCacheTTL)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PARLEY_ADDR", ":9999")
		t.Setenv("PARLEY_OPENROUTER_API_KEY", "sk-test")
		t.Setenv("PARLEY_MODEL_CACHE_TTL", "5m")

		c, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":9999", c.Addr)
		assert.Equal(t, "sk-test", c.OpenRouterAPIKey)
		assert.Equal(t, 5*time.Minute, c.ModelCacheTTL)
	})
}
