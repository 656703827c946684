package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	cfg := FromViper(newViper())

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, time.Duration(0), cfg.LLM.Timeout)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg := FromViper(newViper())
	assert.Equal(t, StoreRedis, cfg.StoreDriver)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreDriver: StorePostgres,
		DatabaseURL: "postgres://localhost/stepwise",
		JWTSecret:   "0123456789abcdef0123456789abcdef",
		TokenTTL:    time.Hour,
		LLM:         LLMConfig{Provider: "gemini", GeminiAPIKey: "k"},
	}
	require.NoError(t, base.Validate())

	noDB := base
	noDB.DatabaseURL = ""
	assert.ErrorContains(t, noDB.Validate(), "DATABASE_URL")

	shortSecret := base
	shortSecret.JWTSecret = "short"
	assert.ErrorContains(t, shortSecret.Validate(), "32 bytes")

	noKey := base
	noKey.LLM.GeminiAPIKey = ""
	assert.ErrorContains(t, noKey.Validate(), "GEMINI_API_KEY")

	mem := Config{StoreDriver: StoreMemory, TokenTTL: time.Hour, LLM: LLMConfig{Provider: "mock"}}
	assert.NoError(t, mem.Validate())

	unknown := base
	unknown.StoreDriver = "mongo"
	assert.Error(t, unknown.Validate())
}
