// Package config loads runtime settings from the environment and an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config holds every setting the server and tools read at startup.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	StoreDriver string
	RedisAddr   string

	JWTSecret string
	TokenTTL  time.Duration

	LogMode string

	LLM LLMConfig

	TTSEnabled bool

	OTelEnabled bool
	OTelStdout  bool
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	// Timeout bounds a single model call. Zero means no timeout.
	Timeout time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromViper(newViper()), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("TOKEN_TTL", 72*time.Hour)
	v.SetDefault("LOG_MODE", "dev")
	v.SetDefault("LLM_PROVIDER", "gemini")
	v.SetDefault("GEMINI_MODEL", "gemini-flash")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("ANTHROPIC_MODEL", "claude-haiku")
	v.SetDefault("LLM_TIMEOUT", time.Duration(0))
	v.SetDefault("TTS_ENABLED", false)
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_STDOUT", false)
	v.AutomaticEnv()
	return v
}

// FromViper maps viper keys onto a Config.
func FromViper(v *viper.Viper) Config {
	return Config{
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		RedisAddr:   v.GetString("REDIS_ADDR"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		TokenTTL:    v.GetDuration("TOKEN_TTL"),
		LogMode:     v.GetString("LOG_MODE"),
		LLM: LLMConfig{
			Provider:        strings.ToLower(v.GetString("LLM_PROVIDER")),
			GeminiAPIKey:    v.GetString("GEMINI_API_KEY"),
			GeminiModel:     v.GetString("GEMINI_MODEL"),
			OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
			OpenAIModel:     v.GetString("OPENAI_MODEL"),
			OpenAIBaseURL:   v.GetString("OPENAI_BASE_URL"),
			AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
			AnthropicModel:  v.GetString("ANTHROPIC_MODEL"),
			Timeout:         v.GetDuration("LLM_TIMEOUT"),
		},
		TTSEnabled:  v.GetBool("TTS_ENABLED"),
		OTelEnabled: v.GetBool("OTEL_ENABLED"),
		OTelStdout:  v.GetBool("OTEL_STDOUT"),
	}
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is not set")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR environment variable is not set")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" && c.StoreDriver != StoreMemory {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	if len(c.JWTSecret) > 0 && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	return c.LLM.Validate()
}

// Validate checks that the selected provider has its API key.
func (c LLMConfig) Validate() error {
	switch c.Provider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai provider")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider)
	}
	if c.Timeout < 0 {
		return errors.New("LLM_TIMEOUT must not be negative")
	}
	return nil
}
