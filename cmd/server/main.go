package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stepwise/internal/api"
	"stepwise/internal/config"
	"stepwise/internal/database"
	"stepwise/internal/logger"
	"stepwise/internal/store"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "stepwise",
	Short:         "Structured AI courses, one step at a time",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(narrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads and validates the configuration and builds the logger.
func bootstrap() (config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}

// openStore connects the configured backend. Postgres gets its schema
// applied first.
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("DB connected!")
		return store.NewPostgres(db), nil
	case config.StoreRedis:
		s, err := store.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		log.Info("redis connected", "addr", cfg.RedisAddr)
		return s, nil
	default:
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	}
}

func authConfig(cfg config.Config, log *logger.Logger) (api.AuthConfig, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// Only reachable with the memory store, see config.Validate.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return api.AuthConfig{}, err
		}
		log.Warn("JWT_SECRET not set, sessions end on restart")
	}
	return api.AuthConfig{Secret: secret, TTL: cfg.TokenTTL, SecureCookie: cfg.LogMode == "prod"}, nil
}
