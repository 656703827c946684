package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"stepwise/internal/logger"
)

// connectMaxElapsed bounds how long Connect waits for the database to come up.
const connectMaxElapsed = 30 * time.Second

// Connect opens a pool for dbURL and pings it with exponential backoff until
// the database answers or connectMaxElapsed passes.
func Connect(ctx context.Context, dbURL string, log *logger.Logger) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	// sql.Open only prepares the pool.
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection (driver error): %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectMaxElapsed
	attempt := 0
	ping := func() error {
		attempt++
		return db.PingContext(ctx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("database not ready", "attempt", attempt, "retry_in", wait.String(), "error", err)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(bo, ctx), notify); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
	}
	return db, nil
}
