package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const connectAttempts = 30

// Connect opens a PostgreSQL pool and waits until it answers a ping.
func Connect(ctx context.Context, databaseURL string, logger observability.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("PostgreSQL not ready, retrying", zap.Error(err), zap.Duration("retry_in", next))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), connectAttempts-1), ctx)
	if err := backoff.RetryNotify(ping, b, notify); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not connect to database after %d attempts: %w", connectAttempts, err)
	}

	logger.Info("Connected to PostgreSQL")
	return db, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling back on error.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
