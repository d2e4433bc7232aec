package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"

	"go.uber.org/zap"
)

// RunMigrations creates the tables the service owns.
func RunMigrations(ctx context.Context, db *sql.DB, service string, logger observability.Logger) error {
	for i, m := range serviceMigrations(service) {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d for %s: %w", i, service, err)
		}
	}
	logger.Info("Migrations completed", zap.String("service", service))
	return nil
}

const deadLetters = `CREATE TABLE IF NOT EXISTS dead_letters (
	id BIGSERIAL PRIMARY KEY,
	stage VARCHAR(16) NOT NULL,
	topic VARCHAR(255) NOT NULL,
	message_key VARCHAR(255) NOT NULL,
	payload BYTEA NOT NULL,
	reason TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	failed_at TIMESTAMPTZ NOT NULL
)`

func serviceMigrations(service string) []string {
	switch service {
	case config.CatalogService:
		return []string{
			deadLetters,
			`CREATE TABLE IF NOT EXISTS catalog_products (
				product_id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category VARCHAR(128) NOT NULL DEFAULT '',
				brand VARCHAR(128) NOT NULL DEFAULT '',
				price_cents BIGINT NOT NULL,
				image_urls TEXT[] NOT NULL DEFAULT '{}',
				available BOOLEAN NOT NULL DEFAULT TRUE,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		}
	case config.InventoryService:
		return []string{
			deadLetters,
			`CREATE TABLE IF NOT EXISTS stock_records (
				product_id VARCHAR(64) PRIMARY KEY,
				quantity INTEGER NOT NULL DEFAULT 0,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS applied_order_events (
				order_id VARCHAR(64) NOT NULL,
				event_type VARCHAR(64) NOT NULL,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (order_id, event_type)
			)`,
		}
	case config.OrderService:
		return []string{
			deadLetters,
			`CREATE TABLE IF NOT EXISTS orders (
				order_id VARCHAR(64) PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				email VARCHAR(255) NOT NULL DEFAULT '',
				shipping_name VARCHAR(255) NOT NULL DEFAULT '',
				shipping_address TEXT NOT NULL DEFAULT '',
				phone VARCHAR(64) NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL,
				total_cents BIGINT NOT NULL,
				anonymized_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id)`,
			`CREATE TABLE IF NOT EXISTS order_items (
				order_id VARCHAR(64) NOT NULL REFERENCES orders (order_id),
				line_no INTEGER NOT NULL,
				product_id VARCHAR(64) NOT NULL,
				quantity INTEGER NOT NULL,
				price_cents BIGINT NOT NULL,
				PRIMARY KEY (order_id, line_no)
			)`,
		}
	case config.UserService:
		return []string{
			deadLetters,
			`CREATE TABLE IF NOT EXISTS user_profiles (
				user_id VARCHAR(64) PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL DEFAULT '',
				deletion_pending BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		}
	case config.AuthService:
		return []string{
			deadLetters,
			`CREATE TABLE IF NOT EXISTS credentials (
				user_id VARCHAR(64) PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS refresh_tokens (
				token VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL
			)`,
		}
	default:
		return []string{deadLetters}
	}
}
