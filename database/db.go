package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(cfg config.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
	)
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS payment_intents (
		id VARCHAR(35) PRIMARY KEY,
		client_secret VARCHAR(128) NOT NULL,
		amount_minor_units BIGINT NOT NULL CHECK (amount_minor_units > 0),
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(32) NOT NULL,
		processor_ref VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		first_name VARCHAR(255) NOT NULL,
		last_name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		phone VARCHAR(64) NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		city VARCHAR(255) NOT NULL DEFAULT '',
		country VARCHAR(255) NOT NULL DEFAULT '',
		website VARCHAR(255) NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		user_type VARCHAR(16) NOT NULL,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email))`,
	`CREATE TABLE IF NOT EXISTS listings (
		id BIGINT PRIMARY KEY,
		seller_id BIGINT NOT NULL REFERENCES users(id),
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price DOUBLE PRECISION NOT NULL,
		category VARCHAR(64) NOT NULL,
		commission_rate DOUBLE PRECISION NOT NULL,
		status VARCHAR(16) NOT NULL,
		is_premium BOOLEAN NOT NULL DEFAULT FALSE,
		premium_expiry TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS listings_seller_id_idx ON listings (seller_id)`,
}

// Migrate creates the tables used by store.Postgres. Every statement is
// idempotent so it is safe to run on each deploy.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Info("Database schema is up to date", zap.Int("statements", len(schema)))
	return nil
}
