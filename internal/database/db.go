package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.WithComponent("database").Info("Connected to PostgreSQL",
		"database", poolConfig.ConnConfig.Database,
		"max_conns", poolConfig.MaxConns)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.WithComponent("database").Info("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log := logging.WithComponent("database")
	log.Info("Running database migrations...")

	migrations := []string{
		// Accounts
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_login_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at)`,

		// Activation keys
		`CREATE TABLE IF NOT EXISTS activation_keys (
			id BIGSERIAL PRIMARY KEY,
			key_code VARCHAR(50) NOT NULL UNIQUE,
			duration_days INTEGER NOT NULL DEFAULT 365 CHECK (duration_days >= 1),
			status VARCHAR(20) NOT NULL DEFAULT 'available',
			user_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
			activated_email VARCHAR(255),
			activated_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ,
			sold_to_name VARCHAR(255),
			sold_to_email VARCHAR(255),
			sold_at TIMESTAMPTZ,
			sold_price NUMERIC(10, 2),
			notes TEXT,
			created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_activation_keys_redemption CHECK (
				(status = 'activated' AND user_id IS NOT NULL AND activated_email IS NOT NULL
					AND activated_at IS NOT NULL AND expires_at IS NOT NULL AND expires_at > activated_at)
				OR (status <> 'activated' AND user_id IS NULL AND activated_email IS NULL
					AND activated_at IS NULL AND expires_at IS NULL)
			)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activation_keys_user ON activation_keys(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_activation_keys_status ON activation_keys(status)`,
		`CREATE INDEX IF NOT EXISTS idx_activation_keys_created_at ON activation_keys(created_at)`,

		// Devices
		`CREATE TABLE IF NOT EXISTS devices (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			device_id VARCHAR(512) NOT NULL,
			platform VARCHAR(50) NOT NULL,
			trial_started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			trial_expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_device_platform UNIQUE (device_id, platform)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_trial_expires ON devices(trial_expires_at)`,

		// Product catalogs
		`CREATE TABLE IF NOT EXISTS product_databases (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_product_databases_user ON product_databases(user_id)`,

		`CREATE TABLE IF NOT EXISTS cloud_products (
			id BIGSERIAL PRIMARY KEY,
			database_id BIGINT NOT NULL REFERENCES product_databases(id) ON DELETE CASCADE,
			name_kz TEXT NOT NULL,
			name_full TEXT NOT NULL,
			barcode VARCHAR(50) NOT NULL,
			price NUMERIC(10, 2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cloud_products_db ON cloud_products(database_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cloud_products_barcode ON cloud_products(database_id, barcode)`,
		`CREATE INDEX IF NOT EXISTS idx_cloud_products_name ON cloud_products(database_id, name_kz)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("Database migrations completed successfully", "count", len(migrations))
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
