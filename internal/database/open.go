package database

import (
	"context"
	"fmt"

	"github.com/BLINK-sys/Printer-WEB-APIServer/config"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// Open returns the store selected by cfg.Driver. PostgreSQL schemas are
// migrated before the store is returned. The closer releases the pool.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logging.WithComponent("database").Warn("Using in-memory store, data is lost on exit")
		return NewMemoryStore(), func() {}, nil

	case "postgres", "":
		db, err := NewDB(ctx, Config{
			DSN:      cfg.PostgresDSN(),
			MaxConns: int32(cfg.MaxConns),
			MinConns: int32(cfg.MinConns),
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewRepository(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
