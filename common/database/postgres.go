// Package database opens the shared PostgreSQL pool.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-ews/common/config"

	_ "github.com/lib/pq"
)

// pingTimeout bounds the connectivity check when the caller's ctx has no deadline.
const pingTimeout = 5 * time.Second

// NewPostgresDB opens a lib/pq pool sized from cfg and pings it. The pool is closed again if the ping fails.
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configurePool(db, cfg)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pingTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s@%s:%d: %w", cfg.Database, cfg.Host, cfg.Port, err)
	}
	return db, nil
}

func configurePool(db *sql.DB, cfg *config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		idle := cfg.MaxIdle
		if cfg.MaxConns > 0 && idle > cfg.MaxConns {
			idle = cfg.MaxConns
		}
		db.SetMaxIdleConns(idle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}
