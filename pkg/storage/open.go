// Package storage opens the bun database the persisters write through.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

var sqlOpen = sql.Open

// Open connects to the configured database and wraps it in a bun.DB with
// the matching dialect. The connection is verified with a ping.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	sqldb, err := sqlOpen(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	db := bun.NewDB(sqldb, dialectFor(cfg))
	if cfg.Debug {
		db.AddQueryHook(NewQueryLogger(logger))
	}
	logger.InfoContext(ctx, "storage.open", "driver", cfg.Driver, "dialect", db.Dialect().Name().String())
	return db, nil
}

func dialectFor(cfg Config) schema.Dialect {
	if cfg.IsPostgres() {
		return pgdialect.New()
	}
	return sqlitedialect.New()
}
