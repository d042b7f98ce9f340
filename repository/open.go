package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"

	identity "github.com/goliatone/go-identity"
)

// Open connects to the configured database. Supported drivers are "sqlite"
// and "postgres".
func Open(cfg identity.DatabaseConfig, logger identity.Logger) (*bun.DB, error) {
	var db *bun.DB

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, oops.Code(identity.CodeStorage).With("driver", cfg.Driver).Wrapf(err, "open sqlite")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case "postgres", "postgresql", "pg":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unsupported database driver")
	}

	if cfg.Debug && logger != nil {
		db.AddQueryHook(&QueryLogger{Logger: logger})
	}

	return db, nil
}

// QueryLogger logs every query at debug level.
type QueryLogger struct {
	Logger identity.Logger
}

// BeforeQuery implements bun.QueryHook.
func (h *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements bun.QueryHook.
func (h *QueryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	args := []any{
		"operation", event.Operation(),
		"duration", time.Since(event.StartTime),
		"query", event.Query,
	}
	if event.Err != nil && event.Err != sql.ErrNoRows {
		h.Logger.Warn("query failed", append(args, "error", event.Err)...)
		return
	}
	h.Logger.Debug("query", args...)
}
