package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	logx "webnotifier/pkg/logx"
)

const defaultPingTimeout = 5 * time.Second

// Postgres has no rowid; seq records insertion order.
var postgresDialect = dialect{
	name: "postgres",
	schema: `CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL,
	url TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	alerted INTEGER NOT NULL DEFAULT 0
)`,
	order: "seq",
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Debug("postgres opened")
	return newSQLStore(db, postgresDialect, log), nil
}
