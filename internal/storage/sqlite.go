package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	logx "webnotifier/pkg/logx"

	_ "modernc.org/sqlite"
)

const defaultSQLitePath = "webnotifier.db"

// Column names are part of the persistent layout shared with older databases.
var sqliteDialect = dialect{
	name: "sqlite",
	schema: `CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY UNIQUE,
	title TEXT NOT NULL,
	alerted INTEGER NOT NULL DEFAULT 0
)`,
	order: "rowid",
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The run owns the database exclusively; one connection keeps every
	// statement serialized and committed in order.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	// sql.Open is lazy; surface unreadable files and bad paths now.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	log.Debug("sqlite opened", logx.String("path", path))
	return newSQLStore(db, sqliteDialect, log), nil
}
