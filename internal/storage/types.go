package storage

import (
	"context"
	"errors"
	"time"

	"webnotifier/internal/item"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrNotFound      = errors.New("item not found")
	ErrInvalidSource = errors.New("invalid source identifier")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default when empty)
//   - "postgres": PostgreSQL database addressed by DSN
//   - "file": JSON Lines journal + snapshot, one pair of files per source
type Config struct {
	Driver      string
	Path        string
	DSN         string        // postgres only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store opens per-source tables.
type Store interface {
	// EnsureSchema creates the table for sourceID if absent and returns it.
	EnsureSchema(ctx context.Context, sourceID string) (Table, error)
	Close() error
}

// Table is the item set of a single page source.
type Table interface {
	Source() string
	// InsertIfAbsent stores url with StatusUnsent. An existing url is left
	// untouched (title and status preserved) and inserted is false.
	InsertIfAbsent(ctx context.Context, url, title string) (inserted bool, err error)
	// SetStatus overwrites the status of url. It returns ErrNotFound when
	// url is not stored.
	SetStatus(ctx context.Context, url string, status item.Status) error
	// ItemsWithStatus returns items at status in a stable order for the call.
	ItemsWithStatus(ctx context.Context, status item.Status) ([]item.Item, error)
	// Count returns per-status totals.
	Count(ctx context.Context) (map[item.Status]int, error)
}
