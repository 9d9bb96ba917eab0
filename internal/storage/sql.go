package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"webnotifier/internal/item"
	logx "webnotifier/pkg/logx"
)

// dialect holds what differs between the SQL drivers. Queries are written
// with '?' placeholders and rebound for the driver.
type dialect struct {
	name string
	// schema is a fmt template taking the quoted table name.
	schema string
	// order is the column giving insertion order.
	order string
}

type sqlStore struct {
	db      *sqlx.DB
	dialect dialect
	log     logx.Logger

	mu     sync.Mutex
	closed bool
}

type sqlTable struct {
	st *sqlStore
	id string

	insertQ string
	updateQ string
	selectQ string
	countQ  string
}

type itemRow struct {
	URL   string `db:"url"`
	Title string `db:"title"`
}

type countRow struct {
	Alerted int `db:"alerted"`
	N       int `db:"n"`
}

func newSQLStore(db *sqlx.DB, d dialect, log logx.Logger) *sqlStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &sqlStore{db: db, dialect: d, log: log}
}

func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *sqlStore) conn() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.db, nil
}

func (s *sqlStore) EnsureSchema(ctx context.Context, sourceID string) (Table, error) {
	if err := ValidateSourceID(sourceID); err != nil {
		return nil, err
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	ident := quoteIdent(sourceID)
	if _, err := db.ExecContext(ctx, fmt.Sprintf(s.dialect.schema, ident)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", sourceID, err)
	}
	s.log.Debug("schema ready", logx.String("driver", s.dialect.name), logx.String("source", sourceID))
	return &sqlTable{
		st:      s,
		id:      sourceID,
		insertQ: db.Rebind(`INSERT INTO ` + ident + ` (url, title) VALUES (?, ?) ON CONFLICT (url) DO NOTHING`),
		updateQ: db.Rebind(`UPDATE ` + ident + ` SET alerted = ? WHERE url = ?`),
		selectQ: db.Rebind(`SELECT url, title FROM ` + ident + ` WHERE alerted = ? ORDER BY ` + s.dialect.order),
		countQ:  `SELECT alerted, COUNT(*) AS n FROM ` + ident + ` GROUP BY alerted`,
	}, nil
}

func (t *sqlTable) Source() string { return t.id }

func (t *sqlTable) InsertIfAbsent(ctx context.Context, url, title string) (bool, error) {
	db, err := t.st.conn()
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, t.insertQ, url, title)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *sqlTable) SetStatus(ctx context.Context, url string, status item.Status) error {
	db, err := t.st.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, t.updateQ, int(status), url)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return nil
}

func (t *sqlTable) ItemsWithStatus(ctx context.Context, status item.Status) ([]item.Item, error) {
	db, err := t.st.conn()
	if err != nil {
		return nil, err
	}
	var rows []itemRow
	if err := db.SelectContext(ctx, &rows, t.selectQ, int(status)); err != nil {
		return nil, err
	}
	out := make([]item.Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, item.Item{URL: r.URL, Title: r.Title, Status: status})
	}
	return out, nil
}

func (t *sqlTable) Count(ctx context.Context) (map[item.Status]int, error) {
	db, err := t.st.conn()
	if err != nil {
		return nil, err
	}
	var rows []countRow
	if err := db.SelectContext(ctx, &rows, t.countQ); err != nil {
		return nil, err
	}
	out := make(map[item.Status]int, len(rows))
	for _, r := range rows {
		out[item.Status(r.Alerted)] = r.N
	}
	return out, nil
}
