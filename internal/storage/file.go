package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"webnotifier/internal/item"
	logx "webnotifier/pkg/logx"
)

// compactEvery bounds journal growth between snapshots.
const compactEvery = 1000

// fileStore is a dependency-free persistence backend.
//
// Files, per source:
//   - <prefix>.<source>.snapshot.json (full item list, rewritten on compaction)
//   - <prefix>.<source>.journal.jsonl (append-only mutations since the snapshot)
//
// Every journal append is fsync'd before the call returns.
type fileStore struct {
	log    logx.Logger
	prefix string

	mu     sync.Mutex
	closed bool
	tables map[string]*fileTable
}

type fileTable struct {
	st *fileStore
	id string

	snapshotPath string
	journal      *os.File
	writes       int

	// guarded by st.mu
	order []string
	items map[string]*item.Item
}

type journalRecord struct {
	Op     string `json:"op"` // "insert" | "status"
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Status int    `json:"status,omitempty"`
}

type snapshotItem struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Status int    `json:"alerted"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{
		log:    log,
		prefix: filepath.Join(dir, base),
		tables: map[string]*fileTable{},
	}, nil
}

func (s *fileStore) EnsureSchema(ctx context.Context, sourceID string) (Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateSourceID(sourceID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if t, ok := s.tables[sourceID]; ok {
		return t, nil
	}

	t := &fileTable{
		st:           s,
		id:           sourceID,
		snapshotPath: s.prefix + "." + sourceID + ".snapshot.json",
		items:        map[string]*item.Item{},
	}
	journalPath := s.prefix + "." + sourceID + ".journal.jsonl"

	if err := t.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot %s: %w", sourceID, err)
	}
	if err := t.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal %s: %w", sourceID, err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	t.journal = jf
	s.tables[sourceID] = t
	s.log.Debug("file table opened", logx.String("source", sourceID), logx.Int("items", len(t.order)))
	return t, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, t := range s.tables {
		if err := t.compactLocked(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := t.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		t.journal = nil
	}
	return firstErr
}

func (t *fileTable) Source() string { return t.id }

func (t *fileTable) InsertIfAbsent(ctx context.Context, url, title string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if t.st.closed {
		return false, ErrClosed
	}
	if _, ok := t.items[url]; ok {
		return false, nil
	}
	if err := t.appendLocked(journalRecord{Op: "insert", URL: url, Title: title}); err != nil {
		return false, err
	}
	t.applyInsert(url, title)
	return true, nil
}

func (t *fileTable) SetStatus(ctx context.Context, url string, status item.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if t.st.closed {
		return ErrClosed
	}
	it, ok := t.items[url]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if err := t.appendLocked(journalRecord{Op: "status", URL: url, Status: int(status)}); err != nil {
		return err
	}
	it.Status = status
	return nil
}

func (t *fileTable) ItemsWithStatus(ctx context.Context, status item.Status) ([]item.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if t.st.closed {
		return nil, ErrClosed
	}
	var out []item.Item
	for _, url := range t.order {
		if it := t.items[url]; it.Status == status {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (t *fileTable) Count(ctx context.Context) (map[item.Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if t.st.closed {
		return nil, ErrClosed
	}
	out := map[item.Status]int{}
	for _, it := range t.items {
		out[it.Status]++
	}
	return out, nil
}

func (t *fileTable) applyInsert(url, title string) {
	if _, ok := t.items[url]; ok {
		return
	}
	t.items[url] = &item.Item{URL: url, Title: title, Status: item.StatusUnsent}
	t.order = append(t.order, url)
}

func (t *fileTable) appendLocked(r journalRecord) error {
	if t.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(t.journal).Encode(r); err != nil {
		return err
	}
	if err := t.journal.Sync(); err != nil {
		return err
	}
	t.writes++
	if t.writes%compactEvery == 0 {
		// Best-effort compact; the journal is still authoritative on failure.
		if err := t.compactLocked(); err != nil {
			t.st.log.Debug("journal compact failed", logx.String("source", t.id), logx.Err(err))
		}
	}
	return nil
}

func (t *fileTable) compactLocked() error {
	snap := make([]snapshotItem, 0, len(t.order))
	for _, url := range t.order {
		it := t.items[url]
		snap = append(snap, snapshotItem{URL: it.URL, Title: it.Title, Status: int(it.Status)})
	}

	tmp := t.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, t.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := t.journal.Truncate(0); err != nil {
		return err
	}
	_, err = t.journal.Seek(0, 2)
	return err
}

func (t *fileTable) loadSnapshot() error {
	f, err := os.Open(t.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap []snapshotItem
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, si := range snap {
		t.applyInsert(si.URL, si.Title)
		t.items[si.URL].Status = item.Status(si.Status)
	}
	return nil
}

func (t *fileTable) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		var r journalRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			// A torn final line from a crash is skipped.
			continue
		}
		if r.URL == "" {
			continue
		}
		switch r.Op {
		case "insert":
			t.applyInsert(r.URL, r.Title)
		case "status":
			if it, ok := t.items[r.URL]; ok {
				it.Status = item.Status(r.Status)
			}
		}
	}
	return s.Err()
}
