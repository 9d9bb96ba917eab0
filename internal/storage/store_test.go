package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"webnotifier/internal/item"
	logx "webnotifier/pkg/logx"
)

func openTestStore(t *testing.T, driver, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	return st
}

func forEachDriver(t *testing.T, fn func(t *testing.T, driver, path string)) {
	t.Helper()
	drivers := []struct {
		name string
		file string
	}{
		{name: "sqlite", file: "items.db"},
		{name: "file", file: "items"},
	}
	for _, d := range drivers {
		d := d
		t.Run(d.name, func(t *testing.T) {
			t.Parallel()
			fn(t, d.name, filepath.Join(t.TempDir(), d.file))
		})
	}
}

func TestInsertIfAbsentFirstTitleWins(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		ctx := context.Background()
		st := openTestStore(t, driver, path)
		defer st.Close()

		tbl, err := st.EnsureSchema(ctx, "example_board")
		if err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		ins, err := tbl.InsertIfAbsent(ctx, "http://x/1", "Post 1")
		if err != nil || !ins {
			t.Fatalf("first insert = (%v, %v), want (true, nil)", ins, err)
		}
		ins, err = tbl.InsertIfAbsent(ctx, "http://x/1", "Post1-dup-title")
		if err != nil || ins {
			t.Fatalf("second insert = (%v, %v), want (false, nil)", ins, err)
		}

		items, err := tbl.ItemsWithStatus(ctx, item.StatusUnsent)
		if err != nil {
			t.Fatalf("ItemsWithStatus: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("got %d rows, want 1", len(items))
		}
		if items[0].Title != "Post 1" {
			t.Fatalf("title = %q, want %q", items[0].Title, "Post 1")
		}
	})
}

func TestInsertDoesNotResetStatus(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		ctx := context.Background()
		st := openTestStore(t, driver, path)
		defer st.Close()

		tbl, err := st.EnsureSchema(ctx, "src")
		if err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		if _, err := tbl.InsertIfAbsent(ctx, "u", "t"); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := tbl.SetStatus(ctx, "u", item.StatusSent); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
		if _, err := tbl.InsertIfAbsent(ctx, "u", "t2"); err != nil {
			t.Fatalf("re-insert: %v", err)
		}
		sent, err := tbl.ItemsWithStatus(ctx, item.StatusSent)
		if err != nil {
			t.Fatalf("ItemsWithStatus: %v", err)
		}
		if len(sent) != 1 || sent[0].Title != "t" {
			t.Fatalf("sent = %+v, want one item titled t", sent)
		}
	})
}

func TestSetStatusMissingURL(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		ctx := context.Background()
		st := openTestStore(t, driver, path)
		defer st.Close()

		tbl, err := st.EnsureSchema(ctx, "src")
		if err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		err = tbl.SetStatus(ctx, "http://nope", item.StatusSent)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("SetStatus missing = %v, want ErrNotFound", err)
		}
	})
}

func TestCanceledContextWritesNothing(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		st := openTestStore(t, driver, path)
		defer st.Close()

		tbl, err := st.EnsureSchema(context.Background(), "src")
		if err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		if _, err := tbl.InsertIfAbsent(context.Background(), "http://x/1", "one"); err != nil {
			t.Fatalf("InsertIfAbsent: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := tbl.SetStatus(ctx, "http://x/1", item.StatusFailedFinal); !errors.Is(err, context.Canceled) {
			t.Fatalf("SetStatus on canceled ctx = %v, want context.Canceled", err)
		}
		if _, err := tbl.InsertIfAbsent(ctx, "http://x/2", "two"); !errors.Is(err, context.Canceled) {
			t.Fatalf("InsertIfAbsent on canceled ctx = %v, want context.Canceled", err)
		}

		counts, err := tbl.Count(context.Background())
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if counts[item.StatusUnsent] != 1 || counts[item.StatusFailedFinal] != 0 {
			t.Fatalf("counts after canceled writes = %v", counts)
		}
	})
}

func TestItemsWithStatusKeepsInsertOrder(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		ctx := context.Background()
		st := openTestStore(t, driver, path)
		defer st.Close()

		tbl, err := st.EnsureSchema(ctx, "src")
		if err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		urls := []string{"c", "a", "b", "d"}
		for _, u := range urls {
			if _, err := tbl.InsertIfAbsent(ctx, u, "title "+u); err != nil {
				t.Fatalf("insert %s: %v", u, err)
			}
		}
		if err := tbl.SetStatus(ctx, "a", item.StatusFailedOnce); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}

		got, err := tbl.ItemsWithStatus(ctx, item.StatusUnsent)
		if err != nil {
			t.Fatalf("ItemsWithStatus: %v", err)
		}
		want := []string{"c", "b", "d"}
		if len(got) != len(want) {
			t.Fatalf("got %d items, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].URL != want[i] {
				t.Fatalf("item[%d] = %q, want %q", i, got[i].URL, want[i])
			}
		}

		counts, err := tbl.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if counts[item.StatusUnsent] != 3 || counts[item.StatusFailedOnce] != 1 {
			t.Fatalf("counts = %v", counts)
		}
	})
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		ctx := context.Background()
		st := openTestStore(t, driver, path)
		tbl, err := st.EnsureSchema(ctx, "src")
		if err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		for _, u := range []string{"u1", "u2"} {
			if _, err := tbl.InsertIfAbsent(ctx, u, u); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		if err := tbl.SetStatus(ctx, "u1", item.StatusFailedFinal); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
		if err := st.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		st2 := openTestStore(t, driver, path)
		defer st2.Close()
		tbl2, err := st2.EnsureSchema(ctx, "src")
		if err != nil {
			t.Fatalf("EnsureSchema again: %v", err)
		}
		unsent, err := tbl2.ItemsWithStatus(ctx, item.StatusUnsent)
		if err != nil {
			t.Fatalf("ItemsWithStatus: %v", err)
		}
		if len(unsent) != 1 || unsent[0].URL != "u2" {
			t.Fatalf("unsent after reopen = %+v", unsent)
		}
		final, err := tbl2.ItemsWithStatus(ctx, item.StatusFailedFinal)
		if err != nil {
			t.Fatalf("ItemsWithStatus: %v", err)
		}
		if len(final) != 1 || final[0].URL != "u1" {
			t.Fatalf("failed_final after reopen = %+v", final)
		}
	})
}

func TestSourcesAreSeparate(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		ctx := context.Background()
		st := openTestStore(t, driver, path)
		defer st.Close()

		a, err := st.EnsureSchema(ctx, "board_a")
		if err != nil {
			t.Fatalf("EnsureSchema a: %v", err)
		}
		b, err := st.EnsureSchema(ctx, "board_b")
		if err != nil {
			t.Fatalf("EnsureSchema b: %v", err)
		}
		if _, err := a.InsertIfAbsent(ctx, "u", "from a"); err != nil {
			t.Fatalf("insert a: %v", err)
		}
		ins, err := b.InsertIfAbsent(ctx, "u", "from b")
		if err != nil || !ins {
			t.Fatalf("insert b = (%v, %v), want (true, nil)", ins, err)
		}
	})
}

func TestEnsureSchemaRejectsUnsafeSource(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		st := openTestStore(t, driver, path)
		defer st.Close()

		for _, id := range []string{"", "1abc", "a b", `x"; DROP TABLE y; --`, "../etc"} {
			if _, err := st.EnsureSchema(context.Background(), id); !errors.Is(err, ErrInvalidSource) {
				t.Fatalf("EnsureSchema(%q) = %v, want ErrInvalidSource", id, err)
			}
		}
	})
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, driver, path string) {
		ctx := context.Background()
		st := openTestStore(t, driver, path)
		tbl, err := st.EnsureSchema(ctx, "src")
		if err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		if err := st.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, err := tbl.InsertIfAbsent(ctx, "u", "t"); !errors.Is(err, ErrClosed) {
			t.Fatalf("insert after close = %v, want ErrClosed", err)
		}
		if err := st.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for file driver without path")
	}
}
