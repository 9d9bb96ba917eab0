package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"webnotifier/internal/delivery"
	"webnotifier/internal/item"
)

func textfile(t *testing.T, r *Run) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webnotifier.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("textfile missing %q:\n%s", w, out)
		}
	}
}

func TestObserveReport(t *testing.T) {
	r := New("board")
	r.ObserveReport(delivery.Report{Attempted: 5, Sent: 2, FailedOnce: 2, FailedFinal: 1, Retried: 2})

	assertContains(t, textfile(t, r),
		`webnotifier_deliveries_total{outcome="sent",source="board"} 2`,
		`webnotifier_deliveries_total{outcome="failed",source="board"} 2`,
		`webnotifier_deliveries_total{outcome="abandoned",source="board"} 1`,
	)
}

func TestRunsDoNotShareRegistry(t *testing.T) {
	a, b := New("a"), New("b")
	a.ItemsInserted.Set(3)
	assertContains(t, textfile(t, b), `webnotifier_items_inserted{source="b"} 0`)
}

func TestWriteTextfile(t *testing.T) {
	r := New("board")
	r.ItemsExtracted.Set(5)
	r.SetStored(map[item.Status]int{item.StatusSent: 4, item.StatusFailedFinal: 1})
	r.Finish(true, 1500*time.Millisecond, time.Unix(1700000000, 0))

	assertContains(t, textfile(t, r),
		`webnotifier_items_extracted{source="board"} 5`,
		`webnotifier_stored_items{source="board",status="sent"} 4`,
		`webnotifier_stored_items{source="board",status="failed_final"} 1`,
		`webnotifier_stored_items{source="board",status="unsent"} 0`,
		`webnotifier_last_run_success{source="board"} 1`,
		`webnotifier_run_duration_seconds{source="board"} 1.5`,
	)
}

func TestFinishAborted(t *testing.T) {
	r := New("board")
	r.Finish(false, time.Second, time.Now())
	assertContains(t, textfile(t, r), `webnotifier_last_run_success{source="board"} 0`)
}
