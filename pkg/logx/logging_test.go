package logx

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	kit "webnotifier/internal/transport"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	to    []kit.ChatTarget
}

func (r *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	r.to = append(r.to, to)
	return kit.MessageRef{}, nil
}

// blockingSender holds every send until its context ends.
type blockingSender struct{ calls chan struct{} }

func (b *blockingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	b.calls <- struct{}{}
	<-ctx.Done()
	return kit.MessageRef{}, ctx.Err()
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(b)
}

func TestFileSinkTextFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	sinks, log, err := Open(Config{Level: "DEBUG", File: FileConfig{Enabled: true, Path: path}}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	log.Error("fetch failed", String("url", "http://x/1"))
	if err := sinks.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	line := strings.TrimSpace(readLog(t, path))
	re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} ERROR \[logging_test\.go:\d+\] - fetch failed url=http://x/1$`)
	if !re.MatchString(line) {
		t.Fatalf("log line = %q", line)
	}
}

func TestLevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	sinks, log, err := Open(Config{Level: "ERROR", File: FileConfig{Enabled: true, Path: path}}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log.Info("dropped")
	log.Error("kept")
	_ = sinks.Close()

	got := readLog(t, path)
	if strings.Contains(got, "dropped") || !strings.Contains(got, "kept") {
		t.Fatalf("level filter not applied: %q", got)
	}
}

func TestOpenRejectsBadSinks(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		cfg    Config
		sender kit.Sender
	}{
		{"unwritable file", Config{File: FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "missing", "run.log")}}, nil},
		{"telegram without chat", Config{Telegram: TelegramConfig{Enabled: true}}, &recordingSender{}},
		{"telegram without sender", Config{Telegram: TelegramConfig{Enabled: true, Chat: kit.ChatTarget{Username: "@ops"}}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Open(tc.cfg, tc.sender); err == nil {
				t.Fatal("Open succeeded, want error")
			}
		})
	}
}

func TestTelegramSinkMinLevelAndDrain(t *testing.T) {
	rec := &recordingSender{}
	to := kit.ChatTarget{Username: "@ops"}
	sinks, log, err := Open(Config{
		Level:    "DEBUG",
		File:     FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "run.log")},
		Telegram: TelegramConfig{Enabled: true, Chat: to, MinLevel: "ERROR", RatePerSec: 10},
	}, rec)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	log.Warn("below min level")
	log.Error("delivery abandoned", String("url", "http://x/1"))
	if err := sinks.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	log.Error("after close")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.texts) != 1 {
		t.Fatalf("telegram messages = %d (%q), want 1", len(rec.texts), rec.texts)
	}
	if !strings.HasPrefix(rec.texts[0], "[ERROR] delivery abandoned") || !strings.Contains(rec.texts[0], "url=http://x/1") {
		t.Fatalf("unexpected telegram text: %q", rec.texts[0])
	}
	if rec.to[0] != to {
		t.Fatalf("target = %+v, want %+v", rec.to[0], to)
	}
}

func TestTelegramDrainTimeoutCancelsPendingSend(t *testing.T) {
	bs := &blockingSender{calls: make(chan struct{}, 4)}
	sinks, log, err := Open(Config{
		Telegram: TelegramConfig{Enabled: true, Chat: kit.ChatTarget{ChatID: 42}, MinLevel: "ERROR", RatePerSec: 10, DrainTimeout: 20 * time.Millisecond},
	}, bs)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	log.Error("stuck")
	<-bs.calls

	done := make(chan struct{})
	go func() {
		_ = sinks.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the drain timeout")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	l.Error("ignored")
	Nop().With(String("k", "v")).Info("ignored")
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("abcdefghijklmnop", 12); got != "abcdefghi..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
