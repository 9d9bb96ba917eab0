package logx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "webnotifier/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig forwards records at or above MinLevel to an operator chat.
type TelegramConfig struct {
	Enabled    bool
	Chat       kit.ChatTarget
	MinLevel   string
	RatePerSec int
	// DrainTimeout bounds how long Close waits for queued records.
	DrainTimeout time.Duration
}

const (
	recordTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	fileTimeFormat   = "2006-01-02 15:04:05,000"

	defaultDrain = 3 * time.Second
)

// Field mutates a zerolog event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Uint64(k string, v uint64) Field {
	return func(e *zerolog.Event) { e.Uint64(k, v) }
}
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a value type: With returns a copy carrying extra fields.
// The zero value discards everything.
type Logger struct {
	base    zerolog.Logger
	hasBase bool

	fields []Field
}

func Nop() Logger {
	return Logger{base: zerolog.Nop(), hasBase: true}
}

// NewConsole returns a console-only logger for use before Open.
func NewConsole(level string) Logger {
	setGlobals()
	zl := zerolog.New(newConsoleWriter(os.Stdout)).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func (l Logger) IsZero() bool { return !l.hasBase && len(l.fields) == 0 }

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Trace(msg string, fields ...Field) { l.log(zerolog.TraceLevel, msg, fields...) }
func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields...) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields...) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields...) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields...) }

func (l Logger) log(level zerolog.Level, msg string, fields ...Field) {
	if !l.hasBase {
		return
	}
	e := l.base.WithLevel(level)
	if e == nil {
		return
	}
	if caller := shortCaller(3); caller != "" {
		e.Str(zerolog.CallerFieldName, caller)
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

func shortCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func setGlobals() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = recordTimeFormat
}

// Sinks owns the outputs of one run. Outputs are fixed at Open; Close
// flushes the Telegram queue and closes the log file.
type Sinks struct {
	file  *os.File
	tg    *telegramSink
	drain time.Duration
}

// Open builds the run's sinks and a Logger writing to all of them.
// With no sink enabled the Logger falls back to the console.
func Open(cfg Config, sender kit.Sender) (*Sinks, Logger, error) {
	setGlobals()

	s := &Sinks{drain: cfg.Telegram.DrainTimeout}
	if s.drain <= 0 {
		s.drain = defaultDrain
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./webnotifier.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, Logger{}, fmt.Errorf("logx: open log file %q: %w", path, err)
		}
		s.file = f
		writers = append(writers, newFileWriter(zerolog.SyncWriter(f)))
	}
	if cfg.Telegram.Enabled {
		var err error
		switch {
		case cfg.Telegram.Chat.IsZero():
			err = errors.New("logx: telegram sink enabled without a chat")
		case sender == nil:
			err = errors.New("logx: telegram sink enabled without a sender")
		}
		if err != nil {
			_ = s.Close()
			return nil, Logger{}, err
		}
		s.tg = newTelegramSink(cfg.Telegram, sender)
		writers = append(writers, s.tg)
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	return s, Logger{base: zl, hasBase: true}, nil
}

// Close must run after the last log call of the run.
func (s *Sinks) Close() error {
	if s.tg != nil {
		s.tg.close(s.drain)
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: recordTimeFormat}
}

// newFileWriter renders "time LEVEL [file:line] - message key=value".
func newFileWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:     w,
		NoColor: true,
		FormatTimestamp: func(i any) string {
			s, _ := i.(string)
			t, err := time.Parse(recordTimeFormat, s)
			if err != nil {
				return s
			}
			return t.Format(fileTimeFormat)
		},
		FormatLevel: func(i any) string {
			s, _ := i.(string)
			return strings.ToUpper(s)
		},
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			if s == "" {
				return ""
			}
			return "[" + s + "]"
		},
		FormatMessage: func(i any) string {
			s, _ := i.(string)
			return "- " + s
		},
	}
}

// telegramSink queues records for a single worker. A full queue or an
// exhausted rate budget drops the record instead of blocking the caller.
type telegramSink struct {
	sender  kit.Sender
	to      kit.ChatTarget
	min     zerolog.Level
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newTelegramSink(cfg TelegramConfig, sender kit.Sender) *telegramSink {
	rps := max(1, cfg.RatePerSec)
	ctx, cancel := context.WithCancel(context.Background())
	t := &telegramSink{
		sender:  sender,
		to:      cfg.Chat,
		min:     parseLevel(cfg.MinLevel, zerolog.WarnLevel),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		queue:   make(chan string, 256),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go t.run()
	return t
}

func (t *telegramSink) run() {
	defer close(t.done)
	for msg := range t.queue {
		_, _ = t.sender.SendText(t.ctx, t.to, msg, &kit.SendOptions{DisablePreview: true})
	}
}

// close stops intake and waits for the queue to drain. Sends still
// pending after timeout see a canceled context.
func (t *telegramSink) close(timeout time.Duration) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
	case <-timer.C:
		t.cancel()
		<-t.done
	}
	t.cancel()
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < t.min || !t.limiter.Allow() {
		return len(p), nil
	}
	msg := formatTelegramJSON(p)
	if msg == "" {
		return len(p), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return len(p), nil
	}
	select {
	case t.queue <- msg:
	default:
	}
	return len(p), nil
}

func formatTelegramJSON(p []byte) string {
	line := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return truncate(line, 3500)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString("] ")
	}
	b.WriteString(msg)

	for k, v := range m {
		if k == "time" || k == "level" || k == "message" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(v), 600))
	}

	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
