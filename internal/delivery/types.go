package delivery

import (
	"context"
	"time"

	"webnotifier/internal/item"
	kit "webnotifier/internal/transport"
)

const (
	DefaultFormat      = "title: \"{{.Title}}\"\nurl: \"{{.URL}}\"{{if .Retry}}\n(retry){{end}}"
	DefaultDelay       = time.Second
	DefaultSendTimeout = 15 * time.Second
)

// Event types published on the bus.
const (
	EventSent      = "delivery.sent"
	EventFailed    = "delivery.failed"
	EventAbandoned = "delivery.abandoned"
)

type Config struct {
	// Source is the page source identifier, available to templates as .Source.
	Source string
	Target kit.ChatTarget
	// Format is a text/template over Message. Empty means DefaultFormat.
	Format string
	// Delay is waited after every attempt. Zero means DefaultDelay; use a
	// negative value to disable.
	Delay time.Duration
	// SendTimeout bounds one attempt; an attempt that runs out of time is a
	// failed attempt. The channel's own request timeout also applies, so
	// the smaller of the two wins. Zero means DefaultSendTimeout.
	SendTimeout time.Duration
	// ParseMode is passed to the channel; HTML unless set.
	ParseMode      string
	DisablePreview bool
}

// Table is the part of the item store the state machine needs.
type Table interface {
	SetStatus(ctx context.Context, url string, status item.Status) error
	ItemsWithStatus(ctx context.Context, status item.Status) ([]item.Item, error)
}

// Message is the template data for one alert. Title and URL are already
// markup-escaped.
type Message struct {
	Title  string
	URL    string
	Source string
	Retry  bool
}

// Report summarizes one run. FailedOnce counts first attempts that failed;
// those items are retried in the same run and end up in Sent or FailedFinal.
type Report struct {
	Attempted   int
	Sent        int
	Retried     int
	FailedOnce  int
	FailedFinal int
}

// Event is the Data of delivery.* bus events.
type Event struct {
	Source  string `json:"source"`
	URL     string `json:"url"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
