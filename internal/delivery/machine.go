package delivery

import (
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"webnotifier/internal/eventbus"
	"webnotifier/internal/item"
	"webnotifier/internal/storage"
	kit "webnotifier/internal/transport"
	logx "webnotifier/pkg/logx"
)

// Machine runs the two delivery passes for one page source.
// It is not safe for concurrent use; a run owns its table exclusively.
type Machine struct {
	cfg    Config
	tmpl   *template.Template
	table  Table
	sender kit.Sender
	bus    eventbus.Bus
	log    logx.Logger
	sleep  SleepFunc
}

type Option func(*Machine)

// WithSleep replaces the inter-message wait (tests).
func WithSleep(fn SleepFunc) Option {
	return func(m *Machine) {
		if fn != nil {
			m.sleep = fn
		}
	}
}

// WithBus publishes delivery.* events on bus.
func WithBus(bus eventbus.Bus) Option {
	return func(m *Machine) { m.bus = bus }
}

func New(cfg Config, table Table, sender kit.Sender, log logx.Logger, opts ...Option) (*Machine, error) {
	if table == nil {
		return nil, errors.New("delivery: table is nil")
	}
	if sender == nil {
		return nil, errors.New("delivery: sender is nil")
	}
	if cfg.Target.IsZero() {
		return nil, errors.New("delivery: chat target is empty")
	}
	tmpl, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "HTML"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	m := &Machine{
		cfg:    cfg,
		tmpl:   tmpl,
		table:  table,
		sender: sender,
		log:    log,
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	return m, nil
}

// pass describes one sweep over the items at a given status.
type pass struct {
	name    string
	from    item.Status
	retry   bool
	attempt int
	onOK    item.Status
	onFail  item.Status
}

var passes = []pass{
	{name: "first", from: item.StatusUnsent, attempt: 1, onOK: item.StatusSent, onFail: item.StatusFailedOnce},
	{name: "retry", from: item.StatusFailedOnce, retry: true, attempt: 2, onOK: item.StatusSent, onFail: item.StatusFailedFinal},
}

// Run executes both passes. It returns early with ctx.Err() when ctx is
// canceled and with the store error when the table fails. Items not reached,
// and an item whose send was interrupted, keep their status for the next run.
func (m *Machine) Run(ctx context.Context) (Report, error) {
	var rep Report
	for _, p := range passes {
		if err := m.runPass(ctx, p, &rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func (m *Machine) runPass(ctx context.Context, p pass, rep *Report) error {
	items, err := m.table.ItemsWithStatus(ctx, p.from)
	if err != nil {
		return fmt.Errorf("list %s items: %w", p.from, err)
	}
	m.log.Debug("delivery pass", logx.String("pass", p.name), logx.Int("items", len(items)))

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		text, err := render(m.tmpl, m.cfg.Source, it, p.retry)
		if err != nil {
			return fmt.Errorf("render %s: %w", it.URL, err)
		}

		sendErr := m.send(ctx, text)
		if sendErr != nil && ctx.Err() != nil {
			// Outcome unknown: the item keeps its status for the next run.
			m.log.Warn("send interrupted", logx.String("url", it.URL), logx.String("status", it.Status.String()))
			return ctx.Err()
		}
		rep.Attempted++
		if p.retry {
			rep.Retried++
		}

		next := p.onOK
		if sendErr != nil {
			next = p.onFail
		}
		// An acknowledged send is recorded even if the run was canceled
		// meanwhile, so it is not delivered twice.
		if err := m.transition(context.WithoutCancel(ctx), it, next); err != nil {
			return err
		}
		m.record(p, it, next, sendErr, rep)

		if err := m.sleep(ctx, m.cfg.Delay); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) send(ctx context.Context, text string) error {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()
	_, err := m.sender.SendText(sctx, m.cfg.Target, text, &kit.SendOptions{
		ParseMode:      m.cfg.ParseMode,
		DisablePreview: m.cfg.DisablePreview,
	})
	return err
}

func (m *Machine) transition(ctx context.Context, it item.Item, next item.Status) error {
	if !item.CanTransition(it.Status, next) {
		// Unreachable with the pass table above; refuse rather than corrupt.
		m.log.Error("refusing status transition",
			logx.String("url", it.URL),
			logx.String("from", it.Status.String()),
			logx.String("to", next.String()),
		)
		return nil
	}
	err := m.table.SetStatus(ctx, it.URL, next)
	if errors.Is(err, storage.ErrNotFound) {
		m.log.Warn("item vanished before status update", logx.String("url", it.URL), logx.String("to", next.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("set status %s -> %s for %s: %w", it.Status, next, it.URL, err)
	}
	return nil
}

func (m *Machine) record(p pass, it item.Item, next item.Status, sendErr error, rep *Report) {
	ev := Event{Source: m.cfg.Source, URL: it.URL, Attempt: p.attempt}
	typ := EventSent

	switch next {
	case item.StatusSent:
		rep.Sent++
		m.log.Debug("alert sent", logx.String("url", it.URL), logx.Int("attempt", p.attempt))
	case item.StatusFailedOnce:
		rep.FailedOnce++
		typ = EventFailed
		ev.Error = sendErr.Error()
		m.log.Error("alert failed", logx.String("url", it.URL), logx.Err(sendErr))
	case item.StatusFailedFinal:
		rep.FailedFinal++
		typ = EventAbandoned
		ev.Error = sendErr.Error()
		m.log.Error("alert failed twice; abandoning", logx.String("url", it.URL), logx.Err(sendErr))
	}

	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}
}
