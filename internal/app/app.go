package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"webnotifier/internal/config"
	"webnotifier/internal/delivery"
	"webnotifier/internal/eventbus"
	"webnotifier/internal/item"
	"webnotifier/internal/metrics"
	"webnotifier/internal/source"
	"webnotifier/internal/storage"
	kit "webnotifier/internal/transport"
	telegram "webnotifier/internal/transport/telegram"
	logx "webnotifier/pkg/logx"
)

// ErrFetch wraps page fetch and extraction failures. No item is touched
// when a run fails with it.
var ErrFetch = errors.New("fetch page")

// App executes one run for one page source: fetch, extract, merge into the
// store, deliver. It owns the store connection until Close.
type App struct {
	cfg *config.Config
	log logx.Logger
	bus eventbus.Bus

	store     storage.Store
	fetcher   source.Fetcher
	extractor source.Extractor
	sender    kit.Sender
	delivery  delivery.Config
	sleep     delivery.SleepFunc
	now       func() time.Time
}

type Option func(*App)

func WithFetcher(f source.Fetcher) Option     { return func(a *App) { a.fetcher = f } }
func WithExtractor(e source.Extractor) Option { return func(a *App) { a.extractor = e } }
func WithSender(s kit.Sender) Option          { return func(a *App) { a.sender = s } }
func WithBus(b eventbus.Bus) Option           { return func(a *App) { a.bus = b } }

// WithSleep replaces the inter-message wait.
func WithSleep(fn delivery.SleepFunc) Option { return func(a *App) { a.sleep = fn } }

// New wires the components for cfg and opens the store. Collaborators not
// supplied through opts are built from cfg. A store open failure is
// returned here; nothing else touches storage until Run.
func New(cfg *config.Config, log logx.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &App{cfg: cfg, log: log.With(logx.String("comp", "app")), now: time.Now}
	for _, o := range opts {
		if o != nil {
			o(a)
		}
	}
	if a.bus == nil {
		a.bus = eventbus.New()
	}

	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.delivery = dc

	if a.fetcher == nil {
		hc, err := mapFetcherConfig(cfg)
		if err != nil {
			return nil, err
		}
		a.fetcher = source.NewHTTPFetcher(hc, log.With(logx.String("comp", "fetcher")))
	}
	if a.extractor == nil {
		ex, err := source.NewSelectorExtractor(mapExtractorConfig(cfg))
		if err != nil {
			return nil, err
		}
		a.extractor = ex
	}
	if a.sender == nil {
		tc, err := MapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		s, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		a.sender = s
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = st
	a.log.Debug("storage opened", logx.String("driver", sc.Driver))
	return a, nil
}

// Run performs one end-to-end execution. Per-item delivery failures are
// recorded in the store and reported, never returned; the error is non-nil
// only when the run was aborted.
func (a *App) Run(ctx context.Context) (rep delivery.Report, err error) {
	start := a.now()
	id := a.cfg.Source.ID
	log := a.log.With(logx.String("source", id), logx.String("run_id", uuid.NewString()))
	log.Info("run started", logx.String("url", a.cfg.Source.URL))

	mr := metrics.New(id)
	defer func() { a.writeMetrics(log, mr, err == nil, start) }()

	tbl, err := a.store.EnsureSchema(ctx, id)
	if err != nil {
		log.Error("ensure schema failed", logx.Err(err))
		return rep, fmt.Errorf("ensure schema %s: %w", id, err)
	}

	candidates, err := a.collect(ctx)
	if err != nil {
		log.Error("fetch failed; no items marked", logx.Err(err))
		return rep, err
	}

	inserted, err := a.merge(ctx, tbl, candidates)
	if err != nil {
		log.Error("merge failed", logx.Err(err), logx.Int("inserted", inserted))
		return rep, err
	}
	log.Info("items merged", logx.Int("extracted", len(candidates)), logx.Int("inserted", inserted))
	mr.ItemsExtracted.Set(float64(len(candidates)))
	mr.ItemsInserted.Set(float64(inserted))

	events, unsubscribe := a.bus.Subscribe(64, "delivery.")
	logged := make(chan struct{})
	go a.logEvents(log, events, logged)

	m, err := delivery.New(a.delivery, tbl, a.sender, log.With(logx.String("comp", "delivery")),
		delivery.WithBus(a.bus), delivery.WithSleep(a.sleep))
	if err != nil {
		unsubscribe()
		<-logged
		return rep, err
	}
	rep, err = m.Run(ctx)
	unsubscribe()
	<-logged
	mr.ObserveReport(rep)
	if err != nil {
		log.Error("delivery aborted", logx.Err(err), logx.Int("attempted", rep.Attempted))
		return rep, err
	}

	a.logSummary(ctx, log, mr, tbl, rep, a.now().Sub(start))
	return rep, nil
}

// collect fetches and extracts. Any failure aborts before the store is
// written.
func (a *App) collect(ctx context.Context) ([]item.Candidate, error) {
	raw, err := a.fetcher.Fetch(ctx, a.cfg.Source.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	candidates, err := a.extractor.Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: extract: %w", ErrFetch, err)
	}
	return candidates, nil
}

func (a *App) merge(ctx context.Context, tbl storage.Table, candidates []item.Candidate) (int, error) {
	inserted := 0
	for _, c := range candidates {
		url := strings.TrimSpace(c.URL)
		if url == "" {
			continue
		}
		ok, err := tbl.InsertIfAbsent(ctx, url, strings.TrimSpace(c.Title))
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", url, err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func (a *App) logEvents(log logx.Logger, events <-chan eventbus.Event, done chan<- struct{}) {
	defer close(done)
	for e := range events {
		ev, _ := e.Data.(delivery.Event)
		log.Debug("event",
			logx.String("type", e.Type),
			logx.String("url", ev.URL),
			logx.Int("attempt", ev.Attempt),
		)
	}
}

func (a *App) logSummary(ctx context.Context, log logx.Logger, mr *metrics.Run, tbl storage.Table, rep delivery.Report, took time.Duration) {
	fields := []logx.Field{
		logx.Int("attempted", rep.Attempted),
		logx.Int("sent", rep.Sent),
		logx.Int("retried", rep.Retried),
		logx.Int("failed_final", rep.FailedFinal),
		logx.Duration("took", took),
	}
	counts, err := tbl.Count(ctx)
	if err != nil {
		log.Warn("count failed", logx.Err(err))
	} else {
		mr.SetStored(counts)
		for _, s := range item.Statuses() {
			fields = append(fields, logx.Int("total_"+s.String(), counts[s]))
		}
	}
	if d := a.bus.Dropped(); d > 0 {
		fields = append(fields, logx.Uint64("events_dropped", d))
	}
	log.Info("run finished", fields...)
}

func (a *App) writeMetrics(log logx.Logger, mr *metrics.Run, ok bool, start time.Time) {
	path := strings.TrimSpace(a.cfg.Metrics.Textfile)
	if path == "" {
		return
	}
	now := a.now()
	mr.Finish(ok, now.Sub(start), now)
	if err := mr.WriteTextfile(path); err != nil {
		log.Warn("write metrics textfile failed", logx.String("path", path), logx.Err(err))
	}
}

// Close releases the store. It is safe to call more than once.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
