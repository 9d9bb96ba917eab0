package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"webnotifier/internal/storage"
	kit "webnotifier/internal/transport"
)

// Validate rejects configs that cannot produce a run.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if err := storage.ValidateSourceID(cfg.Source.ID); err != nil {
		errs = append(errs, fmt.Errorf("source.id: %w", err))
	}
	if u, err := url.Parse(strings.TrimSpace(cfg.Source.URL)); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("source.url: absolute url required, got %q", cfg.Source.URL))
	}
	if strings.TrimSpace(cfg.Source.Extractor.Item) == "" {
		errs = append(errs, errors.New("source.extractor.item is required"))
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken))
	}
	if _, err := ParseChat(cfg.Telegram.Channel, cfg.Telegram.ThreadID); err != nil {
		errs = append(errs, fmt.Errorf("telegram.channel: %w", err))
	}
	if cfg.Logging.Telegram.Enabled {
		if _, err := ParseChat(cfg.Logging.Telegram.Chat, cfg.Logging.Telegram.ThreadID); err != nil {
			errs = append(errs, fmt.Errorf("logging.telegram.chat: %w", err))
		}
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("logging.telegram.rate_per_sec must be >= 0"))
	}

	durations := map[string]string{
		"source.timeout":                 cfg.Source.Timeout,
		"telegram.timeout":               cfg.Telegram.Timeout,
		"delivery.delay":                 cfg.Delivery.Delay,
		"delivery.send_timeout":          cfg.Delivery.SendTimeout,
		"storage.busy_timeout":           cfg.Storage.BusyTimeout,
		"logging.telegram.drain_timeout": cfg.Logging.Telegram.DrainTimeout,
	}
	for path, raw := range durations {
		if _, err := ParseDuration(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
	case "file":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required for file driver"))
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for postgres (or set %s)", EnvStorageDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	return errors.Join(errs...)
}

// ParseChat maps "@name" / "name" / "-100123" to a chat target.
func ParseChat(raw string, threadID int) (kit.ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return kit.ChatTarget{}, errors.New("chat is empty")
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id == 0 {
			return kit.ChatTarget{}, errors.New("chat id must not be 0")
		}
		return kit.ChatTarget{ChatID: id, ThreadID: threadID}, nil
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	if strings.ContainsAny(s[1:], " @/") || len(s) < 2 {
		return kit.ChatTarget{}, fmt.Errorf("invalid chat %q", raw)
	}
	return kit.ChatTarget{Username: s, ThreadID: threadID}, nil
}
