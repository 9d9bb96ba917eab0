package app

import (
	"fmt"
	"strings"
	"time"

	"webnotifier/internal/config"
	"webnotifier/internal/delivery"
	"webnotifier/internal/source"
	"webnotifier/internal/storage"
	kit "webnotifier/internal/transport"
	telegram "webnotifier/internal/transport/telegram"
	logx "webnotifier/pkg/logx"
)

const defaultLogFile = "webnotifier.log"

// durationOr parses the field at path, falling back to def when it is
// unset or zero.
func durationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := config.ParseDuration(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "postgres", "postgresql":
		return storage.Config{Driver: "postgres", DSN: strings.TrimSpace(sc.DSN)}, nil
	case "", "sqlite", "sqlite3":
		busy, err := durationOr("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapFetcherConfig(cfg *config.Config) (source.HTTPConfig, error) {
	timeout, err := config.ParseDuration("source.timeout", cfg.Source.Timeout)
	if err != nil {
		return source.HTTPConfig{}, err
	}
	return source.HTTPConfig{
		UserAgent: strings.TrimSpace(cfg.Source.UserAgent),
		Timeout:   timeout,
	}, nil
}

func mapExtractorConfig(cfg *config.Config) source.SelectorConfig {
	ec := cfg.Source.Extractor
	base := strings.TrimSpace(ec.BaseURL)
	if base == "" {
		base = strings.TrimSpace(cfg.Source.URL)
	}
	return source.SelectorConfig{
		Item:     ec.Item,
		Link:     ec.Link,
		LinkAttr: ec.LinkAttr,
		Title:    ec.Title,
		BaseURL:  base,
	}
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	target, err := config.ParseChat(cfg.Telegram.Channel, cfg.Telegram.ThreadID)
	if err != nil {
		return delivery.Config{}, fmt.Errorf("telegram.channel: %w", err)
	}
	delay, err := durationOr("delivery.delay", cfg.Delivery.Delay, delivery.DefaultDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	sendTimeout, err := durationOr("delivery.send_timeout", cfg.Delivery.SendTimeout, delivery.DefaultSendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		Source:         cfg.Source.ID,
		Target:         target,
		Format:         cfg.Delivery.MessageFormat,
		Delay:          delay,
		SendTimeout:    sendTimeout,
		DisablePreview: cfg.Telegram.DisablePreview,
	}, nil
}

// MapTelegramConfig builds the Bot API client config shared by delivery
// and the Telegram log sink.
func MapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDuration("telegram.timeout", cfg.Telegram.Timeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:   cfg.Telegram.Token,
		Timeout: timeout,
		APIURL:  cfg.Telegram.APIURL,
	}, nil
}

// MapLogConfig maps the logging section. The file sink is on unless
// explicitly disabled. Level defaults to ERROR.
func MapLogConfig(cfg *config.Config) (logx.Config, error) {
	lc := cfg.Logging
	drain, err := config.ParseDuration("logging.telegram.drain_timeout", lc.Telegram.DrainTimeout)
	if err != nil {
		return logx.Config{}, err
	}
	var chat kit.ChatTarget
	if lc.Telegram.Enabled {
		chat, err = config.ParseChat(lc.Telegram.Chat, lc.Telegram.ThreadID)
		if err != nil {
			return logx.Config{}, fmt.Errorf("logging.telegram.chat: %w", err)
		}
	}
	level := strings.TrimSpace(lc.Level)
	if level == "" {
		level = "ERROR"
	}
	path := strings.TrimSpace(lc.File.Path)
	if path == "" {
		path = defaultLogFile
	}
	return logx.Config{
		Level:   level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: !lc.File.Disabled,
			Path:    path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:      lc.Telegram.Enabled,
			Chat:         chat,
			MinLevel:     lc.Telegram.MinLevel,
			RatePerSec:   lc.Telegram.RatePerSec,
			DrainTimeout: drain,
		},
	}, nil
}
