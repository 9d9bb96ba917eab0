package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "source": {
    "id": "clien_jirum",
    "url": "https://example.com/board",
    "extractor": {"item": "li.post", "link": "a"}
  },
  "telegram": {"token": "123:abc", "channel": "@deals"},
  "delivery": {"delay": "1s"}
}`

const validYAML = `
source:
  id: clien_jirum
  url: https://example.com/board
  extractor:
    item: li.post
    link: a
telegram:
  token: "123:abc"
  channel: "-1001234"
  thread_id: 7
storage:
  driver: file
  path: ./state
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func newTestManager(path string, env map[string]string, envFiles ...string) *ConfigManager {
	m := NewConfigManager(path, envFiles...)
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestLoadJSON(t *testing.T) {
	m := newTestManager(writeFile(t, "config.json", validJSON), nil)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.ID != "clien_jirum" || cfg.Source.Extractor.Item != "li.post" {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
}

func TestLoadYAML(t *testing.T) {
	cfg, err := newTestManager(writeFile(t, "config.yaml", validYAML), nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Channel != "-1001234" || cfg.Telegram.ThreadID != 7 {
		t.Fatalf("unexpected telegram: %+v", cfg.Telegram)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("storage.driver = %q", cfg.Storage.Driver)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	cases := []struct {
		name, file, body string
	}{
		{"misspelled section", "config.json", strings.Replace(validJSON, `"delivery"`, `"delivry"`, 1)},
		{"unread telegram key", "config.json", strings.Replace(validJSON, `"token": "123:abc"`, `"token": "123:abc", "bot_name": "dealbot"`, 1)},
		{"yaml unknown key", "config.yaml", validYAML + "extra: 1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := newTestManager(writeFile(t, tc.file, tc.body), nil).Parse(); err == nil {
				t.Fatal("expected unknown field error")
			}
		})
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	if _, err := newTestManager(writeFile(t, "config.json", validJSON+"{}"), nil).Parse(); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestEnvOverrides(t *testing.T) {
	body := strings.Replace(validJSON, `"token": "123:abc"`, `"token": ""`, 1)
	env := map[string]string{
		EnvTelegramToken: "999:env",
		EnvLogFile:       "/tmp/wn.log",
		EnvLogLevel:      "debug",
		EnvStorageDSN:    "postgres://db/alerts",
	}
	cfg, err := newTestManager(writeFile(t, "config.json", body), env).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.DSN != "postgres://db/alerts" {
		t.Fatalf("storage dsn override not applied: %q", cfg.Storage.DSN)
	}
	if cfg.Telegram.Token != "999:env" || cfg.Logging.File.Path != "/tmp/wn.log" || cfg.Logging.Level != "debug" {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Telegram, cfg.Logging)
	}
}

func TestMissingEnvFileIgnored(t *testing.T) {
	m := newTestManager(writeFile(t, "config.json", validJSON), nil, filepath.Join(t.TempDir(), "missing.env"))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Source: SourceConfig{
				ID:        "board",
				URL:       "https://example.com/",
				Extractor: ExtractorConfig{Item: "a"},
			},
			Telegram: TelegramConfig{Token: "t", Channel: "@c"},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"unsafe source id", func(c *Config) { c.Source.ID = "x; DROP TABLE y" }, false},
		{"relative url", func(c *Config) { c.Source.URL = "/board" }, false},
		{"no item selector", func(c *Config) { c.Source.Extractor.Item = " " }, false},
		{"no token", func(c *Config) { c.Telegram.Token = "" }, false},
		{"no channel", func(c *Config) { c.Telegram.Channel = "" }, false},
		{"bad delay", func(c *Config) { c.Delivery.Delay = "soon" }, false},
		{"negative timeout", func(c *Config) { c.Source.Timeout = "-1s" }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, false},
		{"file driver without path", func(c *Config) { c.Storage.Driver = "file" }, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, false},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Driver = "postgres"
			c.Storage.DSN = "postgres://localhost/alerts"
		}, true},
		{"log chat required when enabled", func(c *Config) { c.Logging.Telegram.Enabled = true }, false},
		{"log chat set", func(c *Config) {
			c.Logging.Telegram.Enabled = true
			c.Logging.Telegram.Chat = "-42"
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := Validate(c)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseChat(t *testing.T) {
	cases := []struct {
		in       string
		wantID   int64
		wantUser string
		ok       bool
	}{
		{"@deals", 0, "@deals", true},
		{"deals", 0, "@deals", true},
		{" -1001234 ", -1001234, "", true},
		{"0", 0, "", false},
		{"", 0, "", false},
		{"@", 0, "", false},
		{"two words", 0, "", false},
	}
	for _, tc := range cases {
		got, err := ParseChat(tc.in, 3)
		if !tc.ok {
			if err == nil {
				t.Fatalf("ParseChat(%q): expected error, got %+v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseChat(%q): %v", tc.in, err)
		}
		if got.ChatID != tc.wantID || got.Username != tc.wantUser || got.ThreadID != 3 {
			t.Fatalf("ParseChat(%q) = %+v", tc.in, got)
		}
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{"", 0, true},
		{" 2s ", 2 * time.Second, true},
		{"-1s", 0, false},
		{"soon", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDuration("delivery.delay", tc.raw)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseDuration(%q) err = %v, want ok=%v", tc.raw, err, tc.ok)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
		if !tc.ok && !strings.Contains(err.Error(), "delivery.delay") {
			t.Fatalf("error %q does not name the field", err)
		}
	}
}
