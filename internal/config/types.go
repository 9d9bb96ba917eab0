package config

// Config is the on-disk configuration of one page source run.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Source   SourceConfig   `json:"source"`
	Telegram TelegramConfig `json:"telegram"`
	Delivery DeliveryConfig `json:"delivery,omitempty"`
	Storage  StorageConfig  `json:"storage,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
}

// SourceConfig describes the monitored page.
//
// Example:
//
//	"source": {
//	  "id": "clien_jirum",
//	  "url": "https://example.com/board",
//	  "extractor": { "item": "li.post", "link": "a" }
//	}
type SourceConfig struct {
	// ID names the storage table; letters, digits and underscores only.
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	UserAgent string          `json:"user_agent,omitempty"`
	Timeout   string          `json:"timeout,omitempty"`
	Extractor ExtractorConfig `json:"extractor"`
}

type ExtractorConfig struct {
	Item     string `json:"item"`
	Link     string `json:"link,omitempty"`
	LinkAttr string `json:"link_attr,omitempty"`
	Title    string `json:"title,omitempty"`
	// BaseURL resolves relative links; defaults to source.url.
	BaseURL string `json:"base_url,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"` // never logged
	// Channel is "@channelname" or a numeric chat id.
	Channel        string `json:"channel"`
	ThreadID       int    `json:"thread_id,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	APIURL         string `json:"api_url,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
}

type DeliveryConfig struct {
	// MessageFormat is a text/template with .Title, .URL, .Source and .Retry.
	MessageFormat string `json:"message_format,omitempty"`
	Delay         string `json:"delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./webnotifier.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://u:p@db/alerts?sslmode=disable" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres; never logged
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  bool            `json:"console,omitempty"`
	File     LoggingFile     `json:"file,omitempty"`
	Telegram LoggingTelegram `json:"telegram,omitempty"`
}

// LoggingFile is on by default; set disabled to log to the console only.
type LoggingFile struct {
	Disabled bool   `json:"disabled,omitempty"`
	Path     string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled bool `json:"enabled,omitempty"`
	// Chat receives log records; "@name" or numeric id.
	Chat         string `json:"chat,omitempty"`
	ThreadID     int    `json:"thread_id,omitempty"`
	MinLevel     string `json:"min_level,omitempty"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
	DrainTimeout string `json:"drain_timeout,omitempty"`
}

// MetricsConfig enables the Prometheus textfile written at the end of
// every run (node_exporter textfile collector).
type MetricsConfig struct {
	Textfile string `json:"textfile,omitempty"`
}
