package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. Secrets usually live here rather than in the file.
const (
	EnvTelegramToken = "WEBNOTIFIER_TELEGRAM_TOKEN"
	EnvLogFile       = "WEBNOTIFIER_LOG_FILE"
	EnvLogLevel      = "WEBNOTIFIER_LOGLEVEL"
	EnvStorageDSN    = "WEBNOTIFIER_STORAGE_DSN"
)

// ConfigManager reads the configuration once at startup. The result is
// immutable for the rest of the run.
type ConfigManager struct {
	path     string
	envFiles []string
	getenv   func(string) string
}

// NewConfigManager reads path (JSON, or YAML by extension). envFiles are
// optional dotenv files loaded before overrides are applied; missing files
// are ignored.
func NewConfigManager(path string, envFiles ...string) *ConfigManager {
	return &ConfigManager{path: path, envFiles: envFiles, getenv: os.Getenv}
}

func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return parseBytes(m.path, b)
}

func parseBytes(path string, b []byte) (*Config, error) {
	format := "json"
	if isYAML(path) {
		format = "yaml"
		jb, err := yamlToJSON(b)
		if err != nil {
			return nil, err
		}
		b = jb
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s config: %w", format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// Load parses the file, applies dotenv/env overrides and validates.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := m.loadEnvFiles(); err != nil {
		return nil, err
	}
	m.applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *ConfigManager) loadEnvFiles() error {
	for _, f := range m.envFiles {
		if strings.TrimSpace(f) == "" {
			continue
		}
		// godotenv.Load never overrides variables already set in the process.
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("env file %s: %w", f, err)
		}
	}
	return nil
}

func (m *ConfigManager) applyEnv(cfg *Config) {
	if v := strings.TrimSpace(m.getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(m.getenv(EnvLogFile)); v != "" {
		cfg.Logging.File.Path = v
	}
	if v := strings.TrimSpace(m.getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(m.getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
}
