// Package config loads the tool's YAML configuration with defaults
// for every field, so a missing file is a usable configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"trawl/internal/creds"
	"trawl/internal/logging"
)

const (
	DefaultConfigFile  = "config.yaml"
	DefaultHistoryFile = "history.db"
	DefaultUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	// DataDir is where scraped records are written. Empty means the
	// caller should fall back to the environment chain.
	DataDir string `yaml:"data_dir"`
	// HistoryPath locates the invocation log database. Empty means
	// <data dir>/history.db.
	HistoryPath string `yaml:"history_path"`
	// Timeout bounds one whole scrape invocation, polling included.
	Timeout Duration `yaml:"timeout"`

	Log     LogConfig     `yaml:"log"`
	Browser BrowserConfig `yaml:"browser"`
	Apify   ApifyConfig   `yaml:"apify"`
	HTTP    HTTPConfig    `yaml:"http"`

	// Feeds maps podcast show names to RSS feed URLs for episode
	// enrichment.
	Feeds map[string]string `yaml:"feeds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BrowserConfig struct {
	ExecPath    string   `yaml:"exec_path"`
	Headless    bool     `yaml:"headless"`
	SettleDelay Duration `yaml:"settle_delay"`
	MaxTabs     int      `yaml:"max_tabs"`
}

type ApifyConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Token        string   `yaml:"token"`
	PollInterval Duration `yaml:"poll_interval"`
	RunTimeout   Duration `yaml:"run_timeout"`
}

type HTTPConfig struct {
	UserAgent    string  `yaml:"user_agent"`
	RatePerSec   float64 `yaml:"rate_per_sec"`
	MinBodyChars int     `yaml:"min_body_chars"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Timeout: Duration{120 * time.Second},
		Log:     LogConfig{Level: "info", Format: "text"},
		Browser: BrowserConfig{
			Headless:    true,
			SettleDelay: Duration{2 * time.Second},
			MaxTabs:     2,
		},
		Apify: ApifyConfig{
			BaseURL:      "https://api.apify.com",
			PollInterval: Duration{2 * time.Second},
			RunTimeout:   Duration{120 * time.Second},
		},
		HTTP: HTTPConfig{
			UserAgent:    DefaultUserAgent,
			RatePerSec:   2,
			MinBodyChars: 100,
		},
		Feeds: map[string]string{},
	}
}

// DefaultPath returns the expected config file location, or "" when
// the user config directory cannot be determined.
func DefaultPath() string {
	dir := creds.DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, DefaultConfigFile)
}

// Load reads the config file at path (DefaultPath when empty),
// overlays it on the defaults, applies environment overrides, and
// validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// A missing file is fine; the defaults stand.
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	resolveEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func resolveEnv(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	} else if v := os.Getenv("WEB_SCRAPER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

func validate(cfg *Config) error {
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}
	if cfg.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout: must be positive, got %s", cfg.Timeout.Duration)
	}
	if cfg.Apify.PollInterval.Duration <= 0 {
		return fmt.Errorf("apify.poll_interval: must be positive, got %s", cfg.Apify.PollInterval.Duration)
	}
	if cfg.Browser.MaxTabs <= 0 {
		return fmt.Errorf("browser.max_tabs: must be positive, got %d", cfg.Browser.MaxTabs)
	}
	return nil
}
