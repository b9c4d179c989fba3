// Package config provides configuration management for the scraper.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/derinwebs/goscrape/pkg/plugin"
)

// Configuration validation errors.
var (
	ErrInvalidConcurrency    = errors.New("scraper.concurrency must be at least 1")
	ErrNegativeRateLimit     = errors.New("scraper.rate_limit_ms must be non-negative")
	ErrInvalidMaxAttempts    = errors.New("scraper.retry.max_attempts must be at least 1")
	ErrNegativeInitialDelay  = errors.New("scraper.retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoff        = errors.New("scraper.retry.backoff_multiplier must be >= 1.0")
	ErrInvalidMaxParagraphs  = errors.New("scraper.max_paragraphs must be at least 1")
	ErrInvalidMaxLinks       = errors.New("scraper.max_links must be at least 1")
	ErrMissingImageDir       = errors.New("images.dir is required when images.enabled is true")
	ErrMissingOutputPath     = errors.New("output.path is required")
	ErrInvalidOutputFormat   = errors.New("output.format must be 'json' or 'csv'")
	ErrInvalidLogLevel       = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Config represents the complete scraper configuration.
type Config struct {
	Scraper   ScraperConfig     `yaml:"scraper"`
	Selectors map[string]string `yaml:"selectors"`
	Images    ImagesConfig      `yaml:"images"`
	Output    OutputConfig      `yaml:"output"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// ScraperConfig contains fetch and concurrency settings.
type ScraperConfig struct {
	Concurrency int         `yaml:"concurrency"`
	RateLimitMs int         `yaml:"rate_limit_ms"`
	UserAgent   string      `yaml:"user_agent"`
	TimeoutSec  int         `yaml:"timeout_sec"`
	Proxy       string      `yaml:"proxy"`
	Retry       RetryPolicy `yaml:"retry"`

	MaxParagraphs int `yaml:"max_paragraphs"`
	MaxLinks      int `yaml:"max_links"`
}

// RetryPolicy defines transport-failure retry behavior. MaxAttempts of 1
// means no retry.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// ImagesConfig controls image downloading.
type ImagesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// OutputConfig defines where and how results are persisted.
type OutputConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// LoggingConfig defines logger behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scraper: ScraperConfig{
			Concurrency: 5,
			RateLimitMs: 1000,
			UserAgent:   defaultUserAgent,
			Retry: RetryPolicy{
				MaxAttempts:       1,
				InitialDelayMs:    500,
				BackoffMultiplier: 2.0,
			},
			MaxParagraphs: 5,
			MaxLinks:      10,
		},
		Images: ImagesConfig{
			Enabled: false,
			Dir:     "pictures",
		},
		Output: OutputConfig{
			Path:   "scraping_results.json",
			Format: "json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file and merges it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Scraper.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.Scraper.RateLimitMs < 0 {
		return ErrNegativeRateLimit
	}
	if c.Scraper.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.Scraper.Retry.InitialDelayMs < 0 {
		return ErrNegativeInitialDelay
	}
	if c.Scraper.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoff
	}
	if c.Scraper.MaxParagraphs < 1 {
		return ErrInvalidMaxParagraphs
	}
	if c.Scraper.MaxLinks < 1 {
		return ErrInvalidMaxLinks
	}
	if c.Images.Enabled && c.Images.Dir == "" {
		return ErrMissingImageDir
	}
	if c.Output.Path == "" {
		return ErrMissingOutputPath
	}
	if c.Output.Format != "json" && c.Output.Format != "csv" {
		return ErrInvalidOutputFormat
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// RateLimit returns the per-request delay as a duration.
func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.Scraper.RateLimitMs) * time.Millisecond
}

// Timeout returns the optional request timeout; zero means none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSec) * time.Second
}

// SelectorConfig converts the selectors section into the extractor's
// configuration. An empty section returns nil so that the request-level
// all-or-nothing default policy applies.
func (c *Config) SelectorConfig() *plugin.SelectorConfig {
	if len(c.Selectors) == 0 {
		return nil
	}
	sel := &plugin.SelectorConfig{}
	for key, expr := range c.Selectors {
		switch key {
		case "title":
			sel.Title = expr
		case "paragraphs":
			sel.Paragraphs = expr
		case "links":
			sel.Links = expr
		default:
			if sel.Extra == nil {
				sel.Extra = make(map[string]string)
			}
			sel.Extra[key] = expr
		}
	}
	return sel
}
