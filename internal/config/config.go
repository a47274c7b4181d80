// Package config provides configuration management for the crawler.
// It defines configuration structures and default values for crawling parameters.
package config

import (
	"strings"
	"time"
)

// Default values shared by the CLI flags and DefaultConfig.
const (
	DefaultScope        = "mit.edu"
	DefaultSeedURL      = "https://mit.edu"
	DefaultCycles       = 10000
	DefaultMaxPerDomain = 200
	DefaultTimeout      = 10 * time.Second
	DefaultUserAgent    = "Seeker/1.0"
)

// LogConfig holds logging settings
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	File       string `mapstructure:"file" yaml:"file"`               // Optional log file path
	Format     string `mapstructure:"format" yaml:"format"`           // json or text
	MaxSizeMB  int64  `mapstructure:"max_size_mb" yaml:"max_size_mb"` // Rotation threshold
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // Rotated files kept
}

// CrawlConfig holds crawler configuration
type CrawlConfig struct {
	// Basic crawling parameters
	SeedURLs       []string      `mapstructure:"seed_urls" yaml:"seed_urls"`             // Starting URLs for crawling
	Scope          string        `mapstructure:"scope" yaml:"scope"`                     // Domain suffix every crawled host must carry
	Cycles         int           `mapstructure:"cycles" yaml:"cycles"`                   // Discovery cycles to run
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`         // Number of concurrent workers
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"` // HTTP request timeout
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`           // HTTP User-Agent header
	MaxPerDomain   int           `mapstructure:"max_per_domain" yaml:"max_per_domain"`   // Admissions allowed per host for the whole run

	// URL filtering
	Extensions      []string `mapstructure:"extensions" yaml:"extensions"`             // Accepted path extensions (html family)
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"` // Regex patterns for URLs to exclude

	// Output
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // SQLite file receiving the run, empty disables
	OutputPath   string `mapstructure:"output_path" yaml:"output_path"`     // Report file, empty or "-" means stdout
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"` // text or yaml

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		Scope:          DefaultScope,
		Cycles:         DefaultCycles,
		Concurrency:    1,
		RequestTimeout: DefaultTimeout,
		UserAgent:      DefaultUserAgent,
		MaxPerDomain:   DefaultMaxPerDomain,
		Extensions:     []string{"html", "htm", "shtml", "xhtml"},
		OutputFormat:   "text",
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// Validate checks if the configuration is valid
func (c *CrawlConfig) Validate() error {
	c.Scope = strings.Trim(strings.ToLower(strings.TrimSpace(c.Scope)), ".")
	if c.Scope == "" {
		return ErrEmptyScope
	}

	if c.Cycles <= 0 {
		return ErrInvalidCycles
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxPerDomain <= 0 {
		return ErrInvalidMaxPerDomain
	}

	switch strings.ToLower(c.OutputFormat) {
	case "", "text":
		c.OutputFormat = "text"
	case "yaml":
		c.OutputFormat = "yaml"
	default:
		return ErrInvalidOutputFormat
	}

	return nil
}

// Seeds returns the configured seed URLs, falling back to DefaultSeedURL.
func (c *CrawlConfig) Seeds() []string {
	if len(c.SeedURLs) == 0 {
		return []string{DefaultSeedURL}
	}
	return c.SeedURLs
}
