package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Scope != "mit.edu" {
		t.Errorf("Expected scope 'mit.edu', got %s", cfg.Scope)
	}

	if cfg.Cycles != 10000 {
		t.Errorf("Expected cycles 10000, got %d", cfg.Cycles)
	}

	if cfg.Concurrency != 1 {
		t.Errorf("Expected concurrency 1, got %d", cfg.Concurrency)
	}

	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("Expected request timeout 10s, got %v", cfg.RequestTimeout)
	}

	if cfg.MaxPerDomain != 200 {
		t.Errorf("Expected max per domain 200, got %d", cfg.MaxPerDomain)
	}

	if len(cfg.Extensions) != 4 {
		t.Errorf("Expected 4 accepted extensions, got %v", cfg.Extensions)
	}

	if cfg.DatabasePath != "" {
		t.Errorf("Expected no database by default, got %s", cfg.DatabasePath)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected log defaults: %+v", cfg.Log)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func(mutate func(c *CrawlConfig)) *CrawlConfig {
		c := DefaultConfig()
		mutate(c)
		return c
	}

	tests := []struct {
		name    string
		config  *CrawlConfig
		wantErr error
	}{
		{
			name:   "valid config",
			config: DefaultConfig(),
		},
		{
			name:    "empty scope",
			config:  valid(func(c *CrawlConfig) { c.Scope = " . " }),
			wantErr: ErrEmptyScope,
		},
		{
			name:    "invalid cycles",
			config:  valid(func(c *CrawlConfig) { c.Cycles = 0 }),
			wantErr: ErrInvalidCycles,
		},
		{
			name:    "invalid concurrency",
			config:  valid(func(c *CrawlConfig) { c.Concurrency = -1 }),
			wantErr: ErrInvalidConcurrency,
		},
		{
			name:    "invalid timeout",
			config:  valid(func(c *CrawlConfig) { c.RequestTimeout = 0 }),
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "invalid max per domain",
			config:  valid(func(c *CrawlConfig) { c.MaxPerDomain = 0 }),
			wantErr: ErrInvalidMaxPerDomain,
		},
		{
			name:    "unknown output format",
			config:  valid(func(c *CrawlConfig) { c.OutputFormat = "xml" }),
			wantErr: ErrInvalidOutputFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNormalizesScope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scope = " .Example.EDU "
	cfg.OutputFormat = "YAML"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Scope != "example.edu" {
		t.Errorf("Expected scope 'example.edu', got %q", cfg.Scope)
	}
	if cfg.OutputFormat != "yaml" {
		t.Errorf("Expected output format 'yaml', got %q", cfg.OutputFormat)
	}
}

func TestSeeds(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Seeds(); len(got) != 1 || got[0] != DefaultSeedURL {
		t.Errorf("Seeds() = %v, want [%s]", got, DefaultSeedURL)
	}

	cfg.SeedURLs = []string{"https://a.mit.edu", "https://b.mit.edu"}
	if got := cfg.Seeds(); len(got) != 2 {
		t.Errorf("Seeds() = %v, want configured seeds", got)
	}
}
