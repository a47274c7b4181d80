package config

import "errors"

var (
	// ErrEmptyScope is returned when no scope suffix is configured
	ErrEmptyScope = errors.New("scope cannot be empty")
	// ErrInvalidCycles is returned when cycles is not greater than 0
	ErrInvalidCycles = errors.New("cycles must be greater than 0")
	// ErrInvalidConcurrency is returned when concurrency is not greater than 0
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrInvalidMaxPerDomain is returned when the per-domain cap is not greater than 0
	ErrInvalidMaxPerDomain = errors.New("max_per_domain must be greater than 0")
	// ErrInvalidOutputFormat is returned for an unknown report format
	ErrInvalidOutputFormat = errors.New("output_format must be 'text' or 'yaml'")
)
