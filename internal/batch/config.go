// Package batch runs document extraction over many files on a bounded worker pool.
package batch

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// DefaultDocumentTimeout bounds a single document extraction.
const DefaultDocumentTimeout = 120 * time.Second

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Config holds all configuration for batch processing.
type Config struct {
	Workers         int
	DocumentTimeout time.Duration
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Output settings
	Format     string
	OutputFile string
	OverlayDir string

	// Progress settings
	ShowProgress bool
	Quiet        bool
	ShowStats    bool
}

// DefaultConfig returns the batch defaults: one worker per CPU, two-minute document timeout.
func DefaultConfig() Config {
	return Config{
		Workers:         runtime.NumCPU(),
		DocumentTimeout: DefaultDocumentTimeout,
		ContinueOnError: true,
		Format:          FormatText,
		ShowProgress:    true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.DocumentTimeout < 0 {
		return errors.New("document timeout must be non-negative")
	}
	switch c.Format {
	case "", FormatText, FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	return nil
}
