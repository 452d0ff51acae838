package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Supported backends.
const (
	BackendDocTR      = "doctr"
	BackendVision     = "vision"
	BackendDocumentAI = "documentai"
)

// Config selects and configures an engine.
type Config struct {
	Backend          string `mapstructure:"backend"           yaml:"backend"           json:"backend"`
	Endpoint         string `mapstructure:"endpoint"          yaml:"endpoint"          json:"endpoint"`
	TimeoutSec       int    `mapstructure:"timeout_sec"       yaml:"timeout_sec"       json:"timeout_sec"`
	CredentialsFile  string `mapstructure:"credentials_file"  yaml:"credentials_file"  json:"credentials_file"`
	ProjectID        string `mapstructure:"project_id"        yaml:"project_id"        json:"project_id"`
	Location         string `mapstructure:"location"          yaml:"location"          json:"location"`
	ProcessorID      string `mapstructure:"processor_id"      yaml:"processor_id"      json:"processor_id"`
	ProcessorVersion string `mapstructure:"processor_version" yaml:"processor_version" json:"processor_version"`
	Normalize        bool   `mapstructure:"normalize"         yaml:"normalize"         json:"normalize"`
}

// DefaultConfig returns the default OCR configuration.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendDocTR,
		Endpoint:   DefaultDocTREndpoint,
		TimeoutSec: 60,
		Location:   "us",
		Normalize:  true,
	}
}

// Validate checks the backend name and its required settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendDocTR, BackendVision:
	case BackendDocumentAI:
		if c.ProjectID == "" || c.ProcessorID == "" {
			return errors.New("documentai backend requires project_id and processor_id")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.TimeoutSec < 0 {
		return fmt.Errorf("ocr timeout must be non-negative, got %d", c.TimeoutSec)
	}
	return nil
}

// NewEngineFactory returns a factory for the configured backend.
func NewEngineFactory(cfg Config) (EngineFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	switch strings.ToLower(cfg.Backend) {
	case BackendVision:
		return func(ctx context.Context) (Engine, error) {
			e, err := NewVisionEngine(ctx, cfg.CredentialsFile)
			if err != nil {
				return nil, err
			}
			return e, nil
		}, nil
	case BackendDocumentAI:
		return func(ctx context.Context) (Engine, error) {
			e, err := NewDocumentAIEngine(ctx, DocumentAIConfig{
				ProjectID:        cfg.ProjectID,
				Location:         cfg.Location,
				ProcessorID:      cfg.ProcessorID,
				ProcessorVersion: cfg.ProcessorVersion,
				CredentialsFile:  cfg.CredentialsFile,
				Timeout:          timeout,
			})
			if err != nil {
				return nil, err
			}
			return e, nil
		}, nil
	default:
		return func(context.Context) (Engine, error) {
			e, err := NewDocTREngine(cfg.Endpoint, timeout)
			if err != nil {
				return nil, err
			}
			return e, nil
		}, nil
	}
}

// NewAdapterFromConfig builds an Adapter for cfg.
func NewAdapterFromConfig(cfg Config) (*Adapter, error) {
	factory, err := NewEngineFactory(cfg)
	if err != nil {
		return nil, err
	}
	return NewAdapter(factory, WithName(strings.ToLower(cfg.Backend)), WithNormalization(cfg.Normalize)), nil
}
