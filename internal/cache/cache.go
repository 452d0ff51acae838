// Package cache stores extraction results keyed by image content.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and configures the cache backend.
type Config struct {
	Enabled       bool   `mapstructure:"enabled"        yaml:"enabled"        json:"enabled"`
	Backend       string `mapstructure:"backend"        yaml:"backend"        json:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"     yaml:"redis_addr"     json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password" json:"-"`
	RedisDB       int    `mapstructure:"redis_db"       yaml:"redis_db"       json:"redis_db"`
	PoolSize      int    `mapstructure:"pool_size"      yaml:"pool_size"      json:"pool_size"`
	TTLSec        int    `mapstructure:"ttl_sec"        yaml:"ttl_sec"        json:"ttl_sec"`
	Prefix        string `mapstructure:"prefix"         yaml:"prefix"         json:"prefix"`
	MaxEntries    int    `mapstructure:"max_entries"    yaml:"max_entries"    json:"max_entries"`
}

// DefaultConfig returns a disabled in-memory cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:    false,
		Backend:    BackendMemory,
		RedisAddr:  "localhost:6379",
		TTLSec:     3600,
		Prefix:     "formocr:",
		MaxEntries: 1000,
	}
}

// TTL returns the configured entry lifetime.
func (c Config) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

// Validate checks the backend name and TTL.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown cache backend %q (want %q or %q)", c.Backend, BackendMemory, BackendRedis)
	}
	if c.TTLSec < 0 {
		return fmt.Errorf("cache ttl must be non-negative, got %d", c.TTLSec)
	}
	if c.Backend == BackendRedis && c.RedisAddr == "" {
		return errors.New("redis backend requires redis_addr")
	}
	return nil
}

// New returns the configured client, or nil when caching is disabled.
func New(cfg Config) (Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == BackendRedis {
		c, err := NewRedisClient(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.PoolSize,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return NewMemoryClient(cfg.MaxEntries, cfg.TTL()), nil
}

// Key joins key components with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
