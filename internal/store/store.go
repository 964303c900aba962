// Package store keeps the last serialized value published on every channel
// variable so that browsers connecting late can be brought up to date.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no value has been recorded for a key
var ErrNotFound = errors.New("channel state not found")

// Store defines the interface for channel state backends
type Store interface {
	// Put records the serialized value of a channel variable
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the recorded value of a channel variable
	Get(ctx context.Context, key string) ([]byte, error)

	// Snapshot returns every recorded key and value
	Snapshot(ctx context.Context) (map[string][]byte, error)

	// Delete forgets the value of a channel variable
	Delete(ctx context.Context, key string) error

	// Close releases backend resources
	Close() error
}

// Config selects and configures a backend
type Config struct {
	// Backend is "memory" or "redis"
	Backend string
	// Prefix namespaces the keys written by this process
	Prefix string
	// RedisAddr is the Redis server address (host:port)
	RedisAddr string
	// RedisPassword is the Redis password (optional)
	RedisPassword string
	// RedisDB is the Redis database number
	RedisDB int
}

// DefaultConfig returns an in-memory configuration
func DefaultConfig() Config {
	return Config{
		Backend:   "memory",
		Prefix:    "declwidgets:",
		RedisAddr: "localhost:6379",
	}
}

// New creates the backend named by cfg.Backend
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// Key builds the state key of a channel variable
func Key(channel, name string) string {
	return channel + ":" + name
}
