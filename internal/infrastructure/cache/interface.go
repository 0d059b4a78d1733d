package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is the advisory cache the Outbound Prober consults before issuing
// a live probe. A miss or error here is never fatal to a probe: the
// caller falls back to the live round trip.
type Cache interface {
	// Get fetches the value stored under key and decodes it into dest.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes the value stored under key; it returns ErrNotFound
	// when key is absent.
	Delete(ctx context.Context, key string) error

	// TTL returns the remaining time-to-live for key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}

// Config configures a Redis-backed Cache.
type Config struct {
	Addr     string        `env:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD" default:""`
	DB       int           `env:"REDIS_DB" default:"0"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" default:"1"`

	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" default:"3s"`

	MaxRetries      int           `env:"REDIS_MAX_RETRIES" default:"3"`
	MinRetryBackoff time.Duration `env:"REDIS_MIN_RETRY_BACKOFF" default:"8ms"`
	MaxRetryBackoff time.Duration `env:"REDIS_MAX_RETRY_BACKOFF" default:"512ms"`
}

// Validate checks that Config is usable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrInvalidConfig
	}
	if c.PoolSize <= 0 {
		return ErrInvalidConfig
	}
	if c.DialTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ErrNotFound is returned when a key is absent from the cache.
var ErrNotFound = NewCacheError("key not found", "NOT_FOUND")

// ErrInvalidConfig is returned for a malformed Config.
var ErrInvalidConfig = NewCacheError("invalid cache configuration", "CONFIG_ERROR")

// ErrConnectionFailed is returned when the backing connection is unusable.
var ErrConnectionFailed = NewCacheError("connection failed", "CONNECTION_ERROR")

// Error represents a cache operation failure.
type Error struct {
	Message string
	Code    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewCacheError builds an *Error with no wrapped cause.
func NewCacheError(message, code string) *Error {
	return &Error{Message: message, Code: code}
}

// IsNotFound reports whether err is (or wraps) the not-found error.
func IsNotFound(err error) bool {
	var cacheErr *Error
	if !errors.As(err, &cacheErr) {
		return false
	}
	return cacheErr.Code == "NOT_FOUND"
}

// IsConnectionError reports whether err is (or wraps) a connection error.
func IsConnectionError(err error) bool {
	var cacheErr *Error
	if !errors.As(err, &cacheErr) {
		return false
	}
	return cacheErr.Code == "CONNECTION_ERROR"
}
