package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the Redis-backed Cache implementation.
type RedisCache struct {
	client   *redis.Client
	config   *Config
	logger   *slog.Logger
	isClosed bool
}

// NewRedisCache constructs a RedisCache and verifies connectivity with a
// single Ping before returning.
func NewRedisCache(config *Config, logger *slog.Logger) (*RedisCache, error) {
	if config == nil {
		config = &Config{Addr: "localhost:6379", PoolSize: 10}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Addr,
		Password:        config.Password,
		DB:              config.DB,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err, "addr", config.Addr)
		return nil, NewCacheError("failed to connect to redis", "CONNECTION_ERROR").WithCause(err)
	}

	logger.Info("connected to redis cache", "addr", config.Addr, "db", config.DB)
	return &RedisCache{client: client, config: config, logger: logger}, nil
}

// Get fetches the value stored under key and JSON-decodes it into dest.
func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if rc.isClosed {
		return ErrConnectionFailed
	}

	val, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		rc.logger.Error("cache get failed", "key", key, "error", err)
		return NewCacheError("failed to get value from cache", "GET_ERROR").WithCause(err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return NewCacheError("failed to unmarshal cache value", "UNMARSHAL_ERROR").WithCause(err)
	}
	return nil
}

// Set JSON-encodes value and stores it under key with the given TTL.
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if rc.isClosed {
		return ErrConnectionFailed
	}

	data, err := json.Marshal(value)
	if err != nil {
		return NewCacheError("failed to marshal cache value", "MARSHAL_ERROR").WithCause(err)
	}
	if err := rc.client.Set(ctx, key, data, ttl).Err(); err != nil {
		rc.logger.Error("cache set failed", "key", key, "error", err)
		return NewCacheError("failed to set value in cache", "SET_ERROR").WithCause(err)
	}
	return nil
}

// Delete removes the value stored under key; it returns ErrNotFound when key
// is absent.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if rc.isClosed {
		return ErrConnectionFailed
	}

	result, err := rc.client.Del(ctx, key).Result()
	if err != nil {
		return NewCacheError("failed to delete value from cache", "DELETE_ERROR").WithCause(err)
	}
	if result == 0 {
		return ErrNotFound
	}
	return nil
}

// TTL returns the remaining time-to-live for key.
func (rc *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	if rc.isClosed {
		return 0, ErrConnectionFailed
	}

	ttl, err := rc.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, NewCacheError("failed to get ttl", "TTL_ERROR").WithCause(err)
	}
	return ttl, nil
}

// Ping checks connectivity to Redis.
func (rc *RedisCache) Ping(ctx context.Context) error {
	if rc.isClosed {
		return ErrConnectionFailed
	}
	return rc.client.Ping(ctx).Err()
}

// Close closes the underlying Redis connection. Idempotent.
func (rc *RedisCache) Close() error {
	if rc.isClosed {
		return nil
	}
	rc.isClosed = true
	if err := rc.client.Close(); err != nil {
		return NewCacheError("failed to close redis connection", "CLOSE_ERROR").WithCause(err)
	}
	return nil
}

// WithCause attaches cause to a cache Error, returning the same instance.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}
