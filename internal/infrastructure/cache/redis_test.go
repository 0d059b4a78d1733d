package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := &Config{
		Addr:        mr.Addr(),
		PoolSize:    5,
		DialTimeout: time.Second,
		ReadTimeout: time.Second,
	}

	cache, err := NewRedisCache(config, nil)
	require.NoError(t, err)

	return cache, mr
}

func TestRedisCache_Get(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()
	defer cache.Close()
	ctx := context.Background()

	t.Run("existing key", func(t *testing.T) {
		testValue := map[string]string{"name": "test", "value": "123"}
		require.NoError(t, cache.Set(ctx, "test_key", testValue, time.Minute))

		var result map[string]string
		require.NoError(t, cache.Get(ctx, "test_key", &result))
		assert.Equal(t, testValue, result)
	})

	t.Run("missing key", func(t *testing.T) {
		var result map[string]string
		err := cache.Get(ctx, "missing_key", &result)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

func TestRedisCache_Set(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()
	defer cache.Close()
	ctx := context.Background()

	type payload struct {
		Name  string   `json:"name"`
		Value int      `json:"value"`
		Items []string `json:"items"`
	}

	want := payload{Name: "test", Value: 42, Items: []string{"a", "b"}}
	require.NoError(t, cache.Set(ctx, "complex_key", want, time.Minute))

	var got payload
	require.NoError(t, cache.Get(ctx, "complex_key", &got))
	assert.Equal(t, want, got)

	ttl, err := cache.TTL(ctx, "complex_key")
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}

func TestRedisCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "delete_key", "v", time.Minute))
	require.NoError(t, cache.Delete(ctx, "delete_key"))

	var result string
	err := cache.Get(ctx, "delete_key", &result)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	err = cache.Delete(ctx, "already_gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRedisCache_TTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ttl_key", "v", 2*time.Second))
	ttl, err := cache.TTL(ctx, "ttl_key")
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= 2*time.Second)

	// Redis reports -2 for a key that does not exist.
	ttl, err = cache.TTL(ctx, "missing_key")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-2), ttl)
}

func TestRedisCache_Ping(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()
	defer cache.Close()

	assert.NoError(t, cache.Ping(context.Background()))
}

func TestRedisCache_Close(t *testing.T) {
	cache, mr := setupTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "test_key", "v", time.Minute))
	require.NoError(t, cache.Close())

	err := cache.Set(ctx, "test_key2", "v", time.Minute)
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestCacheError(t *testing.T) {
	err := NewCacheError("test error", "TEST_ERROR").WithCause(assert.AnError)
	assert.Equal(t, "test error", err.Message)
	assert.Equal(t, "TEST_ERROR", err.Code)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "test error")
	assert.Contains(t, err.Error(), assert.AnError.Error())

	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(ErrConnectionFailed))
	assert.True(t, IsConnectionError(ErrConnectionFailed))
	assert.False(t, IsConnectionError(ErrNotFound))
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config { return &Config{Addr: "localhost:6379", PoolSize: 10, DialTimeout: time.Second} }

	assert.NoError(t, base().Validate())

	withoutAddr := base()
	withoutAddr.Addr = ""
	assert.Equal(t, ErrInvalidConfig, withoutAddr.Validate())

	noPool := base()
	noPool.PoolSize = 0
	assert.Equal(t, ErrInvalidConfig, noPool.Validate())

	badTimeout := base()
	badTimeout.DialTimeout = -time.Second
	assert.Equal(t, ErrInvalidConfig, badTimeout.Validate())
}
