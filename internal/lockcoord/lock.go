// Package lockcoord provides the standard-profile distributed lock that
// guards the configuration store's write discipline across multiple agent
// processes sharing one Redis instance. In the lite deployment profile no
// lockcoord.Lock is constructed at all; the local writer-preference RWLock
// in internal/rwlock is the only serialization in effect.
package lockcoord

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/singbox-orbit/node-agent/internal/metrics"
)

// ErrNotHeld is returned by Release and Extend when called on a lock this
// process never successfully acquired.
var ErrNotHeld = errors.New("lockcoord: lock not held")

// Config configures a Lock's acquire/retry/TTL behavior.
type Config struct {
	// TTL is the time after which Redis auto-expires the lock key if this
	// process never releases it (crash safety).
	TTL time.Duration `mapstructure:"ttl" env:"LOCK_TTL" default:"30s"`

	// AcquireTimeout bounds how long Acquire will retry before giving up.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" env:"LOCK_ACQUIRE_TIMEOUT" default:"5s"`

	// RetryInterval is the base delay between SETNX attempts; each attempt
	// adds jitter and grows linearly with the attempt count.
	RetryInterval time.Duration `mapstructure:"retry_interval" env:"LOCK_RETRY_INTERVAL" default:"100ms"`

	// ValuePrefix tags the random token stored at the lock key, useful for
	// telling which process/host holds a lock when inspecting Redis directly.
	ValuePrefix string `mapstructure:"value_prefix" env:"LOCK_VALUE_PREFIX" default:"singboxctl"`
}

// DefaultConfig returns the config used when the agent config omits a lock
// section entirely.
func DefaultConfig() *Config {
	return &Config{
		TTL:            30 * time.Second,
		AcquireTimeout: 5 * time.Second,
		RetryInterval:  100 * time.Millisecond,
		ValuePrefix:    "singboxctl",
	}
}

// Lock is a single named Redis SETNX lock with a Lua-script-guarded release
// and extend, so a lock can only be released or extended by the same value
// that created it.
type Lock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	cfg      *Config
	logger   *slog.Logger
	metrics  *metrics.LockMetrics
	acquired bool
	heldFrom time.Time
}

// New constructs a Lock bound to key. The lock is not acquired until Acquire
// is called.
func New(client *redis.Client, key string, cfg *Config, logger *slog.Logger, m *metrics.LockMetrics) *Lock {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Lock{
		client:  client,
		key:     key,
		value:   generateToken(cfg.ValuePrefix),
		ttl:     cfg.TTL,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

func generateToken(prefix string) string {
	buf := make([]byte, 16)
	if _, err := crand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}

// Acquire attempts to take the lock, retrying with jittered backoff until
// cfg.AcquireTimeout elapses or ctx is cancelled. Returns false, nil (not an
// error) if the lock is held by someone else when the deadline is reached.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, l.cfg.AcquireTimeout)
	defer cancel()

	l.logger.Debug("acquiring distributed lock", "key", l.key, "ttl", l.ttl)

	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
		if err != nil {
			l.recordAcquire("error", start)
			return false, fmt.Errorf("lockcoord: acquire %q: %w", l.key, err)
		}

		if ok {
			l.acquired = true
			l.heldFrom = time.Now()
			l.recordAcquire("acquired", start)
			l.logger.Info("distributed lock acquired", "key", l.key)
			return true, nil
		}

		select {
		case <-ctx.Done():
			l.recordAcquire("timeout", start)
			return false, nil
		case <-time.After(l.backoff(attempt)):
		}
	}
}

func (l *Lock) recordAcquire(outcome string, start time.Time) {
	if l.metrics == nil {
		return
	}
	l.metrics.AcquireTotal.WithLabelValues(outcome).Inc()
	l.metrics.AcquireDuration.Observe(time.Since(start).Seconds())
}

func (l *Lock) backoff(attempt int) time.Duration {
	base := time.Duration(attempt+1) * l.cfg.RetryInterval
	jitter := time.Duration(float64(base) * 0.25 * (rand.Float64()*2 - 1))
	return base + jitter
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Release drops the lock, but only if this Lock's token is still the value
// stored at the key — a lock whose TTL already expired and was reacquired by
// someone else is left alone.
func (l *Lock) Release(ctx context.Context) error {
	if !l.acquired {
		return ErrNotHeld
	}

	releaseCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := l.client.Eval(releaseCtx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("lockcoord: release %q: %w", l.key, err)
	}

	l.acquired = false
	if l.metrics != nil {
		l.metrics.HeldDuration.Observe(time.Since(l.heldFrom).Seconds())
	}

	if n, _ := result.(int64); n != 1 {
		l.logger.Warn("lock was already expired or reacquired elsewhere before release", "key", l.key)
	} else {
		l.logger.Info("distributed lock released", "key", l.key)
	}
	return nil
}

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Extend pushes the lock's TTL out to newTTL, used when a configuration
// write is taking longer than the originally configured TTL.
func (l *Lock) Extend(ctx context.Context, newTTL time.Duration) error {
	if !l.acquired {
		return ErrNotHeld
	}

	extendCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := l.client.Eval(extendCtx, extendScript, []string{l.key}, l.value, int(newTTL.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("lockcoord: extend %q: %w", l.key, err)
	}

	if n, _ := result.(int64); n != 1 {
		return fmt.Errorf("lockcoord: lock %q already expired or reacquired elsewhere", l.key)
	}

	l.ttl = newTTL
	return nil
}

// IsHeld reports whether this Lock believes it currently holds the lock.
func (l *Lock) IsHeld() bool {
	return l.acquired
}
