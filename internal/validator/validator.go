// Package validator wraps the external sing-box binary's "check"
// subcommand as the single source of semantic truth for a candidate
// configuration document. This package is agnostic about what any field
// means; it only knows how to hand bytes to the binary and interpret its
// exit code.
package validator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/singbox-orbit/node-agent/internal/apperr"
	"github.com/singbox-orbit/node-agent/internal/metrics"
)

// DefaultTimeout bounds a single subprocess invocation.
const DefaultTimeout = 10 * time.Second

var decodeErrorPattern = regexp.MustCompile(`decode config.*?: (.+)`)

// Error is a single validation failure. The spec surfaces at most one per
// attempt: the regex-extracted decode message, the trimmed stderr, or a
// generic fallback, in that order of preference.
type Error struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// Result is the outcome of a validation attempt.
type Result struct {
	Valid  bool    `json:"valid"`
	Errors []Error `json:"errors,omitempty"`
}

// CacheConfig tunes the optional advisory result cache.
type CacheConfig struct {
	Enabled bool
	Size    int
	TTL     time.Duration
}

// Validator spawns the external binary against temp files under WorkDir.
type Validator struct {
	binaryPath string
	workDir    string
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.ValidatorMetrics
	cacheHit   *metrics.CacheMetrics
	cache      *lru.LRU[string, Result]
}

// New constructs a Validator. workDir is the active config directory the
// temp file is written alongside, so the check reflects the same
// filesystem context the real config will live in. binaryPath defaults to
// "sing-box" when empty (resolved via PATH by exec.Command). timeout
// defaults to DefaultTimeout when zero or negative.
func New(binaryPath, workDir string, timeout time.Duration, cacheCfg CacheConfig, logger *slog.Logger, m *metrics.ValidatorMetrics, cacheMetrics *metrics.CacheMetrics) *Validator {
	if binaryPath == "" {
		binaryPath = "sing-box"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := &Validator{
		binaryPath: binaryPath,
		workDir:    workDir,
		timeout:    timeout,
		logger:     logger,
		metrics:    m,
		cacheHit:   cacheMetrics,
	}
	if cacheCfg.Enabled {
		size := cacheCfg.Size
		if size <= 0 {
			size = 256
		}
		ttl := cacheCfg.TTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		v.cache = lru.NewLRU[string, Result](size, nil, ttl)
	}
	return v
}

// Validate runs the external binary against document unconditionally. This
// is the write-path entrypoint: it must never be skipped by the advisory
// cache, since the write path has to validate the exact bytes it is about
// to persist.
func (v *Validator) Validate(ctx context.Context, document []byte) (Result, error) {
	if res, ok := precheckShape(document); !ok {
		return res, nil
	}
	return v.run(ctx, document)
}

// ValidateAdvisory is for dry-run / preview flows: it consults (and
// populates) the result cache keyed by the SHA-256 of the exact candidate
// bytes, so repeated validation of byte-identical candidates skips the
// subprocess spawn.
func (v *Validator) ValidateAdvisory(ctx context.Context, document []byte) (Result, error) {
	if res, ok := precheckShape(document); !ok {
		return res, nil
	}

	if v.cache == nil {
		return v.run(ctx, document)
	}

	key := fingerprintOf(document)
	if cached, ok := v.cache.Get(key); ok {
		if v.cacheHit != nil {
			v.cacheHit.Hits.Inc()
		}
		return cached, nil
	}
	if v.cacheHit != nil {
		v.cacheHit.Misses.Inc()
	}

	res, err := v.run(ctx, document)
	if err != nil {
		return res, err
	}
	v.cache.Add(key, res)
	return res, nil
}

func fingerprintOf(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}

// precheckShape rejects non-object inputs with INVALID_TYPE before the
// binary is ever invoked.
func precheckShape(document []byte) (Result, bool) {
	var probe interface{}
	if err := json.Unmarshal(document, &probe); err != nil {
		return invalidType(), false
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		return invalidType(), false
	}
	return Result{}, true
}

func invalidType() Result {
	return Result{
		Valid: false,
		Errors: []Error{{
			Code:    apperr.InvalidType,
			Message: "configuration document must be a JSON object",
		}},
	}
}

// run writes document to a uniquely named temp file under workDir, invokes
// "<binary> check -c <temp-path>", and always removes the temp file
// afterward regardless of outcome.
func (v *Validator) run(ctx context.Context, document []byte) (Result, error) {
	start := time.Now()

	tmpPath := filepath.Join(v.workDir, fmt.Sprintf("singbox-validate-%s.json", uuid.NewString()))
	if err := os.WriteFile(tmpPath, document, 0o600); err != nil {
		return Result{}, fmt.Errorf("validator: writing temp candidate: %w", err)
	}
	defer os.Remove(tmpPath)

	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, v.binaryPath, "check", "-c", tmpPath)
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		if v.metrics != nil {
			v.metrics.ObserveTimeout()
			v.metrics.ObserveRun("timeout", duration)
		}
		return Result{}, apperr.Wrap(apperr.Internal, "validator: binary did not respond within timeout", runCtx.Err())
	}

	if runErr == nil {
		if v.metrics != nil {
			v.metrics.ObserveRun("valid", duration)
		}
		return Result{Valid: true}, nil
	}

	if _, isExitErr := runErr.(*exec.ExitError); !isExitErr {
		if v.metrics != nil {
			v.metrics.ObserveRun("error", duration)
		}
		return Result{}, apperr.Wrap(apperr.Internal, "validator: failed to invoke binary", runErr)
	}

	if v.metrics != nil {
		v.metrics.ObserveRun("invalid", duration)
	}
	return Result{
		Valid: false,
		Errors: []Error{{
			Code:    apperr.SingboxValidationError,
			Message: extractMessage(stderr.String()),
		}},
	}, nil
}

func extractMessage(stderr string) string {
	if m := decodeErrorPattern.FindStringSubmatch(stderr); m != nil {
		return strings.TrimSpace(m[1])
	}
	if trimmed := strings.TrimSpace(stderr); trimmed != "" {
		return trimmed
	}
	return "Invalid configuration"
}
