// Package prober implements the outbound liveness/quality probe: a HEAD
// request issued over the host's own network (never through the sing-box
// tunnel) against a target URL, used to sanity-check that an outbound's
// underlying transport is reachable.
package prober

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/singbox-orbit/node-agent/internal/apperr"
	"github.com/singbox-orbit/node-agent/internal/configstore"
	"github.com/singbox-orbit/node-agent/internal/core/resilience"
	"github.com/singbox-orbit/node-agent/internal/infrastructure/cache"
	"github.com/singbox-orbit/node-agent/internal/metrics"
)

// DefaultURL is the probe target used when the caller does not supply one.
const DefaultURL = "https://www.google.com/generate_204"

// DefaultTimeout bounds a single HEAD request when the caller does not
// supply one.
const DefaultTimeout = 5 * time.Second

// DefaultSamples is how many times Latency calls Test when the caller
// does not supply a sample count.
const DefaultSamples = 3

// cacheTTL bounds how long a single Test result is reused from cache
// before the next call issues a fresh live request.
const cacheTTL = 10 * time.Second

// TagSource is the Config Store's view from the prober's perspective:
// just enough to confirm an outbound tag actually exists before spending
// a network round trip on it.
type TagSource interface {
	GetTaggedByTag(ctx context.Context, collection, tag string) (configstore.Document, bool, error)
}

// TestResult is the outcome of a single probe attempt.
type TestResult struct {
	Success bool          `json:"success"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// LatencyResult is the outcome of averaging several Test attempts.
type LatencyResult struct {
	Latency *time.Duration  `json:"latency"`
	Samples []time.Duration `json:"samples"`
	Error   string          `json:"error,omitempty"`
}

// Prober issues outbound probes against a target URL using the host's own
// network, optionally caching recent results to avoid hammering a target
// on repeated calls within a short window.
type Prober struct {
	tags         TagSource
	client       *http.Client
	cache        cache.Cache
	metrics      *metrics.ProberMetrics
	retryMetrics *metrics.RetryMetrics
}

// New constructs a Prober. client defaults to a bare http.Client{} when
// nil (the per-call context carries the timeout, so no client-level
// timeout is set). cacheImpl, m and retryMetrics may all be nil.
func New(tags TagSource, client *http.Client, cacheImpl cache.Cache, m *metrics.ProberMetrics, retryMetrics *metrics.RetryMetrics) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	return &Prober{tags: tags, client: client, cache: cacheImpl, metrics: m, retryMetrics: retryMetrics}
}

// Test issues one HEAD request to url (DefaultURL when empty), bounded by
// timeout (DefaultTimeout when zero or negative). Success is HTTP 204 or
// any 2xx. A context deadline or cancellation during the request is
// reported as a (non-error) failed TestResult carrying a fixed message,
// not an error return, per spec.md's Outbound Prober contract.
func (p *Prober) Test(ctx context.Context, tag, url string, timeout time.Duration) (TestResult, error) {
	if err := p.requireTag(ctx, tag); err != nil {
		return TestResult{}, err
	}
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result := p.test(ctx, tag, url, timeout)
	return result, nil
}

func (p *Prober) requireTag(ctx context.Context, tag string) error {
	if p.tags == nil {
		return nil
	}
	_, ok, err := p.tags.GetTaggedByTag(ctx, "outbounds", tag)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.NotFound, fmt.Sprintf("outbound %q not found", tag))
	}
	return nil
}

func (p *Prober) test(ctx context.Context, tag, url string, timeout time.Duration) TestResult {
	key := cacheKey(tag, url, timeout)
	if p.cache != nil {
		var cached TestResult
		if err := p.cache.Get(ctx, key, &cached); err == nil {
			if p.metrics != nil {
				p.metrics.ObserveCacheLookup(true)
			}
			return cached
		}
		if p.metrics != nil {
			p.metrics.ObserveCacheLookup(false)
		}
	}

	result := p.liveTest(ctx, tag, url, timeout)

	if p.cache != nil {
		_ = p.cache.Set(ctx, key, result, cacheTTL)
	}
	return result
}

func (p *Prober) liveTest(ctx context.Context, tag, url string, timeout time.Duration) TestResult {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(runCtx, http.MethodHead, url, nil)
	if err != nil {
		return p.record(tag, TestResult{Success: false, Error: err.Error()}, 0)
	}

	var resp *http.Response
	retryErr := resilience.WithRetry(runCtx, &resilience.RetryPolicy{
		MaxRetries:    1,
		BaseDelay:     50 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		Multiplier:    2,
		Metrics:       p.retryMetrics,
		OperationName: "outbound_probe",
	}, func() error {
		var doErr error
		resp, doErr = p.client.Do(req)
		return doErr
	})
	latency := time.Since(start)

	if retryErr != nil {
		if runCtx.Err() != nil {
			return p.record(tag, TestResult{Success: false, Latency: latency, Error: "Connection timeout"}, latency)
		}
		return p.record(tag, TestResult{Success: false, Latency: latency, Error: retryErr.Error()}, latency)
	}
	defer resp.Body.Close()

	success := resp.StatusCode == http.StatusNoContent || (resp.StatusCode >= 200 && resp.StatusCode < 300)
	return p.record(tag, TestResult{Success: success, Latency: latency}, latency)
}

func (p *Prober) record(tag string, result TestResult, latency time.Duration) TestResult {
	if p.metrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		p.metrics.ObserveProbe(tag, outcome, latency)
	}
	return result
}

// Latency calls Test serially samples times (DefaultSamples when zero or
// negative) and averages (integer-rounded) the successful latencies. If
// none succeeded, Latency is nil and Error carries the last failure, or a
// generic message if every attempt somehow returned no error text.
func (p *Prober) Latency(ctx context.Context, tag, url string, timeout time.Duration, samples int) (LatencyResult, error) {
	if err := p.requireTag(ctx, tag); err != nil {
		return LatencyResult{}, err
	}
	if samples <= 0 {
		samples = DefaultSamples
	}

	var successes []time.Duration
	var lastErr string
	for i := 0; i < samples; i++ {
		result := p.test(ctx, tag, url, timeout)
		if result.Success {
			successes = append(successes, result.Latency)
		} else if result.Error != "" {
			lastErr = result.Error
		}
	}

	if len(successes) == 0 {
		if lastErr == "" {
			lastErr = "All samples failed"
		}
		return LatencyResult{Samples: successes, Error: lastErr}, nil
	}

	var total time.Duration
	for _, d := range successes {
		total += d
	}
	avg := time.Duration(roundDiv(int64(total), int64(len(successes))))
	return LatencyResult{Latency: &avg, Samples: successes}, nil
}

func roundDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

func cacheKey(tag, url string, timeout time.Duration) string {
	return fmt.Sprintf("prober:%s:%s:%d", tag, url, timeout.Milliseconds())
}
