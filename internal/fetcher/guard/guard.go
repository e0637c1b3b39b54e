// Package guard combines rate limiting, circuit breaking, conditional-
// request caching, retry-with-backoff, and telemetry into one wrapper
// around a single outbound fetch call, per the per-request contract in
// spec §4.2. A Guard is shared across every call the fetcher makes to one
// roaster.
package guard

import (
	"context"
	"math/rand"
	"time"

	"github.com/brewradar/coffeescan/internal/net/ratelimit"
	"github.com/brewradar/coffeescan/internal/scanerr"
)

// Config tunes one roaster's guard. PoliteDelay/PoliteJitter implement the
// spec's 250ms ± 100ms per-domain politeness delay, bounded below by any
// robots.txt Crawl-Delay.
type Config struct {
	RateLimit    ratelimit.Config
	Circuit      CircuitConfig
	PITTTL       time.Duration
	PoliteDelay  time.Duration
	PoliteJitter time.Duration
	CrawlDelay   time.Duration
	MaxAttempts  int
	BaseDelay    time.Duration
	JitterPct    float64
}

// Fetch is the shape of the underlying HTTP call a Guard wraps. It
// receives headers already carrying any conditional-request additions.
type Fetch func(ctx context.Context, headers map[string]string) (*Response, error)

// Response is what the underlying fetch returns; NotModified short-
// circuits normalization per spec §4.2.
type Response struct {
	StatusCode   int
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
	DownloadMs   int64
}

// Guard wraps one roaster's outbound calls end to end.
type Guard struct {
	roasterID string
	config    Config
	rates     *ratelimit.Manager
	circuits  *CircuitManager
	cache     *PITCache
	telemetry *Telemetry
}

// New builds a Guard for one roaster, sharing the rate limiter and
// circuit manager with sibling guards (both are keyed internally by
// roaster ID) while keeping its own PIT cache and telemetry.
func New(roasterID string, config Config, rates *ratelimit.Manager, circuits *CircuitManager) *Guard {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.JitterPct <= 0 {
		config.JitterPct = 0.25
	}
	if config.PoliteDelay <= 0 {
		config.PoliteDelay = 250 * time.Millisecond
	}
	if config.PoliteJitter <= 0 {
		config.PoliteJitter = 100 * time.Millisecond
	}
	rates.Configure(roasterID, config.RateLimit)
	return &Guard{
		roasterID: roasterID,
		config:    config,
		rates:     rates,
		circuits:  circuits,
		cache:     NewPITCache(config.PITTTL),
		telemetry: NewTelemetry(),
	}
}

// Execute runs one politeness-delayed, rate-limited, circuit-guarded,
// retried fetch against url, adding conditional headers from the PIT
// cache and recording the result back into it.
func (g *Guard) Execute(ctx context.Context, op, url string, fn Fetch) (*Response, error) {
	if err := g.politenessWait(ctx); err != nil {
		return nil, scanerr.New(scanerr.KindCancelled, op, err)
	}

	if err := g.rates.Wait(ctx, g.roasterID); err != nil {
		return nil, scanerr.New(scanerr.KindCancelled, op, err)
	}

	if g.circuits.IsOpen(g.roasterID) {
		return nil, scanerr.Retryable(scanerr.KindTransientNetwork, op,
			errCircuitOpen, g.config.BaseDelay)
	}

	var lastErr error
	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			g.telemetry.RecordRetry()
			select {
			case <-time.After(g.backoff(attempt)):
			case <-ctx.Done():
				return nil, scanerr.New(scanerr.KindCancelled, op, ctx.Err())
			}
		}

		headers := make(map[string]string)
		g.cache.AddConditionalHeaders(url, headers)

		start := time.Now()
		raw, err := g.circuits.Call(g.roasterID, func() (any, error) {
			return fn(ctx, headers)
		})
		latency := time.Since(start)
		g.telemetry.RecordRequest(latency)

		if err != nil {
			g.telemetry.RecordFailure()
			lastErr = classifyFetchErr(op, err)
			if !scanerr.IsRetryable(lastErr) {
				return nil, lastErr
			}
			continue
		}

		resp := raw.(*Response)
		g.telemetry.RecordSuccess()

		if resp.NotModified {
			g.telemetry.RecordNotModified()
			return resp, nil
		}

		if isRetryableStatus(resp.StatusCode) {
			lastErr = scanerr.Retryable(scanerr.KindTransientNetwork, op,
				errHTTPStatus(resp.StatusCode), 0)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, scanerr.New(scanerr.KindPermanentHTTP, op, errHTTPStatus(resp.StatusCode))
		}

		g.cache.Store(url, resp.ETag, resp.LastModified)
		return resp, nil
	}

	return nil, lastErr
}

func (g *Guard) politenessWait(ctx context.Context) error {
	jitter := time.Duration(rand.Int63n(2*int64(g.config.PoliteJitter)+1)) - g.config.PoliteJitter
	delay := g.config.PoliteDelay + jitter
	if g.config.CrawlDelay > delay {
		delay = g.config.CrawlDelay
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff implements spec §4.1's 1s,2s,4s,8s,16s sequence with ±25%
// jitter, generalized to any base delay.
func (g *Guard) backoff(attempt int) time.Duration {
	base := g.config.BaseDelay << uint(attempt-2)
	jitterRange := float64(base) * g.config.JitterPct
	jitter := time.Duration((rand.Float64()*2 - 1) * jitterRange)
	d := base + jitter
	if d < 0 {
		d = base
	}
	return d
}

// Telemetry exposes this roaster's fetch counters for the health surface.
func (g *Guard) Telemetry() Snapshot { return g.telemetry.Snapshot() }

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func classifyFetchErr(op string, err error) *scanerr.Error {
	var scerr *scanerr.Error
	if e, ok := err.(*scanerr.Error); ok {
		scerr = e
	}
	if scerr != nil {
		return scerr
	}
	return scanerr.Retryable(scanerr.KindTransientNetwork, op, err, 0)
}
