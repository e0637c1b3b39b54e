// Package ratelimit provides per-roaster token-bucket rate limiting for
// outbound fetcher and LLM requests, built on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config is the politeness budget for one roaster: a base rate plus a burst
// allowance. Fetcher call sites additionally sleep a fixed politeness delay
// (spec §4.2) on top of whatever this limiter grants.
type Config struct {
	RPS   float64
	Burst int
}

// Manager holds one token bucket per roaster, created lazily on first use so
// roasters added at runtime don't need a pre-registration step.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	defaults Config
}

// NewManager creates a manager that falls back to defaultCfg for any
// roaster without an explicit override.
func NewManager(defaultCfg Config) *Manager {
	return &Manager{
		limiters: make(map[string]*rate.Limiter),
		defaults: defaultCfg,
	}
}

func (m *Manager) limiterFor(roasterID string, cfg Config) *rate.Limiter {
	m.mu.RLock()
	l, ok := m.limiters[roasterID]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[roasterID]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	m.limiters[roasterID] = l
	return l
}

// Configure installs a roaster-specific override, replacing the default.
func (m *Manager) Configure(roasterID string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[roasterID] = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
}

// Allow reports whether a request for roasterID may proceed immediately.
func (m *Manager) Allow(roasterID string) bool {
	return m.limiterFor(roasterID, m.defaults).Allow()
}

// Wait blocks until a token is available for roasterID or ctx is done.
func (m *Manager) Wait(ctx context.Context, roasterID string) error {
	return m.limiterFor(roasterID, m.defaults).Wait(ctx)
}

// Stats reports the current state of one roaster's bucket, used for
// operator visibility and backpressure decisions.
type Stats struct {
	RoasterID       string
	RPS             float64
	Burst           int
	TokensAvailable float64
	Delay           time.Duration
}

// Stat returns a point-in-time snapshot without consuming a token.
func (m *Manager) Stat(roasterID string) Stats {
	l := m.limiterFor(roasterID, m.defaults)
	r := l.Reserve()
	delay := r.Delay()
	r.Cancel()
	return Stats{
		RoasterID:       roasterID,
		RPS:             float64(l.Limit()),
		Burst:           l.Burst(),
		TokensAvailable: l.Tokens(),
		Delay:           delay,
	}
}

// Reset drops all per-roaster state, used in tests.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters = make(map[string]*rate.Limiter)
}
