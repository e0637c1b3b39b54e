package guard

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitManager owns one gobreaker.CircuitBreaker per roaster, tripping
// outbound HTTP to a roaster whose recent requests are mostly failing so
// the fetcher stops hammering a dead or blocking site. An open breaker
// surfaces as a retryable KindTransientNetwork error, which does not
// trigger the fetcher's fallback path.
type CircuitManager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	config   CircuitConfig
}

// CircuitConfig tunes every per-roaster breaker the manager creates.
type CircuitConfig struct {
	MaxHalfOpenRequests uint32
	OpenTimeout         time.Duration
	FailureRatio        float64
	MinRequests         uint32
}

func defaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		MaxHalfOpenRequests: 1,
		OpenTimeout:         30 * time.Second,
		FailureRatio:        0.5,
		MinRequests:         5,
	}
}

// NewCircuitManager builds a manager; a zero-value config falls back to
// sane defaults.
func NewCircuitManager(config CircuitConfig) *CircuitManager {
	if config.OpenTimeout <= 0 {
		config = defaultCircuitConfig()
	}
	return &CircuitManager{breakers: make(map[string]*gobreaker.CircuitBreaker), config: config}
}

func (m *CircuitManager) breakerFor(roasterID string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	b, ok := m.breakers[roasterID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[roasterID]; ok {
		return b
	}

	cfg := m.config
	settings := gobreaker.Settings{
		Name:        roasterID,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
	}
	b = gobreaker.NewCircuitBreaker(settings)
	m.breakers[roasterID] = b
	return b
}

// Call runs fn through roasterID's breaker.
func (m *CircuitManager) Call(roasterID string, fn func() (any, error)) (any, error) {
	return m.breakerFor(roasterID).Execute(fn)
}

// IsOpen reports whether roasterID's breaker is currently tripped.
func (m *CircuitManager) IsOpen(roasterID string) bool {
	return m.breakerFor(roasterID).State() == gobreaker.StateOpen
}

// State reports the gobreaker state string for operator visibility.
func (m *CircuitManager) State(roasterID string) string {
	return m.breakerFor(roasterID).State().String()
}
