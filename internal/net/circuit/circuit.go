// Package circuit implements the write-path backpressure breaker from
// spec §4.1/§5: when the write path's error rate crosses a threshold, the
// orchestrator pauses new job dequeues for a cooldown that grows
// exponentially up to 5 minutes and resumes on first success.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen    = errors.New("write path circuit open: dequeue paused")
	ErrRequestTimeout = errors.New("write path call timed out")
)

// State is the breaker's current posture.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes when the breaker trips and how it recovers. MaxCooldown
// bounds the exponential backoff per spec §4.1 ("up to 5 min").
type Config struct {
	FailureThreshold int           // consecutive failures to open
	RequestTimeout   time.Duration // per-call deadline
	InitialCooldown  time.Duration
	MaxCooldown      time.Duration
}

// Breaker is a single write-path circuit; the orchestrator holds exactly
// one, since backpressure in spec §4.1 is a single sliding-window signal,
// not per-roaster.
type Breaker struct {
	mu              sync.Mutex
	config          Config
	state           State
	consecutiveFail int
	cooldown        time.Duration
	openedAt        time.Time

	totalCalls   int64
	totalSuccess int64
	totalFailure int64
}

// NewBreaker builds a breaker starting closed.
func NewBreaker(config Config) *Breaker {
	if config.InitialCooldown <= 0 {
		config.InitialCooldown = 5 * time.Second
	}
	if config.MaxCooldown <= 0 {
		config.MaxCooldown = 5 * time.Minute
	}
	return &Breaker{config: config, state: StateClosed, cooldown: config.InitialCooldown}
}

// Call runs fn if the breaker allows it, tracking the result.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if b.config.RequestTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.config.RequestTimeout)
		defer cancel()
	}

	b.mu.Lock()
	b.totalCalls++
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err != nil {
			b.recordFailure()
			return err
		}
		b.recordSuccess()
		return nil
	case <-callCtx.Done():
		b.recordFailure()
		return ErrRequestTimeout
	}
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalSuccess++
	b.consecutiveFail = 0
	b.cooldown = b.config.InitialCooldown
	b.state = StateClosed
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalFailure++
	b.consecutiveFail++

	if b.state == StateHalfOpen {
		b.growCooldown()
		b.state = StateOpen
		b.openedAt = time.Now()
		return
	}

	if b.consecutiveFail >= b.config.FailureThreshold {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

func (b *Breaker) growCooldown() {
	next := b.cooldown * 2
	if next > b.config.MaxCooldown {
		next = b.config.MaxCooldown
	}
	b.cooldown = next
}

// State reports the current posture for operator visibility.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time snapshot for logging/metrics.
type Stats struct {
	State           State
	TotalCalls      int64
	TotalSuccess    int64
	TotalFailure    int64
	ConsecutiveFail int
	Cooldown        time.Duration
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:           b.state,
		TotalCalls:      b.totalCalls,
		TotalSuccess:    b.totalSuccess,
		TotalFailure:    b.totalFailure,
		ConsecutiveFail: b.consecutiveFail,
		Cooldown:        b.cooldown,
	}
}

// Reset forces the breaker back to closed, used in tests and by operators.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFail = 0
	b.cooldown = b.config.InitialCooldown
}
