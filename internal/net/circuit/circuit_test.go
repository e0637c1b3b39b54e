package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_ClosedState(t *testing.T) {
	breaker := NewBreaker(Config{
		FailureThreshold: 3,
		RequestTimeout:   50 * time.Millisecond,
	})

	if breaker.State() != StateClosed {
		t.Errorf("breaker should start closed, got %s", breaker.State())
	}

	err := breaker.Call(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Errorf("successful call should not error: %v", err)
	}
	if breaker.State() != StateClosed {
		t.Errorf("breaker should remain closed after success, got %s", breaker.State())
	}
}

func TestBreaker_OpenOnFailures(t *testing.T) {
	breaker := NewBreaker(Config{
		FailureThreshold: 3,
		RequestTimeout:   50 * time.Millisecond,
		InitialCooldown:  time.Hour,
	})

	for i := 0; i < 3; i++ {
		if err := breaker.Call(context.Background(), func(ctx context.Context) error {
			return errors.New("fetch failed")
		}); err == nil {
			t.Error("failed call should return error")
		}
	}

	if breaker.State() != StateOpen {
		t.Errorf("breaker should be open after threshold failures, got %s", breaker.State())
	}

	err := breaker.Call(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker should return ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	breaker := NewBreaker(Config{
		FailureThreshold: 2,
		RequestTimeout:   100 * time.Millisecond,
		InitialCooldown:  30 * time.Millisecond,
	})

	for i := 0; i < 2; i++ {
		breaker.Call(context.Background(), func(ctx context.Context) error {
			return errors.New("fail")
		})
	}
	if breaker.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(40 * time.Millisecond)

	err := breaker.Call(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Errorf("first call after cooldown should be allowed through: %v", err)
	}
	if breaker.State() != StateClosed {
		t.Errorf("breaker should close on the half-open probe's success, got %s", breaker.State())
	}
}

func TestBreaker_HalfOpenFailureGrowsCooldown(t *testing.T) {
	breaker := NewBreaker(Config{
		FailureThreshold: 1,
		RequestTimeout:   100 * time.Millisecond,
		InitialCooldown:  20 * time.Millisecond,
		MaxCooldown:      time.Second,
	})

	breaker.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	if breaker.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(30 * time.Millisecond)

	err := breaker.Call(context.Background(), func(ctx context.Context) error {
		return errors.New("half-open failure")
	})
	if err == nil {
		t.Error("failed probe should return error")
	}
	if breaker.State() != StateOpen {
		t.Errorf("breaker should reopen after a half-open failure, got %s", breaker.State())
	}

	stats := breaker.Stats()
	if stats.Cooldown <= 20*time.Millisecond {
		t.Errorf("cooldown should have grown past its initial value, got %s", stats.Cooldown)
	}
}

func TestBreaker_RequestTimeout(t *testing.T) {
	breaker := NewBreaker(Config{
		FailureThreshold: 2,
		RequestTimeout:   20 * time.Millisecond,
	})

	err := breaker.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrRequestTimeout) {
		t.Errorf("should return ErrRequestTimeout, got %v", err)
	}

	stats := breaker.Stats()
	if stats.TotalFailure == 0 {
		t.Error("a timeout should count as a failure")
	}
}

func TestBreaker_Stats(t *testing.T) {
	breaker := NewBreaker(Config{FailureThreshold: 5, RequestTimeout: 50 * time.Millisecond})

	breaker.Call(context.Background(), func(ctx context.Context) error { return nil })
	breaker.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	breaker.Call(context.Background(), func(ctx context.Context) error { return nil })

	stats := breaker.Stats()
	if stats.TotalCalls != 3 {
		t.Errorf("expected 3 total calls, got %d", stats.TotalCalls)
	}
	if stats.TotalSuccess != 2 {
		t.Errorf("expected 2 successes, got %d", stats.TotalSuccess)
	}
	if stats.TotalFailure != 1 {
		t.Errorf("expected 1 failure, got %d", stats.TotalFailure)
	}
	if stats.State != StateClosed {
		t.Errorf("a single failure under threshold should stay closed, got %s", stats.State)
	}
}

func TestBreaker_Reset(t *testing.T) {
	breaker := NewBreaker(Config{FailureThreshold: 2, RequestTimeout: 50 * time.Millisecond})

	breaker.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	breaker.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	if breaker.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	breaker.Reset()

	if breaker.State() != StateClosed {
		t.Errorf("breaker should be closed after reset, got %s", breaker.State())
	}
	if stats := breaker.Stats(); stats.ConsecutiveFail != 0 {
		t.Errorf("consecutive failure count should reset to 0, got %d", stats.ConsecutiveFail)
	}
}
