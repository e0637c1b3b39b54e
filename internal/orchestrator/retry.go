package orchestrator

import (
	"math/rand"
	"time"

	"github.com/brewradar/coffeescan/internal/model"
)

// maxAttempts is spec §4.1's retry cap: up to 5 attempts for transient
// failures before a job is marked permanently failed.
const maxAttempts = 5

// consecutivePermanentFailureLimit is spec §4.1's roaster-inactive
// threshold.
const consecutivePermanentFailureLimit = 3

// backoffBase is the delay sequence spec §4.1 names: 1s, 2s, 4s, 8s, 16s.
var backoffBase = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// BackoffDelay returns the jittered delay before attempt (1-indexed)
// should retry, applying spec §4.1's ±25% jitter. retryAfter, when
// nonzero, overrides the computed delay per the "honor Retry-After when
// present" rule.
func BackoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffBase) {
		idx = len(backoffBase) - 1
	}
	base := backoffBase[idx]
	jitterRange := float64(base) * 0.25
	jitter := (rand.Float64()*2 - 1) * jitterRange
	return time.Duration(float64(base) + jitter)
}

// Outcome is what a job runner reports back to the orchestrator about one
// attempt.
type Outcome struct {
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

// NextState applies spec §4.1's state machine transition for a completed
// attempt: Queued -> Running already happened by the time NextState is
// called; this decides Running -> {Succeeded, Retrying, PermanentlyFailed}.
func NextState(job model.Job, outcome Outcome) model.Job {
	if outcome.Err == nil {
		job.Status = model.JobSucceeded
		return job
	}

	if !outcome.Retryable || job.Attempt >= maxAttempts {
		job.Status = model.JobPermanentlyFailed
		return job
	}

	job.Attempt++
	job.Status = model.JobRetrying
	job.ReadyAt = time.Now().Add(BackoffDelay(job.Attempt, outcome.RetryAfter))
	return job
}

// ShouldDeactivate applies spec §4.1's "3 consecutive permanent failures
// across runs" roaster-inactive rule.
func ShouldDeactivate(roaster model.Roaster) bool {
	return roaster.ConsecutivePermanentFails >= consecutivePermanentFailureLimit
}
