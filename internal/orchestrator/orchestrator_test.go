package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/net/circuit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDequeuesInEnqueueOrder(t *testing.T) {
	q := NewQueue()
	base := time.Now()
	q.Enqueue(model.Job{JobID: "b", EnqueuedAt: base})
	q.Enqueue(model.Job{JobID: "a", EnqueuedAt: base})
	q.Enqueue(model.Job{JobID: "c", EnqueuedAt: base.Add(time.Second)})

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", first.JobID) // tie-broken by JobID

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", second.JobID)

	third, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "c", third.JobID)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueuePromotesDelayedJobWhenReady(t *testing.T) {
	q := NewQueue()
	q.EnqueueDelayed(model.Job{JobID: "delayed", ReadyAt: time.Now().Add(-time.Millisecond)})

	_, ok := q.Dequeue()
	require.True(t, ok)
}

func TestQueueDoesNotPromoteDelayedJobEarly(t *testing.T) {
	q := NewQueue()
	q.EnqueueDelayed(model.Job{JobID: "future", ReadyAt: time.Now().Add(time.Hour)})

	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())
}

func TestBackoffDelayHonorsRetryAfter(t *testing.T) {
	d := BackoffDelay(1, 30*time.Second)
	assert.Equal(t, 30*time.Second, d)
}

func TestBackoffDelayGrowsAndJitters(t *testing.T) {
	d1 := BackoffDelay(1, 0)
	d5 := BackoffDelay(5, 0)
	d9 := BackoffDelay(9, 0) // beyond table length, clamps to last entry

	assert.InDelta(t, float64(time.Second), float64(d1), float64(250*time.Millisecond))
	assert.InDelta(t, float64(16*time.Second), float64(d5), float64(4*time.Second))
	assert.InDelta(t, float64(16*time.Second), float64(d9), float64(4*time.Second))
}

func TestNextStateSucceeds(t *testing.T) {
	job := model.Job{JobID: "j1", Status: model.JobRunning}
	next := NextState(job, Outcome{Err: nil})
	assert.Equal(t, model.JobSucceeded, next.Status)
}

func TestNextStateRetriesTransientFailure(t *testing.T) {
	job := model.Job{JobID: "j1", Status: model.JobRunning, Attempt: 1}
	next := NextState(job, Outcome{Retryable: true, Err: errors.New("timeout")})
	assert.Equal(t, model.JobRetrying, next.Status)
	assert.Equal(t, 2, next.Attempt)
	assert.True(t, next.ReadyAt.After(time.Now()))
}

func TestNextStateFailsPermanentlyOnNonRetryable(t *testing.T) {
	job := model.Job{JobID: "j1", Status: model.JobRunning}
	next := NextState(job, Outcome{Retryable: false, Err: errors.New("validation")})
	assert.Equal(t, model.JobPermanentlyFailed, next.Status)
}

func TestNextStateFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	job := model.Job{JobID: "j1", Status: model.JobRunning, Attempt: maxAttempts}
	next := NextState(job, Outcome{Retryable: true, Err: errors.New("timeout")})
	assert.Equal(t, model.JobPermanentlyFailed, next.Status)
}

func TestShouldDeactivateAtThreshold(t *testing.T) {
	r := model.Roaster{ConsecutivePermanentFails: consecutivePermanentFailureLimit}
	assert.True(t, ShouldDeactivate(r))

	r.ConsecutivePermanentFails = consecutivePermanentFailureLimit - 1
	assert.False(t, ShouldDeactivate(r))
}

func TestRoasterRegistryDeactivatesAfterConsecutiveFailures(t *testing.T) {
	reg := NewRoasterRegistry([]model.Roaster{{ID: "r1"}})

	for i := 0; i < consecutivePermanentFailureLimit-1; i++ {
		reg.RecordOutcome("r1", true)
		r, _ := reg.Get("r1")
		assert.False(t, r.Inactive)
	}
	reg.RecordOutcome("r1", true)

	r, ok := reg.Get("r1")
	require.True(t, ok)
	assert.True(t, r.Inactive)
	assert.Empty(t, reg.ListActive())
}

func TestRoasterRegistryResetsCounterOnSuccess(t *testing.T) {
	reg := NewRoasterRegistry([]model.Roaster{{ID: "r1"}})
	reg.RecordOutcome("r1", true)
	reg.RecordOutcome("r1", false)

	r, _ := reg.Get("r1")
	assert.Equal(t, 0, r.ConsecutivePermanentFails)
	assert.False(t, r.Inactive)
}

// stubRunner always returns the configured outcome.
type stubRunner struct {
	outcome Outcome
}

func (r *stubRunner) Run(ctx context.Context, job model.Job, roaster model.Roaster) Outcome {
	return r.outcome
}

func TestWorkerPoolRunsJobToSuccess(t *testing.T) {
	queue := NewQueue()
	queue.Enqueue(model.Job{JobID: "j1", RoasterID: "r1", Status: model.JobQueued})

	reg := NewRoasterRegistry([]model.Roaster{{ID: "r1"}})
	jobs := NewMemoryJobStore()
	runner := &stubRunner{outcome: Outcome{Err: nil}}
	breaker := circuit.NewBreaker(circuit.Config{FailureThreshold: 3, RequestTimeout: time.Second})

	pool := NewWorkerPool(queue, runner, reg, jobs, breaker, 2)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		j, ok := jobs.Get("j1")
		return ok && j.Status == model.JobSucceeded
	}, time.Second, 10*time.Millisecond)

	cancel()
	pool.Stop()
}

func TestWorkerPoolDropsJobForUnknownRoaster(t *testing.T) {
	queue := NewQueue()
	queue.Enqueue(model.Job{JobID: "j1", RoasterID: "ghost", Status: model.JobQueued})

	reg := NewRoasterRegistry(nil)
	jobs := NewMemoryJobStore()
	runner := &stubRunner{outcome: Outcome{Err: nil}}
	breaker := circuit.NewBreaker(circuit.Config{FailureThreshold: 3, RequestTimeout: time.Second})

	pool := NewWorkerPool(queue, runner, reg, jobs, breaker, 1)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	_, ok := jobs.Get("j1")
	assert.False(t, ok)

	cancel()
	pool.Stop()
}
