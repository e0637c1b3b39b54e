package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/net/circuit"
	"github.com/rs/zerolog/log"
)

// Runner executes one job attempt. Implemented by internal/pipeline's
// full-refresh and price-only job runners.
type Runner interface {
	Run(ctx context.Context, job model.Job, roaster model.Roaster) Outcome
}

// RoasterStore is the narrow view of roaster state the pool needs: look up
// a roaster's cadence/concurrency config and track consecutive permanent
// failures for the spec §4.1 deactivation rule.
type RoasterStore interface {
	Get(roasterID string) (model.Roaster, bool)
	RecordOutcome(roasterID string, permanentFailure bool)
}

// JobStore persists job status transitions for operator visibility.
type JobStore interface {
	Save(ctx context.Context, job model.Job)
}

// pollInterval is how often an idle worker rechecks the queue for newly
// ready (including promoted-from-delayed) jobs.
const pollInterval = 200 * time.Millisecond

// WorkerPool runs jobs pulled from a Queue, adapted from the teacher's
// internal/infrastructure/async.WorkerPool Submit/worker/processTask
// pattern: fixed goroutines pulling from a shared source instead of a
// per-task channel send, extended with a per-roaster semaphore (spec
// §4.1's "bounded concurrency per roaster") and a circuit breaker guarding
// the write path from pile-on during an outage (spec §5 backpressure).
type WorkerPool struct {
	queue    *Queue
	runner   Runner
	roasters RoasterStore
	jobs     JobStore
	breaker  *circuit.Breaker

	workers int

	mu   sync.Mutex
	sems map[string]chan struct{} // roasterID -> semaphore

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool builds a pool of workers workers. breaker gates write-path
// calls: when it trips open, jobs are deferred to retry instead of
// executed, so a struggling database doesn't get piled onto.
func NewWorkerPool(queue *Queue, runner Runner, roasters RoasterStore, jobs JobStore, breaker *circuit.Breaker, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 16
	}
	return &WorkerPool{
		queue:    queue,
		runner:   runner,
		roasters: roasters,
		jobs:     jobs,
		breaker:  breaker,
		workers:  workers,
		sems:     make(map[string]chan struct{}),
	}
}

// Start launches the worker goroutines. Call Stop to shut down.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to exit and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, ok := p.queue.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		p.processJob(ctx, job)
	}
}

func (p *WorkerPool) processJob(ctx context.Context, job model.Job) {
	roaster, ok := p.roasters.Get(job.RoasterID)
	if !ok || roaster.Inactive {
		log.Warn().Str("job_id", job.JobID).Str("roaster_id", job.RoasterID).
			Msg("dropping job for unknown or inactive roaster")
		return
	}

	sem := p.roasterSem(roaster)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		p.queue.EnqueueDelayed(job)
		return
	}
	defer func() { <-sem }()

	job.Status = model.JobRunning
	p.jobs.Save(ctx, job)

	var outcome Outcome
	breakerErr := p.breaker.Call(ctx, func(ctx context.Context) error {
		outcome = p.runner.Run(ctx, job, roaster)
		return outcome.Err
	})

	if breakerErr != nil && outcome.Err == nil {
		// Circuit open or call timeout: the breaker rejected the attempt
		// before (or instead of) the runner producing its own outcome.
		// Treat as transient backpressure rather than a job-level failure.
		outcome = Outcome{Retryable: true, Err: breakerErr}
	}

	next := NextState(job, outcome)
	p.jobs.Save(ctx, next)

	switch next.Status {
	case model.JobRetrying:
		p.queue.EnqueueDelayed(next)
		p.roasters.RecordOutcome(roaster.ID, false)
	case model.JobPermanentlyFailed:
		p.roasters.RecordOutcome(roaster.ID, true)
		log.Error().Str("job_id", job.JobID).Str("roaster_id", job.RoasterID).
			Err(outcome.Err).Msg("job permanently failed")
	case model.JobSucceeded:
		p.roasters.RecordOutcome(roaster.ID, false)
	}
}

func (p *WorkerPool) roasterSem(roaster model.Roaster) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.sems[roaster.ID]
	if !ok {
		sem = make(chan struct{}, roaster.EffectiveConcurrency())
		p.sems[roaster.ID] = sem
	}
	return sem
}
