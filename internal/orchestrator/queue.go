// Package orchestrator implements spec §4.1: cadence-driven job enqueue, a
// global worker pool with per-roaster concurrency caps, exponential
// backoff with jitter, and write-path backpressure. Grounded on the
// teacher's internal/scheduler (YAML-configured Job/JobConfig shape,
// generalized here to roaster cadences instead of scan-type cadences) and
// internal/infrastructure/async.WorkerPool (the Submit/worker/processTask
// channel-based pool, kept nearly as-is and extended with the per-roaster
// semaphore and backpressure cooldown spec §4.1/§5 add).
package orchestrator

import (
	"container/heap"
	"sync"
	"time"

	"github.com/brewradar/coffeescan/internal/model"
)

// jobItem is one entry in the ready-to-run priority queue, ordered by
// (enqueuedAt, jobId) per spec §4.1's FIFO fairness requirement, with
// Retrying jobs additionally gated by readyAt.
type jobItem struct {
	job   model.Job
	index int
}

type jobQueue []*jobItem

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].job.EnqueuedAt.Equal(q[j].job.EnqueuedAt) {
		return q[i].job.JobID < q[j].job.JobID
	}
	return q[i].job.EnqueuedAt.Before(q[j].job.EnqueuedAt)
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

func (q *jobQueue) Push(x any) {
	item := x.(*jobItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// Queue is a thread-safe FIFO-by-(enqueuedAt,jobId) job queue. enqueue is
// idempotent for a (roasterId, jobType, dueAt-bucket) tuple per spec §4.1:
// duplicate enqueues within one cadence bucket are collapsed by the
// Scheduler before they ever reach the Queue, so the Queue itself is a
// plain ordered buffer.
type Queue struct {
	mu      sync.Mutex
	ready   jobQueue
	delayed []model.Job // Retrying jobs waiting for their readyAt
}

func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.ready)
	return q
}

// Enqueue adds a job that is immediately eligible to run.
func (q *Queue) Enqueue(job model.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.ready, &jobItem{job: job})
}

// EnqueueDelayed adds a Retrying job that becomes eligible at job.ReadyAt.
func (q *Queue) EnqueueDelayed(job model.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, job)
}

// promoteDue moves any delayed jobs whose ReadyAt has passed into the
// ready heap. Called internally before every Dequeue.
func (q *Queue) promoteDue(now time.Time) {
	remaining := q.delayed[:0]
	for _, j := range q.delayed {
		if now.After(j.ReadyAt) || now.Equal(j.ReadyAt) {
			heap.Push(&q.ready, &jobItem{job: j})
		} else {
			remaining = append(remaining, j)
		}
	}
	q.delayed = remaining
}

// Dequeue pops the next ready job in FIFO order, or returns ok=false if
// nothing is ready.
func (q *Queue) Dequeue() (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.promoteDue(time.Now())
	if q.ready.Len() == 0 {
		return model.Job{}, false
	}
	item := heap.Pop(&q.ready).(*jobItem)
	return item.job, true
}

// Len reports the total number of jobs (ready plus delayed) held by the
// queue, for operator visibility.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len() + len(q.delayed)
}
