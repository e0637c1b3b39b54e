package orchestrator

import (
	"context"
	"sync"

	"github.com/brewradar/coffeescan/internal/model"
	"github.com/rs/zerolog/log"
)

// MemoryJobStore keeps the latest known state of every job for operator
// inspection. A production deployment would back JobStore with the same
// Postgres instance internal/writepath writes to; this in-process store is
// the minimal implementation the orchestrator needs to function standalone.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]model.Job)}
}

func (s *MemoryJobStore) Save(ctx context.Context, job model.Job) {
	s.mu.Lock()
	s.jobs[job.JobID] = job
	s.mu.Unlock()

	log.Debug().
		Str("job_id", job.JobID).
		Str("roaster_id", job.RoasterID).
		Str("type", string(job.Type)).
		Str("status", string(job.Status)).
		Int("attempt", job.Attempt).
		Msg("job state updated")
}

func (s *MemoryJobStore) Get(jobID string) (model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	return j, ok
}
