package orchestrator

import (
	"sync"

	"github.com/brewradar/coffeescan/internal/model"
)

// RoasterRegistry is the in-process, thread-safe roaster set backing both
// RoasterLister (for the Scheduler) and RoasterStore (for the WorkerPool).
// The set itself is loaded from operator configuration (spec §1 non-goal:
// roaster discovery is external input); this type only owns the runtime
// mutations - consecutive-failure tracking and deactivation.
type RoasterRegistry struct {
	mu       sync.RWMutex
	roasters map[string]model.Roaster
}

func NewRoasterRegistry(seed []model.Roaster) *RoasterRegistry {
	reg := &RoasterRegistry{roasters: make(map[string]model.Roaster, len(seed))}
	for _, r := range seed {
		reg.roasters[r.ID] = r
	}
	return reg
}

// ListActive returns every roaster not marked Inactive.
func (reg *RoasterRegistry) ListActive() []model.Roaster {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]model.Roaster, 0, len(reg.roasters))
	for _, r := range reg.roasters {
		if !r.Inactive {
			out = append(out, r)
		}
	}
	return out
}

// Get looks up one roaster by ID regardless of active state.
func (reg *RoasterRegistry) Get(roasterID string) (model.Roaster, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.roasters[roasterID]
	return r, ok
}

// Upsert adds or replaces a roaster's configuration.
func (reg *RoasterRegistry) Upsert(r model.Roaster) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.roasters[r.ID] = r
}

// RecordOutcome applies spec §4.1's roaster-inactive rule: a permanent
// job failure increments the roaster's consecutive-failure count, and
// once it reaches the limit the roaster is deactivated until an operator
// re-enables it. Any non-permanent-failure outcome (success or a job still
// retrying) resets the counter.
func (reg *RoasterRegistry) RecordOutcome(roasterID string, permanentFailure bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.roasters[roasterID]
	if !ok {
		return
	}
	if permanentFailure {
		r.ConsecutivePermanentFails++
		if ShouldDeactivate(r) {
			r.Inactive = true
			r.ConsecutivePermanentFails = 0
		}
	} else {
		r.ConsecutivePermanentFails = 0
	}
	reg.roasters[r.ID] = r
}
