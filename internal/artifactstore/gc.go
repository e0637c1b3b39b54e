package artifactstore

import (
	"fmt"
	"os"
	"time"

	"github.com/brewradar/coffeescan/internal/model"
)

// RetentionPlan describes which artifacts a Sweep would remove, without
// touching disk. Grounded on the teacher's artifacts/gc plan-then-apply
// split, narrowed from the teacher's keep-N/pin/last-run rule set to a
// single age cutoff since spec §3's lifecycle summary only calls for a
// bounded replay window, not per-family retention policy.
type RetentionPlan struct {
	CutoffBefore time.Time
	ToDelete     []string // artifact IDs
	BytesFreed   int64
	KeptCount    int
}

// DefaultRetention is spec §3's raw-artifact replay window.
const DefaultRetention = 90 * 24 * time.Hour

// Plan computes which artifacts are older than retention, as of now.
// Artifacts whose payload file is shared with a newer artifact (two
// fetches that happened to produce byte-identical bodies) are only
// counted as bytes-freed once the last referencing entry is deleted.
func (s *Store) Plan(now time.Time, retention time.Duration) RetentionPlan {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := now.Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	refCount := make(map[string]int)
	for _, a := range s.index.Entries {
		if a.RawPayloadRef != "" {
			refCount[a.RawPayloadRef]++
		}
	}

	plan := RetentionPlan{CutoffBefore: cutoff}
	for _, a := range s.index.Entries {
		if a.ScrapedAt.Before(cutoff) {
			plan.ToDelete = append(plan.ToDelete, a.ArtifactID)
			refCount[a.RawPayloadRef]--
			if refCount[a.RawPayloadRef] == 0 {
				plan.BytesFreed += a.SizeBytes
			}
		} else {
			plan.KeptCount++
		}
	}
	return plan
}

// Sweep deletes every artifact (and any now-unreferenced payload file)
// older than retention, and rewrites the index. Nothing in this module
// calls it on a schedule; it runs only when a caller invokes it.
func (s *Store) Sweep(now time.Time, retention time.Duration) (RetentionPlan, error) {
	plan := s.Plan(now, retention)
	if len(plan.ToDelete) == 0 {
		return plan, nil
	}

	toDelete := make(map[string]bool, len(plan.ToDelete))
	for _, id := range plan.ToDelete {
		toDelete[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	refCount := make(map[string]int)
	kept := make([]model.RawArtifact, 0, len(s.index.Entries))
	for _, a := range s.index.Entries {
		if !toDelete[a.ArtifactID] {
			kept = append(kept, a)
			if a.RawPayloadRef != "" {
				refCount[a.RawPayloadRef]++
			}
		}
	}

	for _, a := range s.index.Entries {
		if toDelete[a.ArtifactID] && a.RawPayloadRef != "" && refCount[a.RawPayloadRef] == 0 {
			if err := os.Remove(a.RawPayloadRef); err != nil && !os.IsNotExist(err) {
				return plan, fmt.Errorf("artifactstore: removing payload %s: %w", a.RawPayloadRef, err)
			}
		}
	}

	s.index.Entries = kept
	s.byID = make(map[string]*model.RawArtifact, len(s.index.Entries))
	for i := range s.index.Entries {
		s.byID[s.index.Entries[i].ArtifactID] = &s.index.Entries[i]
	}

	if err := s.saveIndex(); err != nil {
		return plan, err
	}
	return plan, nil
}
