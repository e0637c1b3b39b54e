package orchestrator

import (
	"context"
	"testing"

	"github.com/brewradar/coffeescan/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoasterLister struct {
	roasters []model.Roaster
}

func (f fakeRoasterLister) ListActive() []model.Roaster { return f.roasters }

type fakeRobots struct {
	allowed map[string]bool
}

func (f fakeRobots) Allowed(ctx context.Context, roaster model.Roaster) (bool, error) {
	return f.allowed[roaster.ID], nil
}

func TestSchedulerEnqueuesMatchingRoastersOnce(t *testing.T) {
	roaster := model.Roaster{ID: "r1"}
	lister := fakeRoasterLister{roasters: []model.Roaster{roaster}}
	robots := fakeRobots{allowed: map[string]bool{"r1": true}}

	queue := NewQueue()
	s := NewScheduler(queue, lister, robots)

	s.enqueueDue(model.DefaultFullCadence, model.JobFullRefresh)
	assert.Equal(t, 1, queue.Len())

	// Firing the same cadence bucket again must not double-enqueue.
	s.enqueueDue(model.DefaultFullCadence, model.JobFullRefresh)
	assert.Equal(t, 1, queue.Len())

	job, ok := queue.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "r1", job.RoasterID)
	assert.Equal(t, model.JobFullRefresh, job.Type)
}

func TestSchedulerSkipsRoasterDisallowedByRobots(t *testing.T) {
	roaster := model.Roaster{ID: "r1"}
	lister := fakeRoasterLister{roasters: []model.Roaster{roaster}}
	robots := fakeRobots{allowed: map[string]bool{"r1": false}}

	queue := NewQueue()
	s := NewScheduler(queue, lister, robots)
	s.enqueueDue(model.DefaultFullCadence, model.JobFullRefresh)

	assert.Equal(t, 0, queue.Len())
}

func TestSchedulerIgnoresNonMatchingCadence(t *testing.T) {
	roaster := model.Roaster{ID: "r1", FullCadence: "0 3 15 * *"}
	lister := fakeRoasterLister{roasters: []model.Roaster{roaster}}
	robots := fakeRobots{allowed: map[string]bool{"r1": true}}

	queue := NewQueue()
	s := NewScheduler(queue, lister, robots)
	s.enqueueDue(model.DefaultFullCadence, model.JobFullRefresh)

	assert.Equal(t, 0, queue.Len())
}
