package pipeline

import (
	"context"
	"fmt"

	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/orchestrator"
)

// Dispatcher implements orchestrator.Runner by routing a job to the
// full-refresh or price-only runner by its JobType, so the worker pool
// only ever needs to hold one Runner regardless of how many job kinds
// exist.
type Dispatcher struct {
	FullRefresh *FullRefreshRunner
	PriceOnly   *PriceOnlyRunner
}

func (d *Dispatcher) Run(ctx context.Context, job model.Job, roaster model.Roaster) orchestrator.Outcome {
	switch job.Type {
	case model.JobFullRefresh:
		return d.FullRefresh.Run(ctx, job, roaster)
	case model.JobPriceOnly:
		return d.PriceOnly.Run(ctx, job, roaster)
	default:
		return orchestrator.Outcome{Err: fmt.Errorf("unknown job type %q", job.Type)}
	}
}
