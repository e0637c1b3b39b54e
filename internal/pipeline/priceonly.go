package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/brewradar/coffeescan/internal/fetcher"
	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/orchestrator"
	"github.com/brewradar/coffeescan/internal/scanerr"
	"github.com/brewradar/coffeescan/internal/writepath"
)

// JobEnqueuer is the narrow surface PriceOnlyRunner needs from
// orchestrator.Queue, so this package depends on the interface rather
// than the concrete queue type.
type JobEnqueuer interface {
	Enqueue(job model.Job)
}

// PriceOnlyRunner executes spec §4.1's price-only job: fetch the
// lightweight price listing and append price points via the write path's
// per-variant branch, without re-running images or the normalizer's full
// parser chain. It implements orchestrator.Runner.
type PriceOnlyRunner struct {
	Fetcher   *fetcher.Fetcher
	WritePath *writepath.WritePath
	Queue     JobEnqueuer
}

func (r *PriceOnlyRunner) Run(ctx context.Context, job model.Job, roaster model.Roaster) orchestrator.Outcome {
	projections, fetchErrs := r.Fetcher.FetchPriceListing(ctx, &roaster)

	var processed, escalated int
	for proj := range projections {
		normalized := model.NormalizedProduct{
			RoasterID:         roaster.ID,
			PlatformProductID: proj.PlatformProductID,
		}
		for _, v := range proj.Variants {
			price, err := decimal.NewFromString(v.Price)
			if err != nil {
				log.Warn().Str("roaster_id", roaster.ID).Str("variant_id", v.PlatformVariantID).
					Err(err).Msg("price-only: unparsable price, skipping variant")
				continue
			}
			normalized.Variants = append(normalized.Variants, model.CanonicalVariant{
				PlatformVariantID: v.PlatformVariantID,
				Price:             price,
				Currency:          v.Currency,
				InStock:           v.InStock,
			})
		}

		needsFullRefresh, err := r.WritePath.ApplyPriceOnly(ctx, roaster, normalized)
		if err != nil {
			log.Warn().Str("roaster_id", roaster.ID).Str("platform_product_id", proj.PlatformProductID).
				Err(err).Msg("price-only: write path failed for product, skipping")
			continue
		}
		if needsFullRefresh {
			r.Queue.Enqueue(model.Job{
				JobID:      uuid.NewString(),
				RoasterID:  roaster.ID,
				Type:       model.JobFullRefresh,
				EnqueuedAt: time.Now(),
				Status:     model.JobQueued,
			})
			escalated++
		}
		processed++
	}

	if err := <-fetchErrs; err != nil {
		return orchestrator.Outcome{Retryable: scanerr.IsRetryable(err), Err: err, RetryAfter: retryAfterOf(err)}
	}

	log.Info().Str("roaster_id", roaster.ID).Str("job_id", job.JobID).
		Int("processed", processed).Int("escalated_to_full_refresh", escalated).Msg("price-only run complete")
	return orchestrator.Outcome{Err: nil}
}
