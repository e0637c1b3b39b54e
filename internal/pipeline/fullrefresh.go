package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brewradar/coffeescan/internal/artifactstore"
	"github.com/brewradar/coffeescan/internal/fetcher"
	"github.com/brewradar/coffeescan/internal/imagepipeline"
	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/normalizer"
	"github.com/brewradar/coffeescan/internal/orchestrator"
	"github.com/brewradar/coffeescan/internal/scanerr"
	"github.com/brewradar/coffeescan/internal/validator"
	"github.com/brewradar/coffeescan/internal/writepath"
)

// artifactSourceFor maps a roaster's platform to the ArtifactSource tag
// stored alongside its raw payloads.
func artifactSourceFor(platform model.Platform) model.ArtifactSource {
	switch platform {
	case model.PlatformShopify:
		return model.SourceShopify
	case model.PlatformWoo:
		return model.SourceWoo
	default:
		return model.SourceFallback
	}
}

// FullRefreshRunner executes spec §4.1's full-refresh job: discover every
// product, validate, persist the raw payload, normalize, re-run images,
// and upsert through the write path's change-detection branch. It
// implements orchestrator.Runner. Grounded on the teacher's
// PipelineExecutor step sequence, specialized to this one domain chain
// instead of a configurable named-step list.
type FullRefreshRunner struct {
	Fetcher    *fetcher.Fetcher
	Store      *artifactstore.Store
	Validator  *validator.Validator
	NormConfig normalizer.Config
	Resolver   normalizer.LLMResolver
	WritePath  *writepath.WritePath
}

func (r *FullRefreshRunner) Run(ctx context.Context, job model.Job, roaster model.Roaster) orchestrator.Outcome {
	runID := uuid.NewString()
	products, discoverErrs := r.Fetcher.DiscoverProducts(ctx, &roaster)

	var processed, skipped int
	for raw := range products {
		if err := r.processOne(ctx, roaster, runID, job, raw); err != nil {
			skipped++
			log.Warn().Str("roaster_id", roaster.ID).Str("platform_product_id", raw.PlatformProductID).
				Err(err).Msg("full refresh: skipping product")
			continue
		}
		processed++
	}

	if err := <-discoverErrs; err != nil {
		return orchestrator.Outcome{Retryable: scanerr.IsRetryable(err), Err: err, RetryAfter: retryAfterOf(err)}
	}

	log.Info().Str("roaster_id", roaster.ID).Str("job_id", job.JobID).
		Int("processed", processed).Int("skipped", skipped).Msg("full refresh complete")
	return orchestrator.Outcome{Err: nil}
}

// processOne runs one product through validate -> persist raw -> normalize
// -> write path. A non-retryable validation error here only drops this
// one product; it does not fail the job.
func (r *FullRefreshRunner) processOne(ctx context.Context, roaster model.Roaster, runID string, job model.Job, raw fetcher.RawProduct) error {
	scrapedAt := time.Now()
	source := artifactSourceFor(roaster.Platform)

	payload, productType, err := mapPayload(roaster, source, raw, scrapedAt)
	if err != nil {
		return err
	}

	result, err := r.Validator.Validate(payload)
	if err != nil {
		return err
	}

	rawPayloadHash := hashPayload(raw.Payload)
	if r.Store != nil {
		if _, err := r.Store.PersistRaw(ctx, model.RawArtifact{
			ArtifactID:       uuid.NewString(),
			RoasterID:        roaster.ID,
			RunID:            runID,
			Source:           source,
			ScrapedAt:        scrapedAt,
			RawPayload:       raw.Payload,
			RawPayloadHash:   rawPayloadHash,
			HTTPStatus:       raw.HTTPStatus,
			DownloadMs:       raw.DownloadMs,
			SizeBytes:        raw.SizeBytes,
			ValidationStatus: model.ValidationValid,
		}); err != nil {
			return err
		}
	}

	normConfig := r.NormConfig
	normConfig.LLMEnabled = r.Resolver != nil && roaster.LLMEnabled

	normalized, err := normalizer.Normalize(ctx, normalizer.Input{
		RoasterID:      roaster.ID,
		Artifact:       result.Artifact,
		RawPayloadHash: rawPayloadHash,
		ProductType:    productType,
	}, normConfig, r.Resolver)
	if err != nil {
		return err
	}
	normalized.Warnings = append(normalized.Warnings, result.Warnings...)

	// Layer 1 of spec §4.6's three-layer price-only image guard: drop
	// images here, before they ever reach the write path, if this job
	// somehow isn't really a full refresh (dispatcher misroute).
	guard := imagepipeline.NewGuard(job.Type)
	images, dropped := guard.MapArtifactImages(normalized.Images)
	normalized.Images = images
	if dropped {
		log.Warn().Str("roaster_id", roaster.ID).Str("job_id", job.JobID).
			Msg("full refresh: image guard dropped images for a non-full-refresh job")
	}

	_, err = r.WritePath.Apply(ctx, roaster, *normalized, guard)
	return err
}

func hashPayload(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// retryAfterOf extracts a *scanerr.Error's suggested retry delay, zero
// when err doesn't carry one.
func retryAfterOf(err error) time.Duration {
	var se *scanerr.Error
	if !errors.As(err, &se) {
		return 0
	}
	return se.RetryAfter()
}
