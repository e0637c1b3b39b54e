package imagepipeline

import (
	"context"
	"fmt"

	"github.com/brewradar/coffeescan/internal/model"
)

// ErrImageWorkDuringPriceOnly is returned by every guard layer when image
// work is attempted on a price-only job; spec invariant #3 treats any such
// attempt as a test failure, so this is deliberately loud rather than a
// silent no-op error.
var ErrImageWorkDuringPriceOnly = fmt.Errorf("imagepipeline: image operation attempted during price-only run")

// Guard is the three-layer hard gate spec §4.6 requires so no single bug
// can re-enable image work under a price-only job: one check at artifact
// mapping time (before images are even read off the artifact), one at the
// write-path boundary (before persisted image rows are built), and one
// inside the CDN client itself (before any byte leaves the process).
// All three wrap the same Allow check; the layering is about where the
// check is called from, not about having three different rules.
type Guard struct {
	jobType model.JobType
}

func NewGuard(jobType model.JobType) Guard {
	return Guard{jobType: jobType}
}

// Allow is true only for full-refresh jobs. Every layer calls this; none
// inlines the comparison itself, so the single source of truth for "is
// this a price-only run" lives here.
func (g Guard) Allow() bool {
	return g.jobType == model.JobFullRefresh
}

// MapArtifactImages is layer 1, called from the normalizer/artifact-mapping
// step: on a price-only run it drops the image slice before it ever
// reaches the write path, logging a warning via the returned bool so the
// caller can record it.
func (g Guard) MapArtifactImages(images []model.CanonicalImage) ([]model.CanonicalImage, bool) {
	if g.Allow() {
		return images, false
	}
	return nil, len(images) > 0
}

// CheckWritePath is layer 2, called immediately before the write path would
// persist any image rows.
func (g Guard) CheckWritePath() error {
	if !g.Allow() {
		return ErrImageWorkDuringPriceOnly
	}
	return nil
}

// CheckCDNCall is layer 3, called from inside the CDN client itself before
// any network call, so even a caller that bypasses layers 1 and 2 entirely
// (a bug, a future code path) still cannot push bytes to the CDN during a
// price-only run.
func (g Guard) CheckCDNCall(ctx context.Context) error {
	if !g.Allow() {
		return ErrImageWorkDuringPriceOnly
	}
	return nil
}

// GuardedCDNClient wraps CDNClient with the layer-3 check, so any caller
// that holds a *GuardedCDNClient (rather than the bare *CDNClient) gets the
// guard applied automatically on every Upload call.
type GuardedCDNClient struct {
	*CDNClient
	guard Guard
}

func NewGuardedCDNClient(cdn *CDNClient, guard Guard) *GuardedCDNClient {
	return &GuardedCDNClient{CDNClient: cdn, guard: guard}
}

func (g *GuardedCDNClient) Upload(ctx context.Context, contentHash string, data []byte, contentType string) (string, error) {
	if err := g.guard.CheckCDNCall(ctx); err != nil {
		return "", err
	}
	return g.CDNClient.Upload(ctx, contentHash, data, contentType)
}
