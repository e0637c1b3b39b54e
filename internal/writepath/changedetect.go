package writepath

import (
	"context"
	"time"

	"github.com/brewradar/coffeescan/internal/imagepipeline"
	"github.com/brewradar/coffeescan/internal/model"
)

// maxWarningsBeforeReview and maxVariantDeltaBeforeReview are spec §4.7
// step 4's thresholds for flagging a coffee for manual review.
const (
	maxWarningsBeforeReview    = 2
	maxVariantDeltaBeforeReview = 3
)

// ImageProcessor is the narrow surface WritePath needs from
// internal/imagepipeline, so this package only depends on the
// interface, not the CDN/S3 machinery itself.
type ImageProcessor interface {
	ProcessProductImages(ctx context.Context, coffeeID string, images []model.CanonicalImage) ([]model.Image, error)
}

// Alerter receives price-spike signals; external to the core per spec
// §4.7 ("emit a price-spike signal (external to core)").
type Alerter interface {
	PriceSpike(ctx context.Context, signal PriceSpikeSignal)
}

// PriceSpikeSignal is emitted when a variant's price moves by at least the
// roaster's alert threshold between consecutive observations.
type PriceSpikeSignal struct {
	RoasterID         string
	CoffeeID          string
	PlatformVariantID string
	OldPrice          float64
	NewPrice          float64
	DeltaPct          float64
	ObservedAt        time.Time
}

// WritePath runs spec §4.7's change-detection algorithm: look up the
// stored coffee, diff content hashes, and route to either the
// price-only branch (append price points, skip images/LLM/text upserts)
// or the full branch (re-run images and upsert everything).
type WritePath struct {
	repo    Repo
	images  ImageProcessor
	alerter Alerter
}

func New(repo Repo, images ImageProcessor, alerter Alerter) *WritePath {
	return &WritePath{repo: repo, images: images, alerter: alerter}
}

// Apply is the entry point for a full-refresh job's write-path stage. p is
// the normalized product; roaster supplies the alert threshold. g is layer 2
// of spec §4.6's three-layer price-only image guard: even if a dispatcher
// bug routed a price-only job into this full-refresh entry point, g keeps
// applyFullUpsert from running the image pipeline for it.
func (w *WritePath) Apply(ctx context.Context, roaster model.Roaster, p model.NormalizedProduct, g imagepipeline.Guard) (model.Coffee, error) {
	stored, found, err := w.repo.GetCoffee(ctx, roaster.ID, p.PlatformProductID)
	if err != nil {
		return model.Coffee{}, err
	}

	if found && stored.ContentHash == p.ContentHash {
		return *stored, w.applyPriceOnly(ctx, roaster, stored.ID, p)
	}
	return w.applyFullUpsert(ctx, roaster, stored, p, g)
}

// ApplyPriceOnly is the price-only job's entry point: it never has a full
// NormalizedProduct to diff a content hash against, only variant/price
// data, so it looks up the stored coffee directly and runs the price-only
// branch. needsFullRefresh reports the spec §9 open-question resolution:
// a product seen in the price listing but never written before is a
// one-shot signal to schedule an immediate full refresh, not something
// this method writes partial data for.
func (w *WritePath) ApplyPriceOnly(ctx context.Context, roaster model.Roaster, p model.NormalizedProduct) (needsFullRefresh bool, err error) {
	stored, found, err := w.repo.GetCoffee(ctx, roaster.ID, p.PlatformProductID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return false, w.applyPriceOnly(ctx, roaster, stored.ID, p)
}

// applyPriceOnly implements spec §4.7 step 2's per-variant branch, shared
// by Apply's hash-unchanged path and ApplyPriceOnly's dedicated path.
func (w *WritePath) applyPriceOnly(ctx context.Context, roaster model.Roaster, coffeeID string, p model.NormalizedProduct) error {
	now := time.Now()
	for _, cv := range p.Variants {
		stored, found, err := w.repo.GetVariant(ctx, coffeeID, cv.PlatformVariantID)
		if err != nil {
			return err
		}

		newPrice, _ := cv.Price.Float64()
		priceChanged := found && !stored.PriceCurrent.Equal(cv.Price)
		stockChanged := found && stored.InStock != cv.InStock

		if !found || priceChanged || stockChanged {
			if found {
				oldPrice, _ := stored.PriceCurrent.Float64()
				if oldPrice > 0 {
					deltaPct := absFloat(newPrice-oldPrice) / oldPrice
					if deltaPct >= roaster.EffectiveAlertDeltaPct() {
						w.alerter.PriceSpike(ctx, PriceSpikeSignal{
							RoasterID:         roaster.ID,
							CoffeeID:          coffeeID,
							PlatformVariantID: cv.PlatformVariantID,
							OldPrice:          oldPrice,
							NewPrice:          newPrice,
							DeltaPct:          deltaPct,
							ObservedAt:        now,
						})
					}
				}
			}

			if err := w.repo.InsertPrice(ctx, model.PricePoint{
				VariantID: coffeeID + ":" + cv.PlatformVariantID,
				Price:     cv.Price,
				Currency:  cv.Currency,
				ScrapedAt: now,
			}); err != nil {
				return err
			}
			continue
		}

		if err := w.repo.UpdateVariantCheckedAt(ctx, coffeeID, cv.PlatformVariantID, now); err != nil {
			return err
		}
	}
	return nil
}

// applyFullUpsert implements spec §4.7 step 3: re-run images, upsert
// coffee/variants/prices/images.
func (w *WritePath) applyFullUpsert(ctx context.Context, roaster model.Roaster, stored *model.Coffee, p model.NormalizedProduct, g imagepipeline.Guard) (model.Coffee, error) {
	if err := g.CheckWritePath(); err != nil {
		return model.Coffee{}, err
	}

	found := stored != nil

	var variantDelta int
	if found {
		priorCount, err := w.repo.CountVariants(ctx, stored.ID)
		if err != nil {
			return model.Coffee{}, err
		}
		variantDelta = absInt(len(p.Variants) - priorCount)
	}

	processingStatus := model.ProcessingOk
	if len(p.Warnings) >= maxWarningsBeforeReview || variantDelta > maxVariantDeltaBeforeReview {
		processingStatus = model.ProcessingReview
	}

	persistedImages, err := w.images.ProcessProductImages(ctx, p.PlatformProductID, p.Images)
	if err != nil {
		return model.Coffee{}, err
	}

	coffee := model.Coffee{
		RoasterID:          roaster.ID,
		PlatformProductID:  p.PlatformProductID,
		NameClean:          p.NameClean,
		DescriptionMdClean: p.DescriptionMdClean,
		TagsNormalized:     p.TagsNormalized,
		RoastLevel:         p.RoastLevel,
		Process:            p.Process,
		BeanSpecies:        p.BeanSpecies,
		Region:             p.Region,
		Country:            p.Country,
		AltitudeM:          p.AltitudeM,
		DefaultPackWeightG: p.DefaultPackWeightG,
		DefaultGrind:       p.DefaultGrind,
		Sensory:            p.Sensory,
		ContentHash:        p.ContentHash,
		RawPayloadHash:     p.RawPayloadHash,
		ProcessingStatus:   processingStatus,
		Warnings:           p.Warnings,
	}

	coffeeID, err := w.repo.UpsertCoffee(ctx, coffee)
	if err != nil {
		return model.Coffee{}, err
	}
	coffee.ID = coffeeID

	now := time.Now()
	for _, cv := range p.Variants {
		variant := model.Variant{
			CoffeeID:          coffeeID,
			PlatformVariantID: cv.PlatformVariantID,
			WeightG:           cv.Grams,
			Currency:          cv.Currency,
			InStock:           cv.InStock,
			Status:            model.VariantActive,
		}
		if err := w.repo.UpsertVariant(ctx, variant); err != nil {
			return model.Coffee{}, err
		}
		if err := w.repo.InsertPrice(ctx, model.PricePoint{
			VariantID: coffeeID + ":" + cv.PlatformVariantID,
			Price:     cv.Price,
			Currency:  cv.Currency,
			ScrapedAt: now,
		}); err != nil {
			return model.Coffee{}, err
		}
	}

	for _, img := range persistedImages {
		img.CoffeeID = coffeeID
		if err := w.repo.UpsertImage(ctx, img); err != nil {
			return model.Coffee{}, err
		}
	}

	return coffee, nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func absInt(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
