package writepath

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/brewradar/coffeescan/internal/imagepipeline"
	"github.com/brewradar/coffeescan/internal/model"
)

func fullRefreshGuard() imagepipeline.Guard {
	return imagepipeline.NewGuard(model.JobFullRefresh)
}

type fakeRepo struct {
	coffees        map[string]*model.Coffee
	variants       map[string]*model.Variant
	variantCounts  map[string]int
	insertedPrices []model.PricePoint
	upsertedImages []model.Image
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		coffees:       make(map[string]*model.Coffee),
		variants:      make(map[string]*model.Variant),
		variantCounts: make(map[string]int),
	}
}

func coffeeKey(roasterID, platformProductID string) string { return roasterID + "/" + platformProductID }
func variantKey(coffeeID, platformVariantID string) string { return coffeeID + "/" + platformVariantID }

func (r *fakeRepo) GetCoffee(ctx context.Context, roasterID, platformProductID string) (*model.Coffee, bool, error) {
	c, ok := r.coffees[coffeeKey(roasterID, platformProductID)]
	return c, ok, nil
}

func (r *fakeRepo) GetVariant(ctx context.Context, coffeeID, platformVariantID string) (*model.Variant, bool, error) {
	v, ok := r.variants[variantKey(coffeeID, platformVariantID)]
	return v, ok, nil
}

func (r *fakeRepo) CountVariants(ctx context.Context, coffeeID string) (int, error) {
	return r.variantCounts[coffeeID], nil
}

func (r *fakeRepo) UpsertCoffee(ctx context.Context, c model.Coffee) (string, error) {
	if c.ID == "" {
		c.ID = "coffee-" + c.PlatformProductID
	}
	r.coffees[coffeeKey(c.RoasterID, c.PlatformProductID)] = &c
	return c.ID, nil
}

func (r *fakeRepo) UpsertVariant(ctx context.Context, v model.Variant) error {
	r.variants[variantKey(v.CoffeeID, v.PlatformVariantID)] = &v
	r.variantCounts[v.CoffeeID]++
	return nil
}

func (r *fakeRepo) InsertPrice(ctx context.Context, p model.PricePoint) error {
	r.insertedPrices = append(r.insertedPrices, p)
	return nil
}

func (r *fakeRepo) UpdateVariantCheckedAt(ctx context.Context, coffeeID, platformVariantID string, checkedAt time.Time) error {
	v, ok := r.variants[variantKey(coffeeID, platformVariantID)]
	if !ok {
		return nil
	}
	v.PriceLastCheckedAt = checkedAt
	v.LastSeenAt = checkedAt
	return nil
}

func (r *fakeRepo) UpsertImage(ctx context.Context, img model.Image) error {
	r.upsertedImages = append(r.upsertedImages, img)
	return nil
}

type fakeImageProcessor struct {
	called bool
}

func (f *fakeImageProcessor) ProcessProductImages(ctx context.Context, coffeeID string, images []model.CanonicalImage) ([]model.Image, error) {
	f.called = true
	out := make([]model.Image, len(images))
	for i, img := range images {
		out[i] = model.Image{SourceURL: img.URL, CDNURL: "https://cdn/" + img.URL}
	}
	return out, nil
}

type fakeAlerter struct {
	signals []PriceSpikeSignal
}

func (f *fakeAlerter) PriceSpike(ctx context.Context, signal PriceSpikeSignal) {
	f.signals = append(f.signals, signal)
}

func testRoaster() model.Roaster {
	return model.Roaster{ID: "roaster-1"}
}

func TestApplyFullUpsertOnNewProduct(t *testing.T) {
	repo := newFakeRepo()
	images := &fakeImageProcessor{}
	alerter := &fakeAlerter{}
	wp := New(repo, images, alerter)

	product := model.NormalizedProduct{
		PlatformProductID: "prod-1",
		NameClean:         "Ethiopia Yirgacheffe",
		ContentHash:        "hash-a",
		Variants: []model.CanonicalVariant{
			{PlatformVariantID: "v1", Price: decimal.NewFromFloat(18.50), Currency: "USD", InStock: true},
		},
		Images: []model.CanonicalImage{{URL: "https://example.com/bag.jpg"}},
	}

	coffee, err := wp.Apply(context.Background(), testRoaster(), product, fullRefreshGuard())
	require.NoError(t, err)
	require.Equal(t, "hash-a", coffee.ContentHash)
	require.True(t, images.called, "full refresh must run the image pipeline")
	require.Len(t, repo.insertedPrices, 1)
	require.Len(t, repo.upsertedImages, 1)
}

func TestApplySkipsImagesWhenContentHashUnchanged(t *testing.T) {
	repo := newFakeRepo()
	repo.coffees[coffeeKey("roaster-1", "prod-1")] = &model.Coffee{
		ID: "coffee-prod-1", RoasterID: "roaster-1", PlatformProductID: "prod-1", ContentHash: "hash-a",
	}
	repo.variants[variantKey("coffee-prod-1", "v1")] = &model.Variant{
		CoffeeID: "coffee-prod-1", PlatformVariantID: "v1", PriceCurrent: decimal.NewFromFloat(18.50), InStock: true,
	}

	images := &fakeImageProcessor{}
	alerter := &fakeAlerter{}
	wp := New(repo, images, alerter)

	product := model.NormalizedProduct{
		PlatformProductID: "prod-1",
		ContentHash:        "hash-a",
		Variants: []model.CanonicalVariant{
			{PlatformVariantID: "v1", Price: decimal.NewFromFloat(18.50), Currency: "USD", InStock: true},
		},
	}

	_, err := wp.Apply(context.Background(), testRoaster(), product, fullRefreshGuard())
	require.NoError(t, err)
	require.False(t, images.called, "unchanged content hash must skip image work entirely")
	require.Empty(t, repo.insertedPrices, "unchanged price must not append a new price row")
}

func TestApplyAppendsPriceOnChangeAndFiresAlertOnSpike(t *testing.T) {
	repo := newFakeRepo()
	repo.coffees[coffeeKey("roaster-1", "prod-1")] = &model.Coffee{
		ID: "coffee-prod-1", RoasterID: "roaster-1", PlatformProductID: "prod-1", ContentHash: "hash-a",
	}
	repo.variants[variantKey("coffee-prod-1", "v1")] = &model.Variant{
		CoffeeID: "coffee-prod-1", PlatformVariantID: "v1", PriceCurrent: decimal.NewFromFloat(10.00), InStock: true,
	}

	images := &fakeImageProcessor{}
	alerter := &fakeAlerter{}
	wp := New(repo, images, alerter)

	product := model.NormalizedProduct{
		PlatformProductID: "prod-1",
		ContentHash:        "hash-a",
		Variants: []model.CanonicalVariant{
			{PlatformVariantID: "v1", Price: decimal.NewFromFloat(15.00), Currency: "USD", InStock: true},
		},
	}

	_, err := wp.Apply(context.Background(), testRoaster(), product, fullRefreshGuard())
	require.NoError(t, err)
	require.Len(t, repo.insertedPrices, 1)
	require.Len(t, alerter.signals, 1, "50 percent jump exceeds the default 10 percent alert threshold")
	require.InDelta(t, 0.5, alerter.signals[0].DeltaPct, 0.001)
}

func TestApplyBlocksImagesWhenGuardedAsPriceOnly(t *testing.T) {
	repo := newFakeRepo()
	images := &fakeImageProcessor{}
	alerter := &fakeAlerter{}
	wp := New(repo, images, alerter)

	product := model.NormalizedProduct{
		PlatformProductID: "prod-1",
		ContentHash:        "hash-a",
		Images:             []model.CanonicalImage{{URL: "https://example.com/bag.jpg"}},
	}

	_, err := wp.Apply(context.Background(), testRoaster(), product, imagepipeline.NewGuard(model.JobPriceOnly))
	require.ErrorIs(t, err, imagepipeline.ErrImageWorkDuringPriceOnly)
	require.False(t, images.called, "a misrouted price-only job must never reach the image pipeline")
}
