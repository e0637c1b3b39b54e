package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewradar/coffeescan/internal/fetcher"
	"github.com/brewradar/coffeescan/internal/model"
)

func testRoaster(platform model.Platform) model.Roaster {
	return model.Roaster{ID: "r1", Hostname: "example-roastery.com", Platform: platform, Currency: "INR"}
}

func TestMapShopifyPayload(t *testing.T) {
	raw := fetcher.RawProduct{
		PlatformProductID: "123",
		Payload: []byte(`{
			"id": 123,
			"handle": "ethiopia-yirgacheffe",
			"title": "Ethiopia Yirgacheffe",
			"body_html": "<p>Bright and floral</p>",
			"tags": "single-origin, washed",
			"product_type": "Coffee",
			"variants": [{"id": 1, "price": "18.00", "available": true, "grams": 340}],
			"images": [{"src": "https://example-roastery.com/img/1.jpg"}]
		}`),
	}

	payload, productType, err := mapPayload(testRoaster(model.PlatformShopify), model.SourceShopify, raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Coffee", productType)
	assert.Equal(t, "Ethiopia Yirgacheffe", payload.Title)
	assert.Equal(t, "https://example-roastery.com/products/ethiopia-yirgacheffe", payload.SourceURL)
	assert.Equal(t, []string{"single-origin", "washed"}, payload.Tags)
	require.Len(t, payload.Variants, 1)
	assert.Equal(t, "1", payload.Variants[0].PlatformVariantID)
	assert.Equal(t, "18.00", payload.Variants[0].Price)
	assert.Equal(t, "INR", payload.Variants[0].Currency)
	assert.True(t, payload.Variants[0].InStock)
	assert.Equal(t, 340, payload.Variants[0].Grams)
	require.Len(t, payload.Images, 1)
	assert.Equal(t, "https://example-roastery.com/img/1.jpg", payload.Images[0].URL)
}

func TestMapWooPayload(t *testing.T) {
	raw := fetcher.RawProduct{
		PlatformProductID: "55",
		Payload: []byte(`{
			"id": 55,
			"name": "Colombia Huila",
			"description": "Caramel sweetness",
			"categories": [{"name": "Coffee"}],
			"prices": {"price": "15.50", "currency_code": "USD"},
			"is_in_stock": true,
			"images": [{"src": "https://example-roastery.com/img/2.jpg"}]
		}`),
	}

	payload, productType, err := mapPayload(testRoaster(model.PlatformWoo), model.SourceWoo, raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Coffee", productType)
	assert.Equal(t, "Colombia Huila", payload.Title)
	require.Len(t, payload.Variants, 1)
	assert.Equal(t, "55", payload.Variants[0].PlatformVariantID)
	assert.Equal(t, "15.50", payload.Variants[0].Price)
	assert.Equal(t, "USD", payload.Variants[0].Currency)
	assert.True(t, payload.Variants[0].InStock)
}

func TestMapWooPayloadWithVariations(t *testing.T) {
	raw := fetcher.RawProduct{
		PlatformProductID: "55",
		Payload: []byte(`{
			"id": 55,
			"name": "Colombia Huila",
			"description": "Caramel sweetness",
			"categories": [{"name": "Coffee"}],
			"prices": {"price": "15.50", "currency_code": "USD"},
			"is_in_stock": true,
			"variations": [
				{"id": 101, "prices": {"price": "12.00", "currency_code": "USD"}, "is_in_stock": true},
				{"id": 102, "prices": {"price": "22.00", "currency_code": "USD"}, "is_in_stock": false}
			]
		}`),
	}

	payload, _, err := mapPayload(testRoaster(model.PlatformWoo), model.SourceWoo, raw, time.Now())
	require.NoError(t, err)
	require.Len(t, payload.Variants, 2)
	assert.Equal(t, "101", payload.Variants[0].PlatformVariantID)
	assert.Equal(t, "12.00", payload.Variants[0].Price)
	assert.True(t, payload.Variants[0].InStock)
	assert.Equal(t, "102", payload.Variants[1].PlatformVariantID)
	assert.Equal(t, "22.00", payload.Variants[1].Price)
	assert.False(t, payload.Variants[1].InStock)
}

func TestMapPayloadRejectsUnsupportedPlatform(t *testing.T) {
	_, _, err := mapPayload(testRoaster(model.PlatformOther), model.SourceFallback, fetcher.RawProduct{}, time.Now())
	assert.Error(t, err)
}

func TestSplitTagsTrimsAndDropsEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitTags(" a ,  b ,"))
	assert.Nil(t, splitTags(""))
}
