package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brewradar/coffeescan/internal/model"
)

func TestProjectPriceShopify(t *testing.T) {
	payload := []byte(`{"id":123,"variants":[{"id":1,"price":"15.00","available":true},{"id":2,"price":"20.00","available":false}]}`)
	roaster := &model.Roaster{Platform: model.PlatformShopify, Currency: "INR"}
	proj, err := projectPrice(roaster, RawProduct{PlatformProductID: "123", Payload: payload})
	require.NoError(t, err)
	require.Equal(t, "123", proj.PlatformProductID)
	require.Len(t, proj.Variants, 2)
	require.Equal(t, "15.00", proj.Variants[0].Price)
	require.Equal(t, "INR", proj.Variants[0].Currency)
	require.True(t, proj.Variants[0].InStock)
	require.False(t, proj.Variants[1].InStock)
}

func TestProjectPriceWoo(t *testing.T) {
	payload := []byte(`{"id":456,"prices":{"price":"999","currency_code":"USD"},"is_in_stock":true}`)
	roaster := &model.Roaster{Platform: model.PlatformWoo}
	proj, err := projectPrice(roaster, RawProduct{PlatformProductID: "456", Payload: payload})
	require.NoError(t, err)
	require.Len(t, proj.Variants, 1)
	require.Equal(t, "999", proj.Variants[0].Price)
	require.Equal(t, "USD", proj.Variants[0].Currency)
	require.True(t, proj.Variants[0].InStock)
}

func TestProjectPriceWooVariations(t *testing.T) {
	payload := []byte(`{"id":456,"prices":{"price":"999","currency_code":"USD"},"is_in_stock":true,"variations":[
		{"id":1,"prices":{"price":"500","currency_code":"USD"},"is_in_stock":true},
		{"id":2,"prices":{"price":"900","currency_code":"USD"},"is_in_stock":false}
	]}`)
	roaster := &model.Roaster{Platform: model.PlatformWoo}
	proj, err := projectPrice(roaster, RawProduct{PlatformProductID: "456", Payload: payload})
	require.NoError(t, err)
	require.Len(t, proj.Variants, 2)
	require.Equal(t, "1", proj.Variants[0].PlatformVariantID)
	require.Equal(t, "500", proj.Variants[0].Price)
	require.True(t, proj.Variants[0].InStock)
	require.Equal(t, "2", proj.Variants[1].PlatformVariantID)
	require.False(t, proj.Variants[1].InStock)
}

func TestProjectPriceUnsupportedPlatform(t *testing.T) {
	_, err := projectPrice(&model.Roaster{Platform: model.PlatformOther}, RawProduct{})
	require.Error(t, err)
}

func TestParseRobotsDisallowAll(t *testing.T) {
	body := "User-agent: *\nDisallow: /\nCrawl-delay: 2\n"
	result := parseRobots(strings.NewReader(body), "coffeescan-bot")
	require.False(t, result.Allowed)
	require.Equal(t, 2, int(result.CrawlDelay.Seconds()))
}

func TestParseRobotsSpecificAgentOverridesWildcard(t *testing.T) {
	body := "User-agent: *\nDisallow: /\n\nUser-agent: coffeescan-bot\nDisallow:\nCrawl-delay: 1\n"
	result := parseRobots(strings.NewReader(body), "coffeescan-bot")
	require.True(t, result.Allowed)
}
