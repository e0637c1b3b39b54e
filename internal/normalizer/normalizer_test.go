package normalizer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/brewradar/coffeescan/internal/model"
)

func TestClassifyCoffeeAllowList(t *testing.T) {
	isCoffee, conf := ClassifyCoffee("Ethiopia Yirgacheffe Single Origin", "", "", []string{"filter", "light roast"})
	require.True(t, isCoffee)
	require.Greater(t, conf, 0.7)
}

func TestClassifyCoffeeDenyList(t *testing.T) {
	isCoffee, conf := ClassifyCoffee("Ceramic Pour Over Mug", "", "", []string{"merch"})
	require.False(t, isCoffee)
	require.Greater(t, conf, 0.5)
}

func TestParseWeightPrefersExplicitGrams(t *testing.T) {
	grams, conf, warn := ParseWeight(250, []string{"1kg"}, "", "")
	require.Equal(t, 250, grams)
	require.Equal(t, 1.0, conf)
	require.Empty(t, warn)
}

func TestParseWeightConvertsUnits(t *testing.T) {
	grams, _, _ := ParseWeight(0, []string{"1kg"}, "", "")
	require.Equal(t, 1000, grams)

	grams, _, _ = ParseWeight(0, nil, "12 oz bag", "")
	require.Equal(t, 340, grams)
}

func TestParseWeightAmbiguityWarns(t *testing.T) {
	_, _, warn := ParseWeight(0, []string{"250g or 1kg"}, "", "")
	require.NotEmpty(t, warn)
}

func TestParseRoastPrecedence(t *testing.T) {
	level, conf := ParseRoast("A full city+ roast with notes of chocolate")
	require.Equal(t, model.RoastMediumDark, level)
	require.Greater(t, conf, 0.5)

	level, conf = ParseRoast("Medium-Dark roast, great for espresso")
	require.Equal(t, model.RoastMediumDark, level)
	require.Greater(t, conf, 0.5)
}

func TestParseProcessSynonyms(t *testing.T) {
	p, _ := ParseProcess("This lot is dry-processed on raised beds")
	require.Equal(t, model.ProcessNatural, p)

	p, _ = ParseProcess("carbonic maceration fermentation")
	require.Equal(t, model.ProcessAnaerobic, p)
}

func TestParseSpeciesBlendRatio(t *testing.T) {
	species, conf := ParseSpecies("A blend of 80% arabica / 20% robusta")
	require.Equal(t, model.BeanSpecies("arabica_80_robusta_20"), species)
	require.Greater(t, conf, 0.8)
}

func TestParseSpeciesMixedMentionsIsBlend(t *testing.T) {
	species, _ := ParseSpecies("contains both arabica and robusta beans")
	require.Equal(t, model.SpeciesBlend, species)
}

func TestContentHashStableAcrossVariantOrderAndTags(t *testing.T) {
	base := func(tagOrder []string, variantOrder []string) *model.NormalizedProduct {
		variants := make([]model.CanonicalVariant, 0, len(variantOrder))
		for _, id := range variantOrder {
			variants = append(variants, model.CanonicalVariant{PlatformVariantID: id, Price: decimal.NewFromInt(10)})
		}
		return &model.NormalizedProduct{
			RoasterID: "r", PlatformProductID: "p", NameClean: "Coffee", TagsNormalized: tagOrder,
			RoastLevel: model.RoastMedium, Process: model.ProcessWashed, BeanSpecies: model.SpeciesArabica,
			Variants: variants,
		}
	}

	h1 := ContentHash(base([]string{"a", "b"}, []string{"v1", "v2"}))
	h2 := ContentHash(base([]string{"b", "a"}, []string{"v2", "v1"}))
	require.Equal(t, h1, h2)
}

func TestContentHashChangesWithRoastLevel(t *testing.T) {
	p1 := &model.NormalizedProduct{RoasterID: "r", PlatformProductID: "p", RoastLevel: model.RoastLight}
	p2 := &model.NormalizedProduct{RoasterID: "r", PlatformProductID: "p", RoastLevel: model.RoastDark}
	require.NotEqual(t, ContentHash(p1), ContentHash(p2))
}

type stubResolver struct {
	called map[string]bool
}

func (s *stubResolver) Resolve(ctx context.Context, rawPayloadHash, field, title, description string) (string, float64, error) {
	if s.called == nil {
		s.called = map[string]bool{}
	}
	s.called[field] = true
	return "washed", 0.95, nil
}

func TestNormalizeSkipsLLMWhenDisabled(t *testing.T) {
	artifact := &model.CanonicalArtifact{
		PlatformProductID: "1",
		Title:              "Unusual Blend",
		Variants:           []model.CanonicalVariant{{PlatformVariantID: "v1", Price: decimal.NewFromInt(5)}},
	}
	resolver := &stubResolver{}
	p, err := Normalize(context.Background(), Input{RoasterID: "r", Artifact: artifact}, Config{LLMEnabled: false}, resolver)
	require.NoError(t, err)
	require.Empty(t, resolver.called)
	require.NotEmpty(t, p.ContentHash)
}

func TestNormalizeNonCoffeeSkipsFurtherSteps(t *testing.T) {
	artifact := &model.CanonicalArtifact{
		PlatformProductID: "1",
		Title:              "Ceramic Mug",
		Tags:               []string{"merch"},
	}
	p, err := Normalize(context.Background(), Input{RoasterID: "r", Artifact: artifact}, Config{}, nil)
	require.NoError(t, err)
	require.False(t, p.IsCoffee)
	require.Empty(t, p.ContentHash)
}
