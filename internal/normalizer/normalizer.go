package normalizer

import (
	"context"

	"github.com/brewradar/coffeescan/internal/model"
)

// LLMResolver is the fallback capability spec §4.4 calls for: resolving
// one low-confidence field from cleaned title+description. Implemented by
// internal/llm; the normalizer only depends on this narrow interface so it
// never imports the LLM client, cache, or budget machinery directly.
type LLMResolver interface {
	Resolve(ctx context.Context, rawPayloadHash, field, title, description string) (value string, confidence float64, err error)
}

// Config tunes the per-field LLM fallback floors (spec §4.4: roast/process/
// species default to 0.7) and whether LLM is enabled at all for this call
// (the caller is expected to already have ANDed the roaster's LLMEnabled
// flag with the global enabled_global switch).
type Config struct {
	ConfidenceFloors map[string]float64
	LLMEnabled       bool
}

func (c Config) floorFor(field string) float64 {
	if v, ok := c.ConfidenceFloors[field]; ok {
		return v
	}
	return 0.7
}

// Input is one canonical artifact's fields the normalizer needs, already
// validated per spec §4.3.
type Input struct {
	RoasterID      string
	Artifact       *model.CanonicalArtifact
	RawPayloadHash string
	ProductType    string // platform-specific product-type field, when present
}

// Normalize runs the ordered nine-step parser chain from spec §4.4,
// invoking resolver only for fields whose deterministic confidence falls
// below their configured floor and only when cfg.LLMEnabled.
func Normalize(ctx context.Context, in Input, cfg Config, resolver LLMResolver) (*model.NormalizedProduct, error) {
	a := in.Artifact
	title := CleanTitle(a.Title)
	description := CleanDescription(a.DescriptionHTML)

	isCoffee, coffeeConfidence := ClassifyCoffee(a.Title, a.DescriptionHTML, in.ProductType, a.Tags)

	p := &model.NormalizedProduct{
		RoasterID:          in.RoasterID,
		PlatformProductID:  a.PlatformProductID,
		IsCoffee:           isCoffee,
		IsCoffeeConfidence: coffeeConfidence,
		NameClean:          title,
		DescriptionMdClean: description,
		TagsNormalized:     normalizeTags(a.Tags),
		Variants:           a.Variants,
		Images:             a.Images,
		RawPayloadHash:     in.RawPayloadHash,
		LLMEnrichment:      make(map[string]model.FieldConfidence),
	}

	if !isCoffee {
		// Recorded but not further normalized, per spec §4.4 step 1.
		return p, nil
	}

	combinedText := title + "\n" + description

	p.RoastLevel, p.RoastConfidence = ParseRoast(combinedText)
	p.Process, p.ProcessConfidence = ParseProcess(combinedText)
	p.BeanSpecies, p.SpeciesConfidence = ParseSpecies(combinedText)

	if err := resolveLowConfidenceFields(ctx, p, title, description, in.RawPayloadHash, cfg, resolver); err != nil {
		return nil, err
	}

	geo := ExtractGeo(description)
	p.Region, p.Country, p.AltitudeM = geo.Region, geo.Country, geo.AltitudeM

	for i := range p.Variants {
		v := &p.Variants[i]
		grams, _, warn := ParseWeight(v.Grams, v.Options, title, description)
		if grams > 0 {
			v.Grams = grams
		}
		if warn != "" {
			p.Warnings = append(p.Warnings, warn)
		}
		if p.DefaultGrind == "" {
			p.DefaultGrind, _ = ParseGrind(v.Options, title)
		}
		if v.Grams > 0 && p.DefaultPackWeightG == 0 {
			p.DefaultPackWeightG = v.Grams
		}
	}

	p.ContentHash = ContentHash(p)
	return p, nil
}

// resolveLowConfidenceFields runs the LLM fallback for roast/process/
// species only when their deterministic confidence is below the
// configured floor, per spec §4.4's "LLM fallback" contract.
func resolveLowConfidenceFields(ctx context.Context, p *model.NormalizedProduct, title, description, rawPayloadHash string, cfg Config, resolver LLMResolver) error {
	if !cfg.LLMEnabled || resolver == nil {
		return nil
	}

	type field struct {
		name       string
		confidence float64
		apply      func(value string, confidence float64)
	}
	fields := []field{
		{"roast_level", p.RoastConfidence, func(v string, c float64) {
			p.RoastLevel = model.RoastLevel(v)
			p.RoastConfidence = c
		}},
		{"process", p.ProcessConfidence, func(v string, c float64) {
			p.Process = model.Process(v)
			p.ProcessConfidence = c
		}},
		{"bean_species", p.SpeciesConfidence, func(v string, c float64) {
			p.BeanSpecies = model.BeanSpecies(v)
			p.SpeciesConfidence = c
		}},
	}

	for _, f := range fields {
		floor := cfg.floorFor(f.name)
		if f.confidence >= floor {
			continue
		}
		value, confidence, err := resolver.Resolve(ctx, rawPayloadHash, f.name, title, description)
		if err != nil {
			p.Warnings = append(p.Warnings, "llm fallback failed for "+f.name+": "+err.Error())
			continue
		}
		p.LLMEnrichment[f.name] = model.FieldConfidence{Confidence: confidence, FromLLM: true}
		if confidence < floor {
			// Below-floor resolutions are not applied: the deterministic
			// value stays, the LLM's value is dropped, and only its
			// confidence (in LLMEnrichment) and a warning are recorded.
			p.Warnings = append(p.Warnings, "llm fallback for "+f.name+" below confidence floor, not applied")
			continue
		}
		f.apply(value, confidence)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		clean := CleanTitle(t)
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}
