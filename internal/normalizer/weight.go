package normalizer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// weightPattern matches a number followed by a unit anywhere in text:
// "250g", "1kg", "12 oz", "1.5 kg".
var weightPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|g|oz)\b`)

// WeightCandidate is one weight reading found in a variant's text sources,
// kept so ambiguity (multiple candidates) can be resolved by confidence.
type WeightCandidate struct {
	Grams      int
	Confidence float64
	Source     string // "explicit_grams", "option", "title", "description"
}

// ParseWeight extracts a variant's pack weight in grams from the ordered
// sources spec §4.4 step 2 names, in priority order: explicit grams field,
// variant options, title, description. Ambiguity within one source
// produces a warning and keeps the highest-confidence candidate.
func ParseWeight(explicitGrams int, options []string, title, description string) (grams int, confidence float64, warning string) {
	if explicitGrams > 0 {
		return explicitGrams, 1.0, ""
	}

	var candidates []WeightCandidate
	for _, opt := range options {
		candidates = append(candidates, extractWeightCandidates(opt, "option", 0.9)...)
	}
	candidates = append(candidates, extractWeightCandidates(title, "title", 0.75)...)
	candidates = append(candidates, extractWeightCandidates(description, "description", 0.5)...)

	if len(candidates) == 0 {
		return 0, 0, ""
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	if len(candidates) > 1 {
		warning = "multiple weight candidates found; kept highest-confidence match"
	}
	return best.Grams, best.Confidence, warning
}

func extractWeightCandidates(text, source string, baseConfidence float64) []WeightCandidate {
	var out []WeightCandidate
	for _, m := range weightPattern.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		grams := toGrams(value, strings.ToLower(m[2]))
		if grams <= 0 {
			continue
		}
		out = append(out, WeightCandidate{Grams: grams, Confidence: baseConfidence, Source: source})
	}
	return out
}

// toGrams converts value in unit to whole grams, per spec §4.4's
// conversion table: 1 kg = 1000 g, 1 oz = 28.3495 g, rounded to the
// nearest integer gram.
func toGrams(value float64, unit string) int {
	switch unit {
	case "kg":
		return int(math.Round(value * 1000))
	case "oz":
		return int(math.Round(value * 28.3495))
	case "g":
		return int(math.Round(value))
	default:
		return 0
	}
}
