package normalizer

import (
	"regexp"

	"github.com/brewradar/coffeescan/internal/model"
)

// roastRule pairs an anchored regex with the enum it maps to. Rules are
// evaluated in order; the first match wins, so more specific patterns
// ("full city+") must precede more general ones ("city").
type roastRule struct {
	pattern *regexp.Regexp
	level   model.RoastLevel
}

var roastRules = []roastRule{
	{regexp.MustCompile(`(?i)\bfull[\s-]?city\+?\b`), model.RoastMediumDark},
	{regexp.MustCompile(`(?i)\bfrench\b|\bvienna\b|\bitalian\b`), model.RoastDark},
	{regexp.MustCompile(`(?i)\bmedium[\s-]?dark\b`), model.RoastMediumDark},
	{regexp.MustCompile(`(?i)\bdark\b`), model.RoastDark},
	{regexp.MustCompile(`(?i)\blight[\s-]?medium\b`), model.RoastLightMedium},
	{regexp.MustCompile(`(?i)\bcity\b`), model.RoastMedium},
	{regexp.MustCompile(`(?i)\bmedium\b`), model.RoastMedium},
	{regexp.MustCompile(`(?i)\blight\b|\bcinnamon\b|\bblonde\b`), model.RoastLight},
}

// ParseRoast maps free text to the fixed roast enum per spec §4.4 step 3.
// Unmatched text returns RoastUnknown with low confidence.
func ParseRoast(text string) (model.RoastLevel, float64) {
	for _, rule := range roastRules {
		if rule.pattern.MatchString(text) {
			return rule.level, 0.85
		}
	}
	return model.RoastUnknown, 0.2
}
