package normalizer

import (
	"regexp"

	"github.com/brewradar/coffeescan/internal/model"
)

type grindRule struct {
	pattern *regexp.Regexp
	grind   model.Grind
}

var grindRules = []grindRule{
	{regexp.MustCompile(`(?i)\bwhole bean\b|\bwhole beans\b`), model.GrindWhole},
	{regexp.MustCompile(`(?i)\bespresso\b`), model.GrindEspresso},
	{regexp.MustCompile(`(?i)\bfrench press\b|\bcafeti[eè]re\b`), model.GrindFrenchPress},
	{regexp.MustCompile(`(?i)\baeropress\b`), model.GrindAeropress},
	{regexp.MustCompile(`(?i)\bmoka\b|\bstovetop\b`), model.GrindMoka},
	{regexp.MustCompile(`(?i)\bturkish\b|\bibrik\b`), model.GrindTurkish},
	{regexp.MustCompile(`(?i)\bsouth[\s-]?indian\b`), model.GrindSouthIndian},
	{regexp.MustCompile(`(?i)\bcold brew\b`), model.GrindColdBrew},
	{regexp.MustCompile(`(?i)\bpour[\s-]?over\b|\bv60\b|\bchemex\b`), model.GrindPourOver},
	{regexp.MustCompile(`(?i)\bfilter\b|\bdrip\b`), model.GrindFilter},
	{regexp.MustCompile(`(?i)\ball[\s-]?purpose\b|\bomni\b`), model.GrindOmni},
}

// ParseGrind derives a variant's default grind from its options and title
// per spec §4.4 step 5.
func ParseGrind(options []string, title string) (model.Grind, float64) {
	for _, opt := range options {
		if g, ok := matchGrind(opt); ok {
			return g, 0.85
		}
	}
	if g, ok := matchGrind(title); ok {
		return g, 0.6
	}
	return model.GrindOther, 0.2
}

func matchGrind(text string) (model.Grind, bool) {
	for _, rule := range grindRules {
		if rule.pattern.MatchString(text) {
			return rule.grind, true
		}
	}
	return "", false
}
