package normalizer

import (
	"regexp"

	"github.com/brewradar/coffeescan/internal/model"
)

type processRule struct {
	pattern *regexp.Regexp
	process model.Process
}

var processRules = []processRule{
	{regexp.MustCompile(`(?i)\bcarbonic maceration\b|\banaerobic\b`), model.ProcessAnaerobic},
	{regexp.MustCompile(`(?i)\bhoney\b|\bpulped natural\b`), model.ProcessHoney},
	{regexp.MustCompile(`(?i)\bdry[\s-]?processed\b|\bnatural\b|\bsun[\s-]?dried\b`), model.ProcessNatural},
	{regexp.MustCompile(`(?i)\bwet[\s-]?processed\b|\bwashed\b|\bfully washed\b`), model.ProcessWashed},
}

// ParseProcess maps free text to the fixed process enum per spec §4.4
// step 4, recognizing the synonyms the spec names explicitly.
func ParseProcess(text string) (model.Process, float64) {
	for _, rule := range processRules {
		if rule.pattern.MatchString(text) {
			return rule.process, 0.85
		}
	}
	return model.ProcessOther, 0.2
}
