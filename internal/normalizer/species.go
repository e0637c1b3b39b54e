package normalizer

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/brewradar/coffeescan/internal/model"
)

// blendPattern matches explicit blend ratios like "80% arabica / 20%
// robusta" in either species order.
var blendPattern = regexp.MustCompile(`(?i)(\d{1,3})\s*%\s*arabica.{0,10}?(\d{1,3})\s*%\s*robusta|(\d{1,3})\s*%\s*robusta.{0,10}?(\d{1,3})\s*%\s*arabica`)

var (
	hasArabica  = regexp.MustCompile(`(?i)\barabica\b`)
	hasRobusta  = regexp.MustCompile(`(?i)\brobusta\b`)
	hasLiberica = regexp.MustCompile(`(?i)\bliberica\b`)
)

// ParseSpecies detects bean species per spec §4.4 step 6's precedence:
// explicit blend ratios first, then plain single-species mentions, then
// mixed mentions fall back to "blend".
func ParseSpecies(text string) (model.BeanSpecies, float64) {
	if m := blendPattern.FindStringSubmatch(text); m != nil {
		arabicaPct, robustaPct := blendPercentages(m)
		return model.BeanSpecies(fmt.Sprintf("arabica_%d_robusta_%d", arabicaPct, robustaPct)), 0.9
	}

	a, r, l := hasArabica.MatchString(text), hasRobusta.MatchString(text), hasLiberica.MatchString(text)
	count := boolCount(a, r, l)
	switch {
	case count > 1:
		return model.SpeciesBlend, 0.7
	case a:
		return model.SpeciesArabica, 0.85
	case r:
		return model.SpeciesRobusta, 0.85
	case l:
		return model.SpeciesLiberica, 0.85
	default:
		return "", 0.0
	}
}

func blendPercentages(m []string) (arabica, robusta int) {
	if m[1] != "" {
		arabica, _ = strconv.Atoi(m[1])
		robusta, _ = strconv.Atoi(m[2])
		return
	}
	robusta, _ = strconv.Atoi(m[3])
	arabica, _ = strconv.Atoi(m[4])
	return
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
