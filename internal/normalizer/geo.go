package normalizer

import (
	"regexp"
	"strconv"
)

var (
	altitudePattern = regexp.MustCompile(`(?i)(\d{3,4})\s*(?:-\s*\d{3,4}\s*)?m(?:asl)?\b`)
	regionPattern   = regexp.MustCompile(`(?i)\bregion(?:\s+of)?:?\s*([A-Za-z][A-Za-z\s]{2,40})`)
)

// knownCountries is a short curated list of origin countries that appear
// in coffee marketing copy; geocoding a free-text country field is
// explicitly out of scope (spec §4.4 step 8: "no geocoding in the core").
var knownCountries = []string{
	"Ethiopia", "Kenya", "Colombia", "Brazil", "Guatemala", "Honduras",
	"Costa Rica", "Panama", "Indonesia", "Sumatra", "Yemen", "Rwanda",
	"Burundi", "Peru", "Mexico", "El Salvador", "Nicaragua", "India",
	"Vietnam", "Papua New Guinea",
}

// GeoExtraction is the raw (non-geocoded) geographic metadata lifted from
// a product description, per spec §4.4 step 8.
type GeoExtraction struct {
	Region    string
	Country   string
	AltitudeM int
}

// ExtractGeo scans description for a country mention, an explicit
// "Region:" label, and an altitude reading (meters above sea level).
func ExtractGeo(description string) GeoExtraction {
	var geo GeoExtraction

	for _, c := range knownCountries {
		if containsWord(description, c) {
			geo.Country = c
			break
		}
	}

	if m := regionPattern.FindStringSubmatch(description); m != nil {
		geo.Region = trimTrailingPunct(m[1])
	}

	if m := altitudePattern.FindStringSubmatch(description); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			geo.AltitudeM = v
		}
	}

	return geo
}

func containsWord(haystack, word string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(haystack)
}

func trimTrailingPunct(s string) string {
	for len(s) > 0 {
		c := s[len(s)-1]
		if c == '.' || c == ',' || c == ' ' || c == '\n' {
			s = s[:len(s)-1]
			continue
		}
		break
	}
	return s
}
