// Package normalizer implements spec §4.4: turning a validated canonical
// artifact into a NormalizedProduct with stable enums and a content hash,
// via an ordered chain of deterministic parsers with an LLM fallback for
// low-confidence fields. Grounded on the teacher's ordered-capability
// pipeline idiom (application/pipeline.Executor's named, sequential
// steps), generalized from generic pipeline steps to this fixed nine-step
// parser chain.
package normalizer

import "strings"

// allowTerms and denyTerms drive the fast-path coffee-vs-equipment
// classifier (spec §4.4 step 1). Curated from the spec's own examples;
// extending this list is the expected way to improve classifier recall,
// not a code change to the classifier itself.
var allowTerms = []string{
	"single-origin", "single origin", "espresso", "roasted", "filter",
	"whole bean", "ground coffee", "coffee beans", "roast", "arabica",
	"robusta", "decaf", "blend",
}

var denyTerms = []string{
	"mug", "grinder", "subscription", "gift card", "training", "equipment",
	"brewer", "kettle", "scale", "filter papers", "merch", "t-shirt",
	"tote bag", "sticker",
}

// ClassifyCoffee runs the fast title/type/tags allow/deny-list classifier.
// productType is a platform-specific product-type field when present
// (Shopify's product_type, Woo's category names).
func ClassifyCoffee(title, description, productType string, tags []string) (isCoffee bool, confidence float64) {
	haystack := strings.ToLower(strings.Join(append([]string{title, description, productType}, tags...), " "))

	denyHits := countHits(haystack, denyTerms)
	allowHits := countHits(haystack, allowTerms)

	switch {
	case denyHits > 0 && allowHits == 0:
		return false, 0.9
	case allowHits > 0 && denyHits == 0:
		return true, confidenceFor(allowHits)
	case allowHits > denyHits:
		return true, 0.6
	case denyHits > allowHits:
		return false, 0.6
	default:
		// Neither list matched (or matched evenly): default to coffee with
		// low confidence rather than silently dropping an unrecognized
		// product, since false negatives here are costlier than false
		// positives (a dropped coffee product never reaches a human).
		return true, 0.3
	}
}

func countHits(haystack string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			n++
		}
	}
	return n
}

func confidenceFor(hits int) float64 {
	switch {
	case hits >= 3:
		return 0.95
	case hits == 2:
		return 0.85
	default:
		return 0.75
	}
}
