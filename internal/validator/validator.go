// Package validator implements spec §4.3: strict, pure, deterministic
// validation of a fetched payload into a CanonicalArtifact, or a set of
// validation errors that fail the artifact. It is grounded on the
// teacher's data/schema/registry.go Strict/Warn/Ignore ValidationMode
// idea, but trades that package's generic reflection-driven field-by-
// field schema walk for a concrete validator over the one shape this
// pipeline ever validates: a scraped product payload.
package validator

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/scanerr"
)

// Mode controls how unmapped, platform-specific fields are treated.
// Structured §3 fields are always required as named; Mode only affects
// what happens to everything else, which always ends up in RawMeta
// (never dropped) and additionally produces a warning under ModeStrict.
type Mode int

const (
	ModeWarn   Mode = iota // default: unmapped fields pass through to RawMeta silently
	ModeStrict             // unmapped fields produce a warning
	ModeIgnore             // never warn, never inspect unmapped fields
)

// Result is the outcome of validating one payload.
type Result struct {
	Artifact *model.CanonicalArtifact
	Warnings []string
}

// Validator is pure and deterministic per spec §4.3; it holds no state
// beyond its configured Mode.
type Validator struct {
	mode Mode
}

func New(mode Mode) *Validator { return &Validator{mode: mode} }

// Variant and Image mirror the JSON shape callers hand in after
// platform-specific mapping (fetcher output); the validator never talks
// to the network or disk.
type Variant struct {
	PlatformVariantID string
	Price             any
	Currency          string
	InStock           bool
	Grams             int
	WeightUnit        string
	CompareAtPrice    any
	Options           []string
}

type Image struct {
	URL     string
	AltText string
	Order   int
}

// Payload is the platform-neutral shape the fetcher produces for one
// product, before validation. Unmapped source-specific keys live in
// RawMeta already; the validator's job is to check the mapped fields.
type Payload struct {
	Source              model.ArtifactSource
	RoasterDomain        string
	ScrapedAt            time.Time
	PlatformProductID    string
	Title                string
	SourceURL            string
	Variants             []Variant
	DescriptionHTML      string
	Tags                 []string
	Images               []Image
	RawMeta              map[string]any
}

// Validate checks payload against the required/enum/URI rules of spec
// §4.3. A hard violation returns a *scanerr.Error of KindValidation and a
// nil Result. Soft issues pass with a warning each: missing images, tags
// or description, a single-variant product, and (under ModeStrict)
// unmapped platform fields. Coercing a numeric string price does not warn.
func (v *Validator) Validate(p Payload) (*Result, error) {
	var fails []string
	var warnings []string

	if p.Source == "" {
		fails = append(fails, "missing source")
	} else if !validSource(p.Source) {
		fails = append(fails, fmt.Sprintf("invalid source enum: %q", p.Source))
	}
	if p.RoasterDomain == "" {
		fails = append(fails, "missing roasterDomain")
	}
	if p.ScrapedAt.IsZero() {
		fails = append(fails, "missing scrapedAt")
	}
	if p.PlatformProductID == "" {
		fails = append(fails, "missing product.platformProductId")
	}
	if p.Title == "" {
		fails = append(fails, "missing product.title")
	}
	if p.SourceURL == "" {
		fails = append(fails, "missing product.sourceUrl")
	} else if !isURI(p.SourceURL) {
		fails = append(fails, fmt.Sprintf("product.sourceUrl is not a URI: %q", p.SourceURL))
	}
	if len(p.Variants) == 0 {
		fails = append(fails, "product has no variants")
	}

	variants := make([]model.CanonicalVariant, 0, len(p.Variants))
	for i, rv := range p.Variants {
		if rv.PlatformVariantID == "" {
			fails = append(fails, fmt.Sprintf("variant %d: missing platformVariantId", i))
			continue
		}
		price, err := coerceDecimal(rv.Price)
		if err != nil {
			fails = append(fails, fmt.Sprintf("variant %d: missing or invalid price: %v", i, err))
			continue
		}
		if rv.WeightUnit != "" && !validWeightUnit(rv.WeightUnit) {
			fails = append(fails, fmt.Sprintf("variant %d: invalid weightUnit enum: %q", i, rv.WeightUnit))
			continue
		}
		compareAt, _ := coerceDecimal(rv.CompareAtPrice)
		variants = append(variants, model.CanonicalVariant{
			PlatformVariantID: rv.PlatformVariantID,
			Price:             price,
			Currency:          rv.Currency,
			InStock:           rv.InStock,
			Grams:             rv.Grams,
			WeightUnit:        model.WeightUnit(rv.WeightUnit),
			CompareAtPrice:    compareAt,
			Options:           rv.Options,
		})
	}

	if len(fails) > 0 {
		return nil, scanerr.New(scanerr.KindValidation, "validator.Validate",
			fmt.Errorf("%d validation errors: %v", len(fails), fails))
	}

	if len(p.Images) == 0 {
		warnings = append(warnings, "product has no images")
	}
	if len(p.Tags) == 0 {
		warnings = append(warnings, "product has no tags")
	}
	if p.DescriptionHTML == "" {
		warnings = append(warnings, "product has no description")
	}
	if len(variants) == 1 {
		warnings = append(warnings, "single-variant product")
	}
	if v.mode == ModeStrict && len(p.RawMeta) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d unmapped platform fields carried into RawMeta", len(p.RawMeta)))
	}

	images := make([]model.CanonicalImage, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, model.CanonicalImage{URL: img.URL, AltText: img.AltText, Order: img.Order})
	}

	artifact := &model.CanonicalArtifact{
		Source:              p.Source,
		RoasterDomain:       p.RoasterDomain,
		ScrapedAt:           p.ScrapedAt,
		PlatformProductID:   p.PlatformProductID,
		Title:               p.Title,
		SourceURL:           p.SourceURL,
		Variants:            variants,
		DescriptionHTML:     p.DescriptionHTML,
		Tags:                p.Tags,
		Images:              images,
		RawMeta:             p.RawMeta,
	}

	return &Result{Artifact: artifact, Warnings: warnings}, nil
}

func validSource(s model.ArtifactSource) bool {
	switch s {
	case model.SourceShopify, model.SourceWoo, model.SourceFallback:
		return true
	default:
		return false
	}
}

func validWeightUnit(u string) bool {
	switch model.WeightUnit(u) {
	case model.WeightGram, model.WeightKilogram, model.WeightOunce:
		return true
	default:
		return false
	}
}

func isURI(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// coerceDecimal accepts a decimal.Decimal, a float64/int, or a numeric
// string ("599.00" -> 599.00) per spec §4.3's coercion rule; anything
// else is an error.
func coerceDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case string:
		if t == "" {
			return decimal.Decimal{}, fmt.Errorf("empty price string")
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("non-numeric price string %q", t)
		}
		return decimal.NewFromFloat(f), nil
	case nil:
		return decimal.Decimal{}, fmt.Errorf("price is required")
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported price type %T", v)
	}
}
