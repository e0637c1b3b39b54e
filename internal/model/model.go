// Package model defines the data types shared across the scraping pipeline:
// roaster configuration, jobs, raw/canonical artifacts, and the persisted
// coffee/variant/price/image shapes. Entities are plain value types; identity
// and relational integrity are owned by the server-side write path, not by
// this package.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies which storefront API a roaster exposes.
type Platform string

const (
	PlatformShopify Platform = "shopify"
	PlatformWoo     Platform = "woo"
	PlatformOther   Platform = "other"
)

// ArtifactSource records which pipeline path produced a raw artifact.
type ArtifactSource string

const (
	SourceShopify  ArtifactSource = "shopify"
	SourceWoo      ArtifactSource = "woo"
	SourceFallback ArtifactSource = "fallback"
)

// JobType selects which pipeline a job runs.
type JobType string

const (
	JobFullRefresh JobType = "full_refresh"
	JobPriceOnly   JobType = "price_only"
)

// JobStatus is the job state machine per spec §4.1:
// Queued -> Running -> {Succeeded, Retrying, PermanentlyFailed}.
type JobStatus string

const (
	JobQueued            JobStatus = "queued"
	JobRunning           JobStatus = "running"
	JobSucceeded         JobStatus = "succeeded"
	JobRetrying          JobStatus = "retrying"
	JobPermanentlyFailed JobStatus = "permanently_failed"
)

// ValidationStatus is recorded on every persisted raw artifact.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

// ProcessingStatus is the per-product outcome surfaced to operators.
type ProcessingStatus string

const (
	ProcessingOk     ProcessingStatus = "ok"
	ProcessingReview ProcessingStatus = "review"
	ProcessingError  ProcessingStatus = "error"
)

// RoastLevel is the fixed normalized roast enum.
type RoastLevel string

const (
	RoastLight       RoastLevel = "light"
	RoastLightMedium RoastLevel = "light-medium"
	RoastMedium      RoastLevel = "medium"
	RoastMediumDark  RoastLevel = "medium-dark"
	RoastDark        RoastLevel = "dark"
	RoastUnknown     RoastLevel = "unknown"
)

// Process is the fixed normalized process enum.
type Process string

const (
	ProcessWashed    Process = "washed"
	ProcessNatural   Process = "natural"
	ProcessHoney     Process = "honey"
	ProcessAnaerobic Process = "anaerobic"
	ProcessOther     Process = "other"
)

// BeanSpecies is the fixed normalized species enum. Blend ratios are encoded
// as additional string values (e.g. "arabica_80_robusta_20") rather than a
// closed set, per spec §4.4 step 6.
type BeanSpecies string

const (
	SpeciesArabica  BeanSpecies = "arabica"
	SpeciesRobusta  BeanSpecies = "robusta"
	SpeciesLiberica BeanSpecies = "liberica"
	SpeciesBlend    BeanSpecies = "blend"
)

// Grind is the fixed normalized grind/brew enum.
type Grind string

const (
	GrindWhole           Grind = "whole"
	GrindFilter          Grind = "filter"
	GrindEspresso        Grind = "espresso"
	GrindFrenchPress     Grind = "french_press"
	GrindAeropress       Grind = "aeropress"
	GrindMoka            Grind = "moka"
	GrindTurkish         Grind = "turkish"
	GrindSouthIndian     Grind = "south_indian_filter"
	GrindColdBrew        Grind = "cold_brew"
	GrindPourOver        Grind = "pour_over"
	GrindOmni            Grind = "omni"
	GrindOther           Grind = "other"
)

// WeightUnit is the fixed unit enum accepted on variant weight fields.
type WeightUnit string

const (
	WeightGram     WeightUnit = "g"
	WeightKilogram WeightUnit = "kg"
	WeightOunce    WeightUnit = "oz"
)

// VariantStatus tracks a persisted variant's lifecycle.
type VariantStatus string

const (
	VariantActive   VariantStatus = "active"
	VariantArchived VariantStatus = "archived"
	VariantMissing  VariantStatus = "missing"
	VariantReview   VariantStatus = "review"
)

// Roaster is the operator-maintained configuration for one monitored store.
// Roaster discovery is external input (spec §1 non-goals); this type is the
// shape of one entry in that input, plus the mutable fields the scheduler
// and fetcher update at runtime.
type Roaster struct {
	ID            string
	DisplayName   string
	Hostname      string
	Platform      Platform
	Currency      string // ISO 4217, e.g. "INR"; Shopify carries no per-variant currency, so it comes from the roaster's own storefront config
	FullCadence   string // cron-like expression; empty uses the package default
	PriceCadence  string
	Concurrency   int // default 3
	FallbackOK    bool
	FallbackLeft  int64 // monthly remaining extract budget
	LLMEnabled    bool
	AlertDeltaPct float64 // default 0.10

	// Mutated by the scheduler/worker at runtime.
	LastETag        string
	LastModified    string
	RobotsAllowed   bool
	RobotsCheckedAt time.Time
	CrawlDelay      time.Duration
	FirstSeenAt     time.Time
	ConsecutivePermanentFails int
	Inactive                  bool
}

// EffectiveConcurrency applies the spec's default of 3 when unset.
func (r Roaster) EffectiveConcurrency() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return 3
}

// EffectiveAlertDeltaPct applies the spec's default of 10%.
func (r Roaster) EffectiveAlertDeltaPct() float64 {
	if r.AlertDeltaPct > 0 {
		return r.AlertDeltaPct
	}
	return 0.10
}

// DefaultFullCadence and DefaultPriceCadence are the spec's standard
// cadences (cron expressions) applied when a roaster does not override
// them: full refresh monthly on day 1 at 03:00 UTC, price-only weekly on
// Sunday at 04:00 UTC.
const (
	DefaultFullCadence  = "0 3 1 * *"
	DefaultPriceCadence = "0 4 * * 0"
)

// EffectiveFullCadence applies DefaultFullCadence when unset.
func (r Roaster) EffectiveFullCadence() string {
	if r.FullCadence != "" {
		return r.FullCadence
	}
	return DefaultFullCadence
}

// EffectivePriceCadence applies DefaultPriceCadence when unset.
func (r Roaster) EffectivePriceCadence() string {
	if r.PriceCadence != "" {
		return r.PriceCadence
	}
	return DefaultPriceCadence
}

// Job is one unit of scheduler-enqueued work.
type Job struct {
	JobID      string
	RoasterID  string
	Type       JobType
	EnqueuedAt time.Time
	ReadyAt    time.Time
	Attempt    int
	Status     JobStatus
}

// RawArtifact is the immutable, append-only record of one fetched payload.
type RawArtifact struct {
	ArtifactID       string
	RoasterID        string
	RunID            string
	Source           ArtifactSource
	ScrapedAt        time.Time
	RawPayload       []byte
	RawPayloadRef    string // set instead of RawPayload when streamed to storage
	RawPayloadHash   string
	HTTPStatus       int
	DownloadMs       int64
	SizeBytes        int64
	ValidationStatus ValidationStatus
	ValidationErrors []string
}

// CanonicalVariant is one variant inside a validated canonical artifact.
type CanonicalVariant struct {
	PlatformVariantID string
	Price             decimal.Decimal
	Currency          string
	InStock           bool
	Grams             int // 0 when absent
	WeightUnit        WeightUnit
	CompareAtPrice    decimal.Decimal
	Options           []string
}

// CanonicalImage is a product image reference prior to CDN processing.
type CanonicalImage struct {
	URL     string
	AltText string
	Order   int
}

// CanonicalArtifact is a product-shaped record that has passed §4.3
// validation.
type CanonicalArtifact struct {
	Source             ArtifactSource
	RoasterDomain       string
	ScrapedAt           time.Time
	PlatformProductID   string
	Title               string
	SourceURL           string
	Variants            []CanonicalVariant
	DescriptionHTML     string
	DescriptionMarkdown string
	Tags                []string
	Images              []CanonicalImage
	RawMeta             map[string]any // unmapped platform-specific fields
}

// FieldConfidence pairs a normalized value with the confidence the parser or
// LLM fallback assigned to it.
type FieldConfidence struct {
	Confidence float64
	FromLLM    bool
}

// SensoryScalars is the 0-10 sensory scoring blob with per-field confidence.
type SensoryScalars struct {
	Values      map[string]float64
	Confidences map[string]float64
}

// NormalizedProduct is derived from a CanonicalArtifact by the normalizer.
type NormalizedProduct struct {
	RoasterID           string
	PlatformProductID   string
	IsCoffee            bool
	IsCoffeeConfidence   float64
	NameClean           string
	DescriptionMdClean  string
	TagsNormalized      []string
	RoastLevel          RoastLevel
	RoastConfidence     float64
	Process             Process
	ProcessConfidence   float64
	Varieties           []string
	Region              string
	Country             string
	AltitudeM           int
	DefaultPackWeightG  int
	DefaultGrind        Grind
	BeanSpecies         BeanSpecies
	SpeciesConfidence   float64
	Sensory             SensoryScalars
	ContentHash         string
	RawPayloadHash      string
	Warnings            []string
	LLMEnrichment       map[string]FieldConfidence
	Variants            []CanonicalVariant
	Images              []CanonicalImage
}

// Variant is the persisted shape the write path upserts.
type Variant struct {
	CoffeeID           string
	PlatformVariantID  string
	SKU                string
	WeightG            int
	Grind              Grind
	Currency           string
	InStock            bool
	PriceCurrent        decimal.Decimal
	PriceLastCheckedAt time.Time
	LastSeenAt         time.Time
	Status             VariantStatus
}

// PricePoint is one append-only price observation.
type PricePoint struct {
	VariantID string
	Price     decimal.Decimal
	Currency  string
	IsSale    bool
	ScrapedAt time.Time
	SourceURL string
}

// Coffee is the persisted product row the write path upserts and the
// change-detection algorithm reads back before deciding full vs. price-only
// handling (spec §4.7).
type Coffee struct {
	ID                  string
	RoasterID           string
	PlatformProductID   string
	NameClean           string
	DescriptionMdClean  string
	TagsNormalized      []string
	RoastLevel          RoastLevel
	Process             Process
	BeanSpecies         BeanSpecies
	Region              string
	Country             string
	AltitudeM           int
	DefaultPackWeightG  int
	DefaultGrind        Grind
	Sensory             SensoryScalars
	ContentHash         string
	RawPayloadHash      string
	ProcessingStatus    ProcessingStatus
	Warnings            []string
	RawMeta             map[string]any
	LastSeenAt          time.Time
}

// Image is the persisted, CDN-backed image row.
type Image struct {
	CoffeeID    string
	SourceURL   string
	CDNURL      string
	ContentHash string
	Width       int
	Height      int
	Alt         string
	SortOrder   int
}

// JobOutcome is the user-visible aggregated result of one job run.
type JobOutcome struct {
	Processed int
	Succeeded int
	Reviewed  int
	Failed    int
}
