package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/brewradar/coffeescan/internal/model"
)

// hashProjection is the canonical JSON shape ContentHash is computed over:
// prices, stock, and scrapedAt are excluded per spec §4.4 step 9 so a
// price change alone never changes the content hash, and map/slice
// ordering is made deterministic (sorted keys, sorted variant IDs) so the
// hash is stable across whitespace, key order, and variant reordering.
type hashProjection struct {
	RoasterID          string   `json:"roaster_id"`
	PlatformProductID  string   `json:"platform_product_id"`
	NameClean          string   `json:"name_clean"`
	DescriptionMdClean string   `json:"description_md_clean"`
	TagsNormalized     []string `json:"tags_normalized"`
	RoastLevel         string   `json:"roast_level"`
	Process            string   `json:"process"`
	BeanSpecies        string   `json:"bean_species"`
	Region             string   `json:"region"`
	Country            string   `json:"country"`
	AltitudeM          int      `json:"altitude_m"`
	VariantIDs         []string `json:"variant_ids"`
}

// ContentHash computes spec §4.4 step 9's SHA-256 over a canonical
// projection of the normalized product.
func ContentHash(p *model.NormalizedProduct) string {
	tags := append([]string(nil), p.TagsNormalized...)
	sort.Strings(tags)

	variantIDs := make([]string, 0, len(p.Variants))
	for _, v := range p.Variants {
		variantIDs = append(variantIDs, v.PlatformVariantID)
	}
	sort.Strings(variantIDs)

	proj := hashProjection{
		RoasterID:          p.RoasterID,
		PlatformProductID:  p.PlatformProductID,
		NameClean:          p.NameClean,
		DescriptionMdClean: p.DescriptionMdClean,
		TagsNormalized:     tags,
		RoastLevel:         string(p.RoastLevel),
		Process:            string(p.Process),
		BeanSpecies:        string(p.BeanSpecies),
		Region:             p.Region,
		Country:            p.Country,
		AltitudeM:          p.AltitudeM,
		VariantIDs:         variantIDs,
	}

	// json.Marshal on a struct with fixed field order already produces
	// stable key ordering; sorting the slices above is what makes the
	// hash stable under variant/tag reordering.
	data, _ := json.Marshal(proj)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
