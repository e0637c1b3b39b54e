// Package pipeline wires the fetcher, validator, normalizer, image
// pipeline, and write path into the two job runners spec §4.1 schedules:
// full refresh and price-only. It is the orchestrator.Runner
// implementation, grounded on the teacher's application/pipeline.
// PipelineExecutor: a named, timed step sequence with per-step error
// collection, generalized here from the teacher's fixed eight-step scan
// pipeline to this domain's fetch->validate->normalize->write chain.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brewradar/coffeescan/internal/fetcher"
	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/scanerr"
	"github.com/brewradar/coffeescan/internal/validator"
)

// shopifyProduct mirrors the per-product JSON shape fetcher.discoverShopify
// re-marshals into RawProduct.Payload.
type shopifyProduct struct {
	ID          int64  `json:"id"`
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	BodyHTML    string `json:"body_html"`
	Tags        string `json:"tags"`
	ProductType string `json:"product_type"`
	Variants    []struct {
		ID        int64  `json:"id"`
		Price     string `json:"price"`
		Available bool   `json:"available"`
		Grams     int    `json:"grams"`
	} `json:"variants"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
}

// wooProduct mirrors fetcher.discoverWoo's per-product JSON shape.
// Variations carries the variable-product case (one sub-variant per
// weight/grind, each with its own price and stock status); simple
// products leave it empty and fall back to the embedded Prices field.
type wooProduct struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Categories  []struct {
		Name string `json:"name"`
	} `json:"categories"`
	Prices struct {
		Price         string `json:"price"`
		CurrencyCode  string `json:"currency_code"`
	} `json:"prices"`
	IsInStock  bool `json:"is_in_stock"`
	Variations []struct {
		ID     int64 `json:"id"`
		Prices struct {
			Price        string `json:"price"`
			CurrencyCode string `json:"currency_code"`
		} `json:"prices"`
		IsInStock bool `json:"is_in_stock"`
	} `json:"variations"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
}

// mapPayload translates one RawProduct into the validator's
// platform-neutral Payload shape, dispatching on roaster.Platform per
// spec §9's "one Fetcher, platform dispatch by enum" redesign note
// carried into the pipeline layer. Returns the platform-specific product
// type string too, since the normalizer's coffee classifier weighs it.
func mapPayload(roaster model.Roaster, source model.ArtifactSource, raw fetcher.RawProduct, scrapedAt time.Time) (validator.Payload, string, error) {
	switch roaster.Platform {
	case model.PlatformShopify:
		return mapShopify(roaster, source, raw, scrapedAt)
	case model.PlatformWoo:
		return mapWoo(roaster, source, raw, scrapedAt)
	default:
		return validator.Payload{}, "", scanerr.New(scanerr.KindValidation, "pipeline.mapPayload",
			fmt.Errorf("no payload mapping for platform %q", roaster.Platform))
	}
}

func mapShopify(roaster model.Roaster, source model.ArtifactSource, raw fetcher.RawProduct, scrapedAt time.Time) (validator.Payload, string, error) {
	var p shopifyProduct
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return validator.Payload{}, "", scanerr.New(scanerr.KindValidation, "pipeline.mapShopify", err)
	}

	payload := validator.Payload{
		Source:            source,
		RoasterDomain:      roaster.Hostname,
		ScrapedAt:          scrapedAt,
		PlatformProductID: raw.PlatformProductID,
		Title:             p.Title,
		SourceURL:         fmt.Sprintf("https://%s/products/%s", roaster.Hostname, p.Handle),
		DescriptionHTML:   p.BodyHTML,
		Tags:              splitTags(p.Tags),
		RawMeta:           map[string]any{"product_type": p.ProductType},
	}
	for _, v := range p.Variants {
		payload.Variants = append(payload.Variants, toRawVariant(fmt.Sprintf("%d", v.ID), v.Price, roaster.Currency, v.Available, v.Grams, "g"))
	}
	for i, img := range p.Images {
		payload.Images = append(payload.Images, toRawImage(img.Src, "", i))
	}
	return payload, p.ProductType, nil
}

func mapWoo(roaster model.Roaster, source model.ArtifactSource, raw fetcher.RawProduct, scrapedAt time.Time) (validator.Payload, string, error) {
	var p wooProduct
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return validator.Payload{}, "", scanerr.New(scanerr.KindValidation, "pipeline.mapWoo", err)
	}

	var productType string
	if len(p.Categories) > 0 {
		productType = p.Categories[0].Name
	}

	payload := validator.Payload{
		Source:            source,
		RoasterDomain:      roaster.Hostname,
		ScrapedAt:          scrapedAt,
		PlatformProductID: raw.PlatformProductID,
		Title:             p.Name,
		SourceURL:         fmt.Sprintf("https://%s/?p=%d", roaster.Hostname, p.ID),
		DescriptionHTML:   p.Description,
		RawMeta:           map[string]any{"product_type": productType},
	}
	if len(p.Variations) > 0 {
		for _, v := range p.Variations {
			payload.Variants = append(payload.Variants, toRawVariant(fmt.Sprintf("%d", v.ID), v.Prices.Price, v.Prices.CurrencyCode, v.IsInStock, 0, ""))
		}
	} else {
		payload.Variants = append(payload.Variants, toRawVariant(fmt.Sprintf("%d", p.ID), p.Prices.Price, p.Prices.CurrencyCode, p.IsInStock, 0, ""))
	}
	for i, img := range p.Images {
		payload.Images = append(payload.Images, toRawImage(img.Src, "", i))
	}
	return payload, productType, nil
}

func toRawVariant(platformVariantID string, price any, currency string, inStock bool, grams int, weightUnit string) validator.Variant {
	return validator.Variant{
		PlatformVariantID: platformVariantID,
		Price:             price,
		Currency:          currency,
		InStock:           inStock,
		Grams:             grams,
		WeightUnit:        weightUnit,
	}
}

func toRawImage(url, altText string, order int) validator.Image {
	return validator.Image{URL: url, AltText: altText, Order: order}
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
