package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brewradar/coffeescan/internal/fetcher/guard"
	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/net/budget"
	"github.com/brewradar/coffeescan/internal/scanerr"
)

// RawProduct is one product-page payload as handed to the validator, still
// in whatever shape the platform's own API returned (JSON body for
// Shopify/Woo, extracted fields for the fallback path).
type RawProduct struct {
	PlatformProductID string
	Payload           []byte
	HTTPStatus        int
	DownloadMs        int64
	SizeBytes         int64
}

// PriceProjection is fetchPriceListing's narrow, images-free projection.
type PriceProjection struct {
	PlatformProductID string
	Variants          []PriceVariant
}

type PriceVariant struct {
	PlatformVariantID string
	Price             string
	Currency          string
	InStock           bool
}

// Config bundles the fetcher's own tunable (the hard page cap) on top of
// the underlying HTTP client config.
type Config struct {
	Client       ClientConfig
	MaxPagesPerRun int
}

// ExtractProvider is the fallback path's browser-rendering extract
// capability (spec §4.2's "Fallback"): map(domain) enumerates product
// URLs, extract(url) pulls one product's fields. Implemented externally
// (it calls a paid third-party rendering service); the fetcher only
// consumes the interface and meters it against the roaster's monthly
// fallback budget.
type ExtractProvider interface {
	MapDomain(ctx context.Context, hostname string) ([]string, error)
	Extract(ctx context.Context, url string) (map[string]any, error)
}

// Fetcher implements spec §4.2's three operations. It is a single type
// with platform-specific behavior selected by the roaster's Platform enum
// (spec §9's redesign note), not a class per platform.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
	guards     map[string]*guard.Guard // keyed by roaster ID, supplied by caller
	fallback   ExtractProvider
	fallbackBudgets *budget.Manager
}

// New builds a Fetcher. guards and fallbackBudgets are expected to already
// be populated per roaster by the orchestrator at startup.
func New(cfg Config, guards map[string]*guard.Guard, fallback ExtractProvider, fallbackBudgets *budget.Manager) *Fetcher {
	return &Fetcher{
		cfg:             cfg,
		httpClient:      NewClient(cfg.Client),
		guards:          guards,
		fallback:        fallback,
		fallbackBudgets: fallbackBudgets,
	}
}

func (f *Fetcher) guardFor(roaster *model.Roaster) (*guard.Guard, error) {
	g, ok := f.guards[roaster.ID]
	if !ok {
		return nil, scanerr.New(scanerr.KindPermanentHTTP, "fetcher", fmt.Errorf("no guard configured for roaster %s", roaster.ID))
	}
	return g, nil
}

// baseURL returns the storefront root for roaster, e.g. https://hostname.
func baseURL(roaster *model.Roaster) string { return "https://" + roaster.Hostname }

func (f *Fetcher) doFetch(ctx context.Context, g *guard.Guard, op, url string, etag, lastModified string) (*guard.Response, error) {
	return g.Execute(ctx, op, url, func(ctx context.Context, headers map[string]string) (*guard.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		start := time.Now()
		resp, cancel, err := Do(ctx, f.httpClient, f.cfg.Client, req)
		if err != nil {
			return nil, err
		}
		defer cancel()
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotModified {
			return &guard.Response{StatusCode: resp.StatusCode, NotModified: true, DownloadMs: time.Since(start).Milliseconds()}, nil
		}

		body, truncated, err := readCapped(resp.Body, f.cfg.Client.MaxBodyBytes)
		if err != nil {
			return nil, err
		}
		if truncated {
			// An oversized body is neither parsed nor written anywhere: the
			// fetch fails with a KindValidation error naming the cap, and no
			// payload reaches the caller or artifact storage.
			return &guard.Response{
				StatusCode: resp.StatusCode,
				Body:       nil,
				DownloadMs: time.Since(start).Milliseconds(),
			}, scanerr.New(scanerr.KindValidation, op, fmt.Errorf("response body for %s exceeds %d bytes", url, f.cfg.Client.MaxBodyBytes))
		}

		return &guard.Response{
			StatusCode:   resp.StatusCode,
			Body:         body,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			DownloadMs:   time.Since(start).Milliseconds(),
		}, nil
	})
}

func readCapped(r io.Reader, max int64) ([]byte, bool, error) {
	buf := make([]byte, 0, 64*1024)
	total := int64(0)
	chunk := make([]byte, 64*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > max {
				return nil, true, nil
			}
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			return buf, false, nil
		}
		if err != nil {
			return nil, false, err
		}
	}
}

// shopifyPage is the products.json response shape.
type shopifyPage struct {
	Products []struct {
		ID       int64  `json:"id"`
		Handle   string `json:"handle"`
		Title    string `json:"title"`
		BodyHTML string `json:"body_html"`
		Tags     string `json:"tags"`
		Variants []struct {
			ID       int64  `json:"id"`
			Price    string `json:"price"`
			Available bool  `json:"available"`
		} `json:"variants"`
		Images []struct {
			Src string `json:"src"`
		} `json:"images"`
	} `json:"products"`
}

// wooPage is the wp-json/wc/store/products response shape (a bare array).
// Variations carries the variable-product case (e.g. one entry per
// weight/grind) so discoverWoo's per-product re-marshal doesn't drop it.
type wooPage []struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Prices      struct {
		Price string `json:"price"`
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

// DiscoverProducts streams every product page payload for roaster,
// selecting the Shopify or Woo listing endpoint by roaster.Platform, per
// spec §4.2. It falls back to ExtractProvider when the primary listing is
// unusable and fallback is enabled for the roaster.
func (f *Fetcher) DiscoverProducts(ctx context.Context, roaster *model.Roaster) (<-chan RawProduct, <-chan error) {
	out := make(chan RawProduct)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		g, err := f.guardFor(roaster)
		if err != nil {
			errs <- err
			return
		}

		var pageErr error
		switch roaster.Platform {
		case model.PlatformShopify:
			pageErr = f.discoverShopify(ctx, roaster, g, out)
		case model.PlatformWoo:
			pageErr = f.discoverWoo(ctx, roaster, g, out)
		default:
			pageErr = fmt.Errorf("platform %s has no primary listing endpoint", roaster.Platform)
		}

		if pageErr == nil {
			return
		}
		if !f.shouldFallback(pageErr) || !roaster.FallbackOK || f.fallback == nil {
			errs <- pageErr
			return
		}
		if err := f.discoverFallback(ctx, roaster, out); err != nil {
			errs <- err
		}
	}()

	return out, errs
}

// shouldFallback reports whether pageErr takes the fallback path: a
// KindPermanentHTTP error (a 4xx/5xx other than 429/500/502/503/504, or a
// listing page whose JSON does not parse) or an error with no kind (an
// unsupported platform, or the page cap). A 5xx still failing after the
// guard's retries is KindTransientNetwork and does not fall back, and
// required product fields are not checked at this stage.
func (f *Fetcher) shouldFallback(err error) bool {
	kind := scanerr.KindOf(err)
	return kind == scanerr.KindPermanentHTTP || kind == ""
}

func (f *Fetcher) discoverShopify(ctx context.Context, roaster *model.Roaster, g *guard.Guard, out chan<- RawProduct) error {
	const limit = 250
	for page := 1; page <= f.maxPages(); page++ {
		url := fmt.Sprintf("%s/products.json?limit=%d&page=%d", baseURL(roaster), limit, page)
		resp, err := f.doFetch(ctx, g, "fetcher.discoverProducts", url, roaster.LastETag, roaster.LastModified)
		if err != nil {
			return err
		}
		if resp.NotModified || len(resp.Body) == 0 {
			return nil
		}

		var parsed shopifyPage
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return scanerr.New(scanerr.KindPermanentHTTP, "fetcher.discoverProducts", err)
		}

		for _, p := range parsed.Products {
			raw, _ := json.Marshal(p)
			select {
			case out <- RawProduct{
				PlatformProductID: fmt.Sprintf("%d", p.ID),
				Payload:           raw,
				HTTPStatus:        resp.StatusCode,
				DownloadMs:        resp.DownloadMs,
				SizeBytes:         int64(len(raw)),
			}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(parsed.Products) < limit {
			return nil
		}
	}
	return fmt.Errorf("discoverProducts: exceeded page cap of %d for roaster %s", f.maxPages(), roaster.ID)
}

func (f *Fetcher) discoverWoo(ctx context.Context, roaster *model.Roaster, g *guard.Guard, out chan<- RawProduct) error {
	const perPage = 100
	for page := 1; page <= f.maxPages(); page++ {
		url := fmt.Sprintf("%s/wp-json/wc/store/products?per_page=%d&page=%d", baseURL(roaster), perPage, page)
		resp, err := f.doFetch(ctx, g, "fetcher.discoverProducts", url, roaster.LastETag, roaster.LastModified)
		if err != nil {
			return err
		}
		if resp.NotModified || len(resp.Body) == 0 {
			return nil
		}

		var parsed wooPage
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return scanerr.New(scanerr.KindPermanentHTTP, "fetcher.discoverProducts", err)
		}

		for _, p := range parsed {
			raw, _ := json.Marshal(p)
			select {
			case out <- RawProduct{
				PlatformProductID: fmt.Sprintf("%d", p.ID),
				Payload:           raw,
				HTTPStatus:        resp.StatusCode,
				DownloadMs:        resp.DownloadMs,
				SizeBytes:         int64(len(raw)),
			}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(parsed) < perPage {
			return nil
		}
	}
	return fmt.Errorf("discoverProducts: exceeded page cap of %d for roaster %s", f.maxPages(), roaster.ID)
}

// discoverFallback enumerates product URLs via ExtractProvider.MapDomain
// and extracts each one, decrementing the roaster's monthly fallback
// budget per extract call per spec §4.2.
func (f *Fetcher) discoverFallback(ctx context.Context, roaster *model.Roaster, out chan<- RawProduct) error {
	urls, err := f.fallback.MapDomain(ctx, roaster.Hostname)
	if err != nil {
		return scanerr.New(scanerr.KindPermanentHTTP, "fetcher.fallback.map", err)
	}

	for _, u := range urls {
		if err := f.fallbackBudgets.Consume(roaster.ID); err != nil {
			if _, exhausted := err.(*budget.ExhaustedError); exhausted {
				return scanerr.ErrFallbackExhausted
			}
		}
		fields, err := f.fallback.Extract(ctx, u)
		if err != nil {
			continue // one bad extract doesn't fail the whole run
		}
		raw, _ := json.Marshal(fields)
		id, _ := fields["platformProductId"].(string)
		select {
		case out <- RawProduct{PlatformProductID: id, Payload: raw, SizeBytes: int64(len(raw))}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// FetchPriceListing streams the variants-only projection per spec §4.2,
// reusing the same listing endpoints as DiscoverProducts; it never makes
// per-product calls unless the listing itself is unavailable.
func (f *Fetcher) FetchPriceListing(ctx context.Context, roaster *model.Roaster) (<-chan PriceProjection, <-chan error) {
	products, errs := f.DiscoverProducts(ctx, roaster)
	out := make(chan PriceProjection)

	go func() {
		defer close(out)
		for p := range products {
			proj, err := projectPrice(roaster, p)
			if err != nil {
				continue
			}
			select {
			case out <- proj:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// projectPrice reads roaster for its Platform and, for Shopify, its
// configured Currency — Shopify's products.json carries no per-variant
// currency field, so that has to come from the roaster's own storefront
// config (spec §6's roasters.yaml currency key) rather than the payload.
func projectPrice(roaster *model.Roaster, p RawProduct) (PriceProjection, error) {
	switch roaster.Platform {
	case model.PlatformShopify:
		var sp struct {
			ID       int64 `json:"id"`
			Variants []struct {
				ID        int64  `json:"id"`
				Price     string `json:"price"`
				Available bool   `json:"available"`
			} `json:"variants"`
		}
		if err := json.Unmarshal(p.Payload, &sp); err != nil {
			return PriceProjection{}, err
		}
		proj := PriceProjection{PlatformProductID: p.PlatformProductID}
		for _, v := range sp.Variants {
			proj.Variants = append(proj.Variants, PriceVariant{
				PlatformVariantID: fmt.Sprintf("%d", v.ID),
				Price:             v.Price,
				Currency:          roaster.Currency,
				InStock:           v.Available,
			})
		}
		return proj, nil
	case model.PlatformWoo:
		var wp struct {
			ID     int64 `json:"id"`
			Prices struct {
				Price        string `json:"price"`
				CurrencyCode string `json:"currency_code"`
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
		}
		if err := json.Unmarshal(p.Payload, &wp); err != nil {
			return PriceProjection{}, err
		}
		if len(wp.Variations) > 0 {
			proj := PriceProjection{PlatformProductID: p.PlatformProductID}
			for _, v := range wp.Variations {
				proj.Variants = append(proj.Variants, PriceVariant{
					PlatformVariantID: fmt.Sprintf("%d", v.ID),
					Price:             v.Prices.Price,
					Currency:          v.Prices.CurrencyCode,
					InStock:           v.IsInStock,
				})
			}
			return proj, nil
		}
		return PriceProjection{
			PlatformProductID: p.PlatformProductID,
			Variants: []PriceVariant{{
				PlatformVariantID: p.PlatformProductID,
				Price:             wp.Prices.Price,
				Currency:          wp.Prices.CurrencyCode,
				InStock:           wp.IsInStock,
			}},
		}, nil
	default:
		return PriceProjection{}, fmt.Errorf("no price projection for platform %s", roaster.Platform)
	}
}

// FetchProduct reconstructs a minimal payload for one known product,
// only used when the listing endpoint is unavailable per spec §4.2.
func (f *Fetcher) FetchProduct(ctx context.Context, roaster *model.Roaster, handleOrID string) (*RawProduct, error) {
	g, err := f.guardFor(roaster)
	if err != nil {
		return nil, err
	}

	var url string
	switch roaster.Platform {
	case model.PlatformShopify:
		url = fmt.Sprintf("%s/products/%s.json", baseURL(roaster), handleOrID)
	case model.PlatformWoo:
		url = fmt.Sprintf("%s/wp-json/wc/store/products/%s", baseURL(roaster), handleOrID)
	default:
		return nil, fmt.Errorf("fetchProduct: platform %s unsupported", roaster.Platform)
	}

	resp, err := f.doFetch(ctx, g, "fetcher.fetchProduct", url, "", "")
	if err != nil {
		return nil, err
	}
	if resp.NotModified {
		return nil, nil
	}
	return &RawProduct{
		PlatformProductID: handleOrID,
		Payload:           resp.Body,
		HTTPStatus:        resp.StatusCode,
		DownloadMs:        resp.DownloadMs,
		SizeBytes:         int64(len(resp.Body)),
	}, nil
}

func (f *Fetcher) maxPages() int {
	if f.cfg.MaxPagesPerRun > 0 {
		return f.cfg.MaxPagesPerRun
	}
	return 200
}
