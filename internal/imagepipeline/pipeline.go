package imagepipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/scanerr"
)

// HashIndex is the server-side lookup spec §4.6 names: lookupHash(hash) ->
// cdnUrl | nil, backed by the persisted images table. A narrow interface so
// this package never imports internal/writepath's RPC client directly.
type HashIndex interface {
	Lookup(ctx context.Context, contentHash string) (cdnURL string, found bool, err error)
}

// Config bounds one job's image processing: concurrency per spec §4.6
// ("at most K concurrent image uploads per job, default 4") and the body
// size past which a remote image is rejected rather than fetched in full.
type Config struct {
	MaxConcurrentUploads int
	MaxImageBytes        int64
	ThumbnailMaxWidth    int
	FetchTimeout         time.Duration
}

func (c Config) concurrency() int {
	if c.MaxConcurrentUploads <= 0 {
		return 4
	}
	return c.MaxConcurrentUploads
}

func (c Config) maxBytes() int64 {
	if c.MaxImageBytes <= 0 {
		return 10 << 20
	}
	return c.MaxImageBytes
}

// CDNUploader is the surface Pipeline needs from a CDN client; satisfied by
// both *CDNClient and *GuardedCDNClient, so callers can pass the guarded
// variant to get layer 3 of the price-only guard for free.
type CDNUploader interface {
	Upload(ctx context.Context, contentHash string, data []byte, contentType string) (string, error)
}

// Pipeline fetches, hashes, dedupes, and uploads a coffee's images. It
// holds no job type of its own; all three layers of the price-only guard
// are in guard.go and run around it.
type Pipeline struct {
	cdn        CDNUploader
	index      HashIndex
	httpClient *http.Client
	cfg        Config
}

func New(cdn CDNUploader, index HashIndex, httpClient *http.Client, cfg Config) *Pipeline {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Pipeline{cdn: cdn, index: index, httpClient: httpClient, cfg: cfg}
}

// fetchImage streams a remote image, capping body size at cfg.maxBytes()
// to avoid an oversized or malicious response filling memory.
func (p *Pipeline) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", scanerr.Retryable(scanerr.KindImage, "imagepipeline.fetch", err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", scanerr.New(scanerr.KindImage, "imagepipeline.fetch", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url))
	}

	limited := io.LimitReader(resp.Body, p.cfg.maxBytes()+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", scanerr.New(scanerr.KindImage, "imagepipeline.fetch", err)
	}
	if int64(len(data)) > p.cfg.maxBytes() {
		return nil, "", scanerr.New(scanerr.KindImage, "imagepipeline.fetch", fmt.Errorf("image at %s exceeds %d byte cap", url, p.cfg.maxBytes()))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// processOne fetches, hashes, dedupes against HashIndex, uploads on a miss,
// and returns the persisted model.Image row. One call handles one
// CanonicalImage; ProcessProductImages fans these out under a semaphore.
func (p *Pipeline) processOne(ctx context.Context, coffeeID string, img model.CanonicalImage) (model.Image, error) {
	data, contentType, err := p.fetchImage(ctx, img.URL)
	if err != nil {
		return model.Image{}, err
	}

	hash := ComputeHash(data)

	cdnURL, found, err := p.index.Lookup(ctx, hash)
	if err != nil {
		return model.Image{}, scanerr.New(scanerr.KindImage, "imagepipeline.lookup", err)
	}
	if !found {
		cdnURL, err = p.cdn.Upload(ctx, hash, data, contentType)
		if err != nil {
			return model.Image{}, err
		}
	}

	width, height, err := Dimensions(data)
	if err != nil {
		width, height = 0, 0
	}

	return model.Image{
		CoffeeID:    coffeeID,
		SourceURL:   img.URL,
		CDNURL:      cdnURL,
		ContentHash: hash,
		Width:       width,
		Height:      height,
		Alt:         img.AltText,
		SortOrder:   img.Order,
	}, nil
}

type imageResult struct {
	index int
	image model.Image
	err   error
}

// ProcessProductImages is spec §4.6's processProductImages(coffeeId, images)
// -> persistedImages[]. Pipeline itself does not check the job type: the
// guard runs at artifact mapping (layer 1, Guard.MapArtifactImages), at
// the write path (layer 2, Guard.CheckWritePath), and in a
// GuardedCDNClient passed in as the uploader (layer 3).
func (p *Pipeline) ProcessProductImages(ctx context.Context, coffeeID string, images []model.CanonicalImage) ([]model.Image, error) {
	if len(images) == 0 {
		return nil, nil
	}

	sem := make(chan struct{}, p.cfg.concurrency())
	results := make(chan imageResult, len(images))

	for i, img := range images {
		i, img := i, img
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			persisted, err := p.processOne(ctx, coffeeID, img)
			results <- imageResult{index: i, image: persisted, err: err}
		}()
	}

	out := make([]model.Image, len(images))
	var firstErr error
	for range images {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out[r.index] = r.image
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
