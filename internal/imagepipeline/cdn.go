// Package imagepipeline implements spec §4.6: content-addressed image
// dedupe and CDN upload, gated off entirely during price-only runs. Grounded
// on other_examples pack repo evalgo-org-eve's storage/s3aws.go (S3-compatible
// uploader, MD5/hash idempotency) and media/images.go (resize, EXIF
// orientation), adapted from that repo's generic multi-cloud file-sync
// surface down to this package's one operation: upload one image's bytes,
// once, keyed by content hash.
package imagepipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// CDNConfig names the bucket an uploaded image lands in and the public URL
// prefix used to build the returned cdnUrl.
type CDNConfig struct {
	Bucket    string
	KeyPrefix string
	PublicURL string // e.g. "https://cdn.example.com"
}

// Uploader is the minimal S3 upload surface CDNClient.Upload needs;
// satisfied by *manager.Uploader in production.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// CDNClient uploads image bytes idempotently by content hash, per spec
// §4.6's upload(bytes, metadata) -> cdnUrl contract. It never re-uploads:
// callers consult HashIndex.Lookup first and only call Upload on a miss.
type CDNClient struct {
	cfg      CDNConfig
	uploader Uploader
}

func NewCDNClient(cfg CDNConfig, uploader Uploader) *CDNClient {
	return &CDNClient{cfg: cfg, uploader: uploader}
}

// ComputeHash is spec §4.6's computeHash(bytes) -> sha256.
func ComputeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Upload pushes data to the CDN bucket under a content-hash key and returns
// the public URL. Called only on a cache miss against the hash index, so a
// second concurrent call for the same hash is a correctness bug in the
// caller, not something this method guards against itself.
func (c *CDNClient) Upload(ctx context.Context, contentHash string, data []byte, contentType string) (string, error) {
	key := c.cfg.KeyPrefix + "/" + contentHash

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"content-hash": contentHash,
		},
	})
	if err != nil {
		return "", fmt.Errorf("imagepipeline: uploading %s: %w", key, err)
	}
	return c.cfg.PublicURL + "/" + key, nil
}

// Dimensions decodes just enough of the image to report its pixel size,
// without a full resize pass; used to populate Image.Width/Height on the
// persisted row.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("imagepipeline: decoding image dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// ResizeConfig bounds a thumbnail variant's width; height is derived
// to preserve aspect ratio, mirroring the teacher's ImageRescale helper.
type ResizeConfig struct {
	MaxWidth int
}

// reencode re-serializes an already-resized image.Image back to bytes in
// its original format, used by Resize.
func reencode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("imagepipeline: unsupported re-encode format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
