package imagepipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brewradar/coffeescan/internal/model"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type stubUploader struct {
	mu      sync.Mutex
	uploads int
}

func (u *stubUploader) Upload(ctx context.Context, contentHash string, data []byte, contentType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads++
	return "https://cdn.example.com/" + contentHash, nil
}

type memHashIndex struct {
	mu    sync.Mutex
	known map[string]string
}

func newMemHashIndex() *memHashIndex {
	return &memHashIndex{known: make(map[string]string)}
}

func (m *memHashIndex) Lookup(ctx context.Context, contentHash string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url, ok := m.known[contentHash]
	return url, ok, nil
}

func (m *memHashIndex) record(hash, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[hash] = url
}

func TestProcessProductImagesUploadsOnMiss(t *testing.T) {
	data := testPNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer server.Close()

	uploader := &stubUploader{}
	index := newMemHashIndex()
	pipeline := New(uploader, index, server.Client(), Config{})

	images := []model.CanonicalImage{{URL: server.URL, AltText: "bag", Order: 0}}
	out, err := pipeline.ProcessProductImages(context.Background(), "coffee-1", images)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, uploader.uploads)
	require.Equal(t, ComputeHash(data), out[0].ContentHash)
	require.Equal(t, 4, out[0].Width)
}

func TestProcessProductImagesSkipsUploadOnHashHit(t *testing.T) {
	data := testPNG(t)
	hash := ComputeHash(data)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer server.Close()

	uploader := &stubUploader{}
	index := newMemHashIndex()
	index.record(hash, "https://cdn.example.com/"+hash)
	pipeline := New(uploader, index, server.Client(), Config{})

	images := []model.CanonicalImage{{URL: server.URL}}
	out, err := pipeline.ProcessProductImages(context.Background(), "coffee-1", images)
	require.NoError(t, err)
	require.Equal(t, 0, uploader.uploads, "identical content hash must not re-upload")
	require.Equal(t, "https://cdn.example.com/"+hash, out[0].CDNURL)
}

func TestGuardBlocksImageWorkOnPriceOnlyJob(t *testing.T) {
	g := NewGuard(model.JobPriceOnly)
	require.False(t, g.Allow())

	_, dropped := g.MapArtifactImages([]model.CanonicalImage{{URL: "https://example.com/a.jpg"}})
	require.True(t, dropped, "layer 1 must report that images were dropped")

	require.ErrorIs(t, g.CheckWritePath(), ErrImageWorkDuringPriceOnly)
	require.ErrorIs(t, g.CheckCDNCall(context.Background()), ErrImageWorkDuringPriceOnly)
}

func TestGuardedCDNClientBlocksUploadOnPriceOnlyJob(t *testing.T) {
	// uploader is nil: the guard must block before CDNClient.Upload ever
	// dereferences it.
	guarded := NewGuardedCDNClient(NewCDNClient(CDNConfig{Bucket: "b", KeyPrefix: "p", PublicURL: "https://cdn"}, nil), NewGuard(model.JobPriceOnly))

	_, err := guarded.Upload(context.Background(), "hash", []byte("x"), "image/png")
	require.ErrorIs(t, err, ErrImageWorkDuringPriceOnly)
}

func TestComputeHashIsContentAddressed(t *testing.T) {
	a := testPNG(t)
	require.Equal(t, ComputeHash(a), ComputeHash(a))
}
