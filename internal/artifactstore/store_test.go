package artifactstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brewradar/coffeescan/internal/model"
)

func TestPersistRawAssignsIDAndHashesPayload(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	id, err := store.PersistRaw(context.Background(), model.RawArtifact{
		RoasterID:  "roaster-a",
		Source:     model.SourceShopify,
		ScrapedAt:  time.Now(),
		RawPayload: []byte(`{"product":"ok"}`),
		SizeBytes:  16,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, ok := store.Get(id)
	require.True(t, ok)
	require.Equal(t, "roaster-a", got.RoasterID)
	require.NotEmpty(t, got.RawPayloadRef)
	require.Empty(t, got.RawPayload)

	payload, err := store.LoadPayload(got)
	require.NoError(t, err)
	require.Equal(t, `{"product":"ok"}`, string(payload))
}

func TestPersistRawDeduplicatesIdenticalPayloads(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	body := []byte(`{"product":"dup"}`)
	id1, err := store.PersistRaw(context.Background(), model.RawArtifact{RoasterID: "r", RawPayload: body})
	require.NoError(t, err)
	id2, err := store.PersistRaw(context.Background(), model.RawArtifact{RoasterID: "r", RawPayload: body})
	require.NoError(t, err)

	require.NotEqual(t, id1, id2, "each persist gets its own artifact ID even for identical bytes")

	a1, _ := store.Get(id1)
	a2, _ := store.Get(id2)
	require.Equal(t, a1.RawPayloadRef, a2.RawPayloadRef, "identical payloads share one content-addressed file")
}

func TestPersistRawSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	store, err := Open(dir)
	require.NoError(t, err)
	id, err := store.PersistRaw(context.Background(), model.RawArtifact{RoasterID: "r", RawPayload: []byte("x")})
	require.NoError(t, err)

	reopened, err := Open(dir)
	require.NoError(t, err)
	got, ok := reopened.Get(id)
	require.True(t, ok)
	require.Equal(t, "r", got.RoasterID)
	require.Equal(t, 1, reopened.Count())
}

func TestSweepRemovesOnlyArtifactsPastRetention(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	now := time.Now()
	oldID, err := store.PersistRaw(context.Background(), model.RawArtifact{
		RoasterID: "r", ScrapedAt: now.Add(-100 * 24 * time.Hour), RawPayload: []byte("old"),
	})
	require.NoError(t, err)
	freshID, err := store.PersistRaw(context.Background(), model.RawArtifact{
		RoasterID: "r", ScrapedAt: now.Add(-time.Hour), RawPayload: []byte("fresh"),
	})
	require.NoError(t, err)

	plan, err := store.Sweep(now, DefaultRetention)
	require.NoError(t, err)
	require.Contains(t, plan.ToDelete, oldID)
	require.NotContains(t, plan.ToDelete, freshID)

	_, ok := store.Get(oldID)
	require.False(t, ok)
	_, ok = store.Get(freshID)
	require.True(t, ok)
}
