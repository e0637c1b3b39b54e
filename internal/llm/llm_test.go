package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brewradar/coffeescan/internal/net/budget"
	"github.com/brewradar/coffeescan/internal/net/circuit"
	"github.com/brewradar/coffeescan/internal/net/ratelimit"
)

func TestMemoryCacheGetSetRoundTrip(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Stop()

	_, ok := c.Get(context.Background(), "hash1", "roast_level")
	require.False(t, ok)

	c.Set(context.Background(), "hash1", "roast_level", FieldAnswer{Value: "dark", Confidence: 0.9}, time.Minute)
	answer, ok := c.Get(context.Background(), "hash1", "roast_level")
	require.True(t, ok)
	require.Equal(t, "dark", answer.Value)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Stop()

	c.Set(context.Background(), "hash1", "process", FieldAnswer{Value: "washed", Confidence: 0.8}, -time.Second)
	_, ok := c.Get(context.Background(), "hash1", "process")
	require.False(t, ok, "entries past their TTL are not returned")
}

func TestMemoryCacheEvictsLRUWhenFull(t *testing.T) {
	c := NewMemoryCache(2)
	defer c.Stop()

	c.Set(context.Background(), "h1", "f", FieldAnswer{Value: "a"}, time.Minute)
	c.Set(context.Background(), "h2", "f", FieldAnswer{Value: "b"}, time.Minute)
	c.Set(context.Background(), "h3", "f", FieldAnswer{Value: "c"}, time.Minute)

	_, ok := c.Get(context.Background(), "h1", "f")
	require.False(t, ok, "oldest entry evicted to make room")
	_, ok = c.Get(context.Background(), "h3", "f")
	require.True(t, ok)
}

func newTestServer(t *testing.T, answer FieldAnswer) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, _ := json.Marshal(answer)
		resp := chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: string(content)}}}}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestResolverCachesAcrossCalls(t *testing.T) {
	server := newTestServer(t, FieldAnswer{Value: "natural", Confidence: 0.92})
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL, Model: "test-model"})
	cache := NewMemoryCache(10)
	defer cache.Stop()
	rates := ratelimit.NewManager(ratelimit.Config{RPS: 1, Burst: 1})
	tracker := budget.NewTracker("global", budget.PeriodDaily, 100, 0, 0.8)
	breaker := circuit.NewBreaker(circuit.Config{FailureThreshold: 3, RequestTimeout: time.Second})

	resolver := NewResolver(client, cache, rates, tracker, breaker, Config{CacheTTL: time.Minute})

	value, confidence, err := resolver.Resolve(context.Background(), "payloadhash1", "process", "Title", "Description")
	require.NoError(t, err)
	require.Equal(t, "natural", value)
	require.InDelta(t, 0.92, confidence, 0.0001)

	cached, ok := cache.Get(context.Background(), "payloadhash1", "process")
	require.True(t, ok)
	require.Equal(t, "natural", cached.Value)

	// A second call for the same (rawPayloadHash, field) is served from the
	// cache, so it succeeds even with the provider gone.
	server.Close()
	value, confidence, err = resolver.Resolve(context.Background(), "payloadhash1", "process", "Title", "Description")
	require.NoError(t, err)
	require.Equal(t, "natural", value)
	require.InDelta(t, 0.92, confidence, 0.0001)
}
