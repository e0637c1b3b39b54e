package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/brewradar/coffeescan/internal/net/budget"
	"github.com/brewradar/coffeescan/internal/net/circuit"
	"github.com/brewradar/coffeescan/internal/net/ratelimit"
	"github.com/brewradar/coffeescan/internal/scanerr"
)

// Config tunes one Resolver.
type Config struct {
	CacheTTL time.Duration
}

// Resolver implements normalizer.LLMResolver, composing the provider
// client with caching, per-roaster rate limiting, a global daily spend
// budget, and a circuit breaker, per spec §4.4's full fallback contract.
type Resolver struct {
	client        *Client
	cache         Cache
	perRoasterRPM *ratelimit.Manager
	dailyBudget   *budget.Tracker
	breaker       *circuit.Breaker
	cfg           Config
}

func NewResolver(client *Client, cache Cache, perRoasterRPM *ratelimit.Manager, dailyBudget *budget.Tracker, breaker *circuit.Breaker, cfg Config) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Resolver{
		client:        client,
		cache:         cache,
		perRoasterRPM: perRoasterRPM,
		dailyBudget:   dailyBudget,
		breaker:       breaker,
		cfg:           cfg,
	}
}

// Resolve implements normalizer.LLMResolver. It does not apply the
// per-roaster rate limit: that is WaitRoaster, a separate call, and no
// caller in this module makes it before Resolve.
func (r *Resolver) Resolve(ctx context.Context, rawPayloadHash, field, title, description string) (string, float64, error) {
	if answer, ok := r.cache.Get(ctx, rawPayloadHash, field); ok {
		return answer.Value, answer.Confidence, nil
	}

	if err := r.dailyBudget.Consume(); err != nil {
		if _, exhausted := err.(*budget.ExhaustedError); exhausted {
			return "", 0, scanerr.ErrLLMBudgetExhausted
		}
	}

	var answer FieldAnswer
	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		a, err := r.client.AskField(ctx, field, title, description)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})
	if err != nil {
		if err == circuit.ErrCircuitOpen {
			return "", 0, scanerr.Retryable(scanerr.KindLLMProvider, "llm.Resolve", err, 0)
		}
		return "", 0, scanerr.New(scanerr.KindLLMProvider, "llm.Resolve", err)
	}

	r.cache.Set(ctx, rawPayloadHash, field, answer, r.cfg.CacheTTL)
	return answer.Value, answer.Confidence, nil
}

// WaitRoaster applies the per-roaster requests/min token bucket before a
// Resolve call, for callers that want to rate-limit at the call site
// rather than inside Resolve (keeping Resolve itself free of a roasterID
// parameter so it satisfies normalizer.LLMResolver exactly).
func (r *Resolver) WaitRoaster(ctx context.Context, roasterID string) error {
	if err := r.perRoasterRPM.Wait(ctx, roasterID); err != nil {
		return fmt.Errorf("llm: rate limit wait for roaster %s: %w", roasterID, err)
	}
	return nil
}
