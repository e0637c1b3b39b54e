package writepath

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogAlerter is the default Alerter: price-spike signals are structured log
// events, matching the teacher's zerolog.Info()/Error() call shape
// throughout internal/application/pipeline. A real deployment can swap in
// an Alerter that posts to Slack/PagerDuty; the core only ever emits the
// signal, per spec §4.7 ("external to core").
type LogAlerter struct{}

func (LogAlerter) PriceSpike(ctx context.Context, signal PriceSpikeSignal) {
	log.Warn().
		Str("roaster_id", signal.RoasterID).
		Str("coffee_id", signal.CoffeeID).
		Str("variant_id", signal.PlatformVariantID).
		Float64("old_price", signal.OldPrice).
		Float64("new_price", signal.NewPrice).
		Float64("delta_pct", signal.DeltaPct).
		Time("observed_at", signal.ObservedAt).
		Msg("price spike detected")
}
