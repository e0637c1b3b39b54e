package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brewradar/coffeescan/internal/model"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// RoasterLister supplies the set of roasters the scheduler should consider
// on each cron tick. Generalizes the teacher's YAML-loaded Job list into a
// live, operator-maintained roaster set (spec §1 treats roaster discovery
// itself as external input).
type RoasterLister interface {
	ListActive() []model.Roaster
}

// RobotsChecker reports whether a roaster's robots.txt currently permits
// scraping, consulted before every scheduled enqueue per spec §4.1.
type RobotsChecker interface {
	Allowed(ctx context.Context, roaster model.Roaster) (bool, error)
}

// Scheduler fires full-refresh and price-only jobs on each roaster's
// cadence. Each distinct cadence expression in use (the two spec
// defaults, plus any roaster override) gets one cron.Cron entry; the
// entry's closure re-evaluates the roaster set at trigger time so
// roasters added after Start are picked up on their next tick.
type Scheduler struct {
	cron     *cron.Cron
	queue    *Queue
	roasters RoasterLister
	robots   RobotsChecker

	mu           sync.Mutex
	lastEnqueued map[string]time.Time // "roasterID|jobType" -> bucket this job was last enqueued for
}

func NewScheduler(queue *Queue, roasters RoasterLister, robots RobotsChecker) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		queue:        queue,
		roasters:     roasters,
		robots:       robots,
		lastEnqueued: make(map[string]time.Time),
	}
}

// Start registers one cron entry per distinct cadence expression currently
// in use across active roasters, for both job types, then starts the
// underlying cron scheduler. Call Start once; Stop to shut down.
func (s *Scheduler) Start() {
	cadences := map[string]model.JobType{}
	for _, r := range s.roasters.ListActive() {
		cadences[r.EffectiveFullCadence()] = model.JobFullRefresh
		cadences[r.EffectivePriceCadence()] = model.JobPriceOnly
	}
	// Always register the defaults even with zero roasters yet configured,
	// so roasters added later without a cadence override are still served.
	cadences[model.DefaultFullCadence] = model.JobFullRefresh
	cadences[model.DefaultPriceCadence] = model.JobPriceOnly

	for expr, jobType := range cadences {
		expr, jobType := expr, jobType
		if _, err := s.cron.AddFunc(expr, func() {
			s.enqueueDue(expr, jobType)
		}); err != nil {
			log.Error().Err(err).Str("cadence", expr).Msg("invalid cron expression, skipping")
		}
	}

	s.cron.Start()
}

// Stop halts the cron scheduler and waits for any running entry to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// enqueueDue runs on every tick of cadence expr. It enqueues jobType for
// every active roaster whose effective cadence for that job type matches
// expr, after a robots.txt check, collapsing duplicate enqueues within the
// same cadence bucket (spec §4.1: idempotent per roasterId/jobType/bucket).
func (s *Scheduler) enqueueDue(expr string, jobType model.JobType) {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Minute)

	for _, roaster := range s.roasters.ListActive() {
		var cadenceMatches bool
		switch jobType {
		case model.JobFullRefresh:
			cadenceMatches = roaster.EffectiveFullCadence() == expr
		case model.JobPriceOnly:
			cadenceMatches = roaster.EffectivePriceCadence() == expr
		}
		if !cadenceMatches {
			continue
		}

		key := fmt.Sprintf("%s|%s", roaster.ID, jobType)
		s.mu.Lock()
		already := s.lastEnqueued[key]
		s.mu.Unlock()
		if already.Equal(bucket) {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		allowed, err := s.robots.Allowed(ctx, roaster)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("roaster_id", roaster.ID).Msg("robots check failed, skipping scheduled job")
			continue
		}
		if !allowed {
			log.Info().Str("roaster_id", roaster.ID).Msg("robots.txt disallows scraping, skipping scheduled job")
			continue
		}

		job := model.Job{
			JobID:      uuid.NewString(),
			RoasterID:  roaster.ID,
			Type:       jobType,
			EnqueuedAt: now,
			Status:     model.JobQueued,
		}
		s.queue.Enqueue(job)

		s.mu.Lock()
		s.lastEnqueued[key] = bucket
		s.mu.Unlock()
	}
}
