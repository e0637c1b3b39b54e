// Package budget tracks the two budgets spec §4.2/§4.5 require: each
// roaster's monthly fallback-extract budget and the global daily LLM spend
// budget. Both share the same reset-at-hour, warn-then-exhaust shape, so
// one Tracker type serves both.
package budget

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ExhaustedError is returned once a tracker's limit is reached.
type ExhaustedError struct {
	Label string
	Used  int64
	Limit int64
	ETA   time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted for %s: %d/%d used, resets at %s",
		e.Label, e.Used, e.Limit, e.ETA.Format("2006-01-02 15:04 UTC"))
}

// WarningError is returned once usage crosses the warn threshold but before
// the hard limit.
type WarningError struct {
	Label     string
	Used      int64
	Limit     int64
	Threshold float64
}

func (e *WarningError) Error() string {
	util := float64(e.Used) / float64(e.Limit) * 100
	return fmt.Sprintf("budget warning for %s: %.1f%% used (%d/%d)", e.Label, util, e.Used, e.Limit)
}

// Period controls how often a Tracker resets. Fallback budgets reset
// monthly (calendar month boundary, UTC); the LLM daily budget resets every
// 24h at a configured UTC hour.
type Period int

const (
	PeriodDaily Period = iota
	PeriodMonthly
)

// Tracker enforces one budget limit with atomic usage counting.
type Tracker struct {
	label         string
	period        Period
	limit         int64
	used          int64 // atomic
	resetHour     int
	warnThreshold float64
	lastReset     time.Time
	mu            sync.RWMutex
}

// NewTracker creates a tracker for label (a roaster ID for fallback budgets,
// or a fixed "llm" label for the global daily budget).
func NewTracker(label string, period Period, limit int64, resetHour int, warnThreshold float64) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	if warnThreshold <= 0 || warnThreshold > 1 {
		warnThreshold = 0.8
	}
	now := time.Now().UTC()
	return &Tracker{
		label:         label,
		period:        period,
		limit:         limit,
		resetHour:     resetHour,
		warnThreshold: warnThreshold,
		lastReset:     lastBoundary(now, period, resetHour),
	}
}

func lastBoundary(now time.Time, period Period, resetHour int) time.Time {
	if period == PeriodMonthly {
		boundary := time.Date(now.Year(), now.Month(), 1, resetHour, 0, 0, 0, time.UTC)
		if now.Before(boundary) {
			return boundary.AddDate(0, -1, 0)
		}
		return boundary
	}
	boundary := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Hour() >= resetHour {
		return boundary
	}
	return boundary.AddDate(0, 0, -1)
}

func (t *Tracker) nextReset() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.period == PeriodMonthly {
		return t.lastReset.AddDate(0, 1, 0)
	}
	return t.lastReset.Add(24 * time.Hour)
}

func (t *Tracker) resetIfDue() {
	now := time.Now().UTC()
	if now.Before(t.nextReset()) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	boundary := lastBoundary(now, t.period, t.resetHour)
	if boundary.After(t.lastReset) {
		atomic.StoreInt64(&t.used, 0)
		t.lastReset = boundary
	}
}

// Allow reports whether a unit may be consumed without incrementing usage.
func (t *Tracker) Allow() error {
	t.resetIfDue()
	used := atomic.LoadInt64(&t.used)
	if used >= t.limit {
		return &ExhaustedError{Label: t.label, Used: used, Limit: t.limit, ETA: t.nextReset()}
	}
	if util := float64(used) / float64(t.limit); util >= t.warnThreshold {
		return &WarningError{Label: t.label, Used: used, Limit: t.limit, Threshold: t.warnThreshold}
	}
	return nil
}

// Consume increments usage by one, returning ExhaustedError (and rolling
// back the increment) if the limit was already reached.
func (t *Tracker) Consume() error {
	t.resetIfDue()
	used := atomic.AddInt64(&t.used, 1)
	if used > t.limit {
		atomic.AddInt64(&t.used, -1)
		return &ExhaustedError{Label: t.label, Used: used - 1, Limit: t.limit, ETA: t.nextReset()}
	}
	if util := float64(used) / float64(t.limit); util >= t.warnThreshold {
		return &WarningError{Label: t.label, Used: used, Limit: t.limit, Threshold: t.warnThreshold}
	}
	return nil
}

// Remaining reports the units left before exhaustion.
func (t *Tracker) Remaining() int64 {
	t.resetIfDue()
	remaining := t.limit - atomic.LoadInt64(&t.used)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset manually resets usage to zero, used by operators clearing an
// inactive roaster.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	atomic.StoreInt64(&t.used, 0)
	t.lastReset = time.Now().UTC()
}

// Manager owns one Tracker per roaster for fallback-extract budgets. The
// global LLM daily budget uses a single Tracker directly, not a Manager.
type Manager struct {
	mu            sync.RWMutex
	trackers      map[string]*Tracker
	period        Period
	resetHour     int
	warnThreshold float64
}

// NewManager creates a fallback-budget manager; resetHour/warnThreshold
// apply to every roaster added via AddRoaster.
func NewManager(period Period, resetHour int, warnThreshold float64) *Manager {
	return &Manager{
		trackers:      make(map[string]*Tracker),
		period:        period,
		resetHour:     resetHour,
		warnThreshold: warnThreshold,
	}
}

// AddRoaster registers (or replaces) the tracker for a roaster with its
// configured monthly fallback limit.
func (m *Manager) AddRoaster(roasterID string, limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[roasterID] = NewTracker(roasterID, m.period, limit, m.resetHour, m.warnThreshold)
}

func (m *Manager) get(roasterID string) (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[roasterID]
	return t, ok
}

// Consume records one fallback extract call against roasterID's budget.
// Roasters with no registered tracker are treated as unbudgeted (allowed).
func (m *Manager) Consume(roasterID string) error {
	t, ok := m.get(roasterID)
	if !ok {
		return nil
	}
	return t.Consume()
}

// Remaining reports the fallback units left for roasterID, or -1 if
// unbudgeted.
func (m *Manager) Remaining(roasterID string) int64 {
	t, ok := m.get(roasterID)
	if !ok {
		return -1
	}
	return t.Remaining()
}
