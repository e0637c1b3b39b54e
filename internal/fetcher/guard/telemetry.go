package guard

import (
	"sync"
	"sync/atomic"
	"time"
)

// Telemetry accumulates per-roaster fetch counters used for the health
// surface and backpressure decisions; unlike the teacher's CSV-exporting
// version, this feeds straight into the metrics package (prometheus
// counters), so it keeps only the raw tallies and lets the caller decide
// how to export them.
type Telemetry struct {
	requests     int64
	cacheHits    int64
	notModified  int64
	retries      int64
	failures     int64
	totalLatency int64 // nanoseconds
	lastSuccess  int64 // unix nanos
	lastFailure  int64 // unix nanos
}

// NewTelemetry returns a zeroed counter set for one roaster.
func NewTelemetry() *Telemetry { return &Telemetry{} }

func (t *Telemetry) RecordRequest(latency time.Duration) {
	atomic.AddInt64(&t.requests, 1)
	atomic.AddInt64(&t.totalLatency, int64(latency))
}

func (t *Telemetry) RecordCacheHit()   { atomic.AddInt64(&t.cacheHits, 1) }
func (t *Telemetry) RecordNotModified() { atomic.AddInt64(&t.notModified, 1) }
func (t *Telemetry) RecordRetry()       { atomic.AddInt64(&t.retries, 1) }

func (t *Telemetry) RecordSuccess() {
	atomic.StoreInt64(&t.lastSuccess, time.Now().UnixNano())
}

func (t *Telemetry) RecordFailure() {
	atomic.AddInt64(&t.failures, 1)
	atomic.StoreInt64(&t.lastFailure, time.Now().UnixNano())
}

// Snapshot is a point-in-time view of one roaster's fetch telemetry.
type Snapshot struct {
	Requests    int64
	CacheHits   int64
	NotModified int64
	Retries     int64
	Failures    int64
	AvgLatency  time.Duration
	LastSuccess time.Time
	LastFailure time.Time
}

func (t *Telemetry) Snapshot() Snapshot {
	requests := atomic.LoadInt64(&t.requests)
	var avg time.Duration
	if requests > 0 {
		avg = time.Duration(atomic.LoadInt64(&t.totalLatency) / requests)
	}
	var lastSuccess, lastFailure time.Time
	if ns := atomic.LoadInt64(&t.lastSuccess); ns > 0 {
		lastSuccess = time.Unix(0, ns)
	}
	if ns := atomic.LoadInt64(&t.lastFailure); ns > 0 {
		lastFailure = time.Unix(0, ns)
	}
	return Snapshot{
		Requests:    requests,
		CacheHits:   atomic.LoadInt64(&t.cacheHits),
		NotModified: atomic.LoadInt64(&t.notModified),
		Retries:     atomic.LoadInt64(&t.retries),
		Failures:    atomic.LoadInt64(&t.failures),
		AvgLatency:  avg,
		LastSuccess: lastSuccess,
		LastFailure: lastFailure,
	}
}

// Registry holds one Telemetry per roaster.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Telemetry
}

func NewRegistry() *Registry { return &Registry{byID: make(map[string]*Telemetry)} }

func (r *Registry) For(roasterID string) *Telemetry {
	r.mu.RLock()
	t, ok := r.byID[roasterID]
	r.mu.RUnlock()
	if ok {
		return t
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byID[roasterID]; ok {
		return t
	}
	t = NewTelemetry()
	r.byID[roasterID] = t
	return t
}

func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.byID))
	for id, t := range r.byID {
		out[id] = t.Snapshot()
	}
	return out
}
