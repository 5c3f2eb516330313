// Package metrics tracks request latency per endpoint.
package metrics

import (
	"sync"
	"time"
)

type EndpointLatency struct {
	// EWMA of request duration in milliseconds.
	EWMAms float64

	// Counters (rolling since start).
	OK    uint64
	Error uint64

	// Last observed duration.
	LastDuration time.Duration

	// Timestamp of last observation.
	LastAt time.Time
}

type LatencyTracker struct {
	mu        sync.RWMutex
	alpha     float64
	endpoints map[string]*EndpointLatency
}

// NewLatencyTracker creates a tracker with EWMA smoothing factor alpha.
// Typical alpha: 0.1..0.3 (higher reacts faster).
func NewLatencyTracker(alpha float64) *LatencyTracker {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.2
	}
	return &LatencyTracker{
		alpha:     alpha,
		endpoints: map[string]*EndpointLatency{},
	}
}

func (t *LatencyTracker) ObserveOK(endpoint string, d time.Duration) {
	t.observe(endpoint, d, true)
}

func (t *LatencyTracker) ObserveError(endpoint string, d time.Duration) {
	t.observe(endpoint, d, false)
}

func (t *LatencyTracker) observe(endpoint string, d time.Duration, ok bool) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.endpoints[endpoint]
	if e == nil {
		e = &EndpointLatency{}
		t.endpoints[endpoint] = e
	}

	ms := float64(d.Milliseconds())
	if ms < 0 {
		ms = 0
	}

	if e.EWMAms == 0 {
		e.EWMAms = ms
	} else {
		e.EWMAms = (t.alpha * ms) + ((1.0 - t.alpha) * e.EWMAms)
	}

	e.LastDuration = d
	e.LastAt = now
	if ok {
		e.OK++
	} else {
		e.Error++
	}
}

func (t *LatencyTracker) Get(endpoint string) (EndpointLatency, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e := t.endpoints[endpoint]
	if e == nil {
		return EndpointLatency{}, false
	}
	return *e, true
}

func (t *LatencyTracker) Snapshot() map[string]EndpointLatency {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]EndpointLatency, len(t.endpoints))
	for k, v := range t.endpoints {
		out[k] = *v
	}
	return out
}
