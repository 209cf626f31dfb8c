package metrics

import (
	"sync"
	"time"
)

// Metrics is a small in-process counter registry surfaced on /metrics.
// Operational time-series belong to the tracing backend; this exists so a
// single instance can be inspected without any external dependency.
type Metrics struct {
	mu        sync.RWMutex
	counters  map[string]int64
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:  make(map[string]int64),
		startTime: time.Now(),
	}
}

// Counter names
const (
	MediaUploaded     = "media_uploaded"
	MediaApproved     = "media_approved"
	MediaRejected     = "media_rejected"
	MediaLiked        = "media_liked"
	EventsPromoted    = "events_promoted"
	EventsEnded       = "events_ended"
	SweepRuns         = "sweep_runs"
	SweepErrors       = "sweep_errors"
	PreviewsGenerated = "previews_generated"
	PreviewFailures   = "preview_failures"
)

// Inc increments a counter by one
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add increments a counter by n
func (m *Metrics) Add(name string, n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.counters[name] += n
	m.mu.Unlock()
}

// Get returns one counter's value
func (m *Metrics) Get(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// Snapshot returns all counters plus process uptime
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	counters := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		counters[k] = v
	}
	m.mu.RUnlock()

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"counters":       counters,
	}
}
