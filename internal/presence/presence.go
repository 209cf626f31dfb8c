package presence

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a client counts as present after its last heartbeat
const DefaultTTL = 45 * time.Second

// Tracker is a best-effort registry of clients currently viewing an event's
// gallery. It is advisory UI data only: entries expire after a TTL of
// silence, nothing is persisted, and a process restart clears everything.
type Tracker interface {
	Heartbeat(ctx context.Context, eventID uint, clientID string) (int, error)
	Leave(ctx context.Context, eventID uint, clientID string) (int, error)
	Count(ctx context.Context, eventID uint) (int, error)
	Snapshot(ctx context.Context) (map[uint]int, error)
	Clear(ctx context.Context, eventID uint) error
}

// MemoryTracker is the default single-process Tracker: a mutex-guarded map
// of (event, client) to last-seen time with lazy TTL pruning. Multi-instance
// deployments substitute the Redis tracker.
type MemoryTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uint]map[string]time.Time
}

// NewMemoryTracker creates an in-process tracker. A non-positive ttl falls
// back to DefaultTTL.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uint]map[string]time.Time),
	}
}

// Heartbeat records or refreshes a client and returns the live count after
// pruning expired entries.
func (t *MemoryTracker) Heartbeat(_ context.Context, eventID uint, clientID string) (int, error) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	clients := t.entries[eventID]
	if clients == nil {
		clients = make(map[string]time.Time)
		t.entries[eventID] = clients
	}
	clients[clientID] = now
	return t.pruneLocked(eventID, now), nil
}

// Leave removes a client immediately and returns the updated count
func (t *MemoryTracker) Leave(_ context.Context, eventID uint, clientID string) (int, error) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if clients, ok := t.entries[eventID]; ok {
		delete(clients, clientID)
	}
	return t.pruneLocked(eventID, now), nil
}

// Snapshot returns the live count per event, pruning as a side effect
func (t *MemoryTracker) Snapshot(_ context.Context) (map[uint]int, error) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[uint]int, len(t.entries))
	for eventID := range t.entries {
		if n := t.pruneLocked(eventID, now); n > 0 {
			counts[eventID] = n
		}
	}
	return counts, nil
}

// Clear drops an event's registry entirely, called when the event ends
func (t *MemoryTracker) Clear(_ context.Context, eventID uint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, eventID)
	return nil
}

// Count returns the current live count for one event
func (t *MemoryTracker) Count(_ context.Context, eventID uint) (int, error) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pruneLocked(eventID, now), nil
}

// pruneLocked drops expired entries for an event and returns the remaining
// count. An event with no clients left is removed from the registry.
func (t *MemoryTracker) pruneLocked(eventID uint, now time.Time) int {
	clients, ok := t.entries[eventID]
	if !ok {
		return 0
	}
	cutoff := now.Add(-t.ttl)
	for clientID, lastSeen := range clients {
		if lastSeen.Before(cutoff) {
			delete(clients, clientID)
		}
	}
	if len(clients) == 0 {
		delete(t.entries, eventID)
		return 0
	}
	return len(clients)
}
