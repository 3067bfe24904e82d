package requeue

import (
	"sync"
	"time"

	"github.com/vyrodovalexey/avaretry/internal/backoff"
)

// Tracker configuration defaults.
const (
	// DefaultMaxEntries bounds the number of objects tracked at once.
	DefaultMaxEntries = 10000
	// DefaultStaleAge is the age after which an untouched entry is dropped.
	DefaultStaleAge = time.Hour
)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// MaxEntries is the number of entries kept before the least recently
	// used one is evicted.
	MaxEntries int
	// StaleAge is the age after which Cleanup drops an entry.
	StaleAge time.Duration
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxEntries: DefaultMaxEntries,
		StaleAge:   DefaultStaleAge,
	}
}

// entry is the retry state of one object between reconciles.
type entry struct {
	attempt      int
	algorithm    backoff.Algorithm[time.Duration]
	lastAccessed time.Time
}

// Tracker keeps the retry state of each object. It evicts the least
// recently used entry when full so memory stays bounded.
type Tracker struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	staleAge   time.Duration
}

// NewTracker creates a tracker. Non-positive fields fall back to the
// defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = DefaultStaleAge
	}
	return &Tracker{
		entries:    make(map[string]*entry),
		maxEntries: cfg.MaxEntries,
		staleAge:   cfg.StaleAge,
	}
}

// update runs fn on the entry for key under the tracker lock, creating
// the entry with a fresh algorithm from newAlgorithm when missing. The
// entry is dropped when fn returns false.
func (t *Tracker) update(
	key string,
	now time.Time,
	newAlgorithm func() backoff.Algorithm[time.Duration],
	fn func(e *entry) bool,
) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		t.evictLocked()
		e = &entry{algorithm: newAlgorithm()}
		t.entries[key] = e
	}
	e.lastAccessed = now

	if !fn(e) {
		delete(t.entries, key)
	}
}

// Attempts returns the number of failed attempts recorded for key.
func (t *Tracker) Attempts(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[key]; ok {
		return e.attempt
	}
	return 0
}

// Reset forgets key.
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Len returns the number of tracked objects.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Cleanup drops entries not touched within the stale age and returns how
// many were removed.
func (t *Tracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, e := range t.entries {
		if now.Sub(e.lastAccessed) > t.staleAge {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}

// evictLocked makes room for one entry.
func (t *Tracker) evictLocked() {
	if len(t.entries) < t.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, e := range t.entries {
		if oldestKey == "" || e.lastAccessed.Before(oldest) {
			oldestKey, oldest = key, e.lastAccessed
		}
	}
	delete(t.entries, oldestKey)
}
