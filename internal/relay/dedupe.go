package relay

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultDedupeTTL  = 20 * time.Minute
	defaultDedupeSize = 5000
)

// DedupeCache remembers recently seen event ids. A key counts as a duplicate
// for ttl after it was first recorded; beyond maxSize keys the least recently
// recorded one is forgotten.
type DedupeCache struct {
	mu   sync.Mutex // makes check-then-record atomic
	seen *lru.Cache[string, time.Time]
	ttl  time.Duration
	now  func() time.Time
}

// NewDedupeCache creates a dedupe cache. Non-positive arguments select the defaults.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	if maxSize <= 0 {
		maxSize = defaultDedupeSize
	}
	seen, _ := lru.New[string, time.Time](maxSize) // only fails for size <= 0
	return &DedupeCache{seen: seen, ttl: ttl, now: time.Now}
}

// IsDuplicate reports whether key was recorded within the TTL window and
// records it otherwise. Empty keys are never duplicates.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seen.Peek(key); ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen.Add(key, now)
	return false
}

// Len returns the number of tracked keys, expired ones included.
func (d *DedupeCache) Len() int {
	return d.seen.Len()
}
