// Package dedup remembers which kill occurrences have already been reported
// during the lifetime of the process.
package dedup

import (
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Tracker is an append-only set of identity keys. Entries are never evicted;
// keys embed the restart count, so growth follows the OOM-kill rate.
type Tracker struct {
	mu   sync.Mutex
	seen sets.Set[string]
}

func NewTracker() *Tracker {
	return &Tracker{seen: sets.New[string]()}
}

func (t *Tracker) Seen(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen.Has(key)
}

func (t *Tracker) Mark(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen.Insert(key)
}

// ShouldProcess records key and reports whether it was new. Prefer Seen and
// Mark when the key may only be recorded after a successful emission.
func (t *Tracker) ShouldProcess(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen.Has(key) {
		return false
	}
	t.seen.Insert(key)
	return true
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen.Len()
}
