// Package history keeps an in-memory capped ring of committed
// navigations. Nothing is persisted; the ring exists to feed the
// renderer's recent-pages list and domain statistics.
package history

import (
	"net/url"
	"sort"
	"sync"
	"time"
)

// DefaultCapacity bounds the ring when no capacity is given.
const DefaultCapacity = 500

// Entry is one committed navigation.
type Entry struct {
	URL   string    `json:"url"`
	Title string    `json:"title"`
	TabID string    `json:"tabId"`
	At    time.Time `json:"at"`
}

// DomainCount is the visit tally for one hostname.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Ring is a fixed-capacity navigation ring. Oldest entries are
// overwritten once the capacity is reached.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRing creates a ring with the given capacity (DefaultCapacity if
// non-positive).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Record appends one navigation, evicting the oldest when full.
func (r *Ring) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Len reports the number of recorded entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// List returns up to limit entries, newest first. limit <= 0 returns
// everything.
func (r *Ring) List(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := r.next - 1 - i
		if idx < 0 {
			idx += len(r.entries)
		}
		out = append(out, r.entries[idx])
	}
	return out
}

// DomainStats tallies visits per hostname, most visited first.
func (r *Ring) DomainStats() []DomainCount {
	counts := make(map[string]int)
	for _, e := range r.List(0) {
		u, err := url.Parse(e.URL)
		if err != nil || u.Hostname() == "" {
			continue
		}
		counts[u.Hostname()]++
	}

	out := make([]DomainCount, 0, len(counts))
	for d, c := range counts {
		out = append(out, DomainCount{Domain: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}
