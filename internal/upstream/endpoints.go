package upstream

import (
	"sync"
)

// Ring is an ordered endpoint list with a shared cursor. The first
// entry is the primary; endpoint-level failures advance the cursor so
// subsequent requests start from the fallback that last worked.
type Ring struct {
	mu        sync.Mutex
	endpoints []string
	cursor    int
}

func NewRing(endpoints []string) *Ring {
	return &Ring{endpoints: append([]string(nil), endpoints...)}
}

// Current returns the endpoint the cursor points at.
func (r *Ring) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.endpoints) == 0 {
		return ""
	}
	return r.endpoints[r.cursor%len(r.endpoints)]
}

// Advance moves to the next endpoint and returns it.
func (r *Ring) Advance() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.endpoints) == 0 {
		return ""
	}
	r.cursor = (r.cursor + 1) % len(r.endpoints)
	return r.endpoints[r.cursor]
}

// Len reports the number of configured endpoints.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}
