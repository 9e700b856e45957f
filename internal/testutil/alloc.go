package testutil

import "sync"

// AllocTracker is an allocator that records every outstanding buffer so tests
// can assert that each payload is freed exactly once.
type AllocTracker struct {
	mu          sync.Mutex
	live        map[*byte]int
	freed       map[*byte]bool
	allocs      int
	frees       int
	doubleFrees int
	foreign     int
}

// NewAllocTracker creates an empty tracker.
func NewAllocTracker() *AllocTracker {
	return &AllocTracker{live: make(map[*byte]int), freed: make(map[*byte]bool)}
}

// Alloc returns a fresh buffer of length n.
func (a *AllocTracker) Alloc(n int) []byte {
	b := make([]byte, n, n+1)
	a.mu.Lock()
	a.live[&b[:1][0]] = n
	a.allocs++
	a.mu.Unlock()
	return b
}

// Free records b as released.
func (a *AllocTracker) Free(b []byte) {
	if cap(b) == 0 {
		a.mu.Lock()
		a.foreign++
		a.mu.Unlock()
		return
	}
	key := &b[:1][0]
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[key]; !ok {
		if a.freed[key] {
			a.doubleFrees++
		} else {
			a.foreign++
		}
		return
	}
	delete(a.live, key)
	a.freed[key] = true
	a.frees++
}

// Outstanding is the number of buffers allocated and not yet freed.
func (a *AllocTracker) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Counts returns total allocs, frees and double frees.
func (a *AllocTracker) Counts() (allocs, frees, doubleFrees int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs, a.frees, a.doubleFrees
}
