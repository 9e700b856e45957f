package unitcache

import "sync"

// Releaser is a payload whose resources are returned by Release.
type Releaser interface {
	Release()
}

// SlotStats is a point-in-time snapshot of a Slot.
type SlotStats struct {
	Writes      uint64 `json:"writes"`
	Takes       uint64 `json:"takes"`
	Overwritten uint64 `json:"overwritten"`
	Pending     bool   `json:"pending"`
}

// Slot is the capacity-1 cache used for video: the newest value always wins.
// A value put while another is pending replaces it and the old one is
// released; nothing is ever queued.
type Slot[T Releaser] struct {
	mu      sync.Mutex
	val     T
	pending bool

	writes      uint64
	takes       uint64
	overwritten uint64
}

// NewSlot creates an empty slot.
func NewSlot[T Releaser]() *Slot[T] {
	return &Slot[T]{}
}

// Put stores v, releasing any value not yet taken. It reports whether a
// pending value was replaced.
func (s *Slot[T]) Put(v T) bool {
	s.mu.Lock()
	old, replaced := s.val, s.pending
	s.val = v
	s.pending = true
	s.writes++
	if replaced {
		s.overwritten++
	}
	s.mu.Unlock()

	if replaced {
		old.Release()
	}
	return replaced
}

// Take transfers ownership of the pending value to the caller and clears
// the slot. ok is false if nothing was put since the last Take.
func (s *Slot[T]) Take() (v T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return v, false
	}
	v = s.val
	var zero T
	s.val = zero
	s.pending = false
	s.takes++
	return v, true
}

// Drain releases the pending value, if any. It reports whether one was released.
func (s *Slot[T]) Drain() bool {
	v, ok := s.Take()
	if ok {
		v.Release()
	}
	return ok
}

// Len is 1 while a value is pending, else 0.
func (s *Slot[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return 1
	}
	return 0
}

// Stats returns a snapshot of the counters.
func (s *Slot[T]) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStats{
		Writes:      s.writes,
		Takes:       s.takes,
		Overwritten: s.overwritten,
		Pending:     s.pending,
	}
}
