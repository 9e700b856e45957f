package unitcache

import (
	"sync"

	"go.uber.org/zap"
)

// PushResult is the outcome of Cache.Push.
type PushResult int

const (
	Accepted PushResult = iota
	Dropped
)

func (r PushResult) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "dropped"
}

// Stats is a point-in-time snapshot of a Cache.
type Stats struct {
	Capacity     int    `json:"capacity"`
	Depth        int    `json:"depth"`
	ReadIndex    uint64 `json:"readIndex"`
	WriteIndex   uint64 `json:"writeIndex"`
	Dropped      uint64 `json:"dropped"`
	Stale        uint64 `json:"stale"`
	SilenceBytes uint64 `json:"silenceBytes"`
}

// Cache is a fixed-capacity FIFO of decoded units read as a byte stream.
// It is safe for one producer and one consumer running concurrently; every
// method holds the cache mutex only for bookkeeping and the copy-out.
//
// readIndex <= writeIndex <= readIndex+capacity holds at all times. Unit i
// lives in slot i % capacity.
type Cache struct {
	mu         sync.Mutex
	slots      []*Unit
	readIndex  uint64
	writeIndex uint64
	silence    byte
	tag        uint64

	dropped      uint64
	stale        uint64
	silenceBytes uint64

	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithSilence sets the byte used to pad pulls on underrun. Zero is silence
// for both signed-integer and float PCM.
func WithSilence(b byte) Option {
	return func(c *Cache) { c.silence = b }
}

// WithLogger sets the logger used for drop diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache holding at most capacity units.
func New(capacity int, opts ...Option) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	c := &Cache{
		slots:  make([]*Unit, capacity),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Capacity is the number of slots.
func (c *Cache) Capacity() int { return len(c.slots) }

// Push appends u if a slot is free. On Dropped the cache did not take
// ownership and the caller must release u.
func (c *Cache) Push(u *Unit) PushResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := uint64(len(c.slots))
	if c.writeIndex-c.readIndex >= n {
		c.dropped++
		c.logger.Warn("unit cache full, dropping unit",
			zap.Int("bytes", u.Len()),
			zap.Int64("pts", u.PTS()),
			zap.Uint64("dropped", c.dropped),
		)
		return Dropped
	}
	c.slots[c.writeIndex%n] = u
	c.writeIndex++
	return Accepted
}

// Pull fills dst from the oldest units, releasing each one as soon as it is
// drained, and pads whatever is left with silence. It always returns len(dst).
func (c *Cache) Pull(dst []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := uint64(len(c.slots))
	written := 0
	for written < len(dst) && c.readIndex < c.writeIndex {
		slot := c.readIndex % n
		u := c.slots[slot]
		if c.tag != 0 && u.tag != 0 && u.tag != c.tag {
			c.stale++
			c.retire(slot, u)
			continue
		}
		written += u.read(dst[written:])
		if u.Remaining() == 0 {
			c.retire(slot, u)
		}
	}
	if written < len(dst) {
		pad := dst[written:]
		for i := range pad {
			pad[i] = c.silence
		}
		c.silenceBytes += uint64(len(pad))
	}
	return len(dst)
}

// retire releases the unit at the head. Caller holds mu.
func (c *Cache) retire(slot uint64, u *Unit) {
	u.Release()
	c.slots[slot] = nil
	c.readIndex++
}

// Retag sets the format tag expected by the consumer. Units carrying a
// different non-zero tag are released without being read when they reach
// the head. Zero accepts every unit.
func (c *Cache) Retag(tag uint64) {
	c.mu.Lock()
	c.tag = tag
	c.mu.Unlock()
}

// DrainAll releases every buffered unit and sets readIndex to writeIndex.
func (c *Cache) DrainAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := uint64(len(c.slots))
	drained := 0
	for c.readIndex < c.writeIndex {
		c.retire(c.readIndex%n, c.slots[c.readIndex%n])
		drained++
	}
	return drained
}

// Len is the number of live units (writeIndex - readIndex).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.writeIndex - c.readIndex)
}

// Buffered is the number of unread payload bytes across live units.
func (c *Cache) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := uint64(len(c.slots))
	total := 0
	for i := c.readIndex; i < c.writeIndex; i++ {
		total += c.slots[i%n].Remaining()
	}
	return total
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Capacity:     len(c.slots),
		Depth:        int(c.writeIndex - c.readIndex),
		ReadIndex:    c.readIndex,
		WriteIndex:   c.writeIndex,
		Dropped:      c.dropped,
		Stale:        c.stale,
		SilenceBytes: c.silenceBytes,
	}
}
