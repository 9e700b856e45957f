// Package unitcache holds decoded media units between the decode goroutine
// that produces them and the output goroutine that consumes them.
package unitcache

// Unit is one decoded payload with a read cursor. The cache owns a Unit from
// an accepted Push until the unit is drained or discarded; Release hands the
// payload back to whoever allocated it.
type Unit struct {
	buf     []byte
	off     int
	pts     int64
	tag     uint64
	release func([]byte)
}

// NewUnit wraps buf. release, if non-nil, receives buf exactly once.
func NewUnit(buf []byte, pts int64, release func([]byte)) *Unit {
	return &Unit{buf: buf, pts: pts, release: release}
}

// WithTag sets the unit's format tag and returns u. See Cache.Retag.
func (u *Unit) WithTag(tag uint64) *Unit {
	u.tag = tag
	return u
}

// Len is the full payload length.
func (u *Unit) Len() int { return len(u.buf) }

// Remaining is the number of bytes not yet read.
func (u *Unit) Remaining() int { return len(u.buf) - u.off }

// PTS is the presentation timestamp the unit was submitted with.
func (u *Unit) PTS() int64 { return u.pts }

// Tag is the format tag, 0 if unset.
func (u *Unit) Tag() uint64 { return u.tag }

// Bytes returns the unread part of the payload.
func (u *Unit) Bytes() []byte { return u.buf[u.off:] }

// read copies up to len(dst) unread bytes into dst and advances the cursor.
func (u *Unit) read(dst []byte) int {
	n := copy(dst, u.buf[u.off:])
	u.off += n
	return n
}

// Release returns the payload to its allocator. Calls after the first are no-ops.
func (u *Unit) Release() {
	if u.buf == nil {
		return
	}
	buf := u.buf
	u.buf = nil
	u.off = 0
	if u.release != nil {
		u.release(buf)
	}
}

// Released reports whether Release has been called.
func (u *Unit) Released() bool { return u.buf == nil }
