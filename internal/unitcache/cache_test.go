package unitcache

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RenatoCabral2022/mirror-renderer/internal/testutil"
)

func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func trackedUnit(a *testutil.AllocTracker, n int, b byte) *Unit {
	buf := a.Alloc(n)
	for i := range buf {
		buf[i] = b
	}
	return NewUnit(buf, 0, a.Free)
}

func checkInvariant(t *testing.T, c *Cache) {
	t.Helper()
	s := c.Stats()
	require.LessOrEqual(t, s.ReadIndex, s.WriteIndex)
	require.LessOrEqual(t, s.WriteIndex, s.ReadIndex+uint64(s.Capacity))
}

func TestNewCapacity(t *testing.T) {
	assert.Equal(t, 10, New(10).Capacity())
	assert.Equal(t, 1, New(0).Capacity())
}

func TestPullEmptyIsSilence(t *testing.T) {
	c := New(4, WithSilence(0x80))
	dst := filled(100, 0x11)

	n := c.Pull(dst)
	assert.Equal(t, 100, n)
	assert.Equal(t, filled(100, 0x80), dst)
	assert.Equal(t, uint64(100), c.Stats().SilenceBytes)
}

func TestFIFOOrder(t *testing.T) {
	c := New(5)
	var want []byte
	for i := 0; i < 5; i++ {
		data := filled(10+i, byte('a'+i))
		want = append(want, data...)
		require.Equal(t, Accepted, c.Push(NewUnit(data, int64(i), nil)))
	}

	got := make([]byte, len(want))
	c.Pull(got)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, c.Len())
}

func TestPullCrossesUnitBoundaries(t *testing.T) {
	// Three 480-sample stereo float units.
	const unitBytes = 480 * 2 * 4
	a := testutil.NewAllocTracker()
	c := New(10)
	for i := 0; i < 3; i++ {
		require.Equal(t, Accepted, c.Push(trackedUnit(a, unitBytes, byte(i+1))))
	}

	first := make([]byte, 5000)
	require.Equal(t, 5000, c.Pull(first))
	assert.Equal(t, filled(unitBytes, 1), first[:unitBytes])
	assert.Equal(t, filled(5000-unitBytes, 2), first[unitBytes:])
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 3*unitBytes-5000, c.Buffered())
	assert.Equal(t, 2, a.Outstanding(), "first unit released as soon as drained")

	rest := 3*unitBytes - 5000
	second := make([]byte, rest+1480)
	require.Equal(t, len(second), c.Pull(second))
	assert.Equal(t, filled(2*unitBytes-5000, 2), second[:2*unitBytes-5000])
	assert.Equal(t, filled(unitBytes, 3), second[2*unitBytes-5000:rest])
	assert.Equal(t, filled(1480, 0), second[rest:])
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, a.Outstanding())
	assert.Equal(t, uint64(1480), c.Stats().SilenceBytes)
}

func TestDropOnFull(t *testing.T) {
	a := testutil.NewAllocTracker()
	c := New(2)
	require.Equal(t, Accepted, c.Push(trackedUnit(a, 8, 1)))
	require.Equal(t, Accepted, c.Push(trackedUnit(a, 8, 2)))
	before := c.Stats()

	extra := trackedUnit(a, 8, 3)
	require.Equal(t, Dropped, c.Push(extra))
	extra.Release()
	extra.Release()

	after := c.Stats()
	assert.Equal(t, before.ReadIndex, after.ReadIndex)
	assert.Equal(t, before.WriteIndex, after.WriteIndex)
	assert.Equal(t, uint64(1), after.Dropped)

	allocs, frees, doubles := a.Counts()
	assert.Equal(t, 3, allocs)
	assert.Equal(t, 1, frees)
	assert.Equal(t, 0, doubles)

	got := make([]byte, 16)
	c.Pull(got)
	assert.Equal(t, append(filled(8, 1), filled(8, 2)...), got)
	assert.Equal(t, 0, a.Outstanding())
}

func TestDrainAll(t *testing.T) {
	a := testutil.NewAllocTracker()
	c := New(4)
	for i := 0; i < 3; i++ {
		c.Push(trackedUnit(a, 16, byte(i)))
	}
	c.Pull(make([]byte, 4)) // leave a partially read head

	assert.Equal(t, 3, c.DrainAll())
	s := c.Stats()
	assert.Equal(t, s.ReadIndex, s.WriteIndex)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, a.Outstanding())
	_, _, doubles := a.Counts()
	assert.Equal(t, 0, doubles)

	assert.Equal(t, 0, c.DrainAll())
}

func TestRetagDiscardsStaleUnits(t *testing.T) {
	a := testutil.NewAllocTracker()
	c := New(4)
	c.Retag(1)
	c.Push(trackedUnit(a, 4, 0xAA).WithTag(1))
	c.Push(trackedUnit(a, 4, 0xBB).WithTag(1))
	c.Pull(make([]byte, 2))

	c.Retag(2)
	c.Push(trackedUnit(a, 4, 0xCC).WithTag(2))

	got := make([]byte, 4)
	c.Pull(got)
	assert.Equal(t, filled(4, 0xCC), got)
	assert.Equal(t, uint64(2), c.Stats().Stale)
	assert.Equal(t, 0, a.Outstanding())
}

func TestUntaggedUnitsAlwaysPlay(t *testing.T) {
	c := New(2)
	c.Retag(7)
	c.Push(NewUnit(filled(3, 9), 0, nil))
	got := make([]byte, 3)
	c.Pull(got)
	assert.Equal(t, filled(3, 9), got)
}

func TestZeroLengthUnitIsRetired(t *testing.T) {
	c := New(2)
	c.Push(NewUnit([]byte{}, 0, nil))
	c.Push(NewUnit(filled(2, 5), 0, nil))
	got := make([]byte, 2)
	c.Pull(got)
	assert.Equal(t, filled(2, 5), got)
	assert.Equal(t, 0, c.Len())
}

func TestCapacityInvariantRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := testutil.NewAllocTracker()
	c := New(7)

	for i := 0; i < 5000; i++ {
		switch rng.Intn(3) {
		case 0, 1:
			u := trackedUnit(a, 1+rng.Intn(64), byte(i))
			if c.Push(u) == Dropped {
				u.Release()
			}
		case 2:
			c.Pull(make([]byte, rng.Intn(200)))
		}
		checkInvariant(t, c)
	}
	c.DrainAll()
	assert.Equal(t, 0, a.Outstanding())
	_, _, doubles := a.Counts()
	assert.Equal(t, 0, doubles)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const units = 2000
	c := New(10)
	var wg sync.WaitGroup
	wg.Add(2)

	var produced, dropped int
	go func() {
		defer wg.Done()
		for i := 0; i < units; i++ {
			u := NewUnit(filled(32, byte(i)), int64(i), nil)
			if c.Push(u) == Dropped {
				u.Release()
				dropped++
			} else {
				produced++
			}
		}
	}()

	received := 0
	go func() {
		defer wg.Done()
		buf := make([]byte, 48)
		for i := 0; i < units; i++ {
			before := c.Buffered()
			c.Pull(buf)
			if before > len(buf) {
				received += len(buf)
			} else {
				received += before
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, units, produced+dropped)
	assert.Equal(t, uint64(dropped), c.Stats().Dropped)
	checkInvariant(t, c)
	assert.LessOrEqual(t, received, produced*32)
}

func TestUnitRelease(t *testing.T) {
	calls := 0
	u := NewUnit(filled(4, 1), 99, func([]byte) { calls++ })
	assert.Equal(t, int64(99), u.PTS())
	assert.Equal(t, 4, u.Remaining())
	assert.False(t, u.Released())

	u.Release()
	u.Release()
	assert.Equal(t, 1, calls)
	assert.True(t, u.Released())
	assert.Equal(t, 0, u.Len())
}
