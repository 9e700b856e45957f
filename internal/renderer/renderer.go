// Package renderer turns compressed access units into output on a device:
// decode, buffer, and hand off to the device's own clock.
package renderer

import (
	"errors"
	"sync/atomic"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/unitcache"
)

// ErrDestroyed is returned by Reconfigure after Destroy.
var ErrDestroyed = errors.New("renderer destroyed")

// Clock is the sender clock context handed to RenderBuffer. Renderers carry
// the presentation timestamp through untouched and do not sync against it.
type Clock interface {
	// Now returns the sender's current time in microseconds.
	Now() int64
}

// State is a renderer lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateReconfiguring
	StateFailed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateReconfiguring:
		return "reconfiguring"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Renderer is the operation set shared by the audio and video renderers.
type Renderer interface {
	// Start is a hook for the owning session; output begins at construction.
	Start()
	// RenderBuffer decodes one access unit and queues the result. Errors are
	// logged and counted, never returned. Calls must not overlap.
	RenderBuffer(clock Clock, data []byte, pts int64)
	SetVolume(volume float32)
	Flush()
	// Reconfigure switches codec. On failure the renderer moves to
	// StateFailed and stays silent until a later Reconfigure succeeds.
	Reconfigure(d codec.Descriptor) error
	// Destroy stops every goroutine and releases every buffered unit. It is
	// idempotent.
	Destroy()
	State() State
	Status() Status
}

// Status is a snapshot for diagnostics.
type Status struct {
	ID           string               `json:"id"`
	Kind         string               `json:"kind"`
	State        State                `json:"state"`
	Codec        string               `json:"codec"`
	Output       string               `json:"output,omitempty"`
	Width        int                  `json:"width,omitempty"`
	Height       int                  `json:"height,omitempty"`
	Decoded      uint64               `json:"decoded"`
	DecodeErrors uint64               `json:"decodeErrors"`
	Skipped      uint64               `json:"skipped,omitempty"`
	Presented    uint64               `json:"presented,omitempty"`
	Cache        *unitcache.Stats     `json:"cache,omitempty"`
	Slot         *unitcache.SlotStats `json:"slot,omitempty"`
}

type stateVar struct{ v atomic.Int32 }

func (s *stateVar) load() State   { return State(s.v.Load()) }
func (s *stateVar) store(v State) { s.v.Store(int32(v)) }
