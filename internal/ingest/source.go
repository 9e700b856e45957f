package ingest

import (
	"context"
	"errors"
)

// State constants for ingest source lifecycle.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopped  = "stopped"
	StateError    = "error"
)

// ErrMalformed reports a capture record that cannot be decoded.
var ErrMalformed = errors.New("malformed capture record")

// Kind tells a Sink which renderer an access unit is for.
type Kind uint8

const (
	KindAudio Kind = 1
	KindVideo Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Sink receives compressed access units in arrival order. data is only
// valid for the duration of the call.
type Sink interface {
	RenderUnit(kind Kind, data []byte, pts int64)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(kind Kind, data []byte, pts int64)

func (f SinkFunc) RenderUnit(kind Kind, data []byte, pts int64) { f(kind, data, pts) }

// Source is the interface for any access-unit source (capture file, URL).
type Source interface {
	// Start begins delivering units to the sink. Blocks until ctx is
	// cancelled, the source ends, or an error occurs.
	Start(ctx context.Context) error
	// Stop terminates the ingest. Idempotent.
	Stop()
	// Status returns a snapshot of current ingest state.
	Status() Status
}

// Status describes the current state of an ingest source.
type Status struct {
	State     string `json:"state"`
	Source    string `json:"source"`
	Units     int64  `json:"units"`
	BytesRead int64  `json:"bytesRead"`
	LastPTS   int64  `json:"lastPts"`
	LastError string `json:"lastError,omitempty"`
}
