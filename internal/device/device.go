// Package device defines the output collaborators the renderers drive: an
// audio device that pulls PCM on its own clock and a video surface that
// shows YUV pictures.
package device

import (
	"image/color"
	"time"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
)

// AudioParams are the output parameters requested from, and granted by, an
// audio device.
type AudioParams = audio.Params

// PullFunc must fill dst completely. Devices call it from their own
// goroutine, one period at a time.
type PullFunc func(dst []byte)

// AudioDevice is an opened audio output. Devices open paused.
type AudioDevice interface {
	// Params returns the parameters actually granted. They take precedence
	// over the requested ones.
	Params() AudioParams
	// Pause stops or resumes pulling. Pause(true) returns once no pull is
	// in flight.
	Pause(paused bool)
	// Close stops the device and waits for its goroutine to exit.
	Close() error
}

// AudioOpener opens audio devices.
type AudioOpener interface {
	OpenAudio(want AudioParams, pull PullFunc) (AudioDevice, error)
}

// AudioOpenFunc adapts a function to AudioOpener.
type AudioOpenFunc func(want AudioParams, pull PullFunc) (AudioDevice, error)

func (f AudioOpenFunc) OpenAudio(want AudioParams, pull PullFunc) (AudioDevice, error) {
	return f(want, pull)
}

// EventKind classifies surface events.
type EventKind int

const (
	EventNone EventKind = iota
	EventResize
	EventExpose
	EventQuit
)

func (k EventKind) String() string {
	switch k {
	case EventResize:
		return "resize"
	case EventExpose:
		return "expose"
	case EventQuit:
		return "quit"
	default:
		return "none"
	}
}

// Event is a window-system event delivered to the presentation loop.
type Event struct {
	Kind          EventKind
	Width, Height int
}

// Surface is a window that presents pictures. All methods must be called
// from the goroutine that opened it.
type Surface interface {
	// WaitEvent blocks up to timeout for the next event. ok is false on
	// timeout.
	WaitEvent(timeout time.Duration) (ev Event, ok bool)
	// Resize recreates the picture texture for the given dimensions.
	Resize(width, height int) error
	// Upload copies the picture planes into the texture.
	Upload(p *codec.Picture) error
	// Present draws the last uploaded picture, or clears to bg if there is
	// none.
	Present(bg color.RGBA) error
	Close() error
}

// SurfaceOpener opens surfaces.
type SurfaceOpener interface {
	OpenSurface(title string, width, height int) (Surface, error)
}

// SurfaceOpenFunc adapts a function to SurfaceOpener.
type SurfaceOpenFunc func(title string, width, height int) (Surface, error)

func (f SurfaceOpenFunc) OpenSurface(title string, width, height int) (Surface, error) {
	return f(title, width, height)
}

// PeriodDuration is how long one device period of p lasts.
func PeriodDuration(p AudioParams) time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.FrameSize) * time.Second / time.Duration(p.SampleRate)
}
