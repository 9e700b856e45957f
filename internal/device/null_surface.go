package device

import (
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
)

// NullSurfaces opens headless surfaces and remembers them.
type NullSurfaces struct {
	mu       sync.Mutex
	surfaces []*NullSurface
}

func (o *NullSurfaces) OpenSurface(title string, width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("null surface: invalid size %dx%d", width, height)
	}
	s := &NullSurface{
		title:  title,
		width:  width,
		height: height,
		events: make(chan Event, 16),
	}
	o.mu.Lock()
	o.surfaces = append(o.surfaces, s)
	o.mu.Unlock()
	return s, nil
}

// Last returns the most recently opened surface, or nil.
func (o *NullSurfaces) Last() *NullSurface {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.surfaces) == 0 {
		return nil
	}
	return o.surfaces[len(o.surfaces)-1]
}

// SurfaceStats records what a NullSurface was asked to do.
type SurfaceStats struct {
	Width, Height      int
	TextureW, TextureH int
	Resizes            int
	Uploads            int
	Presents           int
	Clears             int
	LastPTS            int64
	LastBackground     color.RGBA
	Closed             bool
}

// NullSurface is a Surface with no window behind it. Events are injected
// from tests or the application.
type NullSurface struct {
	title  string
	events chan Event

	mu       sync.Mutex
	width    int
	height   int
	texW     int
	texH     int
	resizes  int
	uploads  int
	presents int
	clears   int
	lastPTS  int64
	lastBG   color.RGBA
	closed   bool
}

// Inject queues an event. It never blocks; events beyond the queue depth
// are discarded.
func (s *NullSurface) Inject(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *NullSurface) WaitEvent(timeout time.Duration) (Event, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev := <-s.events:
		if ev.Kind == EventResize {
			s.mu.Lock()
			s.width, s.height = ev.Width, ev.Height
			s.mu.Unlock()
		}
		return ev, true
	case <-t.C:
		return Event{}, false
	}
}

func (s *NullSurface) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("null surface: invalid texture size %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texW, s.texH = width, height
	s.resizes++
	return nil
}

func (s *NullSurface) Upload(p *codec.Picture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Width != s.texW || p.Height != s.texH {
		return fmt.Errorf("null surface: picture %dx%d does not match texture %dx%d",
			p.Width, p.Height, s.texW, s.texH)
	}
	s.uploads++
	s.lastPTS = p.PTS
	return nil
}

func (s *NullSurface) Present(bg color.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presents++
	if s.uploads == 0 {
		s.clears++
	}
	s.lastBG = bg
	return nil
}

func (s *NullSurface) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the surface activity.
func (s *NullSurface) Stats() SurfaceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SurfaceStats{
		Width:          s.width,
		Height:         s.height,
		TextureW:       s.texW,
		TextureH:       s.texH,
		Resizes:        s.resizes,
		Uploads:        s.uploads,
		Presents:       s.presents,
		Clears:         s.clears,
		LastPTS:        s.lastPTS,
		LastBackground: s.lastBG,
		Closed:         s.closed,
	}
}
