// Package session binds one mirroring session's renderers together and
// routes incoming access units to them.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/ingest"
	"github.com/RenatoCabral2022/mirror-renderer/internal/renderer"
)

// ErrNoRenderer is returned when a session has no renderer of the requested
// kind.
var ErrNoRenderer = errors.New("no renderer for stream kind")

// Session holds the renderers of one mirroring connection. Either renderer
// may be nil when that stream is disabled.
type Session struct {
	ID     string
	Audio  renderer.Renderer
	Video  renderer.Renderer
	clock  *Clock
	logger *zap.Logger

	closeOnce sync.Once
}

var _ ingest.Sink = (*Session)(nil)

// New creates a session around already-constructed renderers and starts
// them.
func New(audio, video renderer.Renderer, logger *zap.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:     id,
		Audio:  audio,
		Video:  video,
		clock:  NewClock(),
		logger: logger.With(zap.String("session", id)),
	}
	for _, r := range s.Renderers() {
		r.Start()
	}
	s.logger.Info("session created",
		zap.Bool("audio", audio != nil),
		zap.Bool("video", video != nil),
	)
	return s
}

// Renderers returns the non-nil renderers, audio first.
func (s *Session) Renderers() []renderer.Renderer {
	var out []renderer.Renderer
	if s.Audio != nil {
		out = append(out, s.Audio)
	}
	if s.Video != nil {
		out = append(out, s.Video)
	}
	return out
}

func (s *Session) target(kind ingest.Kind) renderer.Renderer {
	switch kind {
	case ingest.KindAudio:
		return s.Audio
	case ingest.KindVideo:
		return s.Video
	}
	return nil
}

// RenderUnit forwards one access unit to the renderer for kind. Units for a
// disabled stream are dropped.
func (s *Session) RenderUnit(kind ingest.Kind, data []byte, pts int64) {
	r := s.target(kind)
	if r == nil {
		return
	}
	r.RenderBuffer(s.clock, data, pts)
}

// Reconfigure switches the codec of the renderer for kind.
func (s *Session) Reconfigure(kind ingest.Kind, d codec.Descriptor) error {
	r := s.target(kind)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrNoRenderer, kind)
	}
	return r.Reconfigure(d)
}

// Statuses returns a status per renderer.
func (s *Session) Statuses() []renderer.Status {
	rs := s.Renderers()
	out := make([]renderer.Status, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Status())
	}
	return out
}

// Close destroys every renderer. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, r := range s.Renderers() {
			r.Destroy()
		}
		s.logger.Info("session closed")
	})
}

// Clock is the renderer clock of a session: microseconds since it started.
type Clock struct {
	start time.Time
}

func NewClock() *Clock { return &Clock{start: time.Now()} }

func (c *Clock) Now() int64 { return time.Since(c.start).Microseconds() }
