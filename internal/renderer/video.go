package renderer

import (
	"errors"
	"fmt"
	"image/color"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/device"
	"github.com/RenatoCabral2022/mirror-renderer/internal/metrics"
	"github.com/RenatoCabral2022/mirror-renderer/internal/unitcache"
)

// DefaultPollInterval bounds how long the presentation loop waits for a
// surface event.
const DefaultPollInterval = 10 * time.Millisecond

// VideoConfig configures a video renderer.
type VideoConfig struct {
	Descriptor   codec.Descriptor
	Title        string
	Width        int
	Height       int
	PollInterval time.Duration
	Background   color.RGBA
	// OnQuit runs on the presentation goroutine when the surface reports a
	// quit request. It must not block or call Destroy.
	OnQuit func()
}

// VideoDeps are the collaborators a video renderer drives.
type VideoDeps struct {
	Decoders codec.VideoOpener
	Surfaces device.SurfaceOpener
}

// Video decodes H.264 into a single-slot cache that a presentation
// goroutine shows on a surface. Only the newest picture is ever shown.
type Video struct {
	id     string
	logger *zap.Logger
	cfg    VideoConfig
	deps   VideoDeps
	slot   *unitcache.Slot[*codec.Picture]

	mu    sync.RWMutex
	state stateVar
	desc  codec.Descriptor
	dec   codec.VideoDecoder

	waitKeyframe atomic.Bool
	width        atomic.Int32
	height       atomic.Int32

	shutdown atomic.Bool
	done     chan struct{}

	decoded      atomic.Uint64
	decodeErrors atomic.Uint64
	skipped      atomic.Uint64
	presented    atomic.Uint64
}

var _ Renderer = (*Video)(nil)

// NewVideo opens the decoder, then starts the presentation goroutine which
// opens the surface on its own locked OS thread. A surface failure is
// returned here.
func NewVideo(cfg VideoConfig, deps VideoDeps, logger *zap.Logger) (*Video, error) {
	if deps.Decoders == nil || deps.Surfaces == nil {
		return nil, errors.New("video renderer: decoders and surfaces are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("renderer", "video"), zap.String("id", id))

	dec, err := deps.Decoders.OpenVideo(cfg.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("video renderer: open %s decoder: %w", cfg.Descriptor.Codec, err)
	}
	v := &Video{
		id:     id,
		logger: logger,
		cfg:    cfg,
		deps:   deps,
		slot:   unitcache.NewSlot[*codec.Picture](),
		desc:   cfg.Descriptor,
		dec:    dec,
		done:   make(chan struct{}),
	}
	v.waitKeyframe.Store(true)

	ready := make(chan error, 1)
	go v.present(ready)
	if err := <-ready; err != nil {
		<-v.done
		dec.Close()
		return nil, fmt.Errorf("video renderer: %w", err)
	}
	v.state.store(StateReady)

	metrics.ActiveRenderers.WithLabelValues("video").Inc()
	logger.Info("video renderer created",
		zap.Stringer("codec", cfg.Descriptor.Codec),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
	)
	return v, nil
}

// present is the presentation loop. It owns the surface for its whole life.
func (v *Video) present(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(v.done)

	surf, err := v.deps.Surfaces.OpenSurface(v.cfg.Title, v.cfg.Width, v.cfg.Height)
	if err != nil {
		ready <- fmt.Errorf("open surface: %w", err)
		return
	}
	ready <- nil
	defer func() {
		if err := surf.Close(); err != nil {
			v.logger.Warn("surface close failed", zap.Error(err))
		}
	}()

	var texW, texH int
	for !v.shutdown.Load() {
		pic, havePic := v.slot.Take()

		redraw := false
		ev, ok := surf.WaitEvent(v.cfg.PollInterval)
		switch {
		case !ok, ev.Kind == device.EventResize, ev.Kind == device.EventExpose:
			redraw = true
		case ev.Kind == device.EventQuit:
			v.logger.Info("surface quit requested")
			if v.cfg.OnQuit != nil {
				v.cfg.OnQuit()
			}
		}

		if havePic {
			if pic.Width != texW || pic.Height != texH {
				if err := surf.Resize(pic.Width, pic.Height); err != nil {
					v.logger.Warn("surface resize failed", zap.Error(err))
					pic.Release()
					continue
				}
				texW, texH = pic.Width, pic.Height
			}
			if err := surf.Upload(pic); err != nil {
				v.logger.Warn("picture upload failed", zap.Error(err), zap.Int64("pts", pic.PTS))
			} else {
				v.presented.Add(1)
				metrics.PicturesPresentedTotal.Inc()
				redraw = true
			}
			pic.Release()
		}

		if redraw {
			if err := surf.Present(v.cfg.Background); err != nil {
				v.logger.Warn("present failed", zap.Error(err))
			}
		}
	}
}

func (v *Video) ID() string { return v.id }

func (v *Video) Start() { v.logger.Debug("start") }

func (v *Video) RenderBuffer(_ Clock, data []byte, pts int64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state.load() != StateReady {
		return
	}

	start := time.Now()
	au, err := codec.ParseH264(data)
	if err != nil {
		v.decodeErrors.Add(1)
		metrics.DecodeErrorsTotal.WithLabelValues(v.desc.Codec.String()).Inc()
		v.logger.Warn("malformed access unit", zap.Error(err), zap.Int64("pts", pts))
		return
	}
	if v.waitKeyframe.Load() {
		if !au.Keyframe {
			v.skipped.Add(1)
			metrics.UnitsSkippedTotal.Inc()
			return
		}
		v.waitKeyframe.Store(false)
	}
	if w, h, ok := au.Dimensions(); ok && (int32(w) != v.width.Load() || int32(h) != v.height.Load()) {
		v.width.Store(int32(w))
		v.height.Store(int32(h))
		v.logger.Info("video dimensions", zap.Int("width", w), zap.Int("height", h))
	}
	annexB, err := au.AnnexB()
	if err != nil {
		v.decodeErrors.Add(1)
		v.logger.Warn("access unit re-marshal failed", zap.Error(err), zap.Int64("pts", pts))
		return
	}

	pics, err := v.dec.Decode(annexB, pts)
	if err != nil {
		v.decodeErrors.Add(1)
		metrics.DecodeErrorsTotal.WithLabelValues(v.desc.Codec.String()).Inc()
		v.logger.Warn("video decode failed", zap.Error(err), zap.Int64("pts", pts))
	}
	for _, p := range pics {
		if v.slot.Put(p) {
			metrics.PicturesOverwrittenTotal.Inc()
		}
		v.decoded.Add(1)
		metrics.UnitsDecodedTotal.WithLabelValues(v.desc.Codec.String()).Inc()
	}
	metrics.DecodeLatency.WithLabelValues("video").Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func (v *Video) SetVolume(float32) {}

func (v *Video) Flush() {}

// UpdateBackground is accepted for interface parity and ignored.
func (v *Video) UpdateBackground(color.RGBA) {}

func (v *Video) Reconfigure(d codec.Descriptor) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.load() == StateDestroyed {
		return ErrDestroyed
	}
	from := v.desc.Codec
	v.state.store(StateReconfiguring)
	if v.dec != nil {
		if err := v.dec.Close(); err != nil {
			v.logger.Warn("video decoder close failed", zap.Error(err))
		}
		v.dec = nil
	}

	dec, err := v.deps.Decoders.OpenVideo(d)
	if err != nil {
		v.state.store(StateFailed)
		metrics.ReconfigurationsTotal.WithLabelValues("failed").Inc()
		v.logger.Error("video reconfigure failed", zap.Stringer("to", d.Codec), zap.Error(err))
		return fmt.Errorf("reconfigure video to %s: %w", d.Codec, err)
	}
	v.desc, v.dec = d, dec
	v.waitKeyframe.Store(true)
	v.state.store(StateReady)

	metrics.ReconfigurationsTotal.WithLabelValues("ok").Inc()
	v.logger.Info("video reconfigured", zap.Stringer("from", from), zap.Stringer("to", d.Codec))
	return nil
}

func (v *Video) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.load() == StateDestroyed {
		return
	}
	v.shutdown.Store(true)
	<-v.done
	if v.dec != nil {
		if err := v.dec.Close(); err != nil {
			v.logger.Warn("video decoder close failed", zap.Error(err))
		}
		v.dec = nil
	}
	v.slot.Drain()
	v.state.store(StateDestroyed)

	metrics.ActiveRenderers.WithLabelValues("video").Dec()
	v.logger.Info("video renderer destroyed",
		zap.Uint64("decoded", v.decoded.Load()),
		zap.Uint64("presented", v.presented.Load()),
	)
}

func (v *Video) State() State { return v.state.load() }

func (v *Video) Status() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	slot := v.slot.Stats()
	return Status{
		ID:           v.id,
		Kind:         "video",
		State:        v.state.load(),
		Codec:        v.desc.Codec.String(),
		Width:        int(v.width.Load()),
		Height:       int(v.height.Load()),
		Decoded:      v.decoded.Load(),
		DecodeErrors: v.decodeErrors.Load(),
		Skipped:      v.skipped.Load(),
		Presented:    v.presented.Load(),
		Slot:         &slot,
	}
}
