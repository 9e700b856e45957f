package renderer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/device"
	"github.com/RenatoCabral2022/mirror-renderer/internal/metrics"
	"github.com/RenatoCabral2022/mirror-renderer/internal/unitcache"
)

// DefaultCacheSize is the number of decoded audio units buffered ahead of
// the device.
const DefaultCacheSize = 10

// AudioConfig configures an audio renderer.
type AudioConfig struct {
	Descriptor codec.Descriptor
	CacheSize  int
}

// AudioDeps are the collaborators an audio renderer drives.
type AudioDeps struct {
	Decoders codec.AudioOpener
	Devices  device.AudioOpener
	// Allocator backs decoded unit payloads. Nil uses an audio.BufferPool.
	Allocator audio.Allocator
}

// Audio decodes audio access units into a unit cache that the output
// device drains on its own goroutine.
type Audio struct {
	id     string
	logger *zap.Logger
	deps   AudioDeps
	cache  *unitcache.Cache

	// mu is held shared by RenderBuffer and exclusively by Reconfigure and
	// Destroy.
	mu    sync.RWMutex
	state stateVar
	desc  codec.Descriptor
	dec   codec.AudioDecoder
	dev   device.AudioDevice
	out   device.AudioParams
	tag   uint64

	decoded      atomic.Uint64
	decodeErrors atomic.Uint64
	silence      atomic.Uint64
}

var _ Renderer = (*Audio)(nil)

// NewAudio opens the decoder and device for cfg.Descriptor and starts
// playback. On error nothing is left open.
func NewAudio(cfg AudioConfig, deps AudioDeps, logger *zap.Logger) (*Audio, error) {
	if deps.Decoders == nil || deps.Devices == nil {
		return nil, errors.New("audio renderer: decoders and devices are required")
	}
	if deps.Allocator == nil {
		deps.Allocator = audio.NewBufferPool(4096)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("renderer", "audio"), zap.String("id", id))

	a := &Audio{
		id:     id,
		logger: logger,
		deps:   deps,
		cache:  unitcache.New(cfg.CacheSize, unitcache.WithLogger(logger)),
		tag:    1,
	}
	a.cache.Retag(a.tag)

	dec, dev, err := a.open(cfg.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("audio renderer: %w", err)
	}
	a.desc, a.dec, a.dev, a.out = cfg.Descriptor, dec, dev, dev.Params()
	a.state.store(StateReady)
	dev.Pause(false)

	metrics.ActiveRenderers.WithLabelValues("audio").Inc()
	logger.Info("audio renderer created",
		zap.Stringer("codec", cfg.Descriptor.Codec),
		zap.Stringer("output", a.out),
		zap.Int("cacheSize", cfg.CacheSize),
	)
	return a, nil
}

// open opens a decoder and a paused device for d.
func (a *Audio) open(d codec.Descriptor) (codec.AudioDecoder, device.AudioDevice, error) {
	want, err := codec.DeviceParams(d)
	if err != nil {
		return nil, nil, err
	}
	dec, err := a.deps.Decoders.OpenAudio(d)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s decoder: %w", d.Codec, err)
	}
	dev, err := a.deps.Devices.OpenAudio(want, a.pull)
	if err != nil {
		dec.Close()
		return nil, nil, fmt.Errorf("open audio device %s: %w", want, err)
	}
	if err := dev.Params().Validate(); err != nil {
		dev.Close()
		dec.Close()
		return nil, nil, fmt.Errorf("audio device granted unusable params: %w", err)
	}
	return dec, dev, nil
}

// pull is the device callback. It only drains the cache.
func (a *Audio) pull(dst []byte) {
	a.cache.Pull(dst)
	s := a.cache.Stats()
	if prev := a.silence.Swap(s.SilenceBytes); s.SilenceBytes > prev {
		metrics.UnderrunBytesTotal.Add(float64(s.SilenceBytes - prev))
	}
	metrics.CacheDepth.WithLabelValues("audio").Set(float64(s.Depth))
}

func (a *Audio) ID() string { return a.id }

func (a *Audio) Start() { a.logger.Debug("start") }

func (a *Audio) RenderBuffer(_ Clock, data []byte, pts int64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state.load() != StateReady {
		return
	}

	start := time.Now()
	frames, err := a.dec.Decode(data, pts)
	if err != nil {
		a.decodeErrors.Add(1)
		metrics.DecodeErrorsTotal.WithLabelValues(a.desc.Codec.String()).Inc()
		a.logger.Warn("audio decode failed",
			zap.Error(err),
			zap.Int64("pts", pts),
			zap.Int("bytes", len(data)),
		)
		return
	}
	for i := range frames {
		a.push(&frames[i])
	}
	metrics.DecodeLatency.WithLabelValues("audio").Observe(float64(time.Since(start).Microseconds()) / 1000)
}

// push converts f into the device format and queues it. Caller holds mu
// shared.
func (a *Audio) push(f *audio.Frame) {
	alloc := a.deps.Allocator
	buf := alloc.Alloc(audio.ConvertedSize(f, a.out))
	out, err := audio.Interleave(buf, f, a.out)
	if err != nil {
		alloc.Free(buf)
		a.decodeErrors.Add(1)
		metrics.DecodeErrorsTotal.WithLabelValues(a.desc.Codec.String()).Inc()
		a.logger.Warn("audio frame conversion failed", zap.Error(err), zap.Int64("pts", f.PTS))
		return
	}

	u := unitcache.NewUnit(out, f.PTS, alloc.Free).WithTag(a.tag)
	if a.cache.Push(u) == unitcache.Dropped {
		u.Release()
		metrics.UnitsDroppedTotal.WithLabelValues("audio").Inc()
		return
	}
	a.decoded.Add(1)
	metrics.UnitsDecodedTotal.WithLabelValues(a.desc.Codec.String()).Inc()
}

func (a *Audio) SetVolume(volume float32) {
	a.logger.Debug("set volume ignored", zap.Float32("volume", volume))
}

func (a *Audio) Flush() {}

func (a *Audio) Reconfigure(d codec.Descriptor) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.load() == StateDestroyed {
		return ErrDestroyed
	}
	from := a.desc.Codec
	a.state.store(StateReconfiguring)
	a.closeOutputs()

	dec, dev, err := a.open(d)
	if err != nil {
		a.state.store(StateFailed)
		metrics.ReconfigurationsTotal.WithLabelValues("failed").Inc()
		a.logger.Error("audio reconfigure failed",
			zap.Stringer("from", from),
			zap.Stringer("to", d.Codec),
			zap.Error(err),
		)
		return fmt.Errorf("reconfigure audio to %s: %w", d.Codec, err)
	}

	out := dev.Params()
	if out != a.out {
		a.tag++
		a.cache.Retag(a.tag)
	}
	a.desc, a.dec, a.dev, a.out = d, dec, dev, out
	a.state.store(StateReady)
	dev.Pause(false)

	metrics.ReconfigurationsTotal.WithLabelValues("ok").Inc()
	a.logger.Info("audio reconfigured",
		zap.Stringer("from", from),
		zap.Stringer("to", d.Codec),
		zap.Stringer("output", out),
		zap.Uint64("tag", a.tag),
	)
	return nil
}

// closeOutputs stops the device and closes the decoder. Caller holds mu.
func (a *Audio) closeOutputs() {
	if a.dev != nil {
		a.dev.Pause(true)
		if err := a.dev.Close(); err != nil {
			a.logger.Warn("audio device close failed", zap.Error(err))
		}
		a.dev = nil
	}
	if a.dec != nil {
		if err := a.dec.Close(); err != nil {
			a.logger.Warn("audio decoder close failed", zap.Error(err))
		}
		a.dec = nil
	}
}

func (a *Audio) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.load() == StateDestroyed {
		return
	}
	a.closeOutputs()
	drained := a.cache.DrainAll()
	a.state.store(StateDestroyed)

	metrics.ActiveRenderers.WithLabelValues("audio").Dec()
	metrics.CacheDepth.WithLabelValues("audio").Set(0)
	a.logger.Info("audio renderer destroyed",
		zap.Int("drained", drained),
		zap.Uint64("decoded", a.decoded.Load()),
	)
}

func (a *Audio) State() State { return a.state.load() }

func (a *Audio) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cache := a.cache.Stats()
	st := Status{
		ID:           a.id,
		Kind:         "audio",
		State:        a.state.load(),
		Codec:        a.desc.Codec.String(),
		Decoded:      a.decoded.Load(),
		DecodeErrors: a.decodeErrors.Load(),
		Cache:        &cache,
	}
	if a.dev != nil {
		st.Output = a.out.String()
	}
	return st
}
