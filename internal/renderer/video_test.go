package renderer

import (
	"errors"
	"image/color"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/device"
	"github.com/RenatoCabral2022/mirror-renderer/internal/testutil"
)

var (
	idrNALU    = []byte{0x65, 0x88, 0x84, 0x00}
	nonIDRNALU = []byte{0x41, 0x9A, 0x02}
)

func startCode(nalu []byte) []byte {
	return append([]byte{0, 0, 0, 1}, nalu...)
}

// pictureDecoder turns every access unit into one 16x8 picture and counts
// picture releases.
type pictureDecoder struct {
	calls    atomic.Int32
	pictures atomic.Int32
	released atomic.Int32
	closes   atomic.Int32
	fail     bool
}

func (d *pictureDecoder) OpenVideo(codec.Descriptor) (codec.VideoDecoder, error) {
	if d.fail {
		return nil, errors.New("no decoder")
	}
	return d, nil
}

func (d *pictureDecoder) Decode(_ []byte, pts int64) ([]*codec.Picture, error) {
	d.calls.Add(1)
	d.pictures.Add(1)
	p := codec.NewPicture(16, 8, make([]byte, 128), make([]byte, 32), make([]byte, 32), 16, 8, pts,
		func() { d.released.Add(1) })
	return []*codec.Picture{p}, nil
}

func (d *pictureDecoder) Close() error {
	d.closes.Add(1)
	return nil
}

func newTestVideo(t *testing.T, cfg VideoConfig) (*Video, *pictureDecoder, *device.NullSurface) {
	t.Helper()
	decs := &pictureDecoder{}
	surfaces := &device.NullSurfaces{}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	cfg.Descriptor = descriptor(t, codec.H264)
	v, err := NewVideo(cfg, VideoDeps{Decoders: decs, Surfaces: surfaces}, zap.NewNop())
	require.NoError(t, err)
	surf := surfaces.Last()
	require.NotNil(t, surf)
	return v, decs, surf
}

func TestVideoPresentsPictures(t *testing.T) {
	v, decs, surf := newTestVideo(t, VideoConfig{Title: "test", Width: 320, Height: 240})
	assert.Equal(t, StateReady, v.State())

	v.RenderBuffer(nil, startCode(idrNALU), 42)
	require.Eventually(t, func() bool {
		st := surf.Stats()
		return st.Uploads == 1 && st.LastPTS == 42
	}, 2*time.Second, time.Millisecond)

	st := surf.Stats()
	assert.Equal(t, 16, st.TextureW)
	assert.Equal(t, 8, st.TextureH)
	assert.Equal(t, 1, st.Resizes)

	v.Destroy()
	assert.True(t, surf.Stats().Closed)
	assert.Equal(t, decs.pictures.Load(), decs.released.Load())
	assert.Equal(t, int32(1), decs.closes.Load())
	assert.Equal(t, uint64(1), v.Status().Presented)
}

func TestVideoWaitsForKeyframe(t *testing.T) {
	v, decs, _ := newTestVideo(t, VideoConfig{})
	defer v.Destroy()

	v.RenderBuffer(nil, startCode(nonIDRNALU), 0)
	assert.Equal(t, int32(0), decs.calls.Load())
	assert.Equal(t, uint64(1), v.Status().Skipped)

	v.RenderBuffer(nil, startCode(idrNALU), 1)
	v.RenderBuffer(nil, startCode(nonIDRNALU), 2)
	assert.Equal(t, int32(2), decs.calls.Load())

	require.NoError(t, v.Reconfigure(descriptor(t, codec.H264)))
	v.RenderBuffer(nil, startCode(nonIDRNALU), 3)
	assert.Equal(t, int32(2), decs.calls.Load(), "reconfigure waits for the next keyframe")
}

func TestVideoAcceptsAVCC(t *testing.T) {
	v, decs, _ := newTestVideo(t, VideoConfig{})
	defer v.Destroy()

	v.RenderBuffer(nil, []byte{0, 0, 0, byte(len(idrNALU)), 0x65, 0x88, 0x84, 0x00}, 0)
	assert.Equal(t, int32(1), decs.calls.Load())
}

func TestVideoMalformedUnit(t *testing.T) {
	v, decs, _ := newTestVideo(t, VideoConfig{})
	defer v.Destroy()

	v.RenderBuffer(nil, nil, 0)
	assert.Equal(t, uint64(1), v.Status().DecodeErrors)
	assert.Equal(t, int32(0), decs.calls.Load())
}

func TestVideoClearsToBackground(t *testing.T) {
	bg := color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}
	v, _, surf := newTestVideo(t, VideoConfig{Background: bg})

	require.Eventually(t, func() bool { return surf.Stats().Clears > 0 }, 2*time.Second, time.Millisecond)
	v.Destroy()
	st := surf.Stats()
	assert.Equal(t, bg, st.LastBackground)
	assert.Equal(t, 0, st.Uploads)
}

func TestVideoRedrawsOnExpose(t *testing.T) {
	v, _, surf := newTestVideo(t, VideoConfig{PollInterval: time.Hour})

	before := surf.Stats().Presents
	require.True(t, surf.Inject(device.Event{Kind: device.EventExpose}))
	require.Eventually(t, func() bool { return surf.Stats().Presents > before }, 2*time.Second, time.Millisecond)

	// Wake the loop so Destroy does not wait out the poll interval.
	go func() {
		for v.State() != StateDestroyed {
			surf.Inject(device.Event{Kind: device.EventNone})
			time.Sleep(time.Millisecond)
		}
	}()
	v.Destroy()
}

func TestVideoQuitCallback(t *testing.T) {
	var quit atomic.Bool
	v, _, surf := newTestVideo(t, VideoConfig{OnQuit: func() { quit.Store(true) }})
	defer v.Destroy()

	surf.Inject(device.Event{Kind: device.EventQuit})
	require.Eventually(t, quit.Load, 2*time.Second, time.Millisecond)
}

func TestNewVideoSurfaceFailure(t *testing.T) {
	decs := &pictureDecoder{}
	surfaces := device.SurfaceOpenFunc(func(string, int, int) (device.Surface, error) {
		return nil, errors.New("no display")
	})
	_, err := NewVideo(VideoConfig{Descriptor: descriptor(t, codec.H264)},
		VideoDeps{Decoders: decs, Surfaces: surfaces}, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, int32(1), decs.closes.Load())
}

func TestNewVideoDecoderFailure(t *testing.T) {
	surfaces := &device.NullSurfaces{}
	_, err := NewVideo(VideoConfig{Descriptor: descriptor(t, codec.H264)},
		VideoDeps{Decoders: &pictureDecoder{fail: true}, Surfaces: surfaces}, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, surfaces.Last())
}

func TestVideoReconfigureFailure(t *testing.T) {
	v, decs, _ := newTestVideo(t, VideoConfig{})
	decs.fail = true
	require.Error(t, v.Reconfigure(descriptor(t, codec.H264)))
	assert.Equal(t, StateFailed, v.State())

	v.RenderBuffer(nil, startCode(idrNALU), 0)
	assert.Equal(t, int32(0), decs.calls.Load())
	v.Destroy()
	assert.Equal(t, StateDestroyed, v.State())
}

func TestVideoDestroy(t *testing.T) {
	baseline := runtime.NumGoroutine()
	v, decs, surf := newTestVideo(t, VideoConfig{PollInterval: 5 * time.Millisecond})

	for i := 0; i < 20; i++ {
		v.RenderBuffer(nil, startCode(idrNALU), int64(i))
	}
	v.Destroy()
	v.Destroy()

	assert.True(t, surf.Stats().Closed)
	assert.Equal(t, decs.pictures.Load(), decs.released.Load(), "every picture released once")
	assert.True(t, errors.Is(v.Reconfigure(descriptor(t, codec.H264)), ErrDestroyed))

	v.RenderBuffer(nil, startCode(idrNALU), 99)
	assert.Equal(t, int32(20), decs.calls.Load())
	v.UpdateBackground(color.RGBA{})
	v.SetVolume(0)
	v.Flush()
	testutil.AssertNoGoroutineLeaks(t, baseline, 0)
}
