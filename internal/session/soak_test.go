//go:build soak

package session_test

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/device"
	"github.com/RenatoCabral2022/mirror-renderer/internal/ingest"
	"github.com/RenatoCabral2022/mirror-renderer/internal/renderer"
	"github.com/RenatoCabral2022/mirror-renderer/internal/session"
	"github.com/RenatoCabral2022/mirror-renderer/internal/testutil"
)

const (
	soakDuration        = 2 * time.Minute
	soakSessions        = 5
	reconfigureInterval = 5 * time.Second
)

// grayDecoder turns every access unit into a gray 64x32 picture.
type grayDecoder struct{}

func (grayDecoder) Decode(_ []byte, pts int64) ([]*codec.Picture, error) {
	y := make([]byte, 64*32)
	u := make([]byte, 32*16)
	v := make([]byte, 32*16)
	return []*codec.Picture{codec.NewPicture(64, 32, y, u, v, 64, 32, pts, nil)}, nil
}

func (grayDecoder) Close() error { return nil }

func TestSoakStability(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping soak test in short mode")
	}

	logger, _ := zap.NewDevelopment()
	alloc := testutil.NewAllocTracker()
	pcm, _ := codec.DefaultDescriptor(codec.PCM)
	h264, _ := codec.DefaultDescriptor(codec.H264)

	// Record baseline
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	baselineGoroutines := runtime.NumGoroutine()
	t.Logf("baseline goroutines: %d", baselineGoroutines)

	sessions := make([]*session.Session, soakSessions)
	for i := range sessions {
		a, err := renderer.NewAudio(
			renderer.AudioConfig{Descriptor: pcm},
			renderer.AudioDeps{
				Decoders:  codec.AudioOpeners{codec.PCM: codec.AudioOpenFunc(codec.OpenPCM)},
				Devices:   &device.NullAudio{Logger: logger},
				Allocator: alloc,
			},
			logger,
		)
		if err != nil {
			t.Fatal(err)
		}
		v, err := renderer.NewVideo(
			renderer.VideoConfig{Descriptor: h264, Width: 64, Height: 32},
			renderer.VideoDeps{
				Decoders: codec.VideoOpenFunc(func(codec.Descriptor) (codec.VideoDecoder, error) { return grayDecoder{}, nil }),
				Surfaces: &device.NullSurfaces{},
			},
			logger,
		)
		if err != nil {
			t.Fatal(err)
		}
		sessions[i] = session.New(a, v, logger)
	}

	var wg sync.WaitGroup
	stopCh := make(chan struct{})

	// Feed audio slightly faster than the device drains it so the cache
	// both fills and overflows.
	for _, sess := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			unit := make([]byte, 352*4)
			idr := []byte{0, 0, 0, 1, 0x65, 0x88, 0x84, 0x00}
			ticker := time.NewTicker(7 * time.Millisecond)
			defer ticker.Stop()
			var pts int64
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					s.RenderUnit(ingest.KindAudio, unit, pts)
					if pts%4 == 0 {
						s.RenderUnit(ingest.KindVideo, idr, pts)
					}
					pts++
				}
			}
		}(sess)
	}

	for _, sess := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			ticker := time.NewTicker(reconfigureInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					if err := s.Reconfigure(ingest.KindAudio, pcm); err != nil {
						t.Errorf("reconfigure: %v", err)
					}
				}
			}
		}(sess)
	}

	// Run for soak duration, sampling goroutines + memory periodically
	deadline := time.Now().Add(soakDuration)
	var memSamples []uint64
	sampleTicker := time.NewTicker(15 * time.Second)
	defer sampleTicker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-sampleTicker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			memSamples = append(memSamples, ms.HeapInuse)
			t.Logf("goroutines=%d heapInuse=%dKB outstandingUnits=%d",
				runtime.NumGoroutine(), ms.HeapInuse/1024, alloc.Outstanding())
		default:
			time.Sleep(1 * time.Second)
		}
	}

	close(stopCh)
	wg.Wait()
	for _, sess := range sessions {
		sess.Close()
	}

	runtime.GC()
	testutil.AssertNoGoroutineLeaks(t, baselineGoroutines, 2)

	if n := alloc.Outstanding(); n != 0 {
		t.Errorf("%d unit payloads never released", n)
	}
	if _, _, doubles := alloc.Counts(); doubles != 0 {
		t.Errorf("%d payloads released twice", doubles)
	}

	// Assert memory is not growing monotonically
	if len(memSamples) >= 4 {
		firstAvg := (memSamples[0] + memSamples[1]) / 2
		lastAvg := (memSamples[len(memSamples)-1] + memSamples[len(memSamples)-2]) / 2
		ratio := float64(lastAvg) / float64(firstAvg)
		t.Logf("memory ratio (last/first avg): %.2f", ratio)
		if ratio > 3.0 {
			t.Errorf("possible memory leak: first avg=%dKB, last avg=%dKB, ratio=%.2f",
				firstAvg/1024, lastAvg/1024, ratio)
		}
	}
}
