// Package sdl implements the audio device and video surface on SDL2.
package sdl

import (
	"fmt"
	"sync"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
	"github.com/RenatoCabral2022/mirror-renderer/internal/device"
)

// queuedPeriods is how many periods the pump keeps queued ahead of the
// hardware.
const queuedPeriods = 2

// Audio opens SDL audio devices. Data is fed through the SDL queue API by a
// pump goroutine that calls the pull func one period at a time.
type Audio struct {
	// Device names the output; empty selects the default.
	Device string
	Logger *zap.Logger
}

func (o Audio) OpenAudio(want device.AudioParams, pull device.PullFunc) (device.AudioDevice, error) {
	if err := want.Validate(); err != nil {
		return nil, fmt.Errorf("sdl audio: %w", err)
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
		return nil, fmt.Errorf("sdl audio init: %w", err)
	}

	desired := sdl.AudioSpec{
		Freq:     int32(want.SampleRate),
		Format:   sdlFormat(want.Format),
		Channels: uint8(want.Channels),
		Samples:  uint16(want.FrameSize),
	}
	var obtained sdl.AudioSpec
	id, err := sdl.OpenAudioDevice(o.Device, false, &desired, &obtained,
		sdl.AUDIO_ALLOW_FREQUENCY_CHANGE|sdl.AUDIO_ALLOW_CHANNELS_CHANGE)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_AUDIO)
		return nil, fmt.Errorf("sdl open audio device: %w", err)
	}

	got := device.AudioParams{
		Channels:   int(obtained.Channels),
		SampleRate: int(obtained.Freq),
		Format:     want.Format,
		FrameSize:  int(obtained.Samples),
	}
	if got.FrameSize == 0 {
		got.FrameSize = want.FrameSize
	}
	d := &AudioDevice{
		id:     id,
		params: got,
		pull:   pull,
		buf:    make([]byte, got.PeriodBytes()),
		paused: true,
		stop:   make(chan struct{}),
		logger: logger,
	}
	d.wg.Add(1)
	go d.pump()

	logger.Info("sdl audio device opened",
		zap.Stringer("requested", want),
		zap.Stringer("granted", got),
	)
	return d, nil
}

func sdlFormat(f audio.SampleFormat) sdl.AudioFormat {
	if f == audio.FormatF32 {
		return sdl.AUDIO_F32LSB
	}
	return sdl.AUDIO_S16LSB
}

// AudioDevice is an opened SDL audio output.
type AudioDevice struct {
	id     sdl.AudioDeviceID
	params device.AudioParams
	pull   device.PullFunc
	buf    []byte
	logger *zap.Logger

	mu     sync.Mutex // held across pull
	paused bool

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (d *AudioDevice) pump() {
	defer d.wg.Done()
	period := device.PeriodDuration(d.params)
	high := uint32(queuedPeriods * len(d.buf))
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		if !d.fill(high) {
			select {
			case <-d.stop:
				return
			case <-time.After(period / 2):
			}
		}
	}
}

// fill queues one period if the queue is below high. It reports whether it
// queued anything.
func (d *AudioDevice) fill(high uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused || sdl.GetQueuedAudioSize(d.id) >= high {
		return false
	}
	d.pull(d.buf)
	if err := sdl.QueueAudio(d.id, d.buf); err != nil {
		d.logger.Warn("sdl queue audio failed", zap.Error(err))
		return false
	}
	return true
}

func (d *AudioDevice) Params() device.AudioParams { return d.params }

func (d *AudioDevice) Pause(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = paused
	sdl.PauseAudioDevice(d.id, paused)
	if paused {
		sdl.ClearQueuedAudio(d.id)
	}
}

func (d *AudioDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.wg.Wait()
		sdl.CloseAudioDevice(d.id)
		sdl.QuitSubSystem(sdl.INIT_AUDIO)
		d.logger.Info("sdl audio device closed")
	})
	return nil
}
