package device

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NullAudio opens headless audio devices that pull one period per period
// duration and optionally write it to Sink. It remembers every device it
// opened.
type NullAudio struct {
	// Sink receives every pulled period. Nil discards.
	Sink io.Writer
	// Manual disables the ticker goroutine; periods are pulled by Tick.
	Manual bool
	Logger *zap.Logger

	mu      sync.Mutex
	devices []*NullAudioDevice
}

// OpenAudio grants want unchanged.
func (o *NullAudio) OpenAudio(want AudioParams, pull PullFunc) (AudioDevice, error) {
	if err := want.Validate(); err != nil {
		return nil, fmt.Errorf("null audio: %w", err)
	}
	if pull == nil {
		return nil, fmt.Errorf("null audio: nil pull func")
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &NullAudioDevice{
		params: want,
		pull:   pull,
		sink:   o.Sink,
		buf:    make([]byte, want.PeriodBytes()),
		paused: true,
		stop:   make(chan struct{}),
		logger: logger,
	}
	if !o.Manual {
		d.wg.Add(1)
		go d.run(PeriodDuration(want))
	}

	o.mu.Lock()
	o.devices = append(o.devices, d)
	o.mu.Unlock()
	logger.Debug("null audio device opened", zap.Stringer("params", want))
	return d, nil
}

// Devices returns every device opened so far, oldest first.
func (o *NullAudio) Devices() []*NullAudioDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*NullAudioDevice(nil), o.devices...)
}

// Last returns the most recently opened device, or nil.
func (o *NullAudio) Last() *NullAudioDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.devices) == 0 {
		return nil
	}
	return o.devices[len(o.devices)-1]
}

// NullAudioDevice is an AudioDevice with no hardware behind it.
type NullAudioDevice struct {
	params AudioParams
	pull   PullFunc
	sink   io.Writer
	buf    []byte
	logger *zap.Logger

	mu      sync.Mutex // held across pull so Pause and Close wait for it
	paused  bool
	closed  bool
	periods uint64

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (d *NullAudioDevice) run(interval time.Duration) {
	defer d.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
			d.Tick()
		}
	}
}

// Tick pulls one period unless the device is paused or closed. It reports
// whether a pull happened.
func (d *NullAudioDevice) Tick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused || d.closed {
		return false
	}
	d.pull(d.buf)
	d.periods++
	if d.sink != nil {
		if _, err := d.sink.Write(d.buf); err != nil {
			d.logger.Warn("null audio sink write failed", zap.Error(err))
		}
	}
	return true
}

// Last returns a copy of the most recently pulled period.
func (d *NullAudioDevice) Last() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buf...)
}

func (d *NullAudioDevice) Params() AudioParams { return d.params }

func (d *NullAudioDevice) Pause(paused bool) {
	d.mu.Lock()
	d.paused = paused
	d.mu.Unlock()
}

// Paused reports the pause state.
func (d *NullAudioDevice) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Periods is the number of periods pulled so far.
func (d *NullAudioDevice) Periods() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.periods
}

// Closed reports whether Close has run.
func (d *NullAudioDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *NullAudioDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.wg.Wait()
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.logger.Debug("null audio device closed", zap.Uint64("periods", d.periods))
	})
	return nil
}
