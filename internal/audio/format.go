package audio

import "fmt"

// SampleFormat is the in-memory layout of a single PCM sample.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatS16                  // signed 16-bit little-endian
	FormatS32                  // signed 32-bit little-endian
	FormatF32                  // IEEE-754 float32 little-endian, nominal range [-1, 1]
)

// BytesPerSample returns the size of one sample of f, or 0 if f is unknown.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16:
		return 2
	case FormatS32, FormatF32:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "s16"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// Params describes an interleaved PCM stream as negotiated with an output device.
type Params struct {
	Channels   int
	SampleRate int
	Format     SampleFormat
	FrameSize  int // samples per channel per device period
}

// BytesPerFrame is the size of one interleaved sample frame (all channels).
func (p Params) BytesPerFrame() int {
	return p.Channels * p.Format.BytesPerSample()
}

// PeriodBytes is the size of one device period in bytes.
func (p Params) PeriodBytes() int {
	return p.FrameSize * p.BytesPerFrame()
}

// Validate reports whether p can describe a playable stream.
func (p Params) Validate() error {
	if p.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", p.Channels)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", p.SampleRate)
	}
	if p.Format != FormatS16 && p.Format != FormatF32 {
		return fmt.Errorf("unsupported output sample format %s", p.Format)
	}
	if p.FrameSize <= 0 {
		return fmt.Errorf("invalid frame size %d", p.FrameSize)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("%dch/%dHz/%s/%d", p.Channels, p.SampleRate, p.Format, p.FrameSize)
}
