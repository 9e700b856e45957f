package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame is one block of decoded samples as handed over by a decoder.
// Planar frames carry one plane per channel; interleaved frames carry a
// single plane with channels alternating sample by sample.
type Frame struct {
	Format   SampleFormat
	Planar   bool
	Channels int
	Samples  int // per channel
	Planes   [][]byte
	PTS      int64
}

// Validate checks that the planes are large enough for Samples.
func (f *Frame) Validate() error {
	bps := f.Format.BytesPerSample()
	if bps == 0 {
		return fmt.Errorf("unknown sample format")
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.Planar {
		if len(f.Planes) < f.Channels {
			return fmt.Errorf("planar frame has %d planes for %d channels", len(f.Planes), f.Channels)
		}
		for i := 0; i < f.Channels; i++ {
			if len(f.Planes[i]) < f.Samples*bps {
				return fmt.Errorf("plane %d short: %d < %d", i, len(f.Planes[i]), f.Samples*bps)
			}
		}
		return nil
	}
	if len(f.Planes) < 1 || len(f.Planes[0]) < f.Samples*f.Channels*bps {
		return fmt.Errorf("interleaved frame short for %d samples", f.Samples)
	}
	return nil
}

// ConvertedSize returns the byte length of f once interleaved into out.
func ConvertedSize(f *Frame, out Params) int {
	return f.Samples * out.BytesPerFrame()
}

// Interleave writes f into dst as interleaved out.Format samples with
// out.Channels channels. Extra output channels repeat the last source
// channel; surplus source channels are dropped. Sample rate is not touched.
// dst must have length >= ConvertedSize(f, out). Returns the used portion.
func Interleave(dst []byte, f *Frame, out Params) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	outBps := out.Format.BytesPerSample()
	if out.Format != FormatS16 && out.Format != FormatF32 {
		return nil, fmt.Errorf("unsupported output format %s", out.Format)
	}
	need := ConvertedSize(f, out)
	if len(dst) < need {
		return nil, fmt.Errorf("destination too small: %d < %d", len(dst), need)
	}

	inBps := f.Format.BytesPerSample()
	pos := 0
	for i := 0; i < f.Samples; i++ {
		for c := 0; c < out.Channels; c++ {
			src := c
			if src >= f.Channels {
				src = f.Channels - 1
			}
			s := sampleAt(f, src, i, inBps)
			switch out.Format {
			case FormatS16:
				binary.LittleEndian.PutUint16(dst[pos:], uint16(toS16(s, f.Format)))
			case FormatF32:
				binary.LittleEndian.PutUint32(dst[pos:], math.Float32bits(toF32(s, f.Format)))
			}
			pos += outBps
		}
	}
	return dst[:need], nil
}

func sampleAt(f *Frame, ch, i, bps int) []byte {
	if f.Planar {
		return f.Planes[ch][i*bps : (i+1)*bps]
	}
	off := (i*f.Channels + ch) * bps
	return f.Planes[0][off : off+bps]
}

func toS16(b []byte, format SampleFormat) int16 {
	switch format {
	case FormatS16:
		return int16(binary.LittleEndian.Uint16(b))
	case FormatS32:
		return int16(int32(binary.LittleEndian.Uint32(b)) >> 16)
	case FormatF32:
		v := math.Float32frombits(binary.LittleEndian.Uint32(b))
		if v >= 1 {
			return math.MaxInt16
		}
		if v <= -1 {
			return math.MinInt16
		}
		return int16(v * math.MaxInt16)
	}
	return 0
}

func toF32(b []byte, format SampleFormat) float32 {
	switch format {
	case FormatS16:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
	case FormatS32:
		return float32(float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648)
	case FormatF32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return 0
}

// SwapS16 converts big-endian 16-bit samples in src to little-endian in dst.
// dst must be at least len(src) bytes; a trailing odd byte is ignored.
func SwapS16(dst, src []byte) []byte {
	n := len(src) &^ 1
	for i := 0; i < n; i += 2 {
		dst[i] = src[i+1]
		dst[i+1] = src[i]
	}
	return dst[:n]
}

// Int16ToBytes converts int16 samples to s16le bytes.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Float32ToBytes converts float32 samples to f32le bytes.
func Float32ToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// BytesToInt16 converts s16le bytes to int16 samples.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// BytesToFloat32 converts f32le bytes to float32 samples.
func BytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}
