package codec

import (
	"fmt"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
)

// PCMDecoder "decodes" raw big-endian 16-bit interleaved PCM into the
// little-endian layout the rest of the pipeline uses.
type PCMDecoder struct {
	channels int
	scratch  []byte
	frames   [1]audio.Frame
}

// OpenPCM is an AudioOpenFunc for the PCM codec.
func OpenPCM(d Descriptor) (AudioDecoder, error) {
	if d.Codec != PCM {
		return nil, fmt.Errorf("pcm decoder cannot open %s", d.Codec)
	}
	if d.Channels <= 0 {
		return nil, fmt.Errorf("pcm decoder: invalid channel count %d", d.Channels)
	}
	return &PCMDecoder{channels: d.Channels}, nil
}

// Decode byte-swaps data into one interleaved S16 frame.
func (p *PCMDecoder) Decode(data []byte, pts int64) ([]audio.Frame, error) {
	if len(data) == 0 {
		return nil, nil
	}
	frameBytes := 2 * p.channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("pcm unit of %d bytes is not a whole number of %d-byte frames", len(data), frameBytes)
	}
	if cap(p.scratch) < len(data) {
		p.scratch = make([]byte, len(data))
	}
	buf := audio.SwapS16(p.scratch[:len(data)], data)
	p.frames[0] = audio.Frame{
		Format:   audio.FormatS16,
		Channels: p.channels,
		Samples:  len(data) / frameBytes,
		Planes:   [][]byte{buf},
		PTS:      pts,
	}
	return p.frames[:], nil
}

// Close releases the scratch buffer.
func (p *PCMDecoder) Close() error {
	p.scratch = nil
	return nil
}
