// Package opus implements the Opus decoder on libopus.
package opus

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hraban/opus"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
)

// MaxFrameSize is the largest Opus frame: 120 ms at 48 kHz, per channel.
const MaxFrameSize = 5760

// Decoder decodes one Opus stream to interleaved float samples.
type Decoder struct {
	dec      *opus.Decoder
	channels int
	pcm      []float32
	buf      []byte
	frames   [1]audio.Frame
}

// Open is a codec.AudioOpenFunc for Opus.
func Open(d codec.Descriptor) (codec.AudioDecoder, error) {
	if d.Codec != codec.Opus {
		return nil, fmt.Errorf("opus decoder cannot open %s", d.Codec)
	}
	dec, err := opus.NewDecoder(d.SampleRate, d.Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &Decoder{
		dec:      dec,
		channels: d.Channels,
		pcm:      make([]float32, MaxFrameSize*d.Channels),
		buf:      make([]byte, MaxFrameSize*d.Channels*4),
	}, nil
}

// Decode decodes one Opus packet. Opus output is already interleaved.
func (d *Decoder) Decode(data []byte, pts int64) ([]audio.Frame, error) {
	n, err := d.dec.DecodeFloat32(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	total := n * d.channels
	for i, s := range d.pcm[:total] {
		binary.LittleEndian.PutUint32(d.buf[i*4:], math.Float32bits(s))
	}
	d.frames[0] = audio.Frame{
		Format:   audio.FormatF32,
		Channels: d.channels,
		Samples:  n,
		Planes:   [][]byte{d.buf[:total*4]},
		PTS:      pts,
	}
	return d.frames[:], nil
}

// Close drops the decoder; libopus state is freed with it.
func (d *Decoder) Close() error {
	d.dec = nil
	return nil
}
