// Package ffmpeg implements the AAC, ALAC and H.264 decoders on libavcodec
// through go-astiav.
package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
)

// AudioDecoder decodes one AAC-LC, AAC-ELD or ALAC stream.
type AudioDecoder struct {
	codec codec.ID
	cc    *astiav.CodecContext
	pkt   *astiav.Packet
	frame *astiav.Frame
	out   []audio.Frame
}

// OpenAudio is a codec.AudioOpenFunc for the libavcodec-backed codecs.
func OpenAudio(d codec.Descriptor) (codec.AudioDecoder, error) {
	var id astiav.CodecID
	switch d.Codec {
	case codec.AACLC, codec.AACELD:
		id = astiav.CodecIDAac
	case codec.ALAC:
		id = astiav.CodecIDAlac
	default:
		return nil, fmt.Errorf("%w: ffmpeg has no audio decoder for %s", codec.ErrUnknownCodec, d.Codec)
	}

	c := astiav.FindDecoder(id)
	if c == nil {
		return nil, fmt.Errorf("ffmpeg: %s decoder not built in", d.Codec)
	}
	cc := astiav.AllocCodecContext(c)
	if cc == nil {
		return nil, fmt.Errorf("ffmpeg: alloc %s codec context failed", d.Codec)
	}

	cp := astiav.AllocCodecParameters()
	defer cp.Free()
	cp.SetMediaType(astiav.MediaTypeAudio)
	cp.SetCodecID(id)
	cp.SetSampleRate(d.SampleRate)
	cp.SetChannelLayout(channelLayout(d.Channels))
	if len(d.Config) > 0 {
		if err := cp.SetExtraData(d.Config); err != nil {
			cc.Free()
			return nil, fmt.Errorf("ffmpeg: set %s extradata: %w", d.Codec, err)
		}
	}
	if err := cp.ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, fmt.Errorf("ffmpeg: apply %s parameters: %w", d.Codec, err)
	}
	if err := cc.Open(c, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("ffmpeg: open %s decoder: %w", d.Codec, err)
	}

	return &AudioDecoder{
		codec: d.Codec,
		cc:    cc,
		pkt:   astiav.AllocPacket(),
		frame: astiav.AllocFrame(),
	}, nil
}

// Decode feeds one access unit and collects every frame the decoder is
// ready to emit.
func (d *AudioDecoder) Decode(data []byte, pts int64) ([]audio.Frame, error) {
	d.out = d.out[:0]
	if err := d.pkt.FromData(data); err != nil {
		return nil, fmt.Errorf("%s packet: %w", d.codec, err)
	}
	d.pkt.SetPts(pts)
	defer d.pkt.Unref()

	if err := d.cc.SendPacket(d.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return nil, fmt.Errorf("%s send packet: %w", d.codec, err)
	}
	for {
		err := d.cc.ReceiveFrame(d.frame)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return d.out, nil
		}
		if err != nil {
			return d.out, fmt.Errorf("%s receive frame: %w", d.codec, err)
		}
		f, err := audioFrame(d.frame)
		d.frame.Unref()
		if err != nil {
			return d.out, fmt.Errorf("%s frame: %w", d.codec, err)
		}
		d.out = append(d.out, f)
	}
}

// Close frees the codec context and scratch packet/frame.
func (d *AudioDecoder) Close() error {
	d.frame.Free()
	d.pkt.Free()
	d.cc.Free()
	return nil
}

func audioFrame(f *astiav.Frame) (audio.Frame, error) {
	format, planar, err := sampleFormat(f.SampleFormat())
	if err != nil {
		return audio.Frame{}, err
	}
	buf, err := f.Data().Bytes(1)
	if err != nil {
		return audio.Frame{}, err
	}
	channels := f.ChannelLayout().Channels()
	samples := f.NbSamples()
	out := audio.Frame{
		Format:   format,
		Planar:   planar,
		Channels: channels,
		Samples:  samples,
		PTS:      f.Pts(),
	}
	if !planar {
		out.Planes = [][]byte{buf}
		return out, nil
	}
	// Planes are laid out back to back when copied with alignment 1.
	plane := samples * format.BytesPerSample()
	if len(buf) < plane*channels {
		return audio.Frame{}, fmt.Errorf("frame buffer %d bytes, want %d", len(buf), plane*channels)
	}
	out.Planes = make([][]byte, channels)
	for c := range out.Planes {
		out.Planes[c] = buf[c*plane : (c+1)*plane]
	}
	return out, nil
}

func sampleFormat(sf astiav.SampleFormat) (audio.SampleFormat, bool, error) {
	switch sf {
	case astiav.SampleFormatS16:
		return audio.FormatS16, false, nil
	case astiav.SampleFormatS16P:
		return audio.FormatS16, true, nil
	case astiav.SampleFormatS32:
		return audio.FormatS32, false, nil
	case astiav.SampleFormatS32P:
		return audio.FormatS32, true, nil
	case astiav.SampleFormatFlt:
		return audio.FormatF32, false, nil
	case astiav.SampleFormatFltp:
		return audio.FormatF32, true, nil
	}
	return audio.FormatUnknown, false, fmt.Errorf("unsupported sample format %s", sf)
}

func channelLayout(channels int) astiav.ChannelLayout {
	if channels == 1 {
		return astiav.ChannelLayoutMono
	}
	return astiav.ChannelLayoutStereo
}
