package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
)

// VideoDecoder decodes an H.264 Annex-B stream into YUV 4:2:0 pictures.
type VideoDecoder struct {
	cc    *astiav.CodecContext
	pkt   *astiav.Packet
	frame *astiav.Frame
}

// OpenVideo is a codec.VideoOpenFunc for H.264.
func OpenVideo(d codec.Descriptor) (codec.VideoDecoder, error) {
	if d.Codec != codec.H264 {
		return nil, fmt.Errorf("%w: ffmpeg has no video decoder for %s", codec.ErrUnknownCodec, d.Codec)
	}
	c := astiav.FindDecoder(astiav.CodecIDH264)
	if c == nil {
		return nil, errors.New("ffmpeg: h264 decoder not built in")
	}
	cc := astiav.AllocCodecContext(c)
	if cc == nil {
		return nil, errors.New("ffmpeg: alloc h264 codec context failed")
	}
	if err := cc.Open(c, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("ffmpeg: open h264 decoder: %w", err)
	}
	return &VideoDecoder{
		cc:    cc,
		pkt:   astiav.AllocPacket(),
		frame: astiav.AllocFrame(),
	}, nil
}

// Decode feeds one access unit and returns the pictures it completed.
func (d *VideoDecoder) Decode(data []byte, pts int64) ([]*codec.Picture, error) {
	if err := d.pkt.FromData(data); err != nil {
		return nil, fmt.Errorf("h264 packet: %w", err)
	}
	d.pkt.SetPts(pts)
	defer d.pkt.Unref()

	if err := d.cc.SendPacket(d.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return nil, fmt.Errorf("h264 send packet: %w", err)
	}
	var out []*codec.Picture
	for {
		err := d.cc.ReceiveFrame(d.frame)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("h264 receive frame: %w", err)
		}
		p, err := picture(d.frame)
		d.frame.Unref()
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}

// Close frees the codec context and scratch packet/frame.
func (d *VideoDecoder) Close() error {
	d.frame.Free()
	d.pkt.Free()
	d.cc.Free()
	return nil
}

func picture(f *astiav.Frame) (*codec.Picture, error) {
	switch f.PixelFormat() {
	case astiav.PixelFormatYuv420P, astiav.PixelFormatYuvj420P:
	default:
		return nil, fmt.Errorf("unsupported pixel format %s", f.PixelFormat())
	}
	buf, err := f.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("copy picture: %w", err)
	}
	w, h := f.Width(), f.Height()
	cw, ch := (w+1)/2, (h+1)/2
	ySize, cSize := w*h, cw*ch
	if len(buf) < ySize+2*cSize {
		return nil, fmt.Errorf("picture buffer %d bytes, want %d", len(buf), ySize+2*cSize)
	}
	return codec.NewPicture(w, h,
		buf[:ySize],
		buf[ySize:ySize+cSize],
		buf[ySize+cSize:ySize+2*cSize],
		w, cw, f.Pts(), nil,
	), nil
}
