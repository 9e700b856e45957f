package codec

import (
	"fmt"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
)

// AudioDecoder decodes compressed audio access units.
//
// Decode may return zero frames (the decoder is still buffering) or several.
// Returned frames, including their planes, are only valid until the next call
// to Decode or Close.
type AudioDecoder interface {
	Decode(data []byte, pts int64) ([]audio.Frame, error)
	Close() error
}

// VideoDecoder decodes compressed video access units into pictures owned by
// the caller.
type VideoDecoder interface {
	Decode(data []byte, pts int64) ([]*Picture, error)
	Close() error
}

// AudioOpener opens an audio decoder for a descriptor.
type AudioOpener interface {
	OpenAudio(d Descriptor) (AudioDecoder, error)
}

// VideoOpener opens a video decoder for a descriptor.
type VideoOpener interface {
	OpenVideo(d Descriptor) (VideoDecoder, error)
}

// AudioOpenFunc adapts a function to AudioOpener.
type AudioOpenFunc func(d Descriptor) (AudioDecoder, error)

func (f AudioOpenFunc) OpenAudio(d Descriptor) (AudioDecoder, error) { return f(d) }

// VideoOpenFunc adapts a function to VideoOpener.
type VideoOpenFunc func(d Descriptor) (VideoDecoder, error)

func (f VideoOpenFunc) OpenVideo(d Descriptor) (VideoDecoder, error) { return f(d) }

// AudioOpeners dispatches to a backend per codec. The application builds one
// explicitly; there is no package-level registry.
type AudioOpeners map[ID]AudioOpener

// OpenAudio opens d with the backend registered for d.Codec.
func (m AudioOpeners) OpenAudio(d Descriptor) (AudioDecoder, error) {
	o, ok := m[d.Codec]
	if !ok || o == nil {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrUnknownCodec, d.Codec)
	}
	return o.OpenAudio(d)
}
