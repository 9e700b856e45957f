// Package codec defines the codec identities the renderers recognize, their
// fixed initialization descriptors and the decoder interfaces implemented by
// the codec backends.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RenatoCabral2022/mirror-renderer/internal/audio"
)

// ErrUnknownCodec is returned for a codec identity outside the supported set.
var ErrUnknownCodec = errors.New("unknown codec")

// ID identifies a codec.
type ID int

const (
	Unknown ID = iota
	ALAC       // Apple Lossless
	AACLC      // AAC low complexity
	AACELD     // AAC enhanced low delay
	PCM        // raw big-endian 16-bit PCM
	Opus
	H264
)

var names = map[ID]string{
	ALAC:   "alac",
	AACLC:  "aac-lc",
	AACELD: "aac-eld",
	PCM:    "pcm",
	Opus:   "opus",
	H264:   "h264",
}

func (id ID) String() string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("codec(%d)", int(id))
}

// IsAudio reports whether id is one of the audio codecs.
func (id ID) IsAudio() bool {
	switch id {
	case ALAC, AACLC, AACELD, PCM, Opus:
		return true
	}
	return false
}

// ParseID maps a codec name ("aac-eld", "alac", ...) to its ID.
func ParseID(s string) (ID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for id, n := range names {
		if n == s {
			return id, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// Descriptor is everything needed to open a decoder for one stream format.
type Descriptor struct {
	Codec      ID
	Config     []byte // codec init blob: AudioSpecificConfig, ALAC cookie; nil otherwise
	SampleRate int
	Channels   int
	FrameSize  int // samples per channel in one decoded frame
}

// Fixed init blobs for the audio formats a mirroring sender negotiates.
var (
	eldConfig = []byte{0xF8, 0xE8, 0x50, 0x00} // AAC-ELD, 44.1 kHz, stereo, 480 samples
	lcConfig  = []byte{0x12, 0x10}             // AAC-LC, 44.1 kHz, stereo, 1024 samples
)

// DefaultDescriptor returns the descriptor for id built from its fixed init
// blob. Unknown ids yield ErrUnknownCodec.
func DefaultDescriptor(id ID) (Descriptor, error) {
	switch id {
	case AACELD:
		return DescribeAAC(AACELD, eldConfig)
	case AACLC:
		return DescribeAAC(AACLC, lcConfig)
	case ALAC:
		return DescribeALAC(DefaultALACConfig().Marshal())
	case PCM:
		return Descriptor{Codec: PCM, SampleRate: 44100, Channels: 2, FrameSize: 352}, nil
	case Opus:
		return Descriptor{Codec: Opus, SampleRate: 48000, Channels: 2, FrameSize: 960}, nil
	case H264:
		return Descriptor{Codec: H264}, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownCodec, id)
}

// DeviceParams returns the output parameters requested from the audio device
// for d: float samples and a small period for the AAC family and Opus,
// integer samples and a larger period for ALAC and raw PCM.
func DeviceParams(d Descriptor) (audio.Params, error) {
	p := audio.Params{Channels: d.Channels, SampleRate: d.SampleRate}
	switch d.Codec {
	case AACELD, AACLC, Opus:
		p.Format = audio.FormatF32
		p.FrameSize = d.FrameSize
	case ALAC, PCM:
		p.Format = audio.FormatS16
		p.FrameSize = 4 * d.FrameSize
	default:
		return audio.Params{}, fmt.Errorf("%w: %s is not an audio codec", ErrUnknownCodec, d.Codec)
	}
	return p, p.Validate()
}

// Describe builds the descriptor for id from an optional init blob. An empty
// blob selects the default descriptor; PCM and Opus carry no blob.
func Describe(id ID, config []byte) (Descriptor, error) {
	if len(config) == 0 {
		return DefaultDescriptor(id)
	}
	switch id {
	case AACLC, AACELD:
		return DescribeAAC(id, config)
	case ALAC:
		return DescribeALAC(config)
	}
	return Descriptor{}, fmt.Errorf("%s takes no init config", id)
}
