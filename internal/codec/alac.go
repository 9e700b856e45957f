package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	alacAtomSize   = 36
	alacConfigSize = 24
)

// ALACConfig is the ALACSpecificConfig ("magic cookie") a decoder needs.
type ALACConfig struct {
	FrameLength       uint32
	CompatibleVersion uint8
	BitDepth          uint8
	PB                uint8
	MB                uint8
	KB                uint8
	NumChannels       uint8
	MaxRun            uint16
	MaxFrameBytes     uint32
	AvgBitRate        uint32
	SampleRate        uint32
}

// DefaultALACConfig is the stream format mirroring senders use for ALAC:
// 352 samples per packet, 16-bit stereo at 44.1 kHz.
func DefaultALACConfig() ALACConfig {
	return ALACConfig{
		FrameLength: 352,
		BitDepth:    16,
		PB:          40,
		MB:          10,
		KB:          14,
		NumChannels: 2,
		MaxRun:      255,
		SampleRate:  44100,
	}
}

// Marshal encodes c as a full 'alac' atom (size, tag, version, config),
// the layout FFmpeg expects as extradata.
func (c ALACConfig) Marshal() []byte {
	b := make([]byte, alacAtomSize)
	binary.BigEndian.PutUint32(b[0:], alacAtomSize)
	copy(b[4:], "alac")
	p := b[12:]
	binary.BigEndian.PutUint32(p[0:], c.FrameLength)
	p[4] = c.CompatibleVersion
	p[5] = c.BitDepth
	p[6] = c.PB
	p[7] = c.MB
	p[8] = c.KB
	p[9] = c.NumChannels
	binary.BigEndian.PutUint16(p[10:], c.MaxRun)
	binary.BigEndian.PutUint32(p[12:], c.MaxFrameBytes)
	binary.BigEndian.PutUint32(p[16:], c.AvgBitRate)
	binary.BigEndian.PutUint32(p[20:], c.SampleRate)
	return b
}

// ParseALACConfig decodes either a bare 24-byte config or a 36-byte atom.
func ParseALACConfig(b []byte) (ALACConfig, error) {
	switch {
	case len(b) >= alacAtomSize && string(b[4:8]) == "alac":
		b = b[12:]
	case len(b) >= alacConfigSize:
	default:
		return ALACConfig{}, fmt.Errorf("alac config too short: %d bytes", len(b))
	}
	c := ALACConfig{
		FrameLength:       binary.BigEndian.Uint32(b[0:]),
		CompatibleVersion: b[4],
		BitDepth:          b[5],
		PB:                b[6],
		MB:                b[7],
		KB:                b[8],
		NumChannels:       b[9],
		MaxRun:            binary.BigEndian.Uint16(b[10:]),
		MaxFrameBytes:     binary.BigEndian.Uint32(b[12:]),
		AvgBitRate:        binary.BigEndian.Uint32(b[16:]),
		SampleRate:        binary.BigEndian.Uint32(b[20:]),
	}
	if c.FrameLength == 0 || c.NumChannels == 0 || c.SampleRate == 0 {
		return ALACConfig{}, fmt.Errorf("alac config has zero frame length, channels or rate")
	}
	return c, nil
}

// DescribeALAC builds a descriptor from an ALAC cookie.
func DescribeALAC(cookie []byte) (Descriptor, error) {
	c, err := ParseALACConfig(cookie)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Codec:      ALAC,
		Config:     append([]byte(nil), cookie...),
		SampleRate: int(c.SampleRate),
		Channels:   int(c.NumChannels),
		FrameSize:  int(c.FrameLength),
	}, nil
}
