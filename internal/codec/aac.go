package codec

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/bits"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

const objectTypeELD = 39

var aacSampleRates = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// DescribeAAC builds a descriptor from an MPEG-4 AudioSpecificConfig.
// AAC-LC configs are parsed by mediacommon; ELD configs, which mediacommon
// does not model, are read field by field up to the frame length flag.
func DescribeAAC(id ID, config []byte) (Descriptor, error) {
	pos := 0
	aot, err := bits.ReadBits(config, &pos, 5)
	if err != nil {
		return Descriptor{}, fmt.Errorf("audio specific config: %w", err)
	}
	if aot == 31 {
		ext, err := bits.ReadBits(config, &pos, 6)
		if err != nil {
			return Descriptor{}, fmt.Errorf("audio specific config: %w", err)
		}
		aot = 32 + ext
	}

	d := Descriptor{Codec: id, Config: append([]byte(nil), config...)}

	if aot != objectTypeELD {
		if id == AACELD {
			return Descriptor{}, fmt.Errorf("config object type %d is not ELD", aot)
		}
		var asc mpeg4audio.AudioSpecificConfig
		if err := asc.Unmarshal(config); err != nil {
			return Descriptor{}, fmt.Errorf("audio specific config: %w", err)
		}
		d.SampleRate = asc.SampleRate
		d.Channels = asc.ChannelCount
		d.FrameSize = 1024
		if asc.FrameLengthFlag {
			d.FrameSize = 960
		}
		return d, nil
	}

	if id != AACELD {
		return Descriptor{}, fmt.Errorf("ELD config supplied for %s", id)
	}
	idx, err := bits.ReadBits(config, &pos, 4)
	if err != nil {
		return Descriptor{}, fmt.Errorf("audio specific config: %w", err)
	}
	if idx == 15 {
		rate, err := bits.ReadBits(config, &pos, 24)
		if err != nil {
			return Descriptor{}, fmt.Errorf("audio specific config: %w", err)
		}
		d.SampleRate = int(rate)
	} else if int(idx) < len(aacSampleRates) {
		d.SampleRate = aacSampleRates[idx]
	} else {
		return Descriptor{}, fmt.Errorf("invalid sampling frequency index %d", idx)
	}
	ch, err := bits.ReadBits(config, &pos, 4)
	if err != nil {
		return Descriptor{}, fmt.Errorf("audio specific config: %w", err)
	}
	if ch == 0 || ch > 2 {
		return Descriptor{}, fmt.Errorf("unsupported ELD channel configuration %d", ch)
	}
	d.Channels = int(ch)
	short, err := bits.ReadFlag(config, &pos)
	if err != nil {
		return Descriptor{}, fmt.Errorf("audio specific config: %w", err)
	}
	d.FrameSize = 512
	if short {
		d.FrameSize = 480
	}
	return d, nil
}
