package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// AccessUnit is an H.264 access unit split into NAL units.
type AccessUnit struct {
	NALUs    [][]byte
	Keyframe bool
	SPS      []byte
	PPS      []byte
}

// ParseH264 splits buf into NAL units. Annex-B (start code) input is tried
// first, then AVCC (4-byte length prefixed) input.
func ParseH264(buf []byte) (*AccessUnit, error) {
	if len(buf) == 0 {
		return nil, errors.New("empty access unit")
	}
	var nalus [][]byte
	if bytes.HasPrefix(buf, []byte{0, 0, 1}) || bytes.HasPrefix(buf, []byte{0, 0, 0, 1}) {
		var annexB h264.AnnexB
		if err := annexB.Unmarshal(buf); err != nil {
			return nil, fmt.Errorf("annex-b: %w", err)
		}
		nalus = annexB
	} else {
		var avcc h264.AVCC
		if err := avcc.Unmarshal(buf); err != nil {
			return nil, fmt.Errorf("avcc: %w", err)
		}
		nalus = avcc
	}

	au := &AccessUnit{NALUs: nalus}
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeIDR:
			au.Keyframe = true
		case h264.NALUTypeSPS:
			au.SPS = nalu
		case h264.NALUTypePPS:
			au.PPS = nalu
		}
	}
	return au, nil
}

// AnnexB re-encodes the access unit with start codes, the input format the
// decoders expect.
func (au *AccessUnit) AnnexB() ([]byte, error) {
	return h264.AnnexB(au.NALUs).Marshal()
}

// Dimensions decodes the coded picture size from the access unit's SPS.
// ok is false when the unit carries no parsable SPS.
func (au *AccessUnit) Dimensions() (width, height int, ok bool) {
	if au.SPS == nil {
		return 0, 0, false
	}
	var sps h264.SPS
	if err := sps.Unmarshal(au.SPS); err != nil {
		return 0, 0, false
	}
	return sps.Width(), sps.Height(), true
}
