package codec

// Picture is one decoded YUV 4:2:0 picture.
type Picture struct {
	Width   int
	Height  int
	Y, U, V []byte
	YStride int
	UStride int
	VStride int
	PTS     int64

	release func()
}

// NewPicture wraps planar YUV 4:2:0 data. release, if non-nil, runs once
// when the picture is released.
func NewPicture(width, height int, y, u, v []byte, yStride, uvStride int, pts int64, release func()) *Picture {
	return &Picture{
		Width:   width,
		Height:  height,
		Y:       y,
		U:       u,
		V:       v,
		YStride: yStride,
		UStride: uvStride,
		VStride: uvStride,
		PTS:     pts,
		release: release,
	}
}

// Release drops the plane references and runs the release hook once.
func (p *Picture) Release() {
	if p.Y == nil && p.release == nil {
		return
	}
	p.Y, p.U, p.V = nil, nil, nil
	if f := p.release; f != nil {
		p.release = nil
		f()
	}
}

// Released reports whether Release has run.
func (p *Picture) Released() bool {
	return p.Y == nil && p.release == nil
}
