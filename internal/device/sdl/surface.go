package sdl

import (
	"fmt"
	"image/color"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/device"
)

// Surfaces opens resizable SDL windows with an IYUV streaming texture. The
// caller must open and use each surface from one OS-locked goroutine.
type Surfaces struct {
	Logger *zap.Logger
}

func (o Surfaces) OpenSurface(title string, width, height int) (device.Surface, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("sdl video init: %w", err)
	}
	win, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("sdl create window: %w", err)
	}
	r, err := sdl.CreateRenderer(win, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		win.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("sdl create renderer: %w", err)
	}
	logger.Info("sdl surface opened", zap.String("title", title), zap.Int("width", width), zap.Int("height", height))
	return &Surface{win: win, r: r, logger: logger}, nil
}

// Surface is an SDL window presenting YUV 4:2:0 pictures.
type Surface struct {
	win      *sdl.Window
	r        *sdl.Renderer
	tex      *sdl.Texture
	uploaded bool
	logger   *zap.Logger
}

func (s *Surface) WaitEvent(timeout time.Duration) (device.Event, bool) {
	ev := sdl.WaitEventTimeout(int(timeout / time.Millisecond))
	switch e := ev.(type) {
	case nil:
		return device.Event{}, false
	case *sdl.QuitEvent:
		return device.Event{Kind: device.EventQuit}, true
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_RESIZED:
			return device.Event{Kind: device.EventResize, Width: int(e.Data1), Height: int(e.Data2)}, true
		case sdl.WINDOWEVENT_EXPOSED:
			return device.Event{Kind: device.EventExpose}, true
		}
	}
	return device.Event{Kind: device.EventNone}, true
}

func (s *Surface) Resize(width, height int) error {
	if s.tex != nil {
		s.tex.Destroy()
		s.tex = nil
		s.uploaded = false
	}
	tex, err := s.r.CreateTexture(sdl.PIXELFORMAT_IYUV, sdl.TEXTUREACCESS_STREAMING, int32(width), int32(height))
	if err != nil {
		return fmt.Errorf("sdl create texture %dx%d: %w", width, height, err)
	}
	s.tex = tex
	s.logger.Debug("sdl texture resized", zap.Int("width", width), zap.Int("height", height))
	return nil
}

func (s *Surface) Upload(p *codec.Picture) error {
	if s.tex == nil {
		return fmt.Errorf("sdl upload: no texture")
	}
	if err := s.tex.UpdateYUV(nil, p.Y, p.YStride, p.U, p.UStride, p.V, p.VStride); err != nil {
		return fmt.Errorf("sdl update yuv: %w", err)
	}
	s.uploaded = true
	return nil
}

func (s *Surface) Present(bg color.RGBA) error {
	if err := s.r.SetDrawColor(bg.R, bg.G, bg.B, bg.A); err != nil {
		return fmt.Errorf("sdl set draw color: %w", err)
	}
	if err := s.r.Clear(); err != nil {
		return fmt.Errorf("sdl clear: %w", err)
	}
	if s.uploaded {
		if err := s.r.Copy(s.tex, nil, nil); err != nil {
			return fmt.Errorf("sdl copy: %w", err)
		}
	}
	s.r.Present()
	return nil
}

func (s *Surface) Close() error {
	if s.tex != nil {
		s.tex.Destroy()
		s.tex = nil
	}
	s.r.Destroy()
	s.win.Destroy()
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
	s.logger.Info("sdl surface closed")
	return nil
}
