package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RenatoCabral2022/mirror-renderer/internal/admin"
	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/codec/ffmpeg"
	opusdec "github.com/RenatoCabral2022/mirror-renderer/internal/codec/opus"
	"github.com/RenatoCabral2022/mirror-renderer/internal/config"
	"github.com/RenatoCabral2022/mirror-renderer/internal/device"
	sdldevice "github.com/RenatoCabral2022/mirror-renderer/internal/device/sdl"
	"github.com/RenatoCabral2022/mirror-renderer/internal/ingest"
	"github.com/RenatoCabral2022/mirror-renderer/internal/renderer"
	"github.com/RenatoCabral2022/mirror-renderer/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "mirror-render",
		Short:        "Render mirrored audio and video streams",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, toml or json)")
	f.String("backend", config.BackendSDL, "output backend: sdl or null")
	f.String("log-level", "info", "log level")
	f.String("admin", ":9090", "admin API listen address, empty to disable")
	f.String("codec", codec.AACELD.String(), "initial audio codec")
	f.Int("cache-size", 10, "decoded audio units buffered ahead of the device")
	f.Bool("audio", true, "enable the audio renderer")
	f.Bool("video", true, "enable the video renderer")
	f.String("file", "", "replay an access-unit capture file")
	f.String("url", "", "ingest audio from a URL through ffmpeg")
	f.Bool("realtime", true, "pace capture replay by timestamps")
	f.String("null-output", "", "write null-backend PCM to this file")

	for key, flag := range map[string]string{
		"backend":          "backend",
		"log.level":        "log-level",
		"admin.listen":     "admin",
		"audio.codec":      "codec",
		"audio.cache_size": "cache-size",
		"audio.enabled":    "audio",
		"video.enabled":    "video",
		"ingest.file":      "file",
		"ingest.url":       "url",
		"ingest.realtime":  "realtime",
		"null.output":      "null-output",
	} {
		v.BindPFlag(key, f.Lookup(flag))
	}

	cmd.AddCommand(newToneCmd())
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("mirror-render starting",
		zap.String("backend", cfg.Backend),
		zap.Stringer("codec", cfg.Audio.Codec),
		zap.Bool("audio", cfg.Audio.Enabled),
		zap.Bool("video", cfg.Video.Enabled),
		zap.String("admin", cfg.AdminListen),
	)

	var (
		audioDevices device.AudioOpener
		surfaces     device.SurfaceOpener
	)
	switch cfg.Backend {
	case config.BackendSDL:
		audioDevices = sdldevice.Audio{Logger: logger}
		surfaces = sdldevice.Surfaces{Logger: logger}
	case config.BackendNull:
		na := &device.NullAudio{Logger: logger}
		if cfg.NullOutput != "" {
			out, err := os.Create(cfg.NullOutput)
			if err != nil {
				return fmt.Errorf("null output: %w", err)
			}
			defer out.Close()
			na.Sink = out
		}
		audioDevices = na
		surfaces = &device.NullSurfaces{}
	}

	decoders := codec.AudioOpeners{
		codec.ALAC:   codec.AudioOpenFunc(ffmpeg.OpenAudio),
		codec.AACLC:  codec.AudioOpenFunc(ffmpeg.OpenAudio),
		codec.AACELD: codec.AudioOpenFunc(ffmpeg.OpenAudio),
		codec.PCM:    codec.AudioOpenFunc(codec.OpenPCM),
		codec.Opus:   codec.AudioOpenFunc(opusdec.Open),
	}

	audioCodec := cfg.Audio.Codec
	if cfg.Ingest.URL != "" && audioCodec != codec.PCM {
		logger.Info("url ingest delivers raw PCM, overriding audio codec", zap.Stringer("configured", audioCodec))
		audioCodec = codec.PCM
	}

	var audioR, videoR renderer.Renderer
	if cfg.Audio.Enabled {
		d, err := codec.DefaultDescriptor(audioCodec)
		if err != nil {
			return err
		}
		a, err := renderer.NewAudio(
			renderer.AudioConfig{Descriptor: d, CacheSize: cfg.Audio.CacheSize},
			renderer.AudioDeps{Decoders: decoders, Devices: audioDevices},
			logger,
		)
		if err != nil {
			return err
		}
		audioR = a
	}
	if cfg.Video.Enabled {
		d, _ := codec.DefaultDescriptor(codec.H264)
		vr, err := renderer.NewVideo(
			renderer.VideoConfig{
				Descriptor:   d,
				Title:        cfg.Video.Title,
				Width:        cfg.Video.Width,
				Height:       cfg.Video.Height,
				PollInterval: cfg.Video.PollInterval,
				OnQuit:       cancel,
			},
			renderer.VideoDeps{Decoders: codec.VideoOpenFunc(ffmpeg.OpenVideo), Surfaces: surfaces},
			logger,
		)
		if err != nil {
			if audioR != nil {
				audioR.Destroy()
			}
			return err
		}
		videoR = vr
	}

	sess := session.New(audioR, videoR, logger)
	defer sess.Close()

	var src ingest.Source
	switch {
	case cfg.Ingest.File != "":
		file := cfg.Ingest.File
		src = ingest.NewCaptureSource(file, func() (io.ReadCloser, error) { return os.Open(file) },
			sess, cfg.Ingest.Realtime, logger)
	case cfg.Ingest.URL != "":
		src = ingest.NewFFmpegSource(cfg.Ingest.URL, sess, ingest.FFmpegOptions{
			Binary:       cfg.Ingest.FFmpeg,
			AllowPrivate: cfg.Ingest.AllowPrivate,
		}, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.AdminListen != "" {
		srv := &http.Server{
			Addr:         cfg.AdminListen,
			Handler:      admin.NewRouter(sess, src, logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 20 * time.Second,
		}
		g.Go(func() error {
			logger.Info("admin API listening", zap.String("addr", cfg.AdminListen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}
	if src != nil {
		g.Go(func() error { return src.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	logger.Info("shutting down", zap.Error(err))
	return err
}
