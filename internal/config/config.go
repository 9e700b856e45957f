package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
)

// Output backends.
const (
	BackendSDL  = "sdl"
	BackendNull = "null"
)

type Config struct {
	Backend     string
	LogLevel    string
	AdminListen string
	Audio       AudioConfig
	Video       VideoConfig
	Ingest      IngestConfig
	NullOutput  string
}

type AudioConfig struct {
	Enabled   bool
	Codec     codec.ID
	CacheSize int
}

type VideoConfig struct {
	Enabled      bool
	Title        string
	Width        int
	Height       int
	PollInterval time.Duration
}

type IngestConfig struct {
	File         string
	URL          string
	Realtime     bool
	AllowPrivate bool
	FFmpeg       string
}

// New returns a viper instance with every default set and MIRROR_*
// environment overrides enabled (MIRROR_AUDIO_CODEC for audio.codec).
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("backend", BackendSDL)
	v.SetDefault("log.level", "info")
	v.SetDefault("admin.listen", ":9090")

	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.codec", codec.AACELD.String())
	v.SetDefault("audio.cache_size", 10)

	v.SetDefault("video.enabled", true)
	v.SetDefault("video.title", "mirror")
	v.SetDefault("video.width", 1280)
	v.SetDefault("video.height", 720)
	v.SetDefault("video.poll_interval", 10*time.Millisecond)

	v.SetDefault("ingest.file", "")
	v.SetDefault("ingest.url", "")
	v.SetDefault("ingest.realtime", true)
	v.SetDefault("ingest.allow_private", false)
	v.SetDefault("ingest.ffmpeg", "ffmpeg")

	v.SetDefault("null.output", "")

	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and returns the validated
// configuration.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	id, err := codec.ParseID(v.GetString("audio.codec"))
	if err != nil {
		return nil, fmt.Errorf("audio.codec: %w", err)
	}
	cfg := &Config{
		Backend:     strings.ToLower(v.GetString("backend")),
		LogLevel:    v.GetString("log.level"),
		AdminListen: v.GetString("admin.listen"),
		Audio: AudioConfig{
			Enabled:   v.GetBool("audio.enabled"),
			Codec:     id,
			CacheSize: v.GetInt("audio.cache_size"),
		},
		Video: VideoConfig{
			Enabled:      v.GetBool("video.enabled"),
			Title:        v.GetString("video.title"),
			Width:        v.GetInt("video.width"),
			Height:       v.GetInt("video.height"),
			PollInterval: v.GetDuration("video.poll_interval"),
		},
		Ingest: IngestConfig{
			File:         v.GetString("ingest.file"),
			URL:          v.GetString("ingest.url"),
			Realtime:     v.GetBool("ingest.realtime"),
			AllowPrivate: v.GetBool("ingest.allow_private"),
			FFmpeg:       v.GetString("ingest.ffmpeg"),
		},
		NullOutput: v.GetString("null.output"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend != BackendSDL && c.Backend != BackendNull {
		errs = append(errs, fmt.Errorf("backend: must be %q or %q, got %q", BackendSDL, BackendNull, c.Backend))
	}
	if !c.Audio.Codec.IsAudio() {
		errs = append(errs, fmt.Errorf("audio.codec: %s is not an audio codec", c.Audio.Codec))
	}
	if c.Audio.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("audio.cache_size: must be positive, got %d", c.Audio.CacheSize))
	}
	if c.Video.Enabled && (c.Video.Width <= 0 || c.Video.Height <= 0) {
		errs = append(errs, fmt.Errorf("video: invalid size %dx%d", c.Video.Width, c.Video.Height))
	}
	if c.Video.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("video.poll_interval: must be positive"))
	}
	if c.Ingest.File != "" && c.Ingest.URL != "" {
		errs = append(errs, errors.New("ingest: file and url are mutually exclusive"))
	}
	if c.Ingest.URL != "" && !c.Audio.Enabled {
		errs = append(errs, errors.New("ingest.url: needs audio.enabled"))
	}
	if !c.Audio.Enabled && !c.Video.Enabled {
		errs = append(errs, errors.New("at least one of audio.enabled and video.enabled must be set"))
	}
	return errors.Join(errs...)
}
