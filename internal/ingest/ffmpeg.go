package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/metrics"
)

// PCM unit shape produced by FFmpegSource: 352 frames of big-endian 16-bit
// stereo at 44.1 kHz, the raw-PCM access unit layout.
const (
	pcmRate       = 44100
	pcmChannels   = 2
	pcmUnitFrames = 352
	pcmUnitBytes  = pcmUnitFrames * pcmChannels * 2
)

// FFmpegSource pulls audio from a URL through an ffmpeg subprocess and
// delivers it to the sink as raw-PCM access units.
type FFmpegSource struct {
	url          string
	ffmpeg       string
	sink         Sink
	maxDur       time.Duration
	allowPrivate bool
	logger       *zap.Logger

	mu        sync.Mutex
	state     string
	lastError string
	cancel    context.CancelFunc

	units     atomic.Int64
	bytesRead atomic.Int64
	lastPTS   atomic.Int64
}

// FFmpegOptions tunes an FFmpegSource.
type FFmpegOptions struct {
	// Binary is the ffmpeg executable. Empty means "ffmpeg" on PATH.
	Binary string
	// MaxDuration stops ingest after this long. Zero means no limit.
	MaxDuration time.Duration
	// AllowPrivate permits URLs resolving to private or loopback hosts.
	AllowPrivate bool
}

// NewFFmpegSource creates a new ffmpeg-based URL source.
func NewFFmpegSource(sourceURL string, sink Sink, opts FFmpegOptions, logger *zap.Logger) *FFmpegSource {
	bin := opts.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegSource{
		url:          sourceURL,
		ffmpeg:       bin,
		sink:         sink,
		maxDur:       opts.MaxDuration,
		allowPrivate: opts.AllowPrivate,
		logger:       logger.With(zap.String("ingestURL", sourceURL)),
		state:        StateStopped,
	}
}

// Start begins ingesting audio. Blocks until the source ends, ctx is
// cancelled, or Stop is called.
func (f *FFmpegSource) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state == StateRunning || f.state == StateStarting {
		f.mu.Unlock()
		return fmt.Errorf("ingest already running")
	}
	f.state = StateStarting
	f.lastError = ""
	f.units.Store(0)
	f.bytesRead.Store(0)

	ingestCtx, cancel := context.WithCancel(ctx)
	if f.maxDur > 0 {
		ingestCtx, cancel = context.WithTimeout(ctx, f.maxDur)
	}
	f.cancel = cancel
	f.mu.Unlock()

	defer cancel()

	if err := ValidateURL(f.url, f.allowPrivate); err != nil {
		f.setError(err.Error())
		return fmt.Errorf("ingest url rejected: %w", err)
	}

	args := []string{
		"-nostdin",
		"-hide_banner", "-loglevel", "error",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-re",
		"-i", f.url,
		"-vn",
		"-ac", fmt.Sprint(pcmChannels),
		"-ar", fmt.Sprint(pcmRate),
		"-f", "s16be",
		"pipe:1",
	}

	cmd := exec.CommandContext(ingestCtx, f.ffmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		f.setError(fmt.Sprintf("stdout pipe: %v", err))
		return err
	}
	if err := cmd.Start(); err != nil {
		f.setError(fmt.Sprintf("ffmpeg start: %v", err))
		return err
	}

	f.mu.Lock()
	f.state = StateRunning
	f.mu.Unlock()
	f.logger.Info("ingest started")

	readErr := f.readLoop(ingestCtx, stdout)
	waitErr := cmd.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()

	if ingestCtx.Err() != nil {
		f.state = StateStopped
		f.logger.Info("ingest stopped", zap.Int64("units", f.units.Load()))
		return nil
	}

	if err := errors.Join(readErr, waitErr); err != nil {
		f.state = StateError
		f.lastError = err.Error()
		f.logger.Warn("ingest error", zap.Error(err))
		return fmt.Errorf("ingest failed: %w", err)
	}

	f.state = StateStopped
	f.logger.Info("ingest completed (source ended)", zap.Int64("units", f.units.Load()))
	return nil
}

// readLoop cuts r into PCM units. PTS counts microseconds of audio since
// the start of the stream. A trailing partial unit is dropped.
func (f *FFmpegSource) readLoop(ctx context.Context, r io.Reader) error {
	buf := make([]byte, pcmUnitBytes)
	var frames int64
	lastLog := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := io.ReadFull(r, buf)
		f.bytesRead.Add(int64(n))
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		pts := frames * int64(time.Second/time.Microsecond) / pcmRate
		f.sink.RenderUnit(KindAudio, buf, pts)
		frames += pcmUnitFrames
		f.units.Add(1)
		f.lastPTS.Store(pts)
		metrics.IngestUnitsTotal.WithLabelValues("ffmpeg").Inc()

		if time.Since(lastLog) >= 5*time.Second {
			f.logger.Info("ingest progress",
				zap.Int64("units", f.units.Load()),
				zap.Int64("bytesRead", f.bytesRead.Load()))
			lastLog = time.Now()
		}
	}
}

// Stop terminates the ingest. Idempotent.
func (f *FFmpegSource) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of current ingest state.
func (f *FFmpegSource) Status() Status {
	f.mu.Lock()
	state := f.state
	lastErr := f.lastError
	f.mu.Unlock()

	return Status{
		State:     state,
		Source:    f.url,
		Units:     f.units.Load(),
		BytesRead: f.bytesRead.Load(),
		LastPTS:   f.lastPTS.Load(),
		LastError: lastErr,
	}
}

func (f *FFmpegSource) setError(msg string) {
	f.mu.Lock()
	f.state = StateError
	f.lastError = msg
	f.mu.Unlock()
}
