package ingest

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/metrics"
)

// Capture record layout: kind u8 | pts i64 BE | len u32 BE | payload.
const (
	recordHeaderSize = 1 + 8 + 4
	// MaxRecordPayload bounds a single access unit.
	MaxRecordPayload = 4 << 20
)

// Record is one captured access unit.
type Record struct {
	Kind    Kind
	PTS     int64 // microseconds
	Payload []byte
}

// WriteRecord appends r to w in capture format.
func WriteRecord(w io.Writer, r Record) error {
	if len(r.Payload) > MaxRecordPayload {
		return fmt.Errorf("%w: payload %d bytes", ErrMalformed, len(r.Payload))
	}
	var hdr [recordHeaderSize]byte
	hdr[0] = byte(r.Kind)
	binary.BigEndian.PutUint64(hdr[1:9], uint64(r.PTS))
	binary.BigEndian.PutUint32(hdr[9:13], uint32(len(r.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(r.Payload)
	return err
}

// ReadRecord reads the next record into buf, growing it as needed. It
// returns io.EOF only at a clean record boundary.
func ReadRecord(r io.Reader, buf []byte) (Record, []byte, error) {
	var hdr [recordHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, buf, fmt.Errorf("%w: truncated header", ErrMalformed)
		}
		return Record{}, buf, err
	}
	kind := Kind(hdr[0])
	if kind != KindAudio && kind != KindVideo {
		return Record{}, buf, fmt.Errorf("%w: unknown kind %d", ErrMalformed, hdr[0])
	}
	n := binary.BigEndian.Uint32(hdr[9:13])
	if n > MaxRecordPayload {
		return Record{}, buf, fmt.Errorf("%w: payload %d bytes", ErrMalformed, n)
	}
	if cap(buf) < int(n) {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		return Record{}, buf, fmt.Errorf("%w: truncated payload: %v", ErrMalformed, err)
	}
	return Record{
		Kind:    kind,
		PTS:     int64(binary.BigEndian.Uint64(hdr[1:9])),
		Payload: buf,
	}, buf, nil
}

// CaptureSource replays a recorded access-unit capture into a sink.
type CaptureSource struct {
	name     string
	open     func() (io.ReadCloser, error)
	sink     Sink
	realtime bool
	logger   *zap.Logger

	mu        sync.Mutex
	state     string
	lastError string
	cancel    context.CancelFunc

	units     atomic.Int64
	bytesRead atomic.Int64
	lastPTS   atomic.Int64
}

// NewCaptureSource replays whatever open returns. With realtime set, units
// are paced by their PTS relative to the first unit.
func NewCaptureSource(name string, open func() (io.ReadCloser, error), sink Sink,
	realtime bool, logger *zap.Logger) *CaptureSource {

	return &CaptureSource{
		name:     name,
		open:     open,
		sink:     sink,
		realtime: realtime,
		logger:   logger.With(zap.String("capture", name)),
		state:    StateStopped,
	}
}

// Start replays the capture. Blocks until it ends, ctx is cancelled, or
// Stop is called.
func (c *CaptureSource) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning || c.state == StateStarting {
		c.mu.Unlock()
		return fmt.Errorf("ingest already running")
	}
	c.state = StateStarting
	c.lastError = ""
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	rc, err := c.open()
	if err != nil {
		c.setError(fmt.Sprintf("open capture: %v", err))
		return fmt.Errorf("open capture %s: %w", c.name, err)
	}
	defer rc.Close()

	c.setState(StateRunning)
	c.logger.Info("capture replay started", zap.Bool("realtime", c.realtime))

	err = c.replay(ctx, bufio.NewReader(rc))
	if ctx.Err() != nil {
		c.setState(StateStopped)
		c.logger.Info("capture replay stopped", zap.Int64("units", c.units.Load()))
		return nil
	}
	if err != nil {
		c.setError(err.Error())
		c.logger.Warn("capture replay failed", zap.Error(err))
		return fmt.Errorf("capture %s: %w", c.name, err)
	}
	c.setState(StateStopped)
	c.logger.Info("capture replay completed", zap.Int64("units", c.units.Load()))
	return nil
}

func (c *CaptureSource) replay(ctx context.Context, r io.Reader) error {
	var (
		buf     []byte
		rec     Record
		err     error
		started time.Time
		basePTS int64
	)
	for {
		if ctx.Err() != nil {
			return nil
		}
		rec, buf, err = ReadRecord(r, buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if c.realtime {
			if started.IsZero() {
				started, basePTS = time.Now(), rec.PTS
			}
			due := started.Add(time.Duration(rec.PTS-basePTS) * time.Microsecond)
			if wait := time.Until(due); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
			}
		}

		c.sink.RenderUnit(rec.Kind, rec.Payload, rec.PTS)
		c.units.Add(1)
		c.bytesRead.Add(int64(recordHeaderSize + len(rec.Payload)))
		c.lastPTS.Store(rec.PTS)
		metrics.IngestUnitsTotal.WithLabelValues("capture").Inc()
	}
}

// Stop terminates the replay. Idempotent.
func (c *CaptureSource) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of current ingest state.
func (c *CaptureSource) Status() Status {
	c.mu.Lock()
	state, lastErr := c.state, c.lastError
	c.mu.Unlock()
	return Status{
		State:     state,
		Source:    c.name,
		Units:     c.units.Load(),
		BytesRead: c.bytesRead.Load(),
		LastPTS:   c.lastPTS.Load(),
		LastError: lastErr,
	}
}

func (c *CaptureSource) setState(s string) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *CaptureSource) setError(msg string) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = msg
	c.mu.Unlock()
}
