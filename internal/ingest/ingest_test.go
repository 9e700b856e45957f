package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type unit struct {
	kind Kind
	data []byte
	pts  int64
}

type collector struct {
	mu    sync.Mutex
	units []unit
}

func (c *collector) RenderUnit(kind Kind, data []byte, pts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = append(c.units, unit{kind, append([]byte(nil), data...), pts})
}

func (c *collector) all() []unit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]unit(nil), c.units...)
}

func capture(t *testing.T, recs ...Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, r := range recs {
		require.NoError(t, WriteRecord(&buf, r))
	}
	return buf.Bytes()
}

func opener(b []byte) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
}

func TestRecordRoundTrip(t *testing.T) {
	data := capture(t,
		Record{Kind: KindAudio, PTS: 10, Payload: []byte{1, 2, 3}},
		Record{Kind: KindVideo, PTS: -1, Payload: nil},
	)
	assert.Equal(t, 2*recordHeaderSize+3, len(data))

	r := bytes.NewReader(data)
	rec, buf, err := ReadRecord(r, nil)
	require.NoError(t, err)
	assert.Equal(t, KindAudio, rec.Kind)
	assert.Equal(t, int64(10), rec.PTS)
	assert.Equal(t, []byte{1, 2, 3}, rec.Payload)

	rec, _, err = ReadRecord(r, buf)
	require.NoError(t, err)
	assert.Equal(t, KindVideo, rec.Kind)
	assert.Equal(t, int64(-1), rec.PTS)
	assert.Empty(t, rec.Payload)

	_, _, err = ReadRecord(r, buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadRecordMalformed(t *testing.T) {
	good := capture(t, Record{Kind: KindAudio, PTS: 1, Payload: []byte{9, 9, 9, 9}})

	cases := map[string][]byte{
		"truncated header":  good[:5],
		"truncated payload": good[:len(good)-1],
		"unknown kind":      append([]byte{7}, good[1:]...),
		"oversized":         {1, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ReadRecord(bytes.NewReader(b), nil)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestCaptureSourceReplays(t *testing.T) {
	data := capture(t,
		Record{Kind: KindVideo, PTS: 0, Payload: []byte{0, 0, 0, 1, 0x65}},
		Record{Kind: KindAudio, PTS: 100, Payload: []byte{1, 2}},
		Record{Kind: KindAudio, PTS: 200, Payload: []byte{3, 4}},
	)
	sink := &collector{}
	src := NewCaptureSource("test.cap", opener(data), sink, false, zap.NewNop())

	require.NoError(t, src.Start(context.Background()))
	got := sink.all()
	require.Len(t, got, 3)
	assert.Equal(t, KindVideo, got[0].kind)
	assert.Equal(t, []byte{1, 2}, got[1].data)
	assert.Equal(t, []byte{3, 4}, got[2].data, "payload buffer reuse does not leak into delivered units")
	assert.Equal(t, int64(200), got[2].pts)

	st := src.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, int64(3), st.Units)
	assert.Equal(t, int64(200), st.LastPTS)
}

func TestCaptureSourceRealtimePacing(t *testing.T) {
	data := capture(t,
		Record{Kind: KindAudio, PTS: 1_000_000, Payload: []byte{1}},
		Record{Kind: KindAudio, PTS: 1_030_000, Payload: []byte{2}},
	)
	src := NewCaptureSource("paced", opener(data), &collector{}, true, zap.NewNop())

	start := time.Now()
	require.NoError(t, src.Start(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestCaptureSourceStop(t *testing.T) {
	data := capture(t,
		Record{Kind: KindAudio, PTS: 0, Payload: []byte{1}},
		Record{Kind: KindAudio, PTS: int64(time.Hour / time.Microsecond), Payload: []byte{2}},
	)
	sink := &collector{}
	src := NewCaptureSource("stop", opener(data), sink, true, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- src.Start(context.Background()) }()
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, time.Millisecond)
	src.Stop()
	src.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, StateStopped, src.Status().State)
}

func TestCaptureSourceErrors(t *testing.T) {
	bad := NewCaptureSource("bad", opener([]byte{1, 0, 0}), &collector{}, false, zap.NewNop())
	err := bad.Start(context.Background())
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, StateError, bad.Status().State)

	missing := NewCaptureSource("missing", func() (io.ReadCloser, error) {
		return nil, errors.New("no such file")
	}, &collector{}, false, zap.NewNop())
	assert.Error(t, missing.Start(context.Background()))
	assert.NotEmpty(t, missing.Status().LastError)
}

func TestFFmpegReadLoopCutsUnits(t *testing.T) {
	sink := &collector{}
	f := NewFFmpegSource("http://example.com/a.mp3", sink, FFmpegOptions{}, zap.NewNop())

	pcm := bytes.Repeat([]byte{0xAB}, 2*pcmUnitBytes+100)
	require.NoError(t, f.readLoop(context.Background(), bytes.NewReader(pcm)))

	got := sink.all()
	require.Len(t, got, 2, "trailing partial unit dropped")
	assert.Len(t, got[0].data, pcmUnitBytes)
	assert.Equal(t, int64(0), got[0].pts)
	assert.Equal(t, int64(7981), got[1].pts)
	assert.Equal(t, int64(len(pcm)), f.Status().BytesRead)
}

func TestFFmpegSourceRejectsURL(t *testing.T) {
	f := NewFFmpegSource("file:///etc/passwd", &collector{}, FFmpegOptions{Binary: "/nonexistent/ffmpeg"}, zap.NewNop())
	err := f.Start(context.Background())
	require.Error(t, err)
	st := f.Status()
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.LastError, "scheme")
}

func TestValidateURL(t *testing.T) {
	orig := lookupIP
	defer func() { lookupIP = orig }()
	lookupIP = func(host string) ([]net.IP, error) {
		switch host {
		case "public.example":
			return []net.IP{net.ParseIP("93.184.216.34")}, nil
		case "internal.example":
			return []net.IP{net.ParseIP("10.1.2.3")}, nil
		}
		return nil, errors.New("no such host")
	}

	assert.NoError(t, ValidateURL("https://public.example/live.m3u8", false))
	assert.NoError(t, ValidateURL("rtsp://public.example/stream", false))
	assert.Error(t, ValidateURL("https://internal.example/x", false))
	assert.NoError(t, ValidateURL("https://internal.example/x", true))
	assert.Error(t, ValidateURL("https://missing.example/x", false))
	assert.Error(t, ValidateURL("file:///tmp/x", true))
	assert.Error(t, ValidateURL("https://user:pw@public.example/", false))
	assert.Error(t, ValidateURL("https:///path", false))
	assert.Error(t, ValidateURL("https://public.example/"+string(bytes.Repeat([]byte("a"), maxURLLength)), false))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "audio", KindAudio.String())
	assert.Equal(t, "video", KindVideo.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
