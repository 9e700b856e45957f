package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/mirror-renderer/internal/codec"
	"github.com/RenatoCabral2022/mirror-renderer/internal/ingest"
	"github.com/RenatoCabral2022/mirror-renderer/internal/renderer"
)

type fakeRenderer struct {
	kind      string
	started   int
	destroyed int
	units     []int64
	clock     renderer.Clock
	reconfig  []codec.ID
}

func (f *fakeRenderer) Start() { f.started++ }
func (f *fakeRenderer) RenderBuffer(c renderer.Clock, _ []byte, pts int64) {
	f.clock = c
	f.units = append(f.units, pts)
}
func (f *fakeRenderer) SetVolume(float32) {}
func (f *fakeRenderer) Flush()            {}
func (f *fakeRenderer) Reconfigure(d codec.Descriptor) error {
	f.reconfig = append(f.reconfig, d.Codec)
	return nil
}
func (f *fakeRenderer) Destroy()              { f.destroyed++ }
func (f *fakeRenderer) State() renderer.State { return renderer.StateReady }
func (f *fakeRenderer) Status() renderer.Status {
	return renderer.Status{Kind: f.kind, State: renderer.StateReady}
}

func TestSessionRoutesUnits(t *testing.T) {
	a := &fakeRenderer{kind: "audio"}
	v := &fakeRenderer{kind: "video"}
	s := New(a, v, zap.NewNop())
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, a.started)
	assert.Equal(t, 1, v.started)

	s.RenderUnit(ingest.KindAudio, []byte{1}, 10)
	s.RenderUnit(ingest.KindVideo, []byte{2}, 20)
	s.RenderUnit(ingest.KindAudio, []byte{3}, 30)
	s.RenderUnit(ingest.Kind(9), []byte{4}, 40)

	assert.Equal(t, []int64{10, 30}, a.units)
	assert.Equal(t, []int64{20}, v.units)
	require.NotNil(t, a.clock)
	assert.GreaterOrEqual(t, a.clock.Now(), int64(0))

	statuses := s.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "audio", statuses[0].Kind)

	s.Close()
	s.Close()
	assert.Equal(t, 1, a.destroyed)
	assert.Equal(t, 1, v.destroyed)
}

func TestSessionAudioOnly(t *testing.T) {
	a := &fakeRenderer{kind: "audio"}
	s := New(a, nil, zap.NewNop())
	s.RenderUnit(ingest.KindVideo, []byte{1}, 0)
	assert.Len(t, s.Renderers(), 1)

	d, err := codec.DefaultDescriptor(codec.AACELD)
	require.NoError(t, err)
	require.NoError(t, s.Reconfigure(ingest.KindAudio, d))
	assert.Equal(t, []codec.ID{codec.AACELD}, a.reconfig)

	err = s.Reconfigure(ingest.KindVideo, d)
	assert.True(t, errors.Is(err, ErrNoRenderer))
	s.Close()
}
