package kunquat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kunquat "github.com/kunquat-go/synth"
	"github.com/kunquat-go/synth/composition"
	"github.com/kunquat-go/synth/graph"
)

// TestEmptyCompositionRendersSilence covers spec scenario 1: an engine
// with no instruments, effects, or playing sub-song renders exact
// silence and reports not playing.
func TestEmptyCompositionRendersSilence(t *testing.T) {
	comp := composition.New()
	cfg := kunquat.Config{AudioRate: 48000, BufferSize: 512, VoicePoolCap: 16, EventQueueCap: 16}
	e := kunquat.New(cfg)
	require.NoError(t, e.Load(comp))

	buf, err := e.Render()
	require.NoError(t, err)
	assert.False(t, e.Playing())
	for i := 0; i < buf.Len(); i++ {
		assert.Equal(t, float32(0), buf.L[i])
		assert.Equal(t, float32(0), buf.R[i])
	}
}

// TestGraphCycleReportsFormatError covers spec scenario 4: two
// instruments wired into each other must be rejected with a Format
// error naming the cycle.
func TestGraphCycleReportsFormatError(t *testing.T) {
	g := graph.NewGraph("")
	err := g.Parse([][2]string{
		{"ins_01/out_00", "ins_02/in_00"},
		{"ins_02/out_00", "ins_01/in_00"},
	}, graph.DefaultLimits)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

// TestRenderIsResumeEquivalent covers the resume-equivalence property:
// rendering N frames in one call must match rendering the same N frames
// split across two half-sized calls, sample for sample, when nothing
// else changes in between.
func TestRenderIsResumeEquivalent(t *testing.T) {
	const frames = 64
	const half = frames / 2

	buildEngine := func(t *testing.T, bufferSize int) *kunquat.Engine {
		t.Helper()
		comp, err := composition.Demo()
		require.NoError(t, err)
		cfg := kunquat.Config{AudioRate: 48000, BufferSize: bufferSize, VoicePoolCap: 16, EventQueueCap: 16}
		e := kunquat.New(cfg)
		require.NoError(t, e.Load(comp))
		require.NoError(t, e.Play(0))
		return e
	}

	whole := buildEngine(t, frames)
	wholeBuf, err := whole.Render()
	require.NoError(t, err)
	wantL := append([]float32{}, wholeBuf.L...)
	wantR := append([]float32{}, wholeBuf.R...)

	split := buildEngine(t, half)
	firstBuf, err := split.Render()
	require.NoError(t, err)
	gotL := append([]float32{}, firstBuf.L...)
	gotR := append([]float32{}, firstBuf.R...)
	secondBuf, err := split.Render()
	require.NoError(t, err)
	gotL = append(gotL, secondBuf.L...)
	gotR = append(gotR, secondBuf.R...)

	assert.InDeltaSlice(t, wantL, gotL, 1e-6)
	assert.InDeltaSlice(t, wantR, gotR, 1e-6)
}
