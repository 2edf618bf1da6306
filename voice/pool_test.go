package voice_test

import (
	"testing"

	"github.com/kunquat-go/synth/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFillsFreeSlotsBeforeStealing(t *testing.T) {
	p := voice.NewPool(2)
	a := p.Allocate(0, 1, 0, 440)
	b := p.Allocate(0, 2, 0, 220)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, len(p.Active()))
}

func TestAllocateStealsLowestPriorityWhenFull(t *testing.T) {
	p := voice.NewPool(2)
	low := p.Allocate(0, 1, 0, 440)
	high := p.Allocate(0, 2, 5, 440)

	stolen := p.Allocate(0, 3, 1, 440)
	require.Same(t, low, stolen)
	assert.Equal(t, uint64(3), stolen.GroupID)
	assert.NotSame(t, high, stolen)
}

func TestAllocateStealsOldestOnPriorityTie(t *testing.T) {
	p := voice.NewPool(2)
	first := p.Allocate(0, 1, 0, 440)
	_ = p.Allocate(0, 2, 0, 440)

	stolen := p.Allocate(0, 3, 0, 440)
	assert.Same(t, first, stolen)
}

func TestAllocateStealsQuietestOnFullTie(t *testing.T) {
	p := voice.NewPool(2)
	a := p.Allocate(0, 1, 0, 440)
	b := p.Allocate(0, 2, 0, 440)
	// force a tie on priority; break the generation tie by hand so the
	// volume comparison is what actually decides the victim.
	a.Generation = 5
	b.Generation = 5
	a.Volume = 0.9
	b.Volume = 0.1

	stolen := p.Allocate(0, 3, 0, 440)
	assert.Same(t, b, stolen)
}

func TestReleaseThenFreeReturnsVoiceToPool(t *testing.T) {
	p := voice.NewPool(1)
	v := p.Allocate(0, 1, 0, 440)
	p.Release(v)
	assert.Equal(t, voice.PhaseReleased, v.Phase)
	assert.Len(t, p.Active(), 1)

	p.Free(v)
	assert.Len(t, p.Active(), 0)
}

func TestReleaseGroupStopsAllVoicesInGroup(t *testing.T) {
	p := voice.NewPool(3)
	a := p.Allocate(0, 7, 0, 440)
	b := p.Allocate(0, 7, 0, 880)
	c := p.Allocate(0, 8, 0, 110)

	p.ReleaseGroup(7)
	assert.Equal(t, voice.PhaseReleased, a.Phase)
	assert.Equal(t, voice.PhaseReleased, b.Phase)
	assert.Equal(t, voice.PhaseHeld, c.Phase)
}

func TestActiveIsOrderedByAllocationAge(t *testing.T) {
	p := voice.NewPool(3)
	a := p.Allocate(0, 1, 0, 440)
	b := p.Allocate(0, 2, 0, 440)
	c := p.Allocate(0, 3, 0, 440)

	active := p.Active()
	require.Len(t, active, 3)
	assert.Same(t, a, active[0])
	assert.Same(t, b, active[1])
	assert.Same(t, c, active[2])
}

func TestResetFreesEveryVoice(t *testing.T) {
	p := voice.NewPool(2)
	p.Allocate(0, 1, 0, 440)
	p.Allocate(0, 2, 0, 440)
	p.Reset()
	assert.Len(t, p.Active(), 0)
}

func TestMixReapsDeadVoicesAndReportsActiveCount(t *testing.T) {
	p := voice.NewPool(3)
	a := p.Allocate(0, 1, 0, 440)
	b := p.Allocate(0, 2, 0, 440)
	p.Allocate(0, 3, 0, 440)

	a.Dead = true
	p.Release(b)

	active := p.Mix()
	assert.Equal(t, 2, active) // b (released, still audible) + the untouched third voice
	assert.Equal(t, voice.PhaseFree, a.Phase)
	assert.Equal(t, voice.PhaseReleased, b.Phase)
}

func TestMixLeavesHeldVoicesAlone(t *testing.T) {
	p := voice.NewPool(2)
	p.Allocate(0, 1, 0, 440)
	p.Allocate(0, 2, 0, 440)

	assert.Equal(t, 2, p.Mix())
	assert.Len(t, p.Active(), 2)
}

func TestIterateGroupsBucketsByGroupID(t *testing.T) {
	p := voice.NewPool(3)
	a := p.Allocate(0, 7, 0, 440)
	b := p.Allocate(0, 7, 0, 880)
	c := p.Allocate(0, 8, 0, 110)

	groups := p.IterateGroups()
	assert.ElementsMatch(t, []*voice.Voice{a, b}, groups[7])
	assert.ElementsMatch(t, []*voice.Voice{c}, groups[8])
}
