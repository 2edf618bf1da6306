package composition_test

import (
	"testing"

	"github.com/kunquat-go/synth/composition"
	"github.com/kunquat-go/synth/event"
	"github.com/kunquat-go/synth/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddInstrumentRejectsDuplicateKey(t *testing.T) {
	c := composition.New()
	_, err := c.AddInstrument("ins_00", "lead")
	require.NoError(t, err)
	_, err = c.AddInstrument("ins_00", "lead again")
	assert.Error(t, err)
}

func TestAddEffectRejectsDuplicateKey(t *testing.T) {
	c := composition.New()
	_, err := c.AddEffect("eff_00", "reverb")
	require.NoError(t, err)
	_, err = c.AddEffect("eff_00", "reverb again")
	assert.Error(t, err)
}

func TestColumnInsertKeepsEventsSortedByTime(t *testing.T) {
	col := &composition.Column{}
	col.Insert(timestamp.New(2, 0), event.Event{Name: "b"})
	col.Insert(timestamp.New(1, 0), event.Event{Name: "a"})
	col.Insert(timestamp.New(3, 0), event.Event{Name: "c"})

	require.Len(t, col.Events, 3)
	assert.Equal(t, "a", col.Events[0].Ev.Name)
	assert.Equal(t, "b", col.Events[1].Ev.Name)
	assert.Equal(t, "c", col.Events[2].Ev.Name)
}

func TestPatternAtResolvesOrderToPattern(t *testing.T) {
	c := composition.New()
	pat := &composition.Pattern{Length: timestamp.New(4, 0)}
	idx := c.AddPattern(pat)

	sub := &composition.SubSong{Order: []composition.OrderEntry{{PatternIndex: idx}}}
	got, err := c.PatternAt(sub, 0)
	require.NoError(t, err)
	assert.Same(t, pat, got)

	_, err = c.PatternAt(sub, 1)
	assert.Error(t, err)
}

func TestGenTableGetMissingIndexReportsAbsent(t *testing.T) {
	g := composition.NewGenTable()
	_, ok := g.Get(0)
	assert.False(t, ok)
}
