package playback_test

import (
	"testing"

	"github.com/kunquat-go/synth/composition"
	"github.com/kunquat-go/synth/event"
	"github.com/kunquat-go/synth/playback"
	"github.com/kunquat-go/synth/proc"
	"github.com/kunquat-go/synth/timestamp"
	"github.com/kunquat-go/synth/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComposition(t *testing.T) *composition.Composition {
	t.Helper()
	c := composition.New()
	ins, err := c.AddInstrument("ins_00", "lead")
	require.NoError(t, err)
	ins.Gens.Set(0, proc.NewOscillator(proc.WaveSine))

	pat := &composition.Pattern{
		Length:  timestamp.New(4, 0),
		Columns: make([]composition.Column, 1),
	}
	pat.Columns[0].Insert(timestamp.New(0, 0), event.Event{
		Name: "set_instrument", Kind: event.KindChannel, Arg: event.IntValue(0),
	})
	pat.Columns[0].Insert(timestamp.New(0, 0), event.Event{
		Name: "note_on", Kind: event.KindChannel, Arg: event.NoteValue(9, 0), // A4, 440Hz
	})
	pat.Columns[0].Insert(timestamp.New(1, 0), event.Event{
		Name: "note_off", Kind: event.KindChannel,
	})
	idx := c.AddPattern(pat)

	c.Subsongs = append(c.Subsongs, &composition.SubSong{
		Name:        "main",
		InitalTempo: 120,
		Order:       []composition.OrderEntry{{PatternIndex: idx}},
	})
	return c
}

func TestPlayResetsPositionAndTempo(t *testing.T) {
	c := newTestComposition(t)
	s := playback.NewScheduler(c, 16, 4)
	require.NoError(t, s.Play(0))
	st := s.State()
	assert.True(t, st.Playing)
	assert.Equal(t, 120.0, st.Tempo)
}

func TestAdvanceFiresNoteOnAndAllocatesVoice(t *testing.T) {
	c := newTestComposition(t)
	s := playback.NewScheduler(c, 16, 4)
	require.NoError(t, s.Play(0))

	// one beat at 120bpm = 0.5s; pick frames covering just past time 0 so
	// the note_on/set_instrument events at timestamp 0 are crossed.
	rate := 48000
	framesPerBeat := int(float64(rate) * 60.0 / 120.0)
	require.NoError(t, s.Advance(rate, framesPerBeat/100))

	active := s.Voices.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "ins_00", active[0].Instrument)
}

func TestAdvanceFiresNoteOffAfterOneBeat(t *testing.T) {
	c := newTestComposition(t)
	s := playback.NewScheduler(c, 16, 4)
	require.NoError(t, s.Play(0))

	rate := 48000
	framesPerBeat := int(float64(rate) * 60.0 / 120.0)
	require.NoError(t, s.Advance(rate, framesPerBeat/100))
	require.Len(t, s.Voices.Active(), 1)

	// cross timestamp 1 (the note_off).
	require.NoError(t, s.Advance(rate, framesPerBeat+framesPerBeat/100))

	for _, v := range s.Voices.Active() {
		assert.Equal(t, voice.PhaseReleased, v.Phase)
	}
}

func TestPlayRejectsOutOfRangeSubsong(t *testing.T) {
	c := newTestComposition(t)
	s := playback.NewScheduler(c, 16, 4)
	err := s.Play(5)
	assert.Error(t, err)
}

func TestNoteOnResolvesFrequencyThroughScale(t *testing.T) {
	c := newTestComposition(t)
	s := playback.NewScheduler(c, 16, 4)
	require.NoError(t, s.Play(0))

	rate := 48000
	framesPerBeat := int(float64(rate) * 60.0 / 120.0)
	require.NoError(t, s.Advance(rate, framesPerBeat/100))

	active := s.Voices.Active()
	require.Len(t, active, 1)
	assert.InDelta(t, 440.0, active[0].NoteFreq, 1e-6)
}

func TestSlideTempoRampsLinearlyToTarget(t *testing.T) {
	c := composition.New()
	ins, err := c.AddInstrument("ins_00", "lead")
	require.NoError(t, err)
	ins.Gens.Set(0, proc.NewOscillator(proc.WaveSine))

	pat := &composition.Pattern{Length: timestamp.New(4, 0), Columns: make([]composition.Column, 1)}
	pat.Columns[0].Insert(timestamp.New(0, 0), event.Event{
		Name: "slide_tempo", Kind: event.KindGlobal,
		Arg: event.SlideValue(240, timestamp.New(2, 0)),
	})
	idx := c.AddPattern(pat)
	c.Subsongs = append(c.Subsongs, &composition.SubSong{
		Name: "main", InitalTempo: 120,
		Order: []composition.OrderEntry{{PatternIndex: idx}},
	})

	s := playback.NewScheduler(c, 16, 4)
	require.NoError(t, s.Play(0))

	rate := 48000
	framesPerBeat := int(float64(rate) * 60.0 / 120.0)
	// one beat in: halfway through the two-beat ramp from 120 to 240.
	require.NoError(t, s.Advance(rate, framesPerBeat))
	assert.InDelta(t, 180.0, s.State().Tempo, 5.0)

	// past the ramp's end: tempo settles at the target.
	require.NoError(t, s.Advance(rate, framesPerBeat*2))
	assert.InDelta(t, 240.0, s.State().Tempo, 1e-6)
}

func TestSetPanningAppliesToActiveVoices(t *testing.T) {
	c := composition.New()
	ins, err := c.AddInstrument("ins_00", "lead")
	require.NoError(t, err)
	ins.Gens.Set(0, proc.NewOscillator(proc.WaveSine))

	pat := &composition.Pattern{Length: timestamp.New(4, 0), Columns: make([]composition.Column, 1)}
	pat.Columns[0].Insert(timestamp.New(0, 0), event.Event{
		Name: "set_instrument", Kind: event.KindChannel, Arg: event.IntValue(0),
	})
	pat.Columns[0].Insert(timestamp.New(0, 0), event.Event{
		Name: "set_panning", Kind: event.KindChannel, Arg: event.FloatValue(-0.5),
	})
	pat.Columns[0].Insert(timestamp.New(0, 0), event.Event{
		Name: "note_on", Kind: event.KindChannel, Arg: event.NoteValue(9, 0),
	})
	idx := c.AddPattern(pat)
	c.Subsongs = append(c.Subsongs, &composition.SubSong{
		Name: "main", InitalTempo: 120,
		Order: []composition.OrderEntry{{PatternIndex: idx}},
	})

	s := playback.NewScheduler(c, 16, 4)
	require.NoError(t, s.Play(0))

	rate := 48000
	require.NoError(t, s.Advance(rate, 64))

	active := s.Voices.Active()
	require.Len(t, active, 1)
	assert.InDelta(t, -0.5, active[0].Pan, 1e-6)
}
