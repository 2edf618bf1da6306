package composition

import (
	"github.com/kunquat-go/synth/event"
	"github.com/kunquat-go/synth/graph"
	"github.com/kunquat-go/synth/proc"
	"github.com/kunquat-go/synth/timestamp"
)

// Demo builds the "listener demo" composition: one sine-lead instrument
// through a reverb send, two patterns (a four-note arpeggio and a held
// drone) chained into a single sub-song. This reimplements the original
// program's hard-coded self-test composition as a fixture builder rather
// than engine code — see spec §9's resolved Open Question.
func Demo() (*Composition, error) {
	c := New()

	lead, err := c.AddInstrument("ins_00", "lead")
	if err != nil {
		return nil, err
	}
	leadGen := proc.NewOscillator(proc.WaveSine)
	lead.Gens.Set(0, leadGen)
	lead.Graph.BindDevice("ins_00/gen_00", graph.LevelGenerator, leadGen)
	if err := lead.Graph.Parse([][2]string{
		{"ins_00/gen_00/out_00", "ins_00/Iin/in_00"},
	}, c.Limits); err != nil {
		return nil, err
	}
	leadSub := graph.NewSubGraphDevice(lead.Graph, "", "ins_00/Iin")
	c.Master.BindDevice("ins_00", graph.LevelInstrument, leadSub)

	hall, err := c.AddEffect("eff_00", "hall reverb")
	if err != nil {
		return nil, err
	}
	reverb := proc.NewReverbDSP(0.3)
	hall.DSPs.Set(0, reverb)
	hall.Graph.BindDevice("eff_00/dsp_00", graph.LevelDSP, reverb)
	hall.Graph.SetRoot("eff_00/dsp_00")
	effSub := graph.NewSubGraphDevice(hall.Graph, "eff_00/dsp_00", "eff_00/dsp_00")
	c.Master.BindDevice("eff_00", graph.LevelEffect, effSub)

	if err := c.Master.Parse([][2]string{
		{"ins_00/out_00", "eff_00/in_00"},
		{"eff_00/out_00", "in_00"},
	}, c.Limits); err != nil {
		return nil, err
	}

	arpeggio := &Pattern{Length: timestamp.New(4, 0), Columns: make([]Column, 1)}
	// An A-major triad arpeggio (A4, C#5, E5, A5) resolved through the
	// composition's scale rather than hard-coded frequencies.
	notes := [][2]int{{9, 0}, {1, 1}, {4, 1}, {9, 1}}
	arpeggio.Columns[0].Insert(timestamp.New(0, 0), event.Event{
		Name: "set_instrument", Kind: event.KindChannel, Arg: event.IntValue(0),
	})
	for i, note := range notes {
		t := timestamp.New(int64(i), 0)
		arpeggio.Columns[0].Insert(t, event.Event{
			Name: "note_on", Kind: event.KindChannel, Arg: event.NoteValue(note[0], note[1]),
		})
		arpeggio.Columns[0].Insert(timestamp.Add(t, timestamp.New(0, timestamp.Beats*3/4)), event.Event{
			Name: "note_off", Kind: event.KindChannel,
		})
	}
	arpeggioIdx := c.AddPattern(arpeggio)

	drone := &Pattern{Length: timestamp.New(8, 0), Columns: make([]Column, 1)}
	drone.Columns[0].Insert(timestamp.New(0, 0), event.Event{
		Name: "note_on", Kind: event.KindChannel, Arg: event.NoteValue(9, -1), // A3
	})
	drone.Columns[0].Insert(timestamp.New(4, 0), event.Event{
		Name: "slide_tempo", Kind: event.KindGlobal, Arg: event.SlideValue(100, timestamp.New(1, timestamp.Beats/2)),
	})
	drone.Columns[0].Insert(timestamp.New(7, timestamp.Beats/2), event.Event{
		Name: "note_off", Kind: event.KindChannel,
	})
	droneIdx := c.AddPattern(drone)

	c.Subsongs = append(c.Subsongs, &SubSong{
		Name:        "listener demo",
		InitalTempo: 120,
		Order: []OrderEntry{
			{PatternIndex: arpeggioIdx},
			{PatternIndex: droneIdx},
		},
	})

	return c, nil
}
