package composition

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kunquat-go/synth/device"
	"github.com/kunquat-go/synth/errs"
	"github.com/kunquat-go/synth/event"
	"github.com/kunquat-go/synth/graph"
	"github.com/kunquat-go/synth/kernel"
	"github.com/kunquat-go/synth/proc"
	"github.com/kunquat-go/synth/timestamp"
)

// Fixture is the on-disk composition format cmd/kunquatplay loads: a
// thin, YAML-tagged description of instruments/effects/patterns that
// ParseFixture decodes and Fixture.Build turns into a live Composition
// with wired device graphs.
// This is the "composition content keys" surface of spec §6, expressed
// as a single YAML document instead of a directory-tree blob store (the
// blob-store loader itself stays an external collaborator per spec's
// Non-goals).
type Fixture struct {
	Name              string              `yaml:"name"`
	Instruments       []FixtureInstrument `yaml:"instruments"`
	Effects           []FixtureEffect     `yaml:"effects"`
	MasterConnections [][2]string         `yaml:"master_connections"`
	Subsongs          []FixtureSubSong    `yaml:"subsongs"`
	Patterns          []FixturePattern    `yaml:"patterns"`
}

// FixtureInstrument describes one "ins_XX" node: its generators and its
// internal connection list.
type FixtureInstrument struct {
	Key         string              `yaml:"key"`
	Name        string              `yaml:"name"`
	Generators  []FixtureProcessor  `yaml:"generators"`
	Connections [][2]string         `yaml:"connections"`
}

// FixtureEffect describes one "eff_XX" node: its DSPs, the internal
// connection list chaining them, and which DSP index receives the
// effect's external input and which produces its final output (both
// default to 0, the common single-DSP case).
type FixtureEffect struct {
	Key         string             `yaml:"key"`
	Name        string             `yaml:"name"`
	DSPs        []FixtureProcessor `yaml:"dsps"`
	Connections [][2]string        `yaml:"connections"`
	InputDSP    int                `yaml:"input_dsp"`
	OutputDSP   int                `yaml:"output_dsp"`
}

// FixtureProcessor names one generator or DSP kind plus its index within
// its parent's table and a handful of kind-specific parameters.
type FixtureProcessor struct {
	Index  int     `yaml:"index"`
	Kind   string  `yaml:"kind"` // "sine","square","triangle","noise","debug","debug_pulse","padsynth","filter_lowpass","filter_highpass","filter_bandpass","reverb","overdrive","chorus","gain","pan"
	Cutoff float64 `yaml:"cutoff,omitempty"`
	Q      float64 `yaml:"q,omitempty"`
	Order  int     `yaml:"order,omitempty"`
	Mix    float64 `yaml:"mix,omitempty"`
	Drive  float64 `yaml:"drive,omitempty"`

	// PulseDivisor configures a "debug" generator's normal-mode pulse
	// period (frames between 1.0 pulses); ignored by "debug_pulse"
	// (single-pulse mode always fires once).
	PulseDivisor int `yaml:"pulse_divisor,omitempty"`
	// Partials configures a "padsynth" generator's per-harmonic
	// amplitudes, fundamental first.
	Partials []float64 `yaml:"partials,omitempty"`

	// Gain/Threshold/Ratio/AttackMS/ReleaseMS/MakeupGain configure a
	// "gain" DSP (linear gain stage plus feed-forward peak compressor).
	Gain       float64 `yaml:"gain,omitempty"`
	Threshold  float64 `yaml:"threshold,omitempty"`
	Ratio      float64 `yaml:"ratio,omitempty"`
	AttackMS   float64 `yaml:"attack_ms,omitempty"`
	ReleaseMS  float64 `yaml:"release_ms,omitempty"`
	MakeupGain float64 `yaml:"makeup_gain,omitempty"`
	// Pan configures a "pan" DSP's equal-power position, -1 (left) to 1
	// (right).
	Pan float64 `yaml:"pan,omitempty"`
}

// FixtureSubSong and FixturePattern/FixtureEvent mirror SubSong/Pattern/
// ColumnEvent in a YAML-friendly shape (composition's own Pattern uses
// timestamp.Timestamp and event.Event directly, which do not carry yaml
// tags suited to a hand-written fixture file).
type FixtureSubSong struct {
	Name          string `yaml:"name"`
	InitialTempo  float64 `yaml:"initial_tempo"`
	Order         []int  `yaml:"order"`
}

type FixturePattern struct {
	LengthBeats float64           `yaml:"length_beats"`
	Columns     [][]FixtureEvent `yaml:"columns"`
}

type FixtureEvent struct {
	TimeBeats float64 `yaml:"time_beats"`
	Name      string  `yaml:"name"`
	Kind      int     `yaml:"kind"`
	Float     float64 `yaml:"float,omitempty"`
	Int       int64   `yaml:"int,omitempty"`
	Str       string  `yaml:"str,omitempty"`

	// NoteIndex/Octave feed a "note_on" event's scale lookup.
	NoteIndex int `yaml:"note_index,omitempty"`
	Octave    int `yaml:"octave,omitempty"`
	// DurationBeats feeds a slide event's ramp length (slide_tempo,
	// slide_force, slide_filter, slide_panning).
	DurationBeats float64 `yaml:"duration_beats,omitempty"`
	// SpeedHz feeds a set_vibrato/set_tremolo event's LFO rate; Float
	// carries the depth for these two events.
	SpeedHz float64 `yaml:"speed_hz,omitempty"`
}

// ParseFixture unmarshals a YAML document into a Fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errs.New(errs.Format, "decoding fixture: %v", err)
	}
	return &f, nil
}

// Build turns a Fixture into a live Composition: every instrument/effect
// graph is parsed and its generator/DSP table populated, and every
// pattern's events are inserted in timestamp order.
func (f *Fixture) Build() (*Composition, error) {
	c := New()
	c.Name = f.Name

	for _, fi := range f.Instruments {
		ins, err := c.AddInstrument(fi.Key, fi.Name)
		if err != nil {
			return nil, err
		}
		for _, fg := range fi.Generators {
			dev, err := buildProcessor(fg)
			if err != nil {
				return nil, err
			}
			ins.Gens.Set(fg.Index, dev)
			ins.Graph.BindDevice(fmt.Sprintf("%s/gen_%02x", fi.Key, fg.Index), graph.LevelGenerator, dev)
		}
		if err := ins.Graph.Parse(fi.Connections, c.Limits); err != nil {
			return nil, err
		}
		sub := graph.NewSubGraphDevice(ins.Graph, "", fi.Key+"/Iin")
		c.Master.BindDevice(fi.Key, graph.LevelInstrument, sub)
	}

	for _, fe := range f.Effects {
		eff, err := c.AddEffect(fe.Key, fe.Name)
		if err != nil {
			return nil, err
		}
		for _, fd := range fe.DSPs {
			dev, err := buildProcessor(fd)
			if err != nil {
				return nil, err
			}
			eff.DSPs.Set(fd.Index, dev)
			eff.Graph.BindDevice(fmt.Sprintf("%s/dsp_%02x", fe.Key, fd.Index), graph.LevelDSP, dev)
		}
		if err := eff.Graph.Parse(fe.Connections, c.Limits); err != nil {
			return nil, err
		}
		inputKey := fmt.Sprintf("%s/dsp_%02x", fe.Key, fe.InputDSP)
		outputKey := fmt.Sprintf("%s/dsp_%02x", fe.Key, fe.OutputDSP)
		eff.Graph.SetRoot(outputKey)
		sub := graph.NewSubGraphDevice(eff.Graph, inputKey, outputKey)
		c.Master.BindDevice(fe.Key, graph.LevelEffect, sub)
	}

	if err := c.Master.Parse(f.MasterConnections, c.Limits); err != nil {
		return nil, err
	}

	for _, fp := range f.Patterns {
		pat := &Pattern{Length: timestamp.FromFloatBeats(fp.LengthBeats)}
		pat.Columns = make([]Column, len(fp.Columns))
		for ci, col := range fp.Columns {
			for _, fev := range col {
				ev := event.Event{
					Name:    fev.Name,
					Kind:    event.Kind(fev.Kind),
					Channel: ci,
					Arg:     fixtureArg(fev),
				}
				pat.Columns[ci].Insert(timestamp.FromFloatBeats(fev.TimeBeats), ev)
			}
		}
		c.AddPattern(pat)
	}

	for _, fs := range f.Subsongs {
		sub := &SubSong{Name: fs.Name, InitalTempo: fs.InitialTempo}
		for _, pi := range fs.Order {
			sub.Order = append(sub.Order, OrderEntry{PatternIndex: pi})
		}
		c.Subsongs = append(c.Subsongs, sub)
	}

	return c, nil
}

func fixtureArg(fev FixtureEvent) event.Value {
	switch fev.Name {
	case "note_on":
		return event.NoteValue(fev.NoteIndex, fev.Octave)
	case "slide_tempo", "slide_force", "slide_filter", "slide_panning":
		return event.SlideValue(fev.Float, timestamp.FromFloatBeats(fev.DurationBeats))
	case "set_vibrato", "set_tremolo":
		return event.LFOValue(fev.SpeedHz, fev.Float)
	case "set_volume", "slide_volume", "slide_pitch", "set_tempo", "set_panning":
		return event.FloatValue(fev.Float)
	case "arpeggio":
		return event.StringValue(fev.Str)
	case "set_instrument", "set_jump_row", "set_jump_section", "set_jump_subsong", "set_jump_counter":
		return event.IntValue(fev.Int)
	default:
		return event.Value{}
	}
}

func buildProcessor(fp FixtureProcessor) (device.Device, error) {
	switch fp.Kind {
	case "sine":
		return proc.NewOscillator(proc.WaveSine), nil
	case "square":
		return proc.NewOscillator(proc.WaveSquare), nil
	case "triangle":
		return proc.NewOscillator(proc.WaveTriangle), nil
	case "noise":
		return proc.NewOscillator(proc.WaveNoise), nil
	case "debug":
		d := proc.NewDebugGenerator(false)
		if fp.PulseDivisor > 0 {
			d.PulseDivisor = fp.PulseDivisor
		}
		return d, nil
	case "debug_pulse":
		return proc.NewDebugGenerator(true), nil
	case "padsynth":
		partials := fp.Partials
		if len(partials) == 0 {
			partials = []float64{1}
		}
		return proc.NewPADsynthGenerator(partials), nil
	case "filter_lowpass":
		return proc.NewFilterDSP(kernel.LowPass, fp.Order, fp.Cutoff, fp.Q), nil
	case "filter_highpass":
		return proc.NewFilterDSP(kernel.HighPass, fp.Order, fp.Cutoff, fp.Q), nil
	case "filter_bandpass":
		return proc.NewFilterDSP(kernel.BandPass, fp.Order, fp.Cutoff, fp.Q), nil
	case "reverb":
		return proc.NewReverbDSP(fp.Mix), nil
	case "overdrive":
		return proc.NewOverdriveDSP(fp.Drive), nil
	case "chorus":
		return proc.NewChorusDSP(2, fp.Cutoff, fp.Mix*10, fp.Mix), nil
	case "gain":
		return proc.NewGainDSP(fp.Gain, fp.Threshold, fp.Ratio, fp.AttackMS, fp.ReleaseMS, fp.MakeupGain), nil
	case "pan":
		return proc.NewPanDSP(fp.Pan), nil
	default:
		return nil, errs.New(errs.Format, "unknown processor kind %q", fp.Kind)
	}
}
