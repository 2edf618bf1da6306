// Package event implements the event system (spec §4.G): a typed
// registry of event names, a per-channel cache of last-seen values (for
// relative ("+"/"-") events and query events alike), a ring-buffer queue
// columns are scanned into and the scheduler drains, and the conditional
// skip state the "#" predicate events gate on.
package event

import (
	"github.com/kunquat-go/synth/errs"
	"github.com/kunquat-go/synth/timestamp"
)

// Kind classifies which part of the composition an event targets,
// mirroring spec §6's event-name namespaces.
type Kind int

const (
	KindGeneral Kind = iota
	KindChannel
	KindIns
	KindEffect
	KindDSP
	KindGenerator
	KindGlobal
	KindControl
	KindQuery
	KindAuto
)

// ArgType names the shape of an event's argument, used by the registry to
// validate events before they are queued.
type ArgType int

const (
	ArgNone ArgType = iota
	ArgInt
	ArgFloat
	ArgBool
	ArgString
	ArgTimestamp
	// ArgNote packs a (note index, octave) pair: I holds the note index
	// into the active scale.Scale, F holds the octave (signed, relative
	// to the scale's middle octave).
	ArgNote
)

// Value is a tagged-union event argument. Type names the argument's
// declared kind; most values use only the matching field, but SlideValue
// and LFOValue fill two fields at once. This replaces Kunquat's original void*-plus-type-tag
// argument passing the same way voice.State replaces it for render state.
type Value struct {
	Type ArgType
	I    int64
	F    float64
	B    bool
	S    string
	T    timestamp.Timestamp
}

// IntValue, FloatValue, BoolValue, StringValue, TimestampValue build a
// Value of the matching ArgType.
func IntValue(v int64) Value                    { return Value{Type: ArgInt, I: v} }
func FloatValue(v float64) Value                { return Value{Type: ArgFloat, F: v} }
func BoolValue(v bool) Value                    { return Value{Type: ArgBool, B: v} }
func StringValue(v string) Value                { return Value{Type: ArgString, S: v} }
func TimestampValue(v timestamp.Timestamp) Value { return Value{Type: ArgTimestamp, T: v} }

// NoteValue builds a note_on argument: a (note index, octave) pair to be
// resolved through the active scale.Scale rather than a raw frequency.
func NoteValue(noteIndex, octave int) Value {
	return Value{Type: ArgNote, I: int64(noteIndex), F: float64(octave)}
}

// SlideValue builds a linear-ramp argument (slide_tempo, slide_force,
// slide_filter, ...): F is the target value, T packs the ramp's duration
// in musical beats. The declared ArgType stays ArgFloat since T rides
// alongside F in the same Value rather than needing its own arg kind.
func SlideValue(target float64, duration timestamp.Timestamp) Value {
	return Value{Type: ArgFloat, F: target, T: duration}
}

// LFOValue builds a vibrato/tremolo argument: F is the depth and I packs
// the speed in milli-hertz (speedHz*1000, rounded), since Value has no
// dedicated two-float shape.
func LFOValue(speedHz, depth float64) Value {
	return Value{Type: ArgFloat, F: depth, I: int64(speedHz*1000 + 0.5)}
}

// Event is one scheduled occurrence: a registered name, the channel it
// was fired on, and its argument.
type Event struct {
	Name    string
	Kind    Kind
	Channel int
	Arg     Value
}

// Spec describes one registered event name's expected kind and argument
// shape, used to validate events at queue time rather than at render
// time (spec §7: argument errors are caught before they can reach the
// allocation-free render path).
type Spec struct {
	Name string
	Kind Kind
	Arg  ArgType
}

// Registry is the set of event names an engine recognises.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: map[string]Spec{}}
}

// Register adds one event spec. Registering the same name twice is a
// Format error: event names are unique across all kinds.
func (r *Registry) Register(spec Spec) error {
	if _, exists := r.specs[spec.Name]; exists {
		return errs.New(errs.Format, "event %q already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// Lookup returns the spec for name, or false if it is not registered.
func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Validate checks that ev.Name is registered, its kind matches, and its
// argument's type matches; returns a Format error naming the mismatch.
func (r *Registry) Validate(ev Event) error {
	spec, ok := r.specs[ev.Name]
	if !ok {
		return errs.New(errs.Format, "unrecognised event %q", ev.Name)
	}
	if spec.Kind != ev.Kind {
		return errs.New(errs.Format, "event %q: expected kind %d, got %d", ev.Name, spec.Kind, ev.Kind)
	}
	if spec.Arg != ev.Arg.Type {
		return errs.New(errs.Format, "event %q: expected arg type %d, got %d", ev.Name, spec.Arg, ev.Arg.Type)
	}
	return nil
}

// DefaultRegistry returns a registry pre-populated with the event names
// spec §6 lists (note on/off, volume, pitch slide, jump family, tempo,
// set/query, and so on). Engines may Register additional names.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	must := func(s Spec) {
		if err := r.Register(s); err != nil {
			panic(err) // programmer error: duplicate built-in name
		}
	}
	must(Spec{Name: "note_on", Kind: KindChannel, Arg: ArgNote})
	must(Spec{Name: "note_off", Kind: KindChannel, Arg: ArgNone})
	must(Spec{Name: "set_volume", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "slide_volume", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "slide_pitch", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "set_instrument", Kind: KindChannel, Arg: ArgInt})
	must(Spec{Name: "set_tempo", Kind: KindGlobal, Arg: ArgFloat})
	must(Spec{Name: "slide_tempo", Kind: KindGlobal, Arg: ArgFloat})
	must(Spec{Name: "slide_force", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "slide_filter", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "set_panning", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "slide_panning", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "set_vibrato", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "set_tremolo", Kind: KindChannel, Arg: ArgFloat})
	must(Spec{Name: "arpeggio", Kind: KindChannel, Arg: ArgString})
	must(Spec{Name: "set_jump_row", Kind: KindGlobal, Arg: ArgInt})
	must(Spec{Name: "set_jump_section", Kind: KindGlobal, Arg: ArgInt})
	must(Spec{Name: "set_jump_subsong", Kind: KindGlobal, Arg: ArgInt})
	must(Spec{Name: "set_jump_counter", Kind: KindGlobal, Arg: ArgInt})
	must(Spec{Name: "jump", Kind: KindGlobal, Arg: ArgNone})
	must(Spec{Name: "pause", Kind: KindControl, Arg: ArgBool})
	must(Spec{Name: "query_volume", Kind: KindQuery, Arg: ArgNone})
	must(Spec{Name: "cond", Kind: KindGeneral, Arg: ArgBool})
	return r
}
