// Package voice implements the voice pool (spec §4.D): fixed-capacity
// pre-allocation of per-note render state, lowest-priority/oldest-and-
// quietest stealing when the pool is exhausted, and group IDs tying
// together the several generator voices a single note event can spawn.
//
// A Voice carries an opaque per-processor State, the same discriminated-
// union replacement pattern used by device.State: concrete processors
// type-assert it back to their own struct instead of Kunquat's original
// tagged void* union.
package voice

// Phase is where a voice sits in its envelope lifecycle.
type Phase int

const (
	// PhaseHeld is sounding under a still-pressed note.
	PhaseHeld Phase = iota
	// PhaseReleased has received note-off and is running its release
	// tail; it remains in the pool until it reports inaudible.
	PhaseReleased
	// PhaseFree is not in use and available for allocation.
	PhaseFree
)

// State is a processor's opaque per-voice render state (oscillator phase,
// envelope position, filter history, ...), created by the generator that
// renders the voice, which type-asserts it back to its own struct.
type State any

// Voice is one active note-instance of one generator. A single note event
// commonly spawns several Voices sharing a GroupID, one per generator
// wired into the triggering instrument.
type Voice struct {
	ID         uint64
	Channel    int
	GroupID    uint64
	Generation uint64 // allocation order, for oldest-and-quietest tie-breaks

	// Instrument names the "ins_XX" key this voice was allocated for, so
	// a scheduler can filter Pool.Active() down to the voices one
	// particular instrument's generators should bind and render.
	Instrument string

	Phase    Phase
	Priority int // higher survives stealing; ties fall back to loudness/age

	NoteFreq float64
	Volume   float64 // current amplitude estimate, used as a stealing tie-break
	Pan      float64 // -1 (left) .. 1 (right), 0 is centre

	// FilterCutoffHz, when non-zero, overrides the per-voice one-pole
	// smoothing a generator applies on top of whatever DSP chain follows
	// it, driven by a channel's filter slider.
	FilterCutoffHz float64

	// Dead is set by the processor rendering this voice once its release
	// tail (envelope, sample, or pulse countdown) has finished; the next
	// Pool.Mix call reaps it back to PhaseFree.
	Dead bool

	State State
}

// audible reports whether a voice is still worth rendering: held voices
// and released voices are, until Pool.Free returns them to PhaseFree
// (the processor rendering a voice sets Dead when its release tail has
// finished, and Pool.Mix then frees it).
func (v *Voice) audible() bool {
	return v.Phase == PhaseHeld || v.Phase == PhaseReleased
}
