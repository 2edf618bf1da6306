// Package scale implements tuning tables: per-octave note ratios relative
// to a reference pitch, frequency lookup, and quantising cents lookup
// (spec §4.I).
package scale

import "math"

// MinOctave and MaxOctave bound the octave range around the middle octave,
// per spec §4.I ("octave range [-8, 8] around a middle octave").
const (
	MinOctave = -8
	MaxOctave = 8
)

// Note is one tuning-table entry: its ratio relative to the reference
// pitch within its octave.
type Note struct {
	Name  string
	Ratio float64 // relative to the scale's reference pitch, within one octave
}

// Scale is a tuning table: a set of notes per octave plus a reference
// pitch and the octave that reference pitch sits in (the "middle octave").
type Scale struct {
	Notes         []Note
	RefPitch      float64 // Hz, e.g. 440.0 for A4
	RefOctave     int     // the octave index the RefPitch's note lives in
	OctaveRatio   float64 // frequency multiplier per octave, normally 2.0
}

// NewEqualTempered12 builds the standard 12-tone equal-tempered scale with
// A at refPitch Hz (440.0 is the conventional default).
func NewEqualTempered12(refPitch float64) *Scale {
	names := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	notes := make([]Note, 12)
	for i, name := range names {
		// A is index 9; ratio of semitone i relative to A.
		semitonesFromA := i - 9
		notes[i] = Note{Name: name, Ratio: math.Pow(2, float64(semitonesFromA)/12)}
	}
	return &Scale{Notes: notes, RefPitch: refPitch, RefOctave: 0, OctaveRatio: 2.0}
}

// FreqOf looks up the frequency of (noteIndex, octave). octave is relative
// to the scale's middle (reference) octave, e.g. 0 is the reference
// octave, 1 is one octave above.
func (s *Scale) FreqOf(noteIndex, octave int) (float64, bool) {
	if noteIndex < 0 || noteIndex >= len(s.Notes) || octave < MinOctave || octave > MaxOctave {
		return 0, false
	}
	ratio := s.Notes[noteIndex].Ratio * math.Pow(s.OctaveRatio, float64(octave))
	return s.RefPitch * ratio, true
}

// CentsToFreq converts an absolute cents value (1200 cents = 1 octave,
// 0 cents = RefPitch) to a frequency. The result is not quantised;
// QuantiseCents snaps a cents value to the nearest scale note.
func (s *Scale) CentsToFreq(cents float64) float64 {
	return s.RefPitch * math.Pow(2, cents/1200)
}

// FreqToCents converts a frequency to its cents offset from RefPitch. This
// is the exact inverse of CentsToFreq and is used for the scale round-trip
// property in spec §8 (within a documented tolerance, since both
// directions go through math.Pow/math.Log2).
func (s *Scale) FreqToCents(freq float64) float64 {
	return 1200 * math.Log2(freq/s.RefPitch)
}

// QuantiseCents snaps a cents value to the nearest representable scale
// note across the full octave range, returning the quantised cents value.
func (s *Scale) QuantiseCents(cents float64) float64 {
	best := math.Inf(1)
	bestCents := cents
	for octave := MinOctave; octave <= MaxOctave; octave++ {
		for i := range s.Notes {
			freq, ok := s.FreqOf(i, octave)
			if !ok {
				continue
			}
			noteCents := s.FreqToCents(freq)
			if d := math.Abs(noteCents - cents); d < best {
				best = d
				bestCents = noteCents
			}
		}
	}
	return bestCents
}
