// Package timestamp implements exact rational musical time: a
// (beats, subbeats) pair at a fixed sub-beat denominator, per spec §3.
package timestamp

// Beats is the fixed sub-beat denominator. All Timestamp arithmetic below
// this package keeps Subbeats in [0, Beats) by carrying into Beats, the
// same way a mixed-number fraction is normalised.
const Beats int64 = 882000

// Timestamp is an exact rational time: Beats full beats plus Subbeats
// sub-beats (0 <= Subbeats < Beats unless explicitly denormalised by a
// caller, which this package never does).
type Timestamp struct {
	Beats    int64
	Subbeats int64
}

// Zero is the origin of musical time.
var Zero = Timestamp{}

// New builds a normalised Timestamp from whole beats and sub-beats.
func New(beats, subbeats int64) Timestamp {
	return normalise(Timestamp{Beats: beats, Subbeats: subbeats})
}

func normalise(t Timestamp) Timestamp {
	if t.Subbeats >= Beats {
		t.Beats += t.Subbeats / Beats
		t.Subbeats %= Beats
	} else if t.Subbeats < 0 {
		borrow := (-t.Subbeats + Beats - 1) / Beats
		t.Beats -= borrow
		t.Subbeats += borrow * Beats
	}
	return t
}

// Add returns a+b, exact up to int64 overflow.
func Add(a, b Timestamp) Timestamp {
	return normalise(Timestamp{Beats: a.Beats + b.Beats, Subbeats: a.Subbeats + b.Subbeats})
}

// Sub returns a-b, exact up to int64 overflow.
func Sub(a, b Timestamp) Timestamp {
	return normalise(Timestamp{Beats: a.Beats - b.Beats, Subbeats: a.Subbeats - b.Subbeats})
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Compare(a, b Timestamp) int {
	switch {
	case a.Beats != b.Beats:
		if a.Beats < b.Beats {
			return -1
		}
		return 1
	case a.Subbeats != b.Subbeats:
		if a.Subbeats < b.Subbeats {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Less reports whether a precedes b.
func Less(a, b Timestamp) bool { return Compare(a, b) < 0 }

// ToFloatBeats converts to a floating-point beat count — used only at the
// tempo/frame boundary, never for exact column comparisons.
func (t Timestamp) ToFloatBeats() float64 {
	return float64(t.Beats) + float64(t.Subbeats)/float64(Beats)
}

// FromFloatBeats builds the nearest Timestamp to a floating-point beat
// count. This is inherently lossy and is only used to seed a Timestamp
// from a frame-domain computation (e.g. an integrated tempo slide).
func FromFloatBeats(beats float64) Timestamp {
	whole := int64(beats)
	frac := beats - float64(whole)
	return New(whole, int64(frac*float64(Beats)+0.5))
}

// ScaleByTempoRatio returns the duration an interval of frames spanning
// this timestamp's worth of beats would take if tempo changed by the
// given ratio (tempoAfter/tempoBefore). It has no caller in this module;
// it is inherently a floating point operation since
// tempo ratios are not exact rationals in general.
func (t Timestamp) ScaleByTempoRatio(ratio float64) Timestamp {
	return FromFloatBeats(t.ToFloatBeats() * ratio)
}
