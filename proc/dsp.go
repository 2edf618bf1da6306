package proc

import (
	"math"

	"github.com/kunquat-go/synth/device"
	"github.com/kunquat-go/synth/kernel"
)

// FilterDSP wraps a kernel.Butterworth cascade as a stereo in-place
// effect, grounded on a per-sample state-variable filter block but
// generalised from a fixed 2-pole SVF to the configurable-order
// Butterworth design in package kernel.
type FilterDSP struct {
	device.Base

	Kind   kernel.FilterKind
	Order  int
	Cutoff float64
	Q      float64
}

type filterState struct {
	rate int
	l, r kernel.Butterworth
}

// NewFilterDSP registers one stereo input/output port pair.
func NewFilterDSP(kind kernel.FilterKind, order int, cutoff, q float64) *FilterDSP {
	f := &FilterDSP{Kind: kind, Order: order, Cutoff: cutoff, Q: q}
	f.RegisterInputs(0)
	f.RegisterOutputs(0)
	return f
}

func (f *FilterDSP) CreateState(audioRate, bufferSize int) device.State {
	s := &filterState{rate: audioRate}
	s.l.Kind, s.l.Order = f.Kind, f.Order
	s.r.Kind, s.r.Order = f.Kind, f.Order
	s.l.Design(float64(audioRate), f.Cutoff, f.Q)
	s.r.Design(float64(audioRate), f.Cutoff, f.Q)
	return s
}

func (f *FilterDSP) SetAudioRate(s device.State, rate int) {
	st := s.(*filterState)
	st.rate = rate
	st.l.Design(float64(rate), f.Cutoff, f.Q)
	st.r.Design(float64(rate), f.Cutoff, f.Q)
}

func (f *FilterDSP) SetBufferSize(s device.State, size int) {}
func (f *FilterDSP) SetTempo(s device.State, tempo float64)  {}

func (f *FilterDSP) Reset(s device.State) {
	st := s.(*filterState)
	st.l.Reset()
	st.r.Reset()
}

func (f *FilterDSP) UpdateKey(s device.State, key string) bool {
	st := s.(*filterState)
	switch key {
	case "cutoff", "q", "kind", "order":
		st.l.Design(float64(st.rate), f.Cutoff, f.Q)
		st.r.Design(float64(st.rate), f.Cutoff, f.Q)
		return true
	default:
		return false
	}
}

func (f *FilterDSP) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	st := s.(*filterState)
	in, hasIn := buffers.Inputs[0]
	out, hasOut := buffers.Outputs[0]
	if !hasOut {
		return
	}
	for i := start; i < stop; i++ {
		var l, r float64
		if hasIn {
			l = float64(in.L[i])
			r = float64(in.R[i])
		}
		out.L[i] += float32(st.l.Process(l))
		out.R[i] += float32(st.r.Process(r))
	}
}

// ReverbDSP is a Schroeder/freeverb-style reverberator: eight parallel
// comb filters into four series allpass filters, grounded on a mono
// comb/allpass reverb (fixed delay-line lengths scaled to the audio rate)
// doubled into an independent left/right pair.
type ReverbDSP struct {
	device.Base

	Mix float64 // 0 (dry) .. 1 (wet)
}

var combDelays = [8]int{1557, 1617, 1491, 1422, 1277, 1356, 1188, 1116}
var combDecay = [8]float64{0.84, 0.82, 0.80, 0.78, 0.76, 0.74, 0.72, 0.70}
var allpassDelays = [4]int{556, 441, 341, 225}

const allpassCoef = 0.5
const reverbAttenuation = 0.25

type reverbChannel struct {
	comb     [8]*ringBuf
	allpass  [4]*ringBuf
	preDelay *ringBuf
}

type reverbState struct {
	l, r reverbChannel
}

type ringBuf struct {
	buf []float64
	pos int
}

func newRingBuf(n int) *ringBuf { return &ringBuf{buf: make([]float64, n)} }

func (r *ringBuf) step(in float64) float64 {
	out := r.buf[r.pos]
	r.buf[r.pos] = in
	r.pos = (r.pos + 1) % len(r.buf)
	return out
}

func newReverbChannel(rate int) reverbChannel {
	scale := float64(rate) / 44100.0
	var c reverbChannel
	for i, d := range combDelays {
		c.comb[i] = newRingBuf(maxInt(1, int(float64(d)*scale)))
	}
	for i, d := range allpassDelays {
		c.allpass[i] = newRingBuf(maxInt(1, int(float64(d)*scale)))
	}
	c.preDelay = newRingBuf(maxInt(1, int(0.008*float64(rate)))) // 8ms pre-delay
	return c
}

func (c *reverbChannel) process(input float64) float64 {
	delayed := c.preDelay.step(input)

	var out float64
	for i, comb := range c.comb {
		cDelay := comb.buf[comb.pos]
		comb.buf[comb.pos] = delayed + cDelay*combDecay[i]
		out += cDelay
		comb.pos = (comb.pos + 1) % len(comb.buf)
	}

	for _, ap := range c.allpass {
		pos := ap.pos
		aDelay := ap.buf[pos]
		ap.buf[pos] = out + aDelay*allpassCoef
		out = aDelay - out
		ap.pos = (pos + 1) % len(ap.buf)
	}

	return out * reverbAttenuation
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NewReverbDSP registers one stereo input/output port pair.
func NewReverbDSP(mix float64) *ReverbDSP {
	d := &ReverbDSP{Mix: mix}
	d.RegisterInputs(0)
	d.RegisterOutputs(0)
	return d
}

func (d *ReverbDSP) CreateState(audioRate, bufferSize int) device.State {
	return &reverbState{l: newReverbChannel(audioRate), r: newReverbChannel(audioRate)}
}

func (d *ReverbDSP) SetAudioRate(s device.State, rate int) {
	st := s.(*reverbState)
	st.l = newReverbChannel(rate)
	st.r = newReverbChannel(rate)
}

func (d *ReverbDSP) SetBufferSize(s device.State, size int) {}
func (d *ReverbDSP) SetTempo(s device.State, tempo float64)  {}
func (d *ReverbDSP) Reset(s device.State) {
	st := s.(*reverbState)
	for _, c := range []*reverbChannel{&st.l, &st.r} {
		bufs := append(append([]*ringBuf{c.preDelay}, c.comb[:]...), c.allpass[:]...)
		for _, rb := range bufs {
			for i := range rb.buf {
				rb.buf[i] = 0
			}
		}
	}
}

func (d *ReverbDSP) UpdateKey(s device.State, key string) bool {
	return key == "mix"
}

func (d *ReverbDSP) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	st := s.(*reverbState)
	in, hasIn := buffers.Inputs[0]
	out, hasOut := buffers.Outputs[0]
	if !hasOut {
		return
	}
	for i := start; i < stop; i++ {
		var dryL, dryR float64
		if hasIn {
			dryL = float64(in.L[i])
			dryR = float64(in.R[i])
		}
		wetL := st.l.process(dryL)
		wetR := st.r.process(dryR)
		out.L[i] += float32(dryL*(1-d.Mix) + wetL*d.Mix)
		out.R[i] += float32(dryR*(1-d.Mix) + wetR*d.Mix)
	}
}

// OverdriveDSP applies a tanh soft-clip (sample = tanh(sample*level)),
// the classic one-line overdrive stage ahead of a reverb send.
type OverdriveDSP struct {
	device.Base
	Drive float64
}

func NewOverdriveDSP(drive float64) *OverdriveDSP {
	d := &OverdriveDSP{Drive: drive}
	d.RegisterInputs(0)
	d.RegisterOutputs(0)
	return d
}

type overdriveState struct{}

func (d *OverdriveDSP) CreateState(audioRate, bufferSize int) device.State { return &overdriveState{} }
func (d *OverdriveDSP) SetAudioRate(s device.State, rate int)              {}
func (d *OverdriveDSP) SetBufferSize(s device.State, size int)             {}
func (d *OverdriveDSP) SetTempo(s device.State, tempo float64)             {}
func (d *OverdriveDSP) Reset(s device.State)                               {}
func (d *OverdriveDSP) UpdateKey(s device.State, key string) bool          { return key == "drive" }

func (d *OverdriveDSP) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	in, hasIn := buffers.Inputs[0]
	out, hasOut := buffers.Outputs[0]
	if !hasOut || !hasIn {
		return
	}
	for i := start; i < stop; i++ {
		out.L[i] += float32(math.Tanh(float64(in.L[i]) * d.Drive))
		out.R[i] += float32(math.Tanh(float64(in.R[i]) * d.Drive))
	}
}

// GainDSP applies a static gain followed by a feed-forward peak
// compressor: level above Threshold is attenuated by Ratio:1, with a
// one-pole envelope follower smoothing the gain reduction over
// Attack/Release times, then scaled by MakeupGain.
type GainDSP struct {
	device.Base

	Gain       float64
	Threshold  float64 // linear amplitude, compression starts above this
	Ratio      float64 // e.g. 4.0 for 4:1
	AttackMS   float64
	ReleaseMS  float64
	MakeupGain float64
}

// NewGainDSP registers one stereo input/output port pair.
func NewGainDSP(gain, threshold, ratio, attackMS, releaseMS, makeupGain float64) *GainDSP {
	d := &GainDSP{Gain: gain, Threshold: threshold, Ratio: ratio, AttackMS: attackMS, ReleaseMS: releaseMS, MakeupGain: makeupGain}
	d.RegisterInputs(0)
	d.RegisterOutputs(0)
	return d
}

type gainState struct {
	rate     int
	envelope float64
}

func (d *GainDSP) CreateState(audioRate, bufferSize int) device.State {
	return &gainState{rate: audioRate}
}

func (d *GainDSP) SetAudioRate(s device.State, rate int) { s.(*gainState).rate = rate }
func (d *GainDSP) SetBufferSize(s device.State, size int) {}
func (d *GainDSP) SetTempo(s device.State, tempo float64)  {}
func (d *GainDSP) Reset(s device.State)                    { s.(*gainState).envelope = 0 }

func (d *GainDSP) UpdateKey(s device.State, key string) bool {
	switch key {
	case "gain", "threshold", "ratio", "attack_ms", "release_ms", "makeup_gain":
		return true
	default:
		return false
	}
}

func (d *GainDSP) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	st := s.(*gainState)
	in, hasIn := buffers.Inputs[0]
	out, hasOut := buffers.Outputs[0]
	if !hasOut || !hasIn {
		return
	}

	attackCoef := timeCoef(d.AttackMS, st.rate)
	releaseCoef := timeCoef(d.ReleaseMS, st.rate)

	for i := start; i < stop; i++ {
		l := float64(in.L[i]) * d.Gain
		r := float64(in.R[i]) * d.Gain

		peak := math.Max(math.Abs(l), math.Abs(r))
		if peak > st.envelope {
			st.envelope += attackCoef * (peak - st.envelope)
		} else {
			st.envelope += releaseCoef * (peak - st.envelope)
		}

		reduction := 1.0
		if d.Ratio > 1 && d.Threshold > 0 && st.envelope > d.Threshold {
			excessDB := 20 * math.Log10(st.envelope/d.Threshold)
			reducedDB := excessDB * (1 - 1/d.Ratio)
			reduction = math.Pow(10, -reducedDB/20)
		}

		makeup := d.MakeupGain
		if makeup == 0 {
			makeup = 1
		}

		out.L[i] += float32(l * reduction * makeup)
		out.R[i] += float32(r * reduction * makeup)
	}
}

// timeCoef converts an attack/release time constant in milliseconds to a
// one-pole smoothing coefficient at the given audio rate; ms <= 0 snaps
// the envelope follower instantly.
func timeCoef(ms float64, rate int) float64 {
	if ms <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(float64(rate)*ms/1000))
}

// PanDSP applies equal-power stereo panning to a mono sum of its input,
// the bus-level counterpart to a generator's own per-voice panning.
type PanDSP struct {
	device.Base

	Pan float64 // -1 (left) .. 1 (right), 0 is centre
}

// NewPanDSP registers one stereo input/output port pair.
func NewPanDSP(pan float64) *PanDSP {
	d := &PanDSP{Pan: pan}
	d.RegisterInputs(0)
	d.RegisterOutputs(0)
	return d
}

type panState struct{}

func (d *PanDSP) CreateState(audioRate, bufferSize int) device.State { return &panState{} }
func (d *PanDSP) SetAudioRate(s device.State, rate int)              {}
func (d *PanDSP) SetBufferSize(s device.State, size int)             {}
func (d *PanDSP) SetTempo(s device.State, tempo float64)             {}
func (d *PanDSP) Reset(s device.State)                               {}
func (d *PanDSP) UpdateKey(s device.State, key string) bool          { return key == "pan" }

func (d *PanDSP) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	in, hasIn := buffers.Inputs[0]
	out, hasOut := buffers.Outputs[0]
	if !hasOut || !hasIn {
		return
	}

	left, right := equalPowerPan(d.Pan)
	for i := start; i < stop; i++ {
		mono := (float64(in.L[i]) + float64(in.R[i])) / 2
		out.L[i] += float32(mono * left)
		out.R[i] += float32(mono * right)
	}
}
