package proc

import (
	"github.com/kunquat-go/synth/device"
	"github.com/kunquat-go/synth/kernel"
)

// ChorusDSP is a multi-voice modulated delay line: each voice reads from
// a shared delay buffer at a tap position wobbled by its own kernel.LFO,
// then the voices are summed back with the dry signal. Grounded on a
// PWM LFO's phase-accumulator machinery, generalised from modulating a
// duty cycle to modulating a delay tap.
type ChorusDSP struct {
	device.Base

	Voices    int
	RateHz    float64
	DepthMS   float64
	Mix       float64
	baseDelay float64 // ms
}

// NewChorusDSP registers one stereo input/output port pair.
func NewChorusDSP(voices int, rateHz, depthMS, mix float64) *ChorusDSP {
	c := &ChorusDSP{Voices: voices, RateHz: rateHz, DepthMS: depthMS, Mix: mix, baseDelay: 20}
	c.RegisterInputs(0)
	c.RegisterOutputs(0)
	return c
}

type chorusVoiceState struct {
	lfo   kernel.LFO
	delay *ringBuf
}

type chorusState struct {
	rate   int
	voices []chorusVoiceState
}

func (c *ChorusDSP) CreateState(audioRate, bufferSize int) device.State {
	return c.build(audioRate)
}

func (c *ChorusDSP) build(rate int) *chorusState {
	st := &chorusState{rate: rate, voices: make([]chorusVoiceState, c.Voices)}
	maxDelaySamples := int((c.baseDelay + c.DepthMS) * float64(rate) / 1000.0) + 2
	for i := range st.voices {
		st.voices[i].lfo = kernel.LFO{Mode: kernel.LFOLinear, Speed: c.RateHz, Depth: c.DepthMS}
		st.voices[i].lfo.Init(float64(rate))
		st.voices[i].delay = newRingBuf(maxDelaySamples)
	}
	return st
}

func (c *ChorusDSP) SetAudioRate(s device.State, rate int) { *s.(*chorusState) = *c.build(rate) }
func (c *ChorusDSP) SetBufferSize(s device.State, size int) {}
func (c *ChorusDSP) SetTempo(s device.State, tempo float64)  {}

func (c *ChorusDSP) Reset(s device.State) {
	st := s.(*chorusState)
	for i := range st.voices {
		st.voices[i].lfo.Reset()
		buf := st.voices[i].delay.buf
		for j := range buf {
			buf[j] = 0
		}
	}
}

func (c *ChorusDSP) UpdateKey(s device.State, key string) bool {
	switch key {
	case "voices", "rate", "depth", "mix":
		return true
	default:
		return false
	}
}

func (c *ChorusDSP) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	st := s.(*chorusState)
	in, hasIn := buffers.Inputs[0]
	out, hasOut := buffers.Outputs[0]
	if !hasOut {
		return
	}

	for i := start; i < stop; i++ {
		var dry float32
		if hasIn {
			dry = in.L[i]
		}

		var wet float64
		for vi := range st.voices {
			v := &st.voices[vi]
			tapMS := c.baseDelay + v.lfo.Step()
			tapSamples := tapMS * float64(rate) / 1000.0
			wet += readFractional(v.delay, tapSamples)
			v.delay.step(float64(dry))
		}
		if len(st.voices) > 0 {
			wet /= float64(len(st.voices))
		}

		mixed := float64(dry)*(1-c.Mix) + wet*c.Mix
		out.L[i] += float32(mixed)
		out.R[i] += float32(mixed)
	}
}

// readFractional interpolates linearly between the two nearest samples
// behind the ring buffer's write position, offsetBehind samples back.
func readFractional(r *ringBuf, offsetBehind float64) float64 {
	n := len(r.buf)
	whole := int(offsetBehind)
	frac := offsetBehind - float64(whole)
	i0 := ((r.pos-whole)%n + n) % n
	i1 := ((i0 - 1) % n + n) % n
	return r.buf[i0]*(1-frac) + r.buf[i1]*frac
}
