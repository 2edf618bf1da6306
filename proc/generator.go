// Package proc implements the signal-processing devices: generators,
// which turn voice note parameters into raw waveform, and
// DSPs, which filter or colour a signal already rendered. Both satisfy
// device.Device so the graph package can mix them uninvolved with which
// kind of processor a node actually is.
//
// Four generators are implemented: Oscillator (phase-accumulator
// square/triangle/sine/noise shapes, with PWM, ring modulation, hard
// sync, and an LFSR noise generator with switchable tap sets),
// DebugGenerator (a minimal diagnostic waveform for exercising voice
// lifecycle plumbing without any shaping machinery in the way),
// PCMGenerator (cursor-driven sample playback with selectable
// interpolation and loop mode), and PADsynthGenerator (a fixed bank of
// additively-summed harmonic partials). Per-voice state lives in
// voice.Voice.State, populated lazily the first time a generator sees a
// given voice, and read back out of it on every subsequent block. A
// generator is also the first place a voice can be marked Dead, once its
// release tail (envelope, sample, or pulse countdown) has finished.
package proc

import (
	"math"

	"github.com/kunquat-go/synth/device"
	"github.com/kunquat-go/synth/kernel"
	"github.com/kunquat-go/synth/voice"
)

// Waveform selects an Oscillator's raw shape.
type Waveform int

const (
	WaveSquare Waveform = iota
	WaveTriangle
	WaveSine
	WaveNoise
)

// NoiseMode selects the LFSR tap configuration for WaveNoise.
type NoiseMode int

const (
	NoiseWhite NoiseMode = iota
	NoisePeriodic
	NoiseMetallic
)

const twoPi = 2 * math.Pi

// oscVoice is the per-voice render state an Oscillator keeps inside
// voice.Voice.State: phase accumulators, the LFSR register, the envelope
// generator, and the previous raw sample (needed for ring modulation and
// hard sync against another voice).
type oscVoice struct {
	phase        float64
	pwmPhase     float64
	noisePhase   float64
	noiseSR      uint32
	prevRaw      float64
	phaseWrapped bool

	env  *kernel.Envelope
	filt onePole
}

// Oscillator is a generator device producing one of four waveforms under
// ADSR-style envelope control, with optional PWM, ring modulation and
// hard sync against another voice group. It has no frequency sweep.
type Oscillator struct {
	device.Base

	Wave      Waveform
	DutyCycle float64 // 0..1, square wave only

	PWMEnabled bool
	PWMRate    float64 // Hz
	PWMDepth   float64 // 0..1

	NoiseMode NoiseMode

	// Envelope nodes describing the amplitude contour applied on top of
	// the raw waveform (attack/decay/sustain/release expressed as
	// normalised-x breakpoints, per kernel.Envelope).
	EnvNodes []kernel.EnvNode

	// RingModSource and SyncSource, when non-nil, name another group's
	// voice state this oscillator multiplies against / resets phase
	// from, mirroring a per-channel ringmod/sync source pointer.
	RingModSource *Oscillator
	SyncSource    *Oscillator
}

// NewOscillator builds an Oscillator registering the standard single
// mono-pair output port.
func NewOscillator(wave Waveform) *Oscillator {
	o := &Oscillator{Wave: wave, DutyCycle: 0.5}
	o.RegisterOutputs(0)
	return o
}

// VoiceBinder is implemented by generator devices that render a set of
// voices bound to them for the current block. The engine calls BindVoices
// once per instrument per render block, after that block's allocation
// and stealing decisions are final, before calling Device.Process.
type VoiceBinder interface {
	BindVoices(s device.State, voices []*voice.Voice)
}

type oscState struct {
	rate   int
	voices []*voice.Voice
}

func (o *Oscillator) CreateState(audioRate, bufferSize int) device.State {
	return &oscState{rate: audioRate}
}

func (o *Oscillator) SetAudioRate(s device.State, rate int) { s.(*oscState).rate = rate }
func (o *Oscillator) SetBufferSize(s device.State, size int) {}
func (o *Oscillator) SetTempo(s device.State, tempo float64) {}
func (o *Oscillator) Reset(s device.State)                   { s.(*oscState).voices = nil }

func (o *Oscillator) UpdateKey(s device.State, key string) bool {
	switch key {
	case "wave", "duty_cycle", "pwm_enabled", "pwm_rate", "pwm_depth", "noise_mode", "envelope":
		return true
	default:
		return false
	}
}

// BindVoices attaches the set of voices this generator should render on
// the next Process call; the engine calls this once per instrument per
// render block, after the voice pool's allocation/stealing decisions for
// that block are final.
func (o *Oscillator) BindVoices(s device.State, voices []*voice.Voice) {
	s.(*oscState).voices = voices
}

func (o *Oscillator) voiceState(v *voice.Voice, rate int) *oscVoice {
	ov, ok := v.State.(*oscVoice)
	if !ok {
		ov = &oscVoice{}
		if len(o.EnvNodes) > 0 {
			ov.env = kernel.NewEnvelope(o.EnvNodes)
		}
		v.State = ov
	}
	return ov
}

// Process renders every bound voice's waveform, summed equal-weight, into
// the registered out_00 port — the same fixed-level channel-summation
// idiom generalised to however many voices are bound instead of a fixed
// channel count.
func (o *Oscillator) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	st := s.(*oscState)
	out, ok := buffers.Outputs[0]
	if !ok || len(st.voices) == 0 {
		return
	}

	for _, v := range st.voices {
		if v.NoteFreq <= 0 {
			continue
		}
		ov := o.voiceState(v, rate)
		phaseInc := twoPi * v.NoteFreq / float64(rate)

		for i := start; i < stop; i++ {
			raw := o.rawSample(ov, phaseInc, rate)

			if o.RingModSource != nil {
				if src, ok2 := findPeer(st.voices, v.GroupID, o.RingModSource); ok2 {
					raw *= src.prevRaw
				}
			}
			ov.prevRaw = raw

			env := 1.0
			if ov.env != nil {
				env = ov.env.Step(1.0 / float64(rate))
			}

			filtered := ov.filt.step(raw*v.Volume*env, v.FilterCutoffHz, rate)
			left, right := equalPowerPan(v.Pan)
			out.L[i] += float32(filtered * left)
			out.R[i] += float32(filtered * right)
		}

		if o.SyncSource != nil {
			if src, ok2 := findPeer(st.voices, v.GroupID, o.SyncSource); ok2 && src.phaseWrapped {
				ov.phase = 0
			}
		}

		if v.Phase == voice.PhaseReleased {
			if ov.env == nil || ov.env.Finished() {
				v.Dead = true
			}
		}
	}
}

// findPeer looks up the oscVoice another Oscillator left behind for a
// voice in the same group, used for ring modulation and hard sync.
func findPeer(voices []*voice.Voice, groupID uint64, _ *Oscillator) (*oscVoice, bool) {
	for _, v := range voices {
		if v.GroupID == groupID {
			if ov, ok := v.State.(*oscVoice); ok {
				return ov, true
			}
		}
	}
	return nil, false
}

func (o *Oscillator) rawSample(ov *oscVoice, phaseInc float64, rate int) float64 {
	var raw float64

	switch o.Wave {
	case WaveSquare:
		duty := o.DutyCycle
		if o.PWMEnabled {
			ov.pwmPhase += o.PWMRate * (twoPi / float64(rate))
			ov.pwmPhase = math.Mod(ov.pwmPhase, twoPi)
			norm := ov.pwmPhase / twoPi
			lfo := math.Abs(norm*2-1)*2 - 1
			duty = clamp01(o.DutyCycle + lfo*o.PWMDepth)
		}
		if ov.phase < twoPi*duty {
			raw = 1
		} else {
			raw = -1
		}
	case WaveTriangle:
		raw = 4*math.Abs(ov.phase/twoPi-0.5) - 1
	case WaveSine:
		raw = math.Sin(ov.phase)
	case WaveNoise:
		steps := 1
		for i := 0; i < steps; i++ {
			o.stepLFSR(ov)
		}
		raw = float64(ov.noiseSR&1)*2 - 1
	}

	if o.Wave != WaveNoise {
		ov.phase += phaseInc
		if ov.phase >= twoPi {
			ov.phase -= twoPi
			ov.phaseWrapped = true
		} else {
			ov.phaseWrapped = false
		}
	}

	return raw
}

func (o *Oscillator) stepLFSR(ov *oscVoice) {
	if ov.noiseSR == 0 {
		ov.noiseSR = 1
	}
	switch o.NoiseMode {
	case NoiseWhite:
		newBit := ((ov.noiseSR >> 22) ^ (ov.noiseSR >> 17)) & 1
		ov.noiseSR = ((ov.noiseSR << 1) | newBit) & 0x7fffff
	case NoisePeriodic:
		ov.noiseSR = ((ov.noiseSR >> 1) | ((ov.noiseSR & 1) << 22)) & 0x7fffff
	case NoiseMetallic:
		newBit := ((ov.noiseSR >> 22) ^ (ov.noiseSR >> 14)) & 1
		ov.noiseSR = ((ov.noiseSR << 1) | newBit) & 0x7fffff
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// DebugGenerator renders a minimal diagnostic waveform instead of a
// musical one: SinglePulse mode emits exactly one sample of 1.0 and dies;
// normal mode emits 1.0 every PulseDivisor-th frame and 0.5 otherwise,
// and once released negates its output and dies within two pitch
// periods (capped at ten, whichever comes first). Useful for exercising
// voice-lifecycle plumbing (allocation, stealing, release, death)
// without an Oscillator's shaping machinery in the way.
type DebugGenerator struct {
	device.Base

	SinglePulse  bool
	PulseDivisor int // normal mode: every PulseDivisor-th frame is 1.0, else 0.5
}

// NewDebugGenerator builds a DebugGenerator registering the standard
// mono-pair output port. PulseDivisor defaults to 8 in normal mode.
func NewDebugGenerator(singlePulse bool) *DebugGenerator {
	d := &DebugGenerator{SinglePulse: singlePulse, PulseDivisor: 8}
	d.RegisterOutputs(0)
	return d
}

type debugVoice struct {
	frame        int // frames rendered since note-on
	pulsed       bool
	releaseFrame int // frame index note-off happened at, -1 while still held
}

type debugState struct {
	rate   int
	voices []*voice.Voice
}

func (d *DebugGenerator) CreateState(audioRate, bufferSize int) device.State {
	return &debugState{rate: audioRate}
}

func (d *DebugGenerator) SetAudioRate(s device.State, rate int) { s.(*debugState).rate = rate }
func (d *DebugGenerator) SetBufferSize(s device.State, size int) {}
func (d *DebugGenerator) SetTempo(s device.State, tempo float64) {}
func (d *DebugGenerator) Reset(s device.State)                   { s.(*debugState).voices = nil }

func (d *DebugGenerator) UpdateKey(s device.State, key string) bool {
	switch key {
	case "single_pulse", "pulse_divisor":
		return true
	default:
		return false
	}
}

// BindVoices attaches the set of voices this generator should render on
// the next Process call.
func (d *DebugGenerator) BindVoices(s device.State, voices []*voice.Voice) {
	s.(*debugState).voices = voices
}

func (d *DebugGenerator) voiceState(v *voice.Voice) *debugVoice {
	dv, ok := v.State.(*debugVoice)
	if !ok {
		dv = &debugVoice{releaseFrame: -1}
		v.State = dv
	}
	return dv
}

func (d *DebugGenerator) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	st := s.(*debugState)
	out, ok := buffers.Outputs[0]
	if !ok || len(st.voices) == 0 {
		return
	}

	divisor := d.PulseDivisor
	if divisor <= 0 {
		divisor = 8
	}

	for _, v := range st.voices {
		if v.NoteFreq <= 0 {
			continue
		}
		dv := d.voiceState(v)
		period := float64(rate) / v.NoteFreq
		if v.Phase == voice.PhaseReleased && dv.releaseFrame < 0 {
			dv.releaseFrame = dv.frame
		}

		for i := start; i < stop; i++ {
			if v.Dead {
				break
			}

			var raw float64
			if d.SinglePulse {
				if !dv.pulsed {
					raw = 1.0
					dv.pulsed = true
					v.Dead = true
				}
			} else {
				if dv.frame%divisor == 0 {
					raw = 1.0
				} else {
					raw = 0.5
				}
				if dv.releaseFrame >= 0 {
					raw = -raw
					deathWindow := math.Min(2*period, 10*period)
					if float64(dv.frame-dv.releaseFrame) >= deathWindow {
						v.Dead = true
					}
				}
			}

			sample := float32(raw * v.Volume)
			out.L[i] += sample
			out.R[i] += sample
			dv.frame++
		}
	}
}

// PCMInterp selects interpolation quality for a PCMGenerator's
// fractional sample cursor.
type PCMInterp int

const (
	PCMInterpNearest PCMInterp = iota
	PCMInterpLinear
	PCMInterpHermite
)

// PCMLoopMode selects how a PCMGenerator's cursor behaves once it runs
// off the end of its sample.
type PCMLoopMode int

const (
	PCMLoopNone PCMLoopMode = iota
	PCMLoopForward
	PCMLoopPingPong
)

// PCMGenerator plays back one recorded waveform at a cursor speed
// derived from each voice's note frequency relative to the sample's
// BaseFreq (the pitch the raw recording was captured at).
type PCMGenerator struct {
	device.Base

	Sample   []float32
	BaseFreq float64
	Interp   PCMInterp
	Loop     PCMLoopMode
	EnvNodes []kernel.EnvNode
}

// NewPCMGenerator builds a PCMGenerator over sample, registering the
// standard mono-pair output port.
func NewPCMGenerator(sample []float32, baseFreq float64) *PCMGenerator {
	g := &PCMGenerator{Sample: sample, BaseFreq: baseFreq, Interp: PCMInterpLinear}
	g.RegisterOutputs(0)
	return g
}

type pcmVoice struct {
	cursor float64
	dir    float64

	env  *kernel.Envelope
	filt onePole
}

type pcmState struct {
	rate   int
	voices []*voice.Voice
}

func (g *PCMGenerator) CreateState(audioRate, bufferSize int) device.State {
	return &pcmState{rate: audioRate}
}

func (g *PCMGenerator) SetAudioRate(s device.State, rate int) { s.(*pcmState).rate = rate }
func (g *PCMGenerator) SetBufferSize(s device.State, size int) {}
func (g *PCMGenerator) SetTempo(s device.State, tempo float64) {}
func (g *PCMGenerator) Reset(s device.State)                   { s.(*pcmState).voices = nil }

func (g *PCMGenerator) UpdateKey(s device.State, key string) bool {
	switch key {
	case "base_freq", "interp", "loop", "envelope":
		return true
	default:
		return false
	}
}

func (g *PCMGenerator) BindVoices(s device.State, voices []*voice.Voice) {
	s.(*pcmState).voices = voices
}

func (g *PCMGenerator) voiceState(v *voice.Voice) *pcmVoice {
	pv, ok := v.State.(*pcmVoice)
	if !ok {
		pv = &pcmVoice{dir: 1}
		if len(g.EnvNodes) > 0 {
			pv.env = kernel.NewEnvelope(g.EnvNodes)
		}
		v.State = pv
	}
	return pv
}

func (g *PCMGenerator) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	st := s.(*pcmState)
	out, ok := buffers.Outputs[0]
	n := len(g.Sample)
	if !ok || n == 0 {
		return
	}

	for _, v := range st.voices {
		if v.NoteFreq <= 0 || g.BaseFreq <= 0 {
			continue
		}
		pv := g.voiceState(v)
		speed := v.NoteFreq / g.BaseFreq

		for i := start; i < stop; i++ {
			if v.Dead {
				break
			}
			raw := g.sampleAt(pv.cursor)
			cursor, dir, exhausted := g.advanceCursor(pv.cursor, pv.dir, speed, n)
			pv.cursor, pv.dir = cursor, dir
			if exhausted {
				v.Dead = true
			}

			env := 1.0
			if pv.env != nil {
				env = pv.env.Step(1.0 / float64(rate))
			}

			filtered := pv.filt.step(raw*v.Volume*env, v.FilterCutoffHz, rate)
			left, right := equalPowerPan(v.Pan)
			out.L[i] += float32(filtered * left)
			out.R[i] += float32(filtered * right)
		}

		if v.Phase == voice.PhaseReleased {
			if pv.env == nil || pv.env.Finished() {
				v.Dead = true
			}
		}
	}
}

// advanceCursor steps a PCM voice's read cursor by speed samples,
// applying the generator's loop mode. exhausted reports whether a
// non-looping cursor has run off either end of the sample.
func (g *PCMGenerator) advanceCursor(cursor, dir, speed float64, n int) (newCursor, newDir float64, exhausted bool) {
	cursor += dir * speed
	switch g.Loop {
	case PCMLoopForward:
		for cursor >= float64(n) {
			cursor -= float64(n)
		}
		for cursor < 0 {
			cursor += float64(n)
		}
		return cursor, dir, false
	case PCMLoopPingPong:
		if cursor >= float64(n-1) {
			cursor = float64(n-1) - (cursor - float64(n-1))
			dir = -1
		} else if cursor <= 0 {
			cursor = -cursor
			dir = 1
		}
		return cursor, dir, false
	default: // PCMLoopNone
		if cursor >= float64(n-1) || cursor < 0 {
			return cursor, dir, true
		}
		return cursor, dir, false
	}
}

func (g *PCMGenerator) sampleAt(cursor float64) float64 {
	n := len(g.Sample)
	i0 := int(cursor)
	frac := cursor - float64(i0)
	switch g.Interp {
	case PCMInterpNearest:
		return float64(g.Sample[clampIdx(i0, n)])
	case PCMInterpHermite:
		ym1 := float64(g.Sample[clampIdx(i0-1, n)])
		y0 := float64(g.Sample[clampIdx(i0, n)])
		y1 := float64(g.Sample[clampIdx(i0+1, n)])
		y2 := float64(g.Sample[clampIdx(i0+2, n)])
		return hermite4(ym1, y0, y1, y2, frac)
	default: // PCMInterpLinear
		y0 := float64(g.Sample[clampIdx(i0, n)])
		y1 := float64(g.Sample[clampIdx(i0+1, n)])
		return y0*(1-frac) + y1*frac
	}
}

// PADsynthGenerator renders a fixed bank of harmonic partials summed
// additively, each partial a plain sine at an integer multiple of the
// voice's fundamental with a fixed relative amplitude — a simplified,
// per-voice-phase-accumulator stand-in for the offline-synthesised
// PADsynth wavetable technique.
type PADsynthGenerator struct {
	device.Base

	Partials []float64 // relative amplitude of harmonic 1, 2, 3, ...
	EnvNodes []kernel.EnvNode
}

// NewPADsynthGenerator builds a PADsynthGenerator over the given
// harmonic amplitude table, registering the standard mono-pair output
// port.
func NewPADsynthGenerator(partials []float64) *PADsynthGenerator {
	g := &PADsynthGenerator{Partials: partials}
	g.RegisterOutputs(0)
	return g
}

type padVoice struct {
	phases []float64

	env  *kernel.Envelope
	filt onePole
}

type padState struct {
	rate   int
	voices []*voice.Voice
}

func (g *PADsynthGenerator) CreateState(audioRate, bufferSize int) device.State {
	return &padState{rate: audioRate}
}

func (g *PADsynthGenerator) SetAudioRate(s device.State, rate int) { s.(*padState).rate = rate }
func (g *PADsynthGenerator) SetBufferSize(s device.State, size int) {}
func (g *PADsynthGenerator) SetTempo(s device.State, tempo float64) {}
func (g *PADsynthGenerator) Reset(s device.State)                   { s.(*padState).voices = nil }

func (g *PADsynthGenerator) UpdateKey(s device.State, key string) bool {
	switch key {
	case "partials", "envelope":
		return true
	default:
		return false
	}
}

func (g *PADsynthGenerator) BindVoices(s device.State, voices []*voice.Voice) {
	s.(*padState).voices = voices
}

func (g *PADsynthGenerator) voiceState(v *voice.Voice) *padVoice {
	pv, ok := v.State.(*padVoice)
	if !ok {
		pv = &padVoice{phases: make([]float64, len(g.Partials))}
		if len(g.EnvNodes) > 0 {
			pv.env = kernel.NewEnvelope(g.EnvNodes)
		}
		v.State = pv
	}
	return pv
}

func (g *PADsynthGenerator) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	st := s.(*padState)
	out, ok := buffers.Outputs[0]
	if !ok || len(st.voices) == 0 {
		return
	}

	for _, v := range st.voices {
		if v.NoteFreq <= 0 {
			continue
		}
		pv := g.voiceState(v)
		if len(pv.phases) != len(g.Partials) {
			pv.phases = make([]float64, len(g.Partials))
		}

		for i := start; i < stop; i++ {
			if v.Dead {
				break
			}
			var raw float64
			for h, amp := range g.Partials {
				inc := twoPi * v.NoteFreq * float64(h+1) / float64(rate)
				pv.phases[h] += inc
				if pv.phases[h] >= twoPi {
					pv.phases[h] -= twoPi
				}
				raw += amp * math.Sin(pv.phases[h])
			}

			env := 1.0
			if pv.env != nil {
				env = pv.env.Step(1.0 / float64(rate))
			}

			filtered := pv.filt.step(raw*v.Volume*env, v.FilterCutoffHz, rate)
			left, right := equalPowerPan(v.Pan)
			out.L[i] += float32(filtered * left)
			out.R[i] += float32(filtered * right)
		}

		if v.Phase == voice.PhaseReleased {
			if pv.env == nil || pv.env.Finished() {
				v.Dead = true
			}
		}
	}
}
