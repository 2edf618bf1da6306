package proc_test

import (
	"math"
	"testing"

	"github.com/kunquat-go/synth/buffer"
	"github.com/kunquat-go/synth/device"
	"github.com/kunquat-go/synth/kernel"
	"github.com/kunquat-go/synth/proc"
	"github.com/kunquat-go/synth/voice"
	"github.com/stretchr/testify/assert"
)

func TestOscillatorSineRendersNonZeroSignal(t *testing.T) {
	osc := proc.NewOscillator(proc.WaveSine)
	s := osc.CreateState(48000, 64)

	pool := voice.NewPool(1)
	v := pool.Allocate(0, 1, 0, 440)
	v.Volume = 1.0

	osc.BindVoices(s, []*voice.Voice{v})

	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(64)
	buffers.Outputs[0] = out

	osc.Process(s, buffers, 0, 64, 48000, 120)

	nonZero := false
	for _, sample := range out.L {
		if sample != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero)
}

func TestOscillatorSilentWithoutBoundVoices(t *testing.T) {
	osc := proc.NewOscillator(proc.WaveSquare)
	s := osc.CreateState(48000, 32)
	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(32)
	buffers.Outputs[0] = out

	osc.Process(s, buffers, 0, 32, 48000, 120)

	for _, sample := range out.L {
		assert.Equal(t, float32(0), sample)
	}
}

func TestOscillatorSquareStaysWithinUnitAmplitude(t *testing.T) {
	osc := proc.NewOscillator(proc.WaveSquare)
	osc.DutyCycle = 0.5
	s := osc.CreateState(48000, 8)

	pool := voice.NewPool(1)
	v := pool.Allocate(0, 1, 0, 100)
	v.Volume = 1.0
	osc.BindVoices(s, []*voice.Voice{v})

	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(8)
	buffers.Outputs[0] = out

	osc.Process(s, buffers, 0, 8, 48000, 120)

	// A square wave's raw amplitude never exceeds unity before volume/env
	// scaling; volume here is 1.0 so this bounds the rendered sample too.
	for _, sample := range out.L {
		assert.LessOrEqual(t, sample, float32(1.0001))
		assert.GreaterOrEqual(t, sample, float32(-1.0001))
	}
}

func TestFilterDSPAttenuatesAboveCutoff(t *testing.T) {
	f := proc.NewFilterDSP(kernel.LowPass, 4, 500, 0.707)
	rate := 48000
	s := f.CreateState(rate, rate)

	buffers := device.NewPortBuffers()
	in := buffer.NewAudio(rate)
	out := buffer.NewAudio(rate)
	buffers.Inputs[0] = in
	buffers.Outputs[0] = out

	freq := 8000.0
	for i := 0; i < rate; i++ {
		in.L[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(rate)))
		in.R[i] = in.L[i]
	}

	f.Process(s, buffers, 0, rate, rate, 120)

	inRMS := rms(in.L)
	outRMS := rms(out.L)
	assert.Less(t, outRMS, inRMS*0.5)
}

func TestReverbDSPDryWhenMixIsZero(t *testing.T) {
	r := proc.NewReverbDSP(0)
	s := r.CreateState(48000, 16)
	buffers := device.NewPortBuffers()
	in := buffer.NewAudio(16)
	in.L[0] = 1.0
	out := buffer.NewAudio(16)
	buffers.Inputs[0] = in
	buffers.Outputs[0] = out

	r.Process(s, buffers, 0, 16, 48000, 120)
	assert.InDelta(t, 1.0, out.L[0], 1e-6)
}

func TestOverdriveDSPSoftClipsLargeInput(t *testing.T) {
	o := proc.NewOverdriveDSP(2.0)
	s := o.CreateState(48000, 4)
	buffers := device.NewPortBuffers()
	in := buffer.NewAudio(4)
	in.L[0] = 1.0
	out := buffer.NewAudio(4)
	buffers.Inputs[0] = in
	buffers.Outputs[0] = out

	o.Process(s, buffers, 0, 4, 48000, 120)
	assert.Less(t, out.L[0], float32(1.0))
	assert.Greater(t, out.L[0], float32(0.9))
}

func TestChorusDSPWetSignalDiffersFromDry(t *testing.T) {
	c := proc.NewChorusDSP(2, 0.5, 4.0, 1.0)
	rate := 48000
	s := c.CreateState(rate, 512)

	buffers := device.NewPortBuffers()
	in := buffer.NewAudio(512)
	for i := range in.L {
		in.L[i] = float32(math.Sin(2 * math.Pi * 220 * float64(i) / float64(rate)))
	}
	out := buffer.NewAudio(512)
	buffers.Inputs[0] = in
	buffers.Outputs[0] = out

	c.Process(s, buffers, 0, 512, rate, 120)

	differs := false
	for i := range out.L {
		if math.Abs(float64(out.L[i]-in.L[i])) > 1e-6 {
			differs = true
			break
		}
	}
	assert.True(t, differs)
}

func TestDebugGeneratorSinglePulseEmitsOnceThenDies(t *testing.T) {
	d := proc.NewDebugGenerator(true)
	s := d.CreateState(48000, 8)

	pool := voice.NewPool(1)
	v := pool.Allocate(0, 1, 0, 440)
	v.Volume = 1.0
	d.BindVoices(s, []*voice.Voice{v})

	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(8)
	buffers.Outputs[0] = out

	d.Process(s, buffers, 0, 8, 48000, 120)

	assert.InDelta(t, 1.0, out.L[0], 1e-6)
	for _, sample := range out.L[1:] {
		assert.Equal(t, float32(0), sample)
	}
	assert.True(t, v.Dead)
}

func TestDebugGeneratorNormalModePulsesEveryDivisorFrame(t *testing.T) {
	d := proc.NewDebugGenerator(false)
	d.PulseDivisor = 4
	s := d.CreateState(48000, 8)

	pool := voice.NewPool(1)
	v := pool.Allocate(0, 1, 0, 440)
	v.Volume = 1.0
	d.BindVoices(s, []*voice.Voice{v})

	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(8)
	buffers.Outputs[0] = out

	d.Process(s, buffers, 0, 8, 48000, 120)

	assert.InDelta(t, 1.0, out.L[0], 1e-6)
	assert.InDelta(t, 0.5, out.L[1], 1e-6)
	assert.InDelta(t, 1.0, out.L[4], 1e-6)
	assert.False(t, v.Dead)
}

func TestDebugGeneratorNegatesAndDiesAfterRelease(t *testing.T) {
	d := proc.NewDebugGenerator(false)
	d.PulseDivisor = 1000 // force every frame onto the 0.5 branch
	s := d.CreateState(48000, 1)

	pool := voice.NewPool(1)
	v := pool.Allocate(0, 1, 0, 48000) // one-sample period, so the death window is tiny
	v.Volume = 1.0
	d.BindVoices(s, []*voice.Voice{v})

	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(1)
	buffers.Outputs[0] = out

	d.Process(s, buffers, 0, 1, 48000, 120)
	pool.Release(v)

	died := false
	for i := 0; i < 32 && !died; i++ {
		out.L[0] = 0
		d.Process(s, buffers, 0, 1, 48000, 120)
		assert.LessOrEqual(t, out.L[0], float32(0))
		died = v.Dead
	}
	assert.True(t, died)
}

func TestPCMGeneratorLoopsForwardWithoutDying(t *testing.T) {
	sample := []float32{0, 1, 0, -1}
	g := proc.NewPCMGenerator(sample, 440)
	g.Loop = proc.PCMLoopForward
	s := g.CreateState(48000, 32)

	pool := voice.NewPool(1)
	v := pool.Allocate(0, 1, 0, 440)
	v.Volume = 1.0
	g.BindVoices(s, []*voice.Voice{v})

	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(32)
	buffers.Outputs[0] = out

	g.Process(s, buffers, 0, 32, 48000, 120)
	assert.False(t, v.Dead)
}

func TestPCMGeneratorNoLoopDiesAtSampleEnd(t *testing.T) {
	sample := []float32{0, 1, 0, -1}
	g := proc.NewPCMGenerator(sample, 44100)
	g.Loop = proc.PCMLoopNone
	s := g.CreateState(44100, 32)

	pool := voice.NewPool(1)
	v := pool.Allocate(0, 1, 0, 44100)
	v.Volume = 1.0
	g.BindVoices(s, []*voice.Voice{v})

	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(32)
	buffers.Outputs[0] = out

	g.Process(s, buffers, 0, 32, 44100, 120)
	assert.True(t, v.Dead)
}

func TestPADsynthGeneratorRendersNonZeroSignal(t *testing.T) {
	g := proc.NewPADsynthGenerator([]float64{1.0, 0.5, 0.25})
	s := g.CreateState(48000, 64)

	pool := voice.NewPool(1)
	v := pool.Allocate(0, 1, 0, 220)
	v.Volume = 1.0
	g.BindVoices(s, []*voice.Voice{v})

	buffers := device.NewPortBuffers()
	out := buffer.NewAudio(64)
	buffers.Outputs[0] = out

	g.Process(s, buffers, 0, 64, 48000, 120)

	nonZero := false
	for _, sample := range out.L {
		if sample != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero)
}

func TestGainDSPCompressesAboveThreshold(t *testing.T) {
	g := proc.NewGainDSP(1.0, 0.2, 4.0, 0, 0, 1.0)
	rate := 48000
	s := g.CreateState(rate, rate)

	buffers := device.NewPortBuffers()
	in := buffer.NewAudio(rate)
	for i := range in.L {
		in.L[i] = 0.9
		in.R[i] = 0.9
	}
	out := buffer.NewAudio(rate)
	buffers.Inputs[0] = in
	buffers.Outputs[0] = out

	g.Process(s, buffers, 0, rate, rate, 120)

	assert.Less(t, out.L[rate-1], float32(0.9))
	assert.Greater(t, out.L[rate-1], float32(0.2))
}

func TestGainDSPLeavesSignalBelowThresholdUnreduced(t *testing.T) {
	g := proc.NewGainDSP(1.0, 0.5, 4.0, 0, 0, 1.0)
	rate := 48000
	s := g.CreateState(rate, 16)

	buffers := device.NewPortBuffers()
	in := buffer.NewAudio(16)
	for i := range in.L {
		in.L[i] = 0.1
		in.R[i] = 0.1
	}
	out := buffer.NewAudio(16)
	buffers.Inputs[0] = in
	buffers.Outputs[0] = out

	g.Process(s, buffers, 0, 16, rate, 120)
	assert.InDelta(t, 0.1, out.L[15], 1e-3)
}

func TestPanDSPHardLeftSilencesRightChannel(t *testing.T) {
	p := proc.NewPanDSP(-1.0)
	s := p.CreateState(48000, 4)

	buffers := device.NewPortBuffers()
	in := buffer.NewAudio(4)
	for i := range in.L {
		in.L[i] = 1.0
		in.R[i] = 1.0
	}
	out := buffer.NewAudio(4)
	buffers.Inputs[0] = in
	buffers.Outputs[0] = out

	p.Process(s, buffers, 0, 4, 48000, 120)

	assert.InDelta(t, 1.0, out.L[0], 1e-6)
	assert.InDelta(t, 0.0, out.R[0], 1e-6)
}

func rms(xs []float32) float64 {
	var sum float64
	for _, x := range xs {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum / float64(len(xs)))
}
