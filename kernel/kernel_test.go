package kernel_test

import (
	"math"
	"testing"

	"github.com/kunquat-go/synth/kernel"
	"github.com/stretchr/testify/assert"
)

func TestSliderReachesTargetAndClamps(t *testing.T) {
	var s kernel.Slider
	s.Reset(0)
	s.SetTarget(10, 10)
	for i := 0; i < 9; i++ {
		s.Step(1)
	}
	assert.False(t, s.Done())
	s.Step(1)
	assert.True(t, s.Done())
	assert.InDelta(t, 10, s.Value(), 1e-9)

	// stepping past the end stays clamped
	assert.InDelta(t, 10, s.Step(5), 1e-9)
}

func TestSliderImmediateJumpOnNonPositiveFrames(t *testing.T) {
	var s kernel.Slider
	s.Reset(0)
	s.SetTarget(5, 0)
	assert.True(t, s.Done())
	assert.InDelta(t, 5, s.Value(), 1e-9)
}

func TestLFODepthDelayRampsIn(t *testing.T) {
	l := &kernel.LFO{Speed: 1, Depth: 1, DepthDelay: 1}
	l.Init(100)
	first := math.Abs(l.Step())
	for i := 0; i < 50; i++ {
		l.Step()
	}
	late := math.Abs(l.Step())
	assert.True(t, late >= first)
}

func TestEnvelopeLinearInterpolation(t *testing.T) {
	e := kernel.NewEnvelope([]kernel.EnvNode{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}})
	assert.InDelta(t, 0.5, e.At(0.5), 1e-9)
	assert.InDelta(t, 1, e.At(1), 1e-9)
	assert.InDelta(t, 0.5, e.At(1.5), 1e-9)
	assert.InDelta(t, 0, e.At(-1), 1e-9) // clamps before first node
	assert.InDelta(t, 0, e.At(5), 1e-9)  // clamps after last node
}

func TestEnvelopeLoopsWithinRange(t *testing.T) {
	e := kernel.NewEnvelope([]kernel.EnvNode{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}})
	e.LoopStart, e.LoopEnd = 0, 2
	e.Reset()
	for i := 0; i < 10; i++ {
		v := e.Step(0.5)
		assert.GreaterOrEqual(t, v, -1e-9)
		assert.LessOrEqual(t, v, 1+1e-9)
	}
}

func TestButterworthLowPassAttenuatesHighFrequency(t *testing.T) {
	const rate = 44100.0
	var f kernel.Butterworth
	f.Kind = kernel.LowPass
	f.Order = 4
	f.Design(rate, 500, 0.707)

	// feed a high frequency tone, measure RMS after settling
	n := 2000
	sumSq := 0.0
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * 10000 * float64(i) / rate)
		y := f.Process(x)
		if i > n/2 {
			sumSq += y * y
		}
	}
	rms := math.Sqrt(sumSq / float64(n/2))
	assert.Less(t, rms, 0.3, "10kHz tone should be heavily attenuated by a 500Hz low-pass")
}

func TestButterworthResetZeroesHistory(t *testing.T) {
	var f kernel.Butterworth
	f.Kind = kernel.LowPass
	f.Order = 2
	f.Design(44100, 1000, 0.707)
	f.Process(1)
	f.Process(1)
	f.Reset()
	// Immediately after reset, a zero input should produce (near) zero output.
	assert.InDelta(t, 0, f.Process(0), 1e-9)
}

func TestSincZeroConvention(t *testing.T) {
	assert.Equal(t, 1.0, kernel.Sinc(0))
}
