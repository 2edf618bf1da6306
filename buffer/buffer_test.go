package buffer_test

import (
	"testing"

	"github.com/kunquat-go/synth/buffer"
	"github.com/stretchr/testify/assert"
)

func TestAudioClearRangeIsExclusive(t *testing.T) {
	a := buffer.NewAudio(8)
	for i := range a.L {
		a.L[i], a.R[i] = 1, 1
	}
	a.Clear(2, 5)
	for i := 0; i < 8; i++ {
		if i >= 2 && i < 5 {
			assert.Equal(t, float32(0), a.L[i])
			assert.Equal(t, float32(0), a.R[i])
		} else {
			assert.Equal(t, float32(1), a.L[i])
			assert.Equal(t, float32(1), a.R[i])
		}
	}
}

func TestAudioAddMixesAtUnityGain(t *testing.T) {
	dst := buffer.NewAudio(4)
	src := buffer.NewAudio(4)
	for i := range src.L {
		src.L[i], src.R[i] = 0.5, -0.5
		dst.L[i], dst.R[i] = 0.25, 0.25
	}
	dst.Add(src, 0, 4)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 0.75, dst.L[i], 1e-6)
		assert.InDelta(t, -0.25, dst.R[i], 1e-6)
	}
}

func TestBankResizeNeverShrinksUnderlyingArrayDestructively(t *testing.T) {
	bank := buffer.NewBank(3, 16)
	assert.Equal(t, 16, bank.Frames())
	bank.Get(0).Data[0] = 42
	bank.Resize(32)
	assert.Equal(t, 32, len(bank.Get(0).Data))
	assert.Equal(t, float32(42), bank.Get(0).Data[0])
}
