package main

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/kunquat-go/synth/buffer"
)

// otoPlayer is a pull-mode stereo float32 sink: oto calls Read whenever
// its internal ring buffer needs more bytes, and Read in turn calls back
// into the engine for one more rendered block, generalised from a mono
// chip-sample source to the engine's stereo *buffer.Audio.
type otoPlayer struct {
	ctx    *oto.Context
	player *oto.Player

	mu     sync.Mutex
	render func() (*buffer.Audio, error)
	scratch []byte
}

func newOtoPlayer(sampleRate int, render func() (*buffer.Audio, error)) (*otoPlayer, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   0,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	p := &otoPlayer{ctx: ctx, render: render}
	p.player = ctx.NewPlayer(p)
	return p, nil
}

// Read implements io.Reader for oto's pull-mode player: it fills out with
// interleaved L/R float32 samples rendered by the engine, one block at a
// time, blocking the caller (oto's own mixing goroutine) until a block is
// ready.
func (p *otoPlayer) Read(out []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	audio, err := p.render()
	if err != nil {
		return 0, err
	}

	frames := audio.Len()
	needed := frames * 2 * 4 // stereo, 4 bytes per float32
	if cap(p.scratch) < needed {
		p.scratch = make([]byte, needed)
	}
	buf := p.scratch[:needed]

	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(audio.L[i]))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(audio.R[i]))
	}

	n := copy(out, buf)
	return n, nil
}

func (p *otoPlayer) start() { p.player.Play() }
func (p *otoPlayer) stop()  { p.player.Close() }
