package graph

import (
	"github.com/kunquat-go/synth/buffer"
	"github.com/kunquat-go/synth/device"
)

// SubGraphDevice adapts an entire nested Graph into a single Device, so
// an instrument's generator graph or an effect's DSP chain is pulled by
// its parent graph exactly like any leaf processor — the "per-instrument
// sub-graphs share the same algorithm" design: nesting is one more level
// of the same post-order pull, not a second traversal engine bolted on.
//
// An instrument has no external audio input (InputKey is empty) and
// OutputKey names its "Iin" node, which every bound generator feeds
// through ordinary Parse-validated edges. An effect's DSP chain does take
// external input, but the path grammar gives the chain's first DSP no
// inbound edge of its own to receive it (nothing upstream, inside the
// effect's own graph, produces it) — so InputKey instead names that first
// DSP node directly, and the parent's signal is written straight into its
// input buffer each block, bypassing the edge-based pull entirely.
// OutputKey names the chain's last DSP, whose ordinary output buffer is
// read back out after the inner Mix completes.
type SubGraphDevice struct {
	device.Base
	Inner     *Graph
	InputKey  string
	OutputKey string

	inputBuf *buffer.Audio
}

// NewSubGraphDevice builds a device wrapping inner, registering a single
// stereo in_00/out_00 port pair.
func NewSubGraphDevice(inner *Graph, inputKey, outputKey string) *SubGraphDevice {
	d := &SubGraphDevice{Inner: inner, InputKey: inputKey, OutputKey: outputKey}
	d.RegisterInputs(0)
	d.RegisterOutputs(0)
	return d
}

func (d *SubGraphDevice) CreateState(audioRate, bufferSize int) device.State {
	if err := d.Inner.Prepare(audioRate, bufferSize); err != nil {
		panic(err) // Prepare errors are parse/config bugs, never runtime conditions
	}
	if d.InputKey != "" {
		d.inputBuf = d.Inner.EnsureInputBuffer(d.InputKey, 0, bufferSize)
	}
	return nil
}

func (d *SubGraphDevice) SetAudioRate(s device.State, rate int)     {}
func (d *SubGraphDevice) SetBufferSize(s device.State, size int)    {}
func (d *SubGraphDevice) SetTempo(s device.State, tempo float64)    {}
func (d *SubGraphDevice) Reset(s device.State)                      {}
func (d *SubGraphDevice) UpdateKey(s device.State, key string) bool { return false }

func (d *SubGraphDevice) Process(s device.State, buffers *device.PortBuffers, start, stop, rate int, tempo float64) {
	d.Inner.Clear(start, stop)

	if d.inputBuf != nil {
		if in, ok := buffers.Inputs[0]; ok {
			d.inputBuf.Add(in, start, stop)
		}
	}

	d.Inner.Mix(start, stop, rate, tempo)

	if d.OutputKey == "" {
		return
	}
	out, ok := buffers.Outputs[0]
	if !ok {
		return
	}
	n := d.Inner.Node(d.OutputKey)
	if n == nil {
		return
	}
	if result, ok := n.Buffers.Outputs[0]; ok {
		out.Add(result, start, stop)
		return
	}
	if result, ok := n.Buffers.Inputs[0]; ok {
		out.Add(result, start, stop)
	}
}
