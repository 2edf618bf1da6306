// Package device implements the Device role (spec §4.B): the capability
// every synthesis node — master output, instrument interface, generator,
// effect, DSP — implements, plus the port bit-sets devices register
// against. This replaces function-pointer/register-switch polymorphism
// (a register-address dispatch table) with a tagged-variant interface,
// per DESIGN NOTES §9.
package device

import "github.com/kunquat-go/synth/buffer"

// MaxPorts is the number of distinct port indices a device can register,
// matching the two-hex-digit port index used by the connection path
// syntax (spec §6).
const MaxPorts = 256

// State is a device's opaque per-instance render state, created by
// CreateState and passed back into every other Device method. Concrete
// devices type-assert it back to their own state struct.
type State any

// Device is the capability role every synthesis node implements.
type Device interface {
	// CreateState allocates render state sized for the given audio rate
	// and buffer size. Called only outside a render call.
	CreateState(audioRate, bufferSize int) State
	// SetAudioRate propagates a sample-rate change into state.
	SetAudioRate(s State, rate int)
	// SetBufferSize propagates a buffer-size change into state.
	SetBufferSize(s State, size int)
	// SetTempo propagates a tempo change into state.
	SetTempo(s State, tempo float64)
	// Reset silences internal state, leaving parameters intact.
	Reset(s State)
	// UpdateKey notifies state that a configuration key changed; it
	// reads the new value from wherever the device keeps its config and
	// reports whether the key was recognised.
	UpdateKey(s State, key string) bool
	// Process renders into buffers.Outputs over [start, stop), reading
	// from buffers.Inputs where connected. Absent (unconnected) inputs
	// must be tolerated as silence: buffers.Inputs holds an entry only
	// for ports the graph actually wired.
	Process(s State, buffers *PortBuffers, start, stop, rate int, tempo float64)
	// Ports exposes the device's registered port set.
	Ports() *Ports
}

// Ports tracks which input and output port indices a device has
// registered. Connecting into an unregistered input port is a format
// error (checked by the graph package's Prepare).
type Ports struct {
	inputs  [MaxPorts / 64]uint64
	outputs [MaxPorts / 64]uint64
}

func setBit(words *[MaxPorts / 64]uint64, idx int) {
	words[idx/64] |= 1 << uint(idx%64)
}

func hasBit(words *[MaxPorts / 64]uint64, idx int) bool {
	if idx < 0 || idx >= MaxPorts {
		return false
	}
	return words[idx/64]&(1<<uint(idx%64)) != 0
}

// RegisterInput marks input port idx as available on this device.
func (p *Ports) RegisterInput(idx int) { setBit(&p.inputs, idx) }

// RegisterOutput marks output port idx as available on this device.
func (p *Ports) RegisterOutput(idx int) { setBit(&p.outputs, idx) }

// HasInput reports whether input port idx is registered.
func (p *Ports) HasInput(idx int) bool { return hasBit(&p.inputs, idx) }

// HasOutput reports whether output port idx is registered.
func (p *Ports) HasOutput(idx int) bool { return hasBit(&p.outputs, idx) }

// Base is an embeddable helper concrete devices use to build their Ports.
type Base struct {
	ports Ports
}

// Ports returns the device's port set.
func (b *Base) Ports() *Ports { return &b.ports }

// RegisterInputs registers each given input port index.
func (b *Base) RegisterInputs(idx ...int) {
	for _, i := range idx {
		b.ports.RegisterInput(i)
	}
}

// RegisterOutputs registers each given output port index.
func (b *Base) RegisterOutputs(idx ...int) {
	for _, i := range idx {
		b.ports.RegisterOutput(i)
	}
}

// PortBuffers holds the per-port audio buffers a graph node allocates for
// a device: one potential buffer per registered input port (populated only
// for ports with at least one incoming edge) and per registered output
// port.
type PortBuffers struct {
	Inputs  map[int]*buffer.Audio
	Outputs map[int]*buffer.Audio
}

// NewPortBuffers builds an empty PortBuffers map pair.
func NewPortBuffers() *PortBuffers {
	return &PortBuffers{Inputs: map[int]*buffer.Audio{}, Outputs: map[int]*buffer.Audio{}}
}
