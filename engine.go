// Package kunquat implements the Engine API (spec §6): the single entry
// point a host embeds to load a composition, drive playback, and pull
// rendered audio. It ties together composition, playback, graph, and
// buffer the way a fixed-channel sound chip ties together its channels
// and global effects, generalised to an arbitrary data-driven device
// graph.
package kunquat

import (
	"github.com/charmbracelet/log"

	"github.com/kunquat-go/synth/buffer"
	"github.com/kunquat-go/synth/composition"
	"github.com/kunquat-go/synth/errs"
	"github.com/kunquat-go/synth/playback"
)

// Config bounds an Engine's fixed resources, all pre-allocated at New and
// never grown on the render path (spec §5's allocation-free hot path).
type Config struct {
	AudioRate    int
	BufferSize   int
	VoicePoolCap int
	EventQueueCap int
}

// DefaultConfig matches a typical desktop audio callback: 48kHz, 256-frame
// blocks, 256 voices, 64 queued events per tick.
var DefaultConfig = Config{AudioRate: 48000, BufferSize: 256, VoicePoolCap: 256, EventQueueCap: 64}

// Engine is the top-level handle a host drives: Load a Composition, Play
// a sub-song, Render blocks of audio.
type Engine struct {
	cfg       Config
	comp      *composition.Composition
	scheduler *playback.Scheduler
	out       *buffer.Audio
	errBuf    *errs.Buffer
	id        uint64
	logger    *log.Logger
}

// New builds an Engine with cfg's fixed resource bounds. No composition
// is loaded yet; call Load before Play.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		out:    buffer.NewAudio(cfg.BufferSize),
		errBuf: &errs.Buffer{},
		id:     errs.NextEngineID(),
		logger: log.Default(),
	}
}

// ID returns this engine instance's unique identifier, for hosts tracking
// more than one Engine.
func (e *Engine) ID() uint64 { return e.id }

// LastError returns the most recent error latched for this engine, per
// spec §7's get_error interface, or nil if none is pending.
func (e *Engine) LastError() *errs.Error { return e.errBuf.Get() }

// Load installs comp as the Engine's active composition, preparing its
// master graph and every instrument/effect sub-graph for rendering.
func (e *Engine) Load(comp *composition.Composition) error {
	if comp.Master == nil {
		return e.fail(errs.New(errs.Format, "composition has no master graph"))
	}
	if err := comp.Master.Prepare(e.cfg.AudioRate, e.cfg.BufferSize); err != nil {
		return e.fail(err)
	}
	for key, ins := range comp.Instruments {
		if err := ins.Graph.Prepare(e.cfg.AudioRate, e.cfg.BufferSize); err != nil {
			return e.fail(err)
		}
		e.logger.Debug("prepared instrument graph", "key", key)
	}
	for key, eff := range comp.Effects {
		if err := eff.Graph.Prepare(e.cfg.AudioRate, e.cfg.BufferSize); err != nil {
			return e.fail(err)
		}
		e.logger.Debug("prepared effect graph", "key", key)
	}

	e.comp = comp
	e.scheduler = playback.NewScheduler(comp, e.cfg.EventQueueCap, e.cfg.VoicePoolCap)
	e.scheduler.Logger = e.logger
	return nil
}

// Play starts playback of the given sub-song index.
func (e *Engine) Play(subsong int) error {
	if e.scheduler == nil {
		return e.fail(errs.New(errs.Format, "no composition loaded"))
	}
	if err := e.scheduler.Play(subsong); err != nil {
		return e.fail(err)
	}
	return nil
}

// Stop halts playback without unloading the composition.
func (e *Engine) Stop() {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
}

// Playing reports whether the engine is currently advancing playback.
func (e *Engine) Playing() bool {
	return e.scheduler != nil && e.scheduler.State().Playing
}

// State returns the scheduler's current transport position.
func (e *Engine) State() playback.State {
	if e.scheduler == nil {
		return playback.State{}
	}
	return e.scheduler.State()
}

// Render advances playback by one buffer's worth of frames and mixes the
// result into the Engine's internal stereo buffer, returning it. The
// returned buffer is only valid until the next Render call (it is reused
// across calls, per spec §5's allocation-free render path).
func (e *Engine) Render() (*buffer.Audio, error) {
	if e.scheduler == nil || e.comp == nil {
		return nil, e.fail(errs.New(errs.Format, "no composition loaded"))
	}

	frames := e.cfg.BufferSize
	e.out.Clear(0, frames)
	e.comp.Master.Clear(0, frames)

	if e.scheduler.State().Playing {
		if err := e.scheduler.Advance(e.cfg.AudioRate, frames); err != nil {
			return nil, e.fail(err)
		}
	}
	e.scheduler.BindInstrumentVoices()

	if err := e.comp.Master.Mix(0, frames, e.cfg.AudioRate, e.scheduler.State().Tempo); err != nil {
		return nil, e.fail(err)
	}

	root := e.comp.Master.Node("")
	if root != nil {
		if buf, ok := root.Buffers.Inputs[0]; ok {
			e.out.Add(buf, 0, frames)
		}
	}
	e.scheduler.ReapVoices()
	return e.out, nil
}

func (e *Engine) fail(err error) error {
	if ke, ok := err.(*errs.Error); ok {
		e.errBuf.Set(ke)
	}
	return err
}
