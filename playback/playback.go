// Package playback implements the scheduler (spec §4.H): it walks a
// composition's patterns forward in exact musical time, drains fired
// column events into voice allocations and parameter changes, and
// produces the Mix-state snapshot a caller reads playback position from.
//
// The tick/drain loop shape is grounded on a chip-stepping convention
// (generate one output frame per call from a tight loop) generalised to
// a block-at-a-time render call, and logged with charmbracelet/log on
// every state transition, never inside the per-sample path.
package playback

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kunquat-go/synth/composition"
	"github.com/kunquat-go/synth/errs"
	"github.com/kunquat-go/synth/event"
	"github.com/kunquat-go/synth/kernel"
	"github.com/kunquat-go/synth/proc"
	"github.com/kunquat-go/synth/timestamp"
	"github.com/kunquat-go/synth/voice"
)

// State is the scheduler's externally-visible position and transport
// status, safe to copy (spec §5's mutex-guarded Mix-state snapshot).
type State struct {
	SubSong    int
	OrderIndex int
	Pos        timestamp.Timestamp
	Tempo      float64
	Frame      int64
	Playing    bool
}

type jumpTarget struct {
	row      timestamp.Timestamp
	section  int
	subsong  int
	counter  int
	hasCount bool
}

// tempoSlide is a linear ramp between two tempos over a fixed span of
// musical time, advanced one Advance call's worth of beats at a time.
type tempoSlide struct {
	from, to float64
	total    timestamp.Timestamp
	elapsed  timestamp.Timestamp
}

// advance reports the ramp's tempo once elapsed has advanced by
// deltaBeats, and whether the ramp has reached its target.
func (s *tempoSlide) advance(deltaBeats timestamp.Timestamp) (tempo float64, done bool) {
	s.elapsed = timestamp.Add(s.elapsed, deltaBeats)
	total := s.total.ToFloatBeats()
	if total <= 0 || timestamp.Compare(s.elapsed, s.total) >= 0 {
		return s.to, true
	}
	frac := s.elapsed.ToFloatBeats() / total
	return s.from + (s.to-s.from)*frac, false
}

// channelState holds one channel's controller machinery: force/filter/
// panning sliders, vibrato/tremolo LFOs, the base pitch a note_on
// resolved to, and a simple arpeggio cycle. Lazily created the first
// time a channel is addressed.
type channelState struct {
	force        kernel.Slider
	filterCutoff kernel.Slider
	panning      kernel.Slider
	vibrato      kernel.LFO
	tremolo      kernel.LFO

	arpeggioOffsets []int
	arpeggioIndex   int
	arpeggioFrame   int

	baseFreq    float64
	baseVolume  float64
	initialised bool // vibrato/tremolo LFO.Init has run for the current audio rate
}

// arpeggioStepFrames is how many frames each arpeggio step holds before
// advancing to the next offset: a fixed 1/20s step independent of tempo.
func arpeggioStepFrames(rate int) int { return rate / 20 }

// Scheduler drives one Composition's playback, owning the voice pool and
// event plumbing the column walk feeds.
type Scheduler struct {
	Comp     *composition.Composition
	Registry *event.Registry
	Cache    *event.Cache
	Queue    *event.Queue
	Voices   *voice.Pool
	Logger   *log.Logger

	state State

	channelInstrument map[int]string
	channelVolume     map[int]float64
	channels          map[int]*channelState
	jumpStaging       map[int]*jumpTarget
	nextGroup         uint64

	tempoSlide *tempoSlide
	sampleRate int
}

// NewScheduler builds a scheduler over comp, with queueCap events of
// headroom per tick and a voicePoolCap-voice pool.
func NewScheduler(comp *composition.Composition, queueCap, voicePoolCap int) *Scheduler {
	return &Scheduler{
		Comp:              comp,
		Registry:          event.DefaultRegistry(),
		Cache:             event.NewCache(),
		Queue:             event.NewQueue(queueCap),
		Voices:            voice.NewPool(voicePoolCap),
		Logger:            log.Default(),
		channelInstrument: map[int]string{},
		channelVolume:     map[int]float64{},
		channels:          map[int]*channelState{},
		jumpStaging:       map[int]*jumpTarget{},
	}
}

// State returns a copy of the scheduler's current transport position.
func (s *Scheduler) State() State { return s.state }

// Play starts (or restarts) playback at the given sub-song's first order
// entry and initial tempo.
func (s *Scheduler) Play(subsong int) error {
	if subsong < 0 || subsong >= len(s.Comp.Subsongs) {
		return errs.New(errs.Format, "sub-song index %d out of range", subsong)
	}
	sub := s.Comp.Subsongs[subsong]
	s.state = State{SubSong: subsong, OrderIndex: 0, Pos: timestamp.Zero, Tempo: sub.InitalTempo, Playing: true}
	s.Voices.Reset()
	s.Queue.Clear()
	s.Logger.Debug("playback started", "subsong", subsong, "tempo", sub.InitalTempo)
	return nil
}

// Stop halts playback, leaving position where it was.
func (s *Scheduler) Stop() {
	s.state.Playing = false
	s.Logger.Debug("playback stopped", "frame", s.state.Frame)
}

// framesPerBeat converts the scheduler's current tempo (beats per
// minute) to frames, at the given audio rate.
func (s *Scheduler) framesPerBeat(rate int) float64 {
	if s.state.Tempo <= 0 {
		return float64(rate)
	}
	return float64(rate) * 60.0 / s.state.Tempo
}

// Advance steps playback forward by frames at the given audio rate,
// walking any column events the step crosses into the event queue,
// draining the queue, and applying jump/tempo/voice side effects. It
// returns an error only when the current order entry does not resolve to
// a pattern (playback then stops); otherwise, including when playback is
// stopped or the order list has been exhausted, it returns nil.
func (s *Scheduler) Advance(rate, frames int) error {
	if !s.state.Playing {
		return nil
	}
	s.sampleRate = rate

	sub := s.Comp.Subsongs[s.state.SubSong]
	pat, err := s.Comp.PatternAt(sub, s.state.OrderIndex)
	if err != nil {
		s.state.Playing = false
		return err
	}

	deltaBeats := float64(frames) / s.framesPerBeat(rate)
	delta := timestamp.FromFloatBeats(deltaBeats)
	newPos := timestamp.Add(s.state.Pos, delta)

	posBefore, orderBefore, subBefore := s.state.Pos, s.state.OrderIndex, s.state.SubSong
	s.walkColumns(pat, s.state.Pos, newPos)
	s.drainQueue()
	// A jump resolved while draining has already set the new position.
	jumped := s.state.Pos != posBefore || s.state.OrderIndex != orderBefore || s.state.SubSong != subBefore

	if s.tempoSlide != nil {
		tempo, done := s.tempoSlide.advance(delta)
		s.state.Tempo = tempo
		if done {
			s.tempoSlide = nil
		}
	}
	s.applyChannelModulation(rate, frames)

	s.state.Frame += int64(frames)
	if jumped {
		return nil
	}
	s.state.Pos = newPos

	if timestamp.Compare(s.state.Pos, pat.Length) >= 0 {
		s.advanceOrder(sub)
	}
	return nil
}

// applyChannelModulation steps every active voice's channel controller
// state (force/filter/panning sliders, vibrato/tremolo LFOs, arpeggio
// cycling) by one block's worth of frames and writes the result onto the
// voice fields a generator's Process reads back.
func (s *Scheduler) applyChannelModulation(rate, frames int) {
	for _, v := range s.Voices.Active() {
		cs, ok := s.channels[v.Channel]
		if !ok {
			continue
		}
		if !cs.initialised {
			cs.vibrato.Init(float64(rate))
			cs.tremolo.Init(float64(rate))
			cs.initialised = true
		}

		vol := cs.baseVolume
		if force := cs.force.Step(frames); force > 0 {
			vol = force
		}
		v.Pan = cs.panning.Step(frames)
		v.FilterCutoffHz = cs.filterCutoff.Step(frames)

		freq := cs.baseFreq
		if len(cs.arpeggioOffsets) > 0 {
			cs.arpeggioFrame += frames
			if step := arpeggioStepFrames(rate); step > 0 {
				cs.arpeggioIndex = (cs.arpeggioIndex + cs.arpeggioFrame/step) % len(cs.arpeggioOffsets)
				cs.arpeggioFrame %= step
			}
			freq *= math.Pow(2, float64(cs.arpeggioOffsets[cs.arpeggioIndex])/12)
		}

		var vibratoSemis, tremolo float64
		for i := 0; i < frames; i++ {
			vibratoSemis = cs.vibrato.Step()
			tremolo = cs.tremolo.Step()
		}
		freq *= math.Pow(2, vibratoSemis/12)

		if freq > 0 {
			v.NoteFreq = freq
		}
		v.Volume = vol * (1 + tremolo)
	}
}

// walkColumns pushes every event in [from, to) across every channel into
// the queue, lowest channel index first (so a same-tick resolution, e.g.
// simultaneous jumps, always sees lowest-channel-first ordering).
func (s *Scheduler) walkColumns(pat *composition.Pattern, from, to timestamp.Timestamp) {
	for ch := range pat.Columns {
		col := &pat.Columns[ch]
		for _, ce := range col.Events {
			if timestamp.Less(ce.Time, from) || !timestamp.Less(ce.Time, to) {
				continue
			}
			ev := ce.Ev
			ev.Channel = ch
			if err := s.Queue.Push(ev); err != nil {
				s.Logger.Warn("event queue full, dropping event", "channel", ch, "event", ev.Name)
				return
			}
		}
	}
}

// drainQueue applies every queued event's side effects in FIFO order,
// consuming each channel's conditional-skip predicate first.
func (s *Scheduler) drainQueue() {
	var jumpRequests []int
	for {
		ev, ok := s.Queue.Get()
		if !ok {
			break
		}
		if !s.Cache.ConsumeCondition(ev.Channel) {
			continue
		}
		if err := s.Registry.Validate(ev); err != nil {
			s.Logger.Warn("dropping invalid event", "err", err)
			continue
		}
		if s.applyEvent(ev) {
			jumpRequests = append(jumpRequests, ev.Channel)
		}
	}
	s.resolveJumps(jumpRequests)
}

// applyEvent performs one event's side effect, returning true if it was a
// "jump" request (so drainQueue can collect it for simultaneous-jump
// resolution instead of acting on it immediately).
func (s *Scheduler) applyEvent(ev event.Event) bool {
	s.Cache.Set(ev.Channel, ev.Name, ev.Arg)

	switch ev.Name {
	case "note_on":
		s.noteOn(ev.Channel, ev.Arg)
	case "note_off":
		s.noteOff(ev.Channel)
	case "set_volume":
		s.channelVolume[ev.Channel] = ev.Arg.F
		s.channel(ev.Channel).baseVolume = ev.Arg.F
	case "set_instrument":
		s.channelInstrument[ev.Channel] = fmt.Sprintf("ins_%02x", ev.Arg.I)
	case "set_tempo":
		s.state.Tempo = ev.Arg.F
		s.tempoSlide = nil
	case "slide_tempo":
		s.tempoSlide = &tempoSlide{from: s.state.Tempo, to: ev.Arg.F, total: ev.Arg.T}
	case "slide_force":
		cs := s.channel(ev.Channel)
		cs.force.SetTarget(ev.Arg.F, s.slideFrames(ev.Arg.T))
	case "slide_filter":
		cs := s.channel(ev.Channel)
		cs.filterCutoff.SetTarget(ev.Arg.F, s.slideFrames(ev.Arg.T))
	case "set_panning":
		s.channel(ev.Channel).panning.Reset(ev.Arg.F)
	case "slide_panning":
		cs := s.channel(ev.Channel)
		cs.panning.SetTarget(ev.Arg.F, s.slideFrames(ev.Arg.T))
	case "set_vibrato":
		cs := s.channel(ev.Channel)
		cs.vibrato.Speed = float64(ev.Arg.I) / 1000
		cs.vibrato.Depth = ev.Arg.F
	case "set_tremolo":
		cs := s.channel(ev.Channel)
		cs.tremolo.Speed = float64(ev.Arg.I) / 1000
		cs.tremolo.Depth = ev.Arg.F
	case "arpeggio":
		cs := s.channel(ev.Channel)
		cs.arpeggioOffsets = parseArpeggio(ev.Arg.S)
		cs.arpeggioIndex = 0
		cs.arpeggioFrame = 0
	case "set_jump_row":
		s.stage(ev.Channel).row = timestamp.New(ev.Arg.I, 0)
	case "set_jump_section":
		s.stage(ev.Channel).section = int(ev.Arg.I)
	case "set_jump_subsong":
		s.stage(ev.Channel).subsong = int(ev.Arg.I)
	case "set_jump_counter":
		t := s.stage(ev.Channel)
		t.counter, t.hasCount = int(ev.Arg.I), true
	case "cond":
		s.Cache.SetCondition(ev.Channel, ev.Arg.B)
	case "jump":
		return true
	}
	return false
}

func (s *Scheduler) stage(ch int) *jumpTarget {
	t, ok := s.jumpStaging[ch]
	if !ok {
		t = &jumpTarget{subsong: s.state.SubSong}
		s.jumpStaging[ch] = t
	}
	return t
}

// channel returns channel ch's controller state, creating it on first use.
func (s *Scheduler) channel(ch int) *channelState {
	cs, ok := s.channels[ch]
	if !ok {
		cs = &channelState{}
		s.channels[ch] = cs
	}
	return cs
}

// slideFrames converts a SlideValue's beats-denominated ramp duration to a
// frame count at the scheduler's last-seen audio rate.
func (s *Scheduler) slideFrames(duration timestamp.Timestamp) int {
	rate := s.sampleRate
	if rate == 0 {
		rate = 44100
	}
	frames := duration.ToFloatBeats() * s.framesPerBeat(rate)
	if frames < 0 {
		frames = 0
	}
	return int(frames)
}

// parseArpeggio splits an arpeggio argument's comma-separated semitone
// offsets ("0,4,7") into a cycle of integer offsets; malformed entries are
// skipped.
func parseArpeggio(s string) []int {
	var offsets []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		offsets = append(offsets, n)
	}
	return offsets
}

// resolveJumps applies the lowest-channel-index jump request fired this
// tick, per spec §9's resolved Open Question; later requests are ignored
// and logged at debug level.
func (s *Scheduler) resolveJumps(channels []int) {
	if len(channels) == 0 {
		return
	}
	winner := channels[0]
	for _, ch := range channels[1:] {
		if ch < winner {
			winner = ch
		}
	}
	for _, ch := range channels {
		if ch != winner {
			s.Logger.Debug("ignoring simultaneous jump", "channel", ch, "winner", winner)
		}
	}

	t, ok := s.jumpStaging[winner]
	if !ok {
		return
	}
	if t.hasCount {
		if t.counter <= 0 {
			return
		}
		t.counter--
	}
	s.state.SubSong = t.subsong
	s.state.OrderIndex = t.section
	s.state.Pos = t.row
}

// advanceOrder moves to the next order-list entry, wrapping sub-song
// playback to a stop once the order list is exhausted.
func (s *Scheduler) advanceOrder(sub *composition.SubSong) {
	s.state.OrderIndex++
	s.state.Pos = timestamp.Zero
	if s.state.OrderIndex >= len(sub.Order) {
		s.state.Playing = false
		s.Logger.Debug("playback reached end of order list")
	}
}

// noteOn resolves arg's (note index, octave) pair through the
// composition's scale into a frequency, then allocates one voice per
// generator the channel's bound instrument carries, seeding each from
// the channel's current controller state.
func (s *Scheduler) noteOn(channel int, arg event.Value) {
	key, ok := s.channelInstrument[channel]
	if !ok {
		return
	}
	ins, ok := s.Comp.Instruments[key]
	if !ok {
		return
	}
	vol := s.channelVolume[channel]
	if vol == 0 {
		vol = 1.0
	}

	freq := 440.0
	if s.Comp.Scale != nil {
		if f, ok := s.Comp.Scale.FreqOf(int(arg.I), int(arg.F)); ok {
			freq = f
		}
	}

	cs := s.channel(channel)
	cs.baseFreq = freq
	cs.baseVolume = vol

	s.nextGroup++
	group := s.nextGroup
	for range ins.Gens.All() {
		v := s.Voices.Allocate(channel, group, 0, freq)
		v.Instrument = key
		v.Volume = vol
		v.Pan = cs.panning.Value()
		v.FilterCutoffHz = cs.filterCutoff.Value()
	}
}

func (s *Scheduler) noteOff(channel int) {
	for _, v := range s.Voices.Active() {
		if v.Channel == channel {
			s.Voices.Release(v)
		}
	}
}

// ReapVoices frees every voice a processor marked Dead this block and
// returns the number of voices still audible afterward. Called once per
// render block, after the master graph has been mixed so a generator has
// had the chance to mark its own voices dead.
func (s *Scheduler) ReapVoices() int {
	return s.Voices.Mix()
}

// BindInstrumentVoices binds each instrument's currently active voices
// into its generator devices, ready for the caller to Mix the master
// graph. Called once per render block, after Advance and before
// graph.Graph.Mix.
func (s *Scheduler) BindInstrumentVoices() {
	for key, ins := range s.Comp.Instruments {
		voices := s.Voices.ForInstrument(key)
		for idx, dev := range ins.Gens.All() {
			node := ins.Graph.Node(fmt.Sprintf("%s/gen_%02x", key, idx))
			if node == nil {
				continue
			}
			if binder, ok := dev.(proc.VoiceBinder); ok {
				binder.BindVoices(node.State, voices)
			}
		}
	}
}
