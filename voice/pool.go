package voice

import (
	"sort"

	"github.com/kunquat-go/synth/errs"
)

// Pool is a fixed-capacity, pre-allocated set of Voices. Allocate never
// grows the backing slice during render; a full pool steals its lowest-
// priority, oldest-and-quietest voice instead (spec §4.D).
type Pool struct {
	voices []*Voice
	nextID uint64
	nextGen uint64
}

// NewPool pre-allocates capacity Voice slots, all initially free.
func NewPool(capacity int) *Pool {
	p := &Pool{voices: make([]*Voice, capacity)}
	for i := range p.voices {
		p.voices[i] = &Voice{Phase: PhaseFree}
	}
	return p
}

// Capacity reports the pool's fixed voice count.
func (p *Pool) Capacity() int { return len(p.voices) }

// Allocate claims a free voice, or steals one if the pool is full. It
// never returns a nil voice and never grows the pool; the returned
// *Voice's fields are reset to the given note's starting parameters and
// its State is nil, for the caller's processor to initialise.
func (p *Pool) Allocate(channel int, groupID uint64, priority int, freq float64) *Voice {
	v := p.findFree()
	if v == nil {
		v = p.steal()
	}

	p.nextID++
	v.ID = p.nextID
	p.nextGen++
	v.Generation = p.nextGen
	v.Channel = channel
	v.GroupID = groupID
	v.Priority = priority
	v.NoteFreq = freq
	v.Volume = 0
	v.Pan = 0
	v.FilterCutoffHz = 0
	v.Dead = false
	v.Phase = PhaseHeld
	v.State = nil
	return v
}

func (p *Pool) findFree() *Voice {
	for _, v := range p.voices {
		if v.Phase == PhaseFree {
			return v
		}
	}
	return nil
}

// steal picks a victim by lowest priority first, then oldest generation,
// then quietest current volume; Allocate then overwrites the victim's
// fields for reuse.
func (p *Pool) steal() *Voice {
	victim := p.voices[0]
	for _, v := range p.voices[1:] {
		if worseVictim(v, victim) {
			victim = v
		}
	}
	return victim
}

func worseVictim(candidate, current *Voice) bool {
	if candidate.Priority != current.Priority {
		return candidate.Priority < current.Priority
	}
	if candidate.Generation != current.Generation {
		return candidate.Generation < current.Generation
	}
	return candidate.Volume < current.Volume
}

// Release transitions a held voice into its release phase (note-off); the
// voice stays allocated, rendering its release tail, until the processor
// rendering it sets Dead and the next Pool.Mix frees it.
func (p *Pool) Release(v *Voice) {
	if v.Phase == PhaseHeld {
		v.Phase = PhaseReleased
	}
}

// ReleaseGroup releases every voice sharing groupID, for note-off events
// that must stop every generator a note event spawned together.
func (p *Pool) ReleaseGroup(groupID uint64) {
	for _, v := range p.voices {
		if v.GroupID == groupID {
			p.Release(v)
		}
	}
}

// Free marks a voice inaudible and returns it to the free list; Pool.Mix
// calls it for every voice a processor has marked Dead.
func (p *Pool) Free(v *Voice) {
	v.Phase = PhaseFree
	v.State = nil
	v.Dead = false
}

// Mix sweeps the pool for voices a processor marked Dead this block,
// frees them, and returns the number of voices still audible afterward.
// The scheduler calls this once per render block, after Process has had
// a chance to render every voice's final block.
func (p *Pool) Mix() int {
	active := 0
	for _, v := range p.voices {
		if !v.audible() {
			continue
		}
		if v.Dead {
			p.Free(v)
			continue
		}
		active++
	}
	return active
}

// IterateGroups buckets every audible voice by the GroupID a single
// note-on's generators share, for group-aware processing such as ring
// modulation and hard sync that must see every voice a note spawned
// together, not just one at a time.
func (p *Pool) IterateGroups() map[uint64][]*Voice {
	groups := map[uint64][]*Voice{}
	for _, v := range p.voices {
		if v.audible() {
			groups[v.GroupID] = append(groups[v.GroupID], v)
		}
	}
	return groups
}

// Active returns every voice currently held or releasing, in allocation
// order, for the scheduler to drive Process on each render block.
func (p *Pool) Active() []*Voice {
	out := make([]*Voice, 0, len(p.voices))
	for _, v := range p.voices {
		if v.audible() {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out
}

// ForInstrument returns every audible voice allocated for instrument key,
// in allocation order, for binding into that instrument's generators
// ahead of a render block.
func (p *Pool) ForInstrument(key string) []*Voice {
	var out []*Voice
	for _, v := range p.voices {
		if v.audible() && v.Instrument == key {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out
}

// Group returns every audible voice sharing groupID.
func (p *Pool) Group(groupID uint64) []*Voice {
	var out []*Voice
	for _, v := range p.voices {
		if v.audible() && v.GroupID == groupID {
			out = append(out, v)
		}
	}
	return out
}

// Reset frees every voice, discarding all render state; used when the
// engine rewinds or stops playback.
func (p *Pool) Reset() {
	for _, v := range p.voices {
		*v = Voice{Phase: PhaseFree}
	}
}

// ErrPoolExhausted is never actually returned by Allocate (it always
// steals instead), but is exposed for callers that want to detect
// stealing after the fact by comparing voice IDs before and after.
var ErrPoolExhausted = errs.New(errs.Resource, "voice pool exhausted")
