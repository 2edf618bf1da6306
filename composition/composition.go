// Package composition holds the passive data model (spec §3): the
// Composition container and its Sub-songs, Patterns, Columns, and the
// Instrument/Effect tables that tie graph nodes to concrete processors.
// These are plain structs carrying yaml tags in a config-struct style.
// The fixture format cmd/kunquatplay loads is the separate Fixture type
// (fixture.go), which ParseFixture and Fixture.Build turn into a
// Composition; there is no conversion from a Composition back to a
// Fixture.
package composition

import (
	"github.com/kunquat-go/synth/device"
	"github.com/kunquat-go/synth/errs"
	"github.com/kunquat-go/synth/event"
	"github.com/kunquat-go/synth/graph"
	"github.com/kunquat-go/synth/scale"
	"github.com/kunquat-go/synth/timestamp"
)

// ColumnEvent pairs a fired event with the position in pattern-time it
// occurs at; a Column's events are kept sorted by Time.
type ColumnEvent struct {
	Time timestamp.Timestamp `yaml:"time"`
	Ev   event.Event         `yaml:"event"`
}

// Column is one channel's timeline within a Pattern.
type Column struct {
	Events []ColumnEvent `yaml:"events"`
}

// Insert adds ev at t, keeping Events sorted by Time. An event inserted at
// a time already present goes after the events already there, so events
// sharing a timestamp keep their insertion order.
func (c *Column) Insert(t timestamp.Timestamp, ev event.Event) {
	i := 0
	for i < len(c.Events) && !timestamp.Less(t, c.Events[i].Time) {
		i++
	}
	c.Events = append(c.Events, ColumnEvent{})
	copy(c.Events[i+1:], c.Events[i:])
	c.Events[i] = ColumnEvent{Time: t, Ev: ev}
}

// Pattern is a fixed-length grid of per-channel Columns.
type Pattern struct {
	Length  timestamp.Timestamp `yaml:"length"`
	Columns []Column            `yaml:"columns"`
}

// OrderEntry names one pattern slot played within a Sub-song's sequence,
// by index into Composition.Patterns.
type OrderEntry struct {
	PatternIndex int `yaml:"pattern"`
}

// SubSong is one playable sequence of patterns at an initial tempo.
type SubSong struct {
	Name        string       `yaml:"name"`
	InitalTempo float64      `yaml:"initial_tempo"`
	Order       []OrderEntry `yaml:"order"`
}

// GenTable holds the generator devices wired into one instrument, keyed
// by the two-hex-digit index used in "ins_XX/gen_YY" connection paths.
type GenTable struct {
	entries map[int]device.Device
}

// EffectTable holds the DSP devices wired into one effect unit, keyed by
// the "dsp_YY" index.
type EffectTable struct {
	entries map[int]device.Device
}

// NewGenTable and NewEffectTable build empty tables.
func NewGenTable() *GenTable       { return &GenTable{entries: map[int]device.Device{}} }
func NewEffectTable() *EffectTable { return &EffectTable{entries: map[int]device.Device{}} }

// Set registers dev at index idx, overwriting any previous entry.
func (g *GenTable) Set(idx int, dev device.Device) { g.entries[idx] = dev }

// Get returns the generator at idx, if any.
func (g *GenTable) Get(idx int) (device.Device, bool) { d, ok := g.entries[idx]; return d, ok }

// All returns every registered index.
func (g *GenTable) All() map[int]device.Device { return g.entries }

// Set registers dev at index idx, overwriting any previous entry.
func (e *EffectTable) Set(idx int, dev device.Device) { e.entries[idx] = dev }

// Get returns the DSP at idx, if any.
func (e *EffectTable) Get(idx int) (device.Device, bool) { d, ok := e.entries[idx]; return d, ok }

// All returns every registered index.
func (e *EffectTable) All() map[int]device.Device { return e.entries }

// Instrument bundles the connection graph and generator table for one
// "ins_XX" node, per the resolved Open Question that only this newer
// (Connections + GenTable) shape is supported, not the legacy implicit
// generator-list format.
type Instrument struct {
	Name  string        `yaml:"name"`
	Key   string         `yaml:"key"` // "ins_00" etc.
	Graph *graph.Graph   `yaml:"-"`
	Gens  *GenTable      `yaml:"-"`
}

// Effect bundles an effect unit's internal DSP graph, for both the
// top-level "eff_XX" effects and "ins_XX/eff_YY" inner effects.
type Effect struct {
	Name  string
	Key   string
	Graph *graph.Graph
	DSPs  *EffectTable
}

// Composition is the top-level container: sub-songs, shared pattern
// pool, instrument/effect tables, tuning, and the master connection
// graph.
type Composition struct {
	Name        string                 `yaml:"name"`
	Subsongs    []*SubSong             `yaml:"subsongs"`
	Patterns    []*Pattern             `yaml:"patterns"`
	Instruments map[string]*Instrument `yaml:"-"`
	Effects     map[string]*Effect     `yaml:"-"`
	Scale       *scale.Scale           `yaml:"-"`
	Master      *graph.Graph           `yaml:"-"`
	Limits      graph.Limits           `yaml:"-"`
}

// New builds an empty composition with a 12-tone equal-tempered scale at
// A440 and a fresh master graph, ready for Instruments/Effects/Patterns to
// be added.
func New() *Composition {
	return &Composition{
		Instruments: map[string]*Instrument{},
		Effects:     map[string]*Effect{},
		Scale:       scale.NewEqualTempered12(440.0),
		Master:      graph.NewGraph(""),
		Limits:      graph.DefaultLimits,
	}
}

// AddInstrument registers an instrument under key ("ins_00", ...),
// building its internal sub-graph rooted at "key/Iin" — the node where
// every bound generator's output sums before the instrument's inner
// effects and, ultimately, the master graph see it. Duplicate keys are a
// Format error.
func (c *Composition) AddInstrument(key, name string) (*Instrument, error) {
	if _, exists := c.Instruments[key]; exists {
		return nil, errs.New(errs.Format, "instrument %q already exists", key)
	}
	ins := &Instrument{Name: name, Key: key, Graph: graph.NewGraph(key + "/Iin"), Gens: NewGenTable()}
	c.Instruments[key] = ins
	return ins, nil
}

// AddEffect registers a top-level effect under key ("eff_00", ...). Its
// internal graph's root is left unset (graph.NewGraph("")) since, unlike
// an instrument's fixed "Iin" aggregation point, an effect's sink is
// whichever DSP sits last in its chain — set via Graph.SetRoot once the
// chain is assembled.
func (c *Composition) AddEffect(key, name string) (*Effect, error) {
	if _, exists := c.Effects[key]; exists {
		return nil, errs.New(errs.Format, "effect %q already exists", key)
	}
	eff := &Effect{Name: name, Key: key, Graph: graph.NewGraph(""), DSPs: NewEffectTable()}
	c.Effects[key] = eff
	return eff, nil
}

// AddPattern appends a pattern and returns its index.
func (c *Composition) AddPattern(p *Pattern) int {
	c.Patterns = append(c.Patterns, p)
	return len(c.Patterns) - 1
}

// PatternAt resolves a sub-song's order-list entry to a *Pattern, or a
// Format error if the index is out of range.
func (c *Composition) PatternAt(sub *SubSong, orderIndex int) (*Pattern, error) {
	if orderIndex < 0 || orderIndex >= len(sub.Order) {
		return nil, errs.New(errs.Format, "order index %d out of range (len %d)", orderIndex, len(sub.Order))
	}
	pi := sub.Order[orderIndex].PatternIndex
	if pi < 0 || pi >= len(c.Patterns) {
		return nil, errs.New(errs.Format, "pattern index %d out of range (len %d)", pi, len(c.Patterns))
	}
	return c.Patterns[pi], nil
}
