package event

import "sync"

// Cache holds the last-seen Value for each (channel, event name) pair and
// each channel's pending conditional-skip predicate. The scheduler records
// every applied event with Set and checks ConsumeCondition before applying
// the next event on a channel. Guarded by a mutex per spec §5's
// control-thread/audio-thread separation; cross-thread readers take
// Snapshot's copy instead of holding the lock.
type Cache struct {
	mu     sync.Mutex
	values map[cacheKey]Value
	// cond holds each channel's conditional-skip predicate, set by a
	// "cond" event and consumed by the next event on that channel: a
	// false predicate causes that one event to be dropped instead of
	// queued (spec §4.G's "#" skip syntax).
	cond map[int]bool
}

type cacheKey struct {
	channel int
	name    string
}

// NewCache builds an empty cache.
func NewCache() *Cache {
	return &Cache{values: map[cacheKey]Value{}, cond: map[int]bool{}}
}

// Set records the last-seen value of name on channel.
func (c *Cache) Set(channel int, name string, v Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[cacheKey{channel, name}] = v
}

// Get returns the last-seen value of name on channel, if any.
func (c *Cache) Get(channel int, name string) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[cacheKey{channel, name}]
	return v, ok
}

// SetCondition records channel's current skip predicate (from a "cond"
// event): true means the next event proceeds normally, false means it is
// dropped.
func (c *Cache) SetCondition(channel int, pass bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cond[channel] = pass
}

// ConsumeCondition reports and clears channel's pending predicate. A
// channel with no pending predicate always passes (the common case: most
// events are not preceded by a "cond").
func (c *Cache) ConsumeCondition(channel int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pass, ok := c.cond[channel]
	if !ok {
		return true
	}
	delete(c.cond, channel)
	return pass
}

// Snapshot copies the cached values keyed by event name only, for
// cross-thread readers (e.g. a UI) that must not hold the cache's lock
// while they work. When several channels hold a value for the same name,
// the copy holds just one of them, and which one is not defined.
func (c *Cache) Snapshot() map[string]Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Value, len(c.values))
	for k, v := range c.values {
		out[k.name] = v
	}
	return out
}
