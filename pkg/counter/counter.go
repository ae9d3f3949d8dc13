package counter

import "time"

// Counter tracks a monotonically increasing raw value across samples and
// exposes the last delta and its per-second rate.
type Counter struct {
	current  int64
	previous int64
	delta    int64
	rate     float64
	updates  int
}

// Update records a new raw value taken elapsed after the previous one.
func (c *Counter) Update(raw int64, elapsed time.Duration) {
	c.previous = c.current
	c.current = raw
	c.updates++
	if c.updates < 2 {
		c.delta = 0
		c.rate = 0
		return
	}
	c.delta = c.current - c.previous
	if elapsed <= 0 {
		c.rate = 0
		return
	}
	c.rate = float64(c.delta) / elapsed.Seconds()
}

// Current returns the most recent raw value.
func (c *Counter) Current() int64 { return c.current }

// Delta returns current - previous, or 0 before the second update.
func (c *Counter) Delta() int64 { return c.delta }

// Rate returns the delta per second, or 0 when no rate could be computed.
func (c *Counter) Rate() float64 { return c.rate }

// Ready reports whether a delta is available.
func (c *Counter) Ready() bool { return c.updates >= 2 }

// Set is a group of named counters updated together once per cycle.
type Set struct {
	counters map[string]*Counter
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{counters: make(map[string]*Counter)}
}

// Update feeds every value of sample into the counter of the same name,
// creating counters on first sight. Counters missing from sample keep their
// previous state.
func (s *Set) Update(sample map[string]int64, elapsed time.Duration) {
	for name, raw := range sample {
		c, ok := s.counters[name]
		if !ok {
			c = &Counter{}
			s.counters[name] = c
		}
		c.Update(raw, elapsed)
	}
}

// Get returns the named counter. Unknown names yield a zero Counter.
func (s *Set) Get(name string) *Counter {
	if c, ok := s.counters[name]; ok {
		return c
	}
	return &Counter{}
}

// Has reports whether the named counter has been updated at least once.
func (s *Set) Has(name string) bool {
	_, ok := s.counters[name]
	return ok
}
