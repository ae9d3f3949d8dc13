package sampler

import (
	"time"

	"github.com/srodi/threadtop/pkg/types"
)

// Session binds a Sampler to the State of one monitored target. Use one
// Session per target; a Session is not safe for concurrent use.
type Session struct {
	sampler *Sampler
	state   State
}

// NewSession returns a Session over the given definitions.
func NewSession(defs ...Definition) *Session {
	return &Session{sampler: New(defs...)}
}

// Probe runs the one-time capability probe.
func (s *Session) Probe(supported func(types.Metric) bool) []Notice {
	return s.sampler.Probe(supported)
}

// Supported reports whether m is sampled in this session.
func (s *Session) Supported(m types.Metric) bool {
	return s.sampler.Supported(m)
}

// Sample runs one cycle and retains the new baseline.
func (s *Session) Sample(snap Snapshot, elapsed time.Duration) Cycle {
	cycle, next := s.sampler.Sample(s.state, snap, elapsed)
	s.state = next
	return cycle
}

// Reset drops every baseline; the next cycle bootstraps again.
func (s *Session) Reset() {
	s.state = State{}
}

// Collecting reports whether the next cycle only records a baseline.
func (s *Session) Collecting() bool {
	return s.state.Empty()
}

// State returns the retained baseline.
func (s *Session) State() State {
	return s.state
}
