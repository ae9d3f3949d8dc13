package sampler

import (
	"fmt"
	"sort"
	"time"

	"github.com/srodi/threadtop/pkg/types"
)

// Snapshot holds the raw per-thread readings of one cycle, one map per metric.
type Snapshot map[types.Metric]types.ThreadValues

// Definition describes how a metric's per-thread values are obtained. A raw
// metric reads its own entry of the Snapshot. A derived metric is
// max(0, Minuend-Subtrahend) per thread, computed from two readings that are
// not taken atomically.
type Definition struct {
	Name       types.Metric
	Derived    bool
	Minuend    types.Metric
	Subtrahend types.Metric
}

// Raw declares a metric read directly from the snapshot.
func Raw(name types.Metric) Definition {
	return Definition{Name: name}
}

// Difference declares a derived metric.
func Difference(name, minuend, subtrahend types.Metric) Definition {
	return Definition{Name: name, Derived: true, Minuend: minuend, Subtrahend: subtrahend}
}

// DefaultDefinitions is the thread metric catalogue used by threadtop.
func DefaultDefinitions() []Definition {
	return []Definition{
		Raw(types.MetricCPU),
		Raw(types.MetricUserCPU),
		Difference(types.MetricSysCPU, types.MetricCPU, types.MetricUserCPU),
		Raw(types.MetricMemory),
		Raw(types.MetricSwitches),
	}
}

// Notice is emitted once for a metric the source cannot provide.
type Notice struct {
	Metric types.Metric
	Reason string
}

func (n Notice) String() string {
	return fmt.Sprintf("%s: %s", n.Metric, n.Reason)
}

// State is the only data carried from one cycle to the next: the retained
// per-metric values of the previous cycle. A State is never mutated after it
// is returned by Sample.
type State struct {
	previous map[types.Metric]types.ThreadValues
}

// Baseline returns the retained values for a metric.
func (s State) Baseline(m types.Metric) (types.ThreadValues, bool) {
	v, ok := s.previous[m]
	return v, ok
}

// Empty reports whether no metric has a baseline yet.
func (s State) Empty() bool {
	return len(s.previous) == 0
}

// MetricCycle is the result of one cycle for one metric.
type MetricCycle struct {
	Metric types.Metric
	// Ready is false on the bootstrap cycle, when no deltas or totals exist.
	Ready bool
	// Deltas only holds threads that were present in both cycles.
	Deltas types.ThreadValues
	// Totals holds the current cumulative value of every live thread.
	Totals       types.ThreadValues
	TotalDelta   int64
	TotalCurrent int64
}

// Delta returns the thread's delta and whether it had a baseline.
func (m MetricCycle) Delta(id types.ThreadID) (int64, bool) {
	v, ok := m.Deltas[id]
	return v, ok
}

// Total returns the thread's cumulative value.
func (m MetricCycle) Total(id types.ThreadID) (int64, bool) {
	v, ok := m.Totals[id]
	return v, ok
}

// Cycle is the output of one Sample call.
type Cycle struct {
	Elapsed time.Duration
	Metrics map[types.Metric]MetricCycle
	// Omitted lists metrics flagged unsupported by Probe.
	Omitted []types.Metric
}

// Metric returns the result for m. ok is false for omitted or unknown metrics.
func (c Cycle) Metric(m types.Metric) (MetricCycle, bool) {
	mc, ok := c.Metrics[m]
	return mc, ok
}

// Ready reports whether every listed metric produced deltas this cycle.
func (c Cycle) Ready(metrics ...types.Metric) bool {
	for _, m := range metrics {
		mc, ok := c.Metrics[m]
		if !ok || !mc.Ready {
			return false
		}
	}
	return true
}

// Sampler turns raw per-thread snapshots into deltas and totals.
type Sampler struct {
	defs        []Definition
	unsupported map[types.Metric]bool
	probed      bool
}

// New builds a Sampler over the given definitions.
func New(defs ...Definition) *Sampler {
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}
	return &Sampler{
		defs:        append([]Definition(nil), defs...),
		unsupported: make(map[types.Metric]bool),
	}
}

// Probe checks once which metrics the source supports. Metrics it rejects,
// and derived metrics built on them, are skipped for the rest of the session.
// Later calls return nil.
func (s *Sampler) Probe(supported func(types.Metric) bool) []Notice {
	if s.probed {
		return nil
	}
	s.probed = true

	var notices []Notice
	for _, def := range s.defs {
		if def.Derived {
			for _, input := range []types.Metric{def.Minuend, def.Subtrahend} {
				if !supported(input) {
					s.unsupported[def.Name] = true
					notices = append(notices, Notice{Metric: def.Name, Reason: fmt.Sprintf("input %s is not available", input)})
					break
				}
			}
			continue
		}
		if !supported(def.Name) {
			s.unsupported[def.Name] = true
			notices = append(notices, Notice{Metric: def.Name, Reason: "not available on the monitored process/platform"})
		}
	}
	return notices
}

// Supported reports whether m survived the capability probe.
func (s *Sampler) Supported(m types.Metric) bool {
	return !s.unsupported[m]
}

// Sample computes this cycle's result against prev and returns it together
// with the State to pass to the next call. prev is not modified.
func (s *Sampler) Sample(prev State, snap Snapshot, elapsed time.Duration) (Cycle, State) {
	cycle := Cycle{
		Elapsed: elapsed,
		Metrics: make(map[types.Metric]MetricCycle, len(s.defs)),
	}
	next := State{previous: make(map[types.Metric]types.ThreadValues, len(s.defs))}

	for _, def := range s.defs {
		if s.unsupported[def.Name] {
			cycle.Omitted = append(cycle.Omitted, def.Name)
			continue
		}
		current, ok := s.current(def, snap)
		baseline, hasBaseline := prev.previous[def.Name]
		if !ok {
			// source skipped this metric; keep the old baseline
			if hasBaseline {
				next.previous[def.Name] = baseline
			}
			cycle.Metrics[def.Name] = MetricCycle{Metric: def.Name}
			continue
		}
		next.previous[def.Name] = current
		if !hasBaseline {
			cycle.Metrics[def.Name] = MetricCycle{Metric: def.Name}
			continue
		}
		cycle.Metrics[def.Name] = diff(def, baseline, current)
	}
	sort.Slice(cycle.Omitted, func(i, j int) bool { return cycle.Omitted[i] < cycle.Omitted[j] })
	return cycle, next
}

func (s *Sampler) current(def Definition, snap Snapshot) (types.ThreadValues, bool) {
	if !def.Derived {
		values, ok := snap[def.Name]
		if !ok {
			return nil, false
		}
		return copyValues(values), true
	}
	minuend, okA := snap[def.Minuend]
	subtrahend, okB := snap[def.Subtrahend]
	if !okA || !okB {
		return nil, false
	}
	derived := make(types.ThreadValues, len(minuend))
	for id, a := range minuend {
		b, ok := subtrahend[id]
		if !ok {
			continue
		}
		derived[id] = clamp(a - b)
	}
	return derived, true
}

func diff(def Definition, baseline, current types.ThreadValues) MetricCycle {
	mc := MetricCycle{
		Metric: def.Name,
		Ready:  true,
		Deltas: make(types.ThreadValues, len(current)),
		Totals: copyValues(current),
	}
	for id, cur := range current {
		mc.TotalCurrent += cur
		last, ok := baseline[id]
		if !ok {
			continue
		}
		delta := cur - last
		if def.Derived {
			delta = clamp(delta)
		}
		mc.Deltas[id] = delta
		mc.TotalDelta += delta
	}
	return mc
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func copyValues(in types.ThreadValues) types.ThreadValues {
	out := make(types.ThreadValues, len(in))
	for id, v := range in {
		out[id] = v
	}
	return out
}
