package rank

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/srodi/threadtop/pkg/types"
)

var (
	// ErrInvalidMode is returned for a ranking mode outside the known set.
	ErrInvalidMode = errors.New("invalid ranking mode")
	// ErrInvalidLimit is returned when fewer than one thread is requested.
	ErrInvalidLimit = errors.New("thread limit must be at least 1")
)

// Family groups modes that share a thread view.
type Family int

const (
	FamilyCPU Family = iota + 1
	FamilyMemory
)

func (f Family) String() string {
	switch f {
	case FamilyCPU:
		return "cpu"
	case FamilyMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// Mode selects which per-thread map is ranked.
type Mode int

const (
	ModeCPU Mode = iota + 1
	ModeSysCPU
	ModeTotalCPU
	ModeTotalSysCPU
	ModeMemory
	ModeTotalMemory
)

type modeInfo struct {
	name       string
	family     Family
	metric     types.Metric
	cumulative bool
}

var modes = map[Mode]modeInfo{
	ModeCPU:         {"cpu", FamilyCPU, types.MetricCPU, false},
	ModeSysCPU:      {"syscpu", FamilyCPU, types.MetricSysCPU, false},
	ModeTotalCPU:    {"totalcpu", FamilyCPU, types.MetricCPU, true},
	ModeTotalSysCPU: {"totalsyscpu", FamilyCPU, types.MetricSysCPU, true},
	ModeMemory:      {"memory", FamilyMemory, types.MetricMemory, false},
	ModeTotalMemory: {"totalmemory", FamilyMemory, types.MetricMemory, true},
}

// Modes returns every valid mode in command order.
func Modes() []Mode {
	return []Mode{ModeCPU, ModeSysCPU, ModeTotalCPU, ModeTotalSysCPU, ModeMemory, ModeTotalMemory}
}

// ParseMode accepts a mode name ("cpu", "totalsyscpu", ...) or its command
// digit ("1".."6").
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, m := range Modes() {
		if s == modes[m].name || s == fmt.Sprint(i+1) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	_, ok := modes[m]
	return ok
}

// Name returns the lower-case mode name accepted by ParseMode.
func (m Mode) Name() string {
	return modes[m].name
}

// String returns the upper-case label used in summary lines.
func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("MODE(%d)", int(m))
	}
	return strings.ToUpper(modes[m].name)
}

// Family returns the view family the mode belongs to.
func (m Mode) Family() Family { return modes[m].family }

// Metric returns the metric the mode ranks by.
func (m Mode) Metric() types.Metric { return modes[m].metric }

// Cumulative reports whether the mode ranks totals instead of deltas.
func (m Mode) Cumulative() bool { return modes[m].cumulative }

// Top returns up to k thread ids ordered by value descending. Equal values
// are ordered by ascending id.
func Top(values types.ThreadValues, k int) ([]types.ThreadID, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, k)
	}
	ids := make([]types.ThreadID, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		vi, vj := values[ids[i]], values[ids[j]]
		if vi == vj {
			return ids[i] < ids[j]
		}
		return vi > vj
	})
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids, nil
}
