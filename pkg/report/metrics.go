package report

import (
	"fmt"
	"strings"

	"github.com/srodi/threadtop/pkg/rank"
	"github.com/srodi/threadtop/pkg/sampler"
	"github.com/srodi/threadtop/pkg/types"
)

// ThreadRow condenses the values of one ranked thread for a single cycle.
type ThreadRow struct {
	TID   types.ThreadID
	Name  string
	State string

	// CPU family
	CPUPercent      float64
	SysCPUPercent   float64
	TotalPercent    float64
	TotalSysPercent float64
	SwitchesPerSec  float64

	// memory family
	AllocPerSec     float64
	AllocShare      float64
	AllocTotal      int64
	AllocTotalShare float64

	Diagnosis string
}

// Window carries the reference values percentages are computed against.
type Window struct {
	// UptimeDeltaMs is the wall time covered by this cycle's deltas.
	UptimeDeltaMs int64
	// ProcessCPUNs is the process's cumulative CPU time, the reference for
	// "total" percentages.
	ProcessCPUNs int64
}

// FilterConfig controls which threads take part in ranking.
type FilterConfig struct {
	NameFilter string // case-insensitive substring of the thread name
}

// ThreadInfoFunc resolves display information for threads.
type ThreadInfoFunc func(ids []types.ThreadID) map[types.ThreadID]types.ThreadInfo

// ThreadView is everything the renderer needs for the thread section.
type ThreadView struct {
	Mode  rank.Mode
	Limit int
	// Unavailable is set when the mode's metrics are not supported; the
	// section should be omitted.
	Unavailable bool
	// Ready is false while the sampler is still collecting a baseline.
	Ready bool
	Rows  []ThreadRow

	TotalCPUPercent  float64
	TotalSysPercent  float64
	TotalUserPercent float64
	TotalAllocPerSec float64
	TotalDelta       int64
	TotalCurrent     int64

	// Threads is the number of live threads eligible for ranking.
	Threads  int
	AllShown bool
}

// Summary returns the "top K / all N threads are shown" line.
func (v ThreadView) Summary() string {
	if v.AllShown {
		return fmt.Sprintf("all %d threads are shown, order by %s", v.Threads, v.Mode)
	}
	return fmt.Sprintf("top %d threads are shown, order by %s", v.Limit, v.Mode)
}

// BuildThreadView ranks the cycle's threads for mode and assembles per-thread
// values for exactly the selected ids. An invalid mode or limit is rejected.
func BuildThreadView(
	cycle sampler.Cycle,
	mode rank.Mode,
	limit int,
	window Window,
	filter FilterConfig,
	infos ThreadInfoFunc,
) (ThreadView, error) {
	if !mode.Valid() {
		return ThreadView{}, fmt.Errorf("%w: %d", rank.ErrInvalidMode, int(mode))
	}
	if limit < 1 {
		return ThreadView{}, fmt.Errorf("%w: got %d", rank.ErrInvalidLimit, limit)
	}
	view := ThreadView{Mode: mode, Limit: limit}

	primary := familyMetric(mode.Family())
	if !available(cycle, primary) || !available(cycle, mode.Metric()) {
		view.Unavailable = true
		return view, nil
	}
	if !cycle.Ready(primary, mode.Metric()) {
		return view, nil
	}
	view.Ready = true

	base := cycle.Metrics[primary]
	ranked := cycle.Metrics[mode.Metric()]
	values := ranked.Deltas
	if mode.Cumulative() {
		values = ranked.Totals
	}

	eligible := base.Totals
	var names map[types.ThreadID]types.ThreadInfo
	if filter.NameFilter != "" {
		names = resolve(infos, keys(base.Totals))
		eligible = filterByName(base.Totals, names, filter.NameFilter)
		values = filterByName(values, names, filter.NameFilter)
	}
	view.Threads = len(eligible)
	view.AllShown = view.Threads <= limit

	ids, err := rank.Top(values, limit)
	if err != nil {
		return ThreadView{}, err
	}
	if names == nil {
		names = resolve(infos, ids)
	}

	switch mode.Family() {
	case rank.FamilyCPU:
		view.Rows = cpuRows(cycle, ids, names, window)
		sys, _ := cycle.Metric(types.MetricSysCPU)
		view.TotalDelta = base.TotalDelta
		view.TotalCurrent = base.TotalCurrent
		view.TotalCPUPercent = CPUUtilization(base.TotalDelta, true, window.UptimeDeltaMs, NanosPerMilli)
		view.TotalSysPercent = CPUUtilization(sys.TotalDelta, sys.Ready, window.UptimeDeltaMs, NanosPerMilli)
		view.TotalUserPercent = nonNegative(view.TotalCPUPercent - view.TotalSysPercent)
	case rank.FamilyMemory:
		view.Rows = memoryRows(base, ids, names, window)
		view.TotalDelta = base.TotalDelta
		view.TotalCurrent = base.TotalCurrent
		view.TotalAllocPerSec = PerSecond(base.TotalDelta, window.UptimeDeltaMs)
	}
	return view, nil
}

func cpuRows(cycle sampler.Cycle, ids []types.ThreadID, names map[types.ThreadID]types.ThreadInfo, window Window) []ThreadRow {
	cpu := cycle.Metrics[types.MetricCPU]
	sys, _ := cycle.Metric(types.MetricSysCPU)
	csw, hasSwitches := cycle.Metric(types.MetricSwitches)
	elapsed := cycle.Elapsed.Seconds()

	rows := make([]ThreadRow, 0, len(ids))
	for _, id := range ids {
		row := newRow(id, names)
		d, ok := cpu.Delta(id)
		row.CPUPercent = CPUUtilization(d, ok, window.UptimeDeltaMs, NanosPerMilli)
		d, ok = sys.Delta(id)
		row.SysCPUPercent = CPUUtilization(d, ok, window.UptimeDeltaMs, NanosPerMilli)
		d, ok = cpu.Total(id)
		row.TotalPercent = CPUUtilization(d, ok, window.ProcessCPUNs, 1)
		d, ok = sys.Total(id)
		row.TotalSysPercent = CPUUtilization(d, ok, window.ProcessCPUNs, 1)
		if hasSwitches && elapsed > 0 {
			if d, ok := csw.Delta(id); ok {
				row.SwitchesPerSec = float64(d) / elapsed
			}
		}
		row.Diagnosis = classifyThread(&row)
		rows = append(rows, row)
	}
	return rows
}

func memoryRows(mem sampler.MetricCycle, ids []types.ThreadID, names map[types.ThreadID]types.ThreadInfo, window Window) []ThreadRow {
	rows := make([]ThreadRow, 0, len(ids))
	for _, id := range ids {
		row := newRow(id, names)
		d, ok := mem.Delta(id)
		if ok {
			row.AllocPerSec = PerSecond(d, window.UptimeDeltaMs)
		}
		row.AllocShare = ShareOfTotal(d, ok, mem.TotalDelta)
		total, ok := mem.Total(id)
		row.AllocTotal = total
		row.AllocTotalShare = ShareOfTotal(total, ok, mem.TotalCurrent)
		row.Diagnosis = "OK"
		rows = append(rows, row)
	}
	return rows
}

func newRow(id types.ThreadID, names map[types.ThreadID]types.ThreadInfo) ThreadRow {
	row := ThreadRow{TID: id, Name: fmt.Sprintf("tid-%d", id)}
	if info, ok := names[id]; ok {
		if info.Name != "" {
			row.Name = info.Name
		}
		row.State = info.State
	}
	return row
}

// SelectFocusThread picks the thread most worth pointing out to the operator.
func SelectFocusThread(view ThreadView) *ThreadRow {
	var best *ThreadRow
	bestScore := -1.0
	for _, row := range view.Rows {
		severity := diagnosisSeverity(row.Diagnosis)
		if severity == 0 {
			continue
		}
		score := float64(severity)*1000 + row.CPUPercent
		if best == nil || score > bestScore {
			copy := row
			best = &copy
			bestScore = score
		}
	}
	return best
}

// FocusSummary returns a short explanation string for the status line.
func FocusSummary(row ThreadRow) string {
	switch row.Diagnosis {
	case "Spinning":
		return fmt.Sprintf("%.1f%% CPU, only %.0f switches/sec", row.CPUPercent, row.SwitchesPerSec)
	case "Syscall-heavy":
		return fmt.Sprintf("%.1f%% of %.1f%% CPU spent in kernel", row.SysCPUPercent, row.CPUPercent)
	case "CPU-bound":
		return fmt.Sprintf("%.1f%% CPU", row.CPUPercent)
	case "Switch-storm":
		return fmt.Sprintf("%.0f switches/sec at %.1f%% CPU", row.SwitchesPerSec, row.CPUPercent)
	default:
		return fmt.Sprintf("%.1f%% CPU", row.CPUPercent)
	}
}

func classifyThread(row *ThreadRow) string {
	if row.CPUPercent > 90 && row.SwitchesPerSec > 0 && row.SwitchesPerSec < 10 {
		return "Spinning"
	}
	if row.CPUPercent > 20 && row.SysCPUPercent > row.CPUPercent/2 {
		return "Syscall-heavy"
	}
	if row.CPUPercent > 80 {
		return "CPU-bound"
	}
	if row.SwitchesPerSec > 5000 {
		return "Switch-storm"
	}
	return "OK"
}

func diagnosisSeverity(label string) int {
	switch label {
	case "Spinning":
		return 4
	case "Syscall-heavy":
		return 3
	case "Switch-storm":
		return 2
	case "CPU-bound":
		return 1
	default:
		return 0
	}
}

func familyMetric(f rank.Family) types.Metric {
	if f == rank.FamilyMemory {
		return types.MetricMemory
	}
	return types.MetricCPU
}

func available(cycle sampler.Cycle, m types.Metric) bool {
	_, ok := cycle.Metrics[m]
	return ok
}

func resolve(infos ThreadInfoFunc, ids []types.ThreadID) map[types.ThreadID]types.ThreadInfo {
	if infos == nil || len(ids) == 0 {
		return nil
	}
	return infos(ids)
}

func filterByName(values types.ThreadValues, names map[types.ThreadID]types.ThreadInfo, needle string) types.ThreadValues {
	needle = strings.ToLower(needle)
	out := make(types.ThreadValues, len(values))
	for id, v := range values {
		if strings.Contains(strings.ToLower(names[id].Name), needle) {
			out[id] = v
		}
	}
	return out
}

func keys(values types.ThreadValues) []types.ThreadID {
	ids := make([]types.ThreadID, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	return ids
}
