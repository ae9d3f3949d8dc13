package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/srodi/threadtop/pkg/config"
	"github.com/srodi/threadtop/pkg/counter"
	"github.com/srodi/threadtop/pkg/rank"
	"github.com/srodi/threadtop/pkg/report"
	"github.com/srodi/threadtop/pkg/sampler"
	"github.com/srodi/threadtop/pkg/types"
	"github.com/srodi/threadtop/pkg/ui"
)

// rawSource supplies the raw counters of the target every cycle.
type rawSource interface {
	ProcessSample(ctx context.Context) (types.ProcessSample, error)
	ThreadSnapshot(ctx context.Context) (sampler.Snapshot, error)
	ThreadInfo(ids []types.ThreadID) map[types.ThreadID]types.ThreadInfo
}

// switchSource supplies cumulative per-thread context switch counts.
type switchSource interface {
	Snapshot() (types.ThreadValues, error)
	Prune(live map[types.ThreadID]struct{}) error
}

// reporter runs one sampling cycle at a time and renders it.
type reporter struct {
	cfg      config.Config
	mode     rank.Mode
	source   rawSource
	switches switchSource
	caps     types.Capabilities
	session  *sampler.Session
	counters *counter.Set
	notices  []sampler.Notice

	selfCPU   func() (time.Duration, error)
	selfCost  counter.Counter
	now       func() time.Time
	last      time.Time
	pid       int32
	firstTime bool
	showHelp  bool
	showAll   bool
}

func newReporter(cfg config.Config, mode rank.Mode, source rawSource, switches switchSource, caps types.Capabilities) *reporter {
	r := &reporter{
		cfg:       cfg,
		mode:      mode,
		source:    source,
		switches:  switches,
		caps:      caps,
		session:   sampler.NewSession(),
		counters:  counter.NewSet(),
		now:       time.Now,
		firstTime: true,
	}
	r.notices = r.session.Probe(func(m types.Metric) bool {
		if m == types.MetricSwitches {
			return switches != nil
		}
		return caps.Supports(m)
	})
	return r
}

// cycle samples the target once and writes the rendered view to w.
func (r *reporter) cycle(ctx context.Context, w io.Writer) error {
	start := r.now()
	sample, err := r.source.ProcessSample(ctx)
	if err != nil {
		return err
	}
	var elapsed time.Duration
	if !r.last.IsZero() {
		elapsed = start.Sub(r.last)
	}
	r.last = start
	r.pid = sample.PID
	r.counters.Update(sample.Counters, elapsed)

	collecting := r.session.Collecting()
	snap, snapErr := r.source.ThreadSnapshot(ctx)
	if snapErr != nil {
		log.Printf("thread snapshot failed: %v", snapErr)
		snap = sampler.Snapshot{}
	}
	r.addSwitches(snap)

	cycle := r.session.Sample(snap, elapsed)
	view, err := report.BuildThreadView(cycle, r.mode, r.cfg.Limit, report.ThreadWindow(r.counters),
		report.FilterConfig{NameFilter: r.cfg.NameFilter}, r.source.ThreadInfo)
	if err != nil {
		return err
	}

	r.printProcess(w, report.BuildProcessView(sample, r.counters, r.caps))
	switch {
	case snapErr != nil:
		fmt.Fprintf(w, "\n -Thread data could not be read: %v-\n", snapErr)
	case view.Unavailable:
		fmt.Fprintf(w, "\n -Thread %s telemetries are not available on the monitored process/platform-\n", familyLabel(r.mode))
	case !view.Ready:
		r.printWelcome(w, collecting)
	case r.mode.Family() == rank.FamilyCPU:
		r.printCPUThreads(w, view)
	default:
		r.printMemoryThreads(w, view)
	}
	if r.showAll {
		r.printAllThreads(w, snap[types.MetricCPU])
		r.showAll = false
	}
	r.printIterationCost(w, start)
	if r.showHelp {
		fmt.Fprint(w, helpText)
		r.showHelp = false
	}
	fmt.Fprint(w, " Input command (h for help):")
	return nil
}

// addSwitches merges the eBPF switch counts of live threads into snap.
func (r *reporter) addSwitches(snap sampler.Snapshot) {
	if r.switches == nil {
		return
	}
	live, ok := snap[types.MetricCPU]
	if !ok {
		return
	}
	counts, err := r.switches.Snapshot()
	if err != nil {
		log.Printf("context switch snapshot failed: %v", err)
		return
	}
	alive := make(map[types.ThreadID]struct{}, len(live))
	values := make(types.ThreadValues, len(live))
	for id := range live {
		alive[id] = struct{}{}
		values[id] = counts[id]
	}
	snap[types.MetricSwitches] = values
	if err := r.switches.Prune(alive); err != nil {
		log.Printf("context switch prune failed: %v", err)
	}
}

func (r *reporter) printProcess(w io.Writer, p report.ProcessView) {
	fmt.Fprintln(w, ui.Header(fmt.Sprintf(" PID: %d - %s NAME: %s USER: %s UPTIME: %s",
		p.PID, r.now().Format("15:04:05"), p.Name, p.User, report.FormatDuration(p.Uptime))))
	fmt.Fprintf(w, " PROCESS: %5.2f%% cpu(%5.2f%% of %d core), %s rss, %s swap, %d thread\n",
		p.SingleCoreLoad, p.CPULoad, p.Processors, report.FormatMB(p.RSSBytes), report.FormatMB(p.SwapBytes), p.Threads)

	fmt.Fprint(w, " ")
	if p.IO {
		fmt.Fprintf(w, "DISK: %sB read, %sB write, %.0f syscr, %.0f syscw | ",
			report.FormatBytes(p.ReadPerSec), report.FormatBytes(p.WritePerSec), p.SyscrPerSec, p.SyscwPerSec)
	}
	if p.Net {
		fmt.Fprintf(w, "NET: %sB recv, %sB send | ", report.FormatBytes(p.RecvPerSec), report.FormatBytes(p.SendPerSec))
	}
	fmt.Fprintf(w, "CTX: %.0f switches/s | FAULTS: %d minor, %d major\n", p.SwitchesPerSec, p.MinorFaults, p.MajorFaults)

	if p.GC || p.Safepoint {
		fmt.Fprint(w, " ")
		if p.GC {
			fmt.Fprintf(w, "GC: %d/%dms ygc, %d/%dms fgc", p.YoungGCCount, p.YoungGCTimeMs, p.FullGCCount, p.FullGCTimeMs)
		}
		if p.GC && p.Safepoint {
			fmt.Fprint(w, " | ")
		}
		if p.Safepoint {
			fmt.Fprintf(w, "SAFE-POINT: %d count, %dms time, %dms syncTime", p.SafepointCount, p.SafepointTimeMs, p.SafepointSyncMs)
		}
		fmt.Fprintln(w)
	}
}

func (r *reporter) printWelcome(w io.Writer, collecting bool) {
	if r.firstTime {
		if !r.caps.IO {
			fmt.Fprintln(w)
			fmt.Fprintln(w, ui.Notice(fmt.Sprintf(" /proc/%d/io is not readable, process DISK data will be skipped.", r.pid)))
		}
		if !r.caps.Net {
			fmt.Fprintln(w)
			fmt.Fprintln(w, ui.Notice(" Network counters are not readable, NET data will be skipped."))
		}
		for _, n := range r.notices {
			fmt.Fprintln(w, ui.Notice(" "+n.String()+", the column will be skipped."))
		}
		r.firstTime = false
	}
	if !collecting {
		fmt.Fprint(w, "\n Thread data was incomplete this cycle, waiting for the next sample\n\n")
		return
	}
	fmt.Fprint(w, "\n Collecting data, please wait ......\n\n")
}

func (r *reporter) printAllThreads(w io.Writer, live types.ThreadValues) {
	ids := make([]types.ThreadID, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	infos := r.source.ThreadInfo(ids)

	fmt.Fprintf(w, "\n All threads (%d):\n", len(ids))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " TID\tNAME\tSTATE\t")
	for _, id := range ids {
		info := infos[id]
		fmt.Fprintf(tw, " %d\t%s\t%s\t\n", id, info.Name, info.State)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func (r *reporter) nameWidth() int {
	return r.cfg.Width - 48
}

func (r *reporter) printCPUThreads(w io.Writer, view report.ThreadView) {
	fmt.Fprintln(w)
	if focus := report.SelectFocusThread(view); focus != nil {
		fmt.Fprintln(w, ui.Focus(fmt.Sprintf(" [!] Focus: %s (tid %d) - %s: %s",
			focus.Name, focus.TID, focus.Diagnosis, report.FocusSummary(*focus))))
	}
	fmt.Fprintln(w)

	showSwitches := r.session.Supported(types.MetricSwitches)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := " TID\tNAME\tSTATE\tCPU\tSYSCPU\tTOTAL\tTOLSYS\t"
	if showSwitches {
		header += "CSW/s\t"
	}
	fmt.Fprintln(tw, header+"DIAG\t")
	for _, row := range view.Rows {
		fmt.Fprintf(tw, " %d\t%s\t%s\t%5.2f%%\t%5.2f%%\t%5.2f%%\t%5.2f%%\t",
			row.TID, report.ShortName(row.Name, r.nameWidth(), 20), report.PadRight(row.State, 10),
			row.CPUPercent, row.SysCPUPercent, row.TotalPercent, row.TotalSysPercent)
		if showSwitches {
			fmt.Fprintf(tw, "%.0f\t", row.SwitchesPerSec)
		}
		fmt.Fprintf(tw, "%s\t\n", row.Diagnosis)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n Total cpu: %5.2f%% (user=%5.2f%%, sys=%5.2f%%), %s\n",
		view.TotalCPUPercent, view.TotalUserPercent, view.TotalSysPercent, view.Summary())
}

func (r *reporter) printMemoryThreads(w io.Writer, view report.ThreadView) {
	fmt.Fprint(w, "\n\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " TID\tNAME\tSTATE\tMEMORY\tTOTAL-ALLOCATED\t")
	for _, row := range view.Rows {
		fmt.Fprintf(tw, " %d\t%s\t%s\t%s/s(%5.2f%%)\t%s(%5.2f%%)\t\n",
			row.TID, report.ShortName(row.Name, r.nameWidth(), 12), report.PadRight(row.State, 10),
			report.FormatBytes(row.AllocPerSec), row.AllocShare,
			report.FormatBytes(float64(row.AllocTotal)), row.AllocTotalShare)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n Total memory allocate rate : %s/s, %s\n", report.FormatBytes(view.TotalAllocPerSec), view.Summary())
}

func (r *reporter) printIterationCost(w io.Writer, start time.Time) {
	wall := r.now().Sub(start)
	if r.selfCPU == nil {
		fmt.Fprintf(w, " Cost time: %3dms\n", wall.Milliseconds())
		return
	}
	used, err := r.selfCPU()
	if err != nil {
		fmt.Fprintf(w, " Cost time: %3dms\n", wall.Milliseconds())
		return
	}
	r.selfCost.Update(int64(used), wall)
	fmt.Fprintf(w, " Cost time: %3dms, CPU time: %3dms\n", wall.Milliseconds(), time.Duration(r.selfCost.Delta()).Milliseconds())
}

// apply executes an interactive command. It reports whether the user asked
// to quit.
func (r *reporter) apply(cmd command) bool {
	switch cmd.kind {
	case cmdMode:
		r.mode = cmd.mode
	case cmdLimit:
		r.cfg.Limit = cmd.limit
	case cmdClean:
		r.session.Reset()
	case cmdHelp:
		r.showHelp = true
	case cmdAll:
		r.showAll = true
	case cmdQuit:
		return true
	}
	return false
}

func familyLabel(m rank.Mode) string {
	if m.Family() == rank.FamilyMemory {
		return "Memory Allocated"
	}
	return "CPU"
}
