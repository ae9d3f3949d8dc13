package report

import (
	"time"

	"github.com/srodi/threadtop/pkg/counter"
	"github.com/srodi/threadtop/pkg/types"
)

// ProcessView holds the singleton section of the report.
type ProcessView struct {
	PID     int32
	Name    string
	User    string
	Uptime  time.Duration
	Threads int32

	// CPULoad is the share of all cores, SingleCoreLoad the share of one.
	CPULoad        float64
	SingleCoreLoad float64
	Processors     int

	RSSBytes  uint64
	SwapBytes uint64

	IO             bool
	ReadPerSec     float64
	WritePerSec    float64
	SyscrPerSec    float64
	SyscwPerSec    float64
	Net            bool
	RecvPerSec     float64
	SendPerSec     float64
	SwitchesPerSec float64
	MinorFaults    int64
	MajorFaults    int64

	GC            bool
	YoungGCCount  int64
	YoungGCTimeMs int64
	FullGCCount   int64
	FullGCTimeMs  int64

	Safepoint       bool
	SafepointCount  int64
	SafepointTimeMs int64
	SafepointSyncMs int64
}

// BuildProcessView derives the process section from the counters updated
// with the latest sample.
func BuildProcessView(sample types.ProcessSample, counters *counter.Set, caps types.Capabilities) ProcessView {
	view := ProcessView{
		PID:        sample.PID,
		Name:       sample.Name,
		User:       sample.User,
		Threads:    sample.Threads,
		Processors: sample.Processors,
		RSSBytes:   sample.RSSBytes,
		SwapBytes:  sample.SwapBytes,
		Uptime:     time.Duration(counters.Get(types.CounterUptimeMs).Current()) * time.Millisecond,
	}

	uptimeDelta := counters.Get(types.CounterUptimeMs).Delta()
	cpuDelta := counters.Get(types.CounterCPUTimeNs).Delta()
	view.SingleCoreLoad = CPUUtilization(cpuDelta, true, uptimeDelta, NanosPerMilli)
	if sample.Processors > 0 {
		view.CPULoad = view.SingleCoreLoad / float64(sample.Processors)
	}

	view.IO = caps.IO
	if caps.IO {
		view.ReadPerSec = counters.Get(types.CounterReadBytes).Rate()
		view.WritePerSec = counters.Get(types.CounterWriteBytes).Rate()
		view.SyscrPerSec = counters.Get(types.CounterReadSyscalls).Rate()
		view.SyscwPerSec = counters.Get(types.CounterWriteSyscalls).Rate()
	}
	view.Net = caps.Net
	if caps.Net {
		view.RecvPerSec = counters.Get(types.CounterRecvBytes).Rate()
		view.SendPerSec = counters.Get(types.CounterSendBytes).Rate()
	}
	view.SwitchesPerSec = counters.Get(types.CounterVoluntaryCtx).Rate() + counters.Get(types.CounterInvoluntaryCtx).Rate()
	view.MinorFaults = counters.Get(types.CounterMinorFaults).Delta()
	view.MajorFaults = counters.Get(types.CounterMajorFaults).Delta()

	// a JVM that stopped publishing perfdata leaves the rows out
	view.GC = caps.GC && counters.Has(types.CounterYoungGCCount)
	if view.GC {
		view.YoungGCCount = counters.Get(types.CounterYoungGCCount).Delta()
		view.YoungGCTimeMs = counters.Get(types.CounterYoungGCTimeMs).Delta()
		view.FullGCCount = counters.Get(types.CounterFullGCCount).Delta()
		view.FullGCTimeMs = counters.Get(types.CounterFullGCTimeMs).Delta()
	}
	view.Safepoint = caps.Safepoint && counters.Has(types.CounterSafepointCount)
	if view.Safepoint {
		view.SafepointCount = counters.Get(types.CounterSafepointCount).Delta()
		view.SafepointTimeMs = counters.Get(types.CounterSafepointTimeMs).Delta()
		view.SafepointSyncMs = counters.Get(types.CounterSafepointSyncMs).Delta()
	}
	return view
}

// ThreadWindow returns the reference window for thread percentages.
func ThreadWindow(counters *counter.Set) Window {
	return Window{
		UptimeDeltaMs: counters.Get(types.CounterUptimeMs).Delta(),
		ProcessCPUNs:  counters.Get(types.CounterCPUTimeNs).Current(),
	}
}
