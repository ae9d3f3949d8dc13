package types

// DefaultThreadLimit controls how many threads we display per cycle.
const DefaultThreadLimit = 10

// ThreadID identifies a thread of the target process. IDs are stable while the
// thread lives and may be reused after it exits.
type ThreadID int64

// ThreadValues is one cumulative per-thread reading of a single metric.
type ThreadValues map[ThreadID]int64

// Metric names a per-thread counter.
type Metric string

const (
	MetricCPU      Metric = "cpu"     // total thread CPU time, ns
	MetricUserCPU  Metric = "usercpu" // user thread CPU time, ns
	MetricSysCPU   Metric = "syscpu"  // cpu - usercpu
	MetricMemory   Metric = "memory"  // allocated bytes
	MetricSwitches Metric = "csw"     // context switches
)

// Process-level counter names carried in ProcessSample.Counters.
const (
	CounterUptimeMs        = "uptime_ms"
	CounterCPUTimeNs       = "cpu_ns"
	CounterReadBytes       = "read_bytes"
	CounterWriteBytes      = "write_bytes"
	CounterReadSyscalls    = "syscr"
	CounterWriteSyscalls   = "syscw"
	CounterRecvBytes       = "net_recv_bytes"
	CounterSendBytes       = "net_send_bytes"
	CounterVoluntaryCtx    = "ctx_voluntary"
	CounterInvoluntaryCtx  = "ctx_involuntary"
	CounterMinorFaults     = "minor_faults"
	CounterMajorFaults     = "major_faults"
	CounterYoungGCCount    = "ygc_count"
	CounterYoungGCTimeMs   = "ygc_ms"
	CounterFullGCCount     = "fgc_count"
	CounterFullGCTimeMs    = "fgc_ms"
	CounterSafepointCount  = "safepoint_count"
	CounterSafepointTimeMs = "safepoint_ms"
	CounterSafepointSyncMs = "safepoint_sync_ms"
)

// ProcessSample is one raw reading of the target's process-level counters.
// Counters the source could not read this cycle are absent from the map.
type ProcessSample struct {
	PID        int32
	Name       string
	User       string
	Counters   map[string]int64
	RSSBytes   uint64
	SwapBytes  uint64
	Threads    int32
	Processors int
}

// Capabilities records what the raw counter source can deliver. It is probed
// once at session start.
type Capabilities struct {
	Metrics   map[Metric]bool
	IO        bool
	Net       bool
	GC        bool
	Safepoint bool
}

// Supports reports whether a per-thread metric is available.
func (c Capabilities) Supports(m Metric) bool {
	return c.Metrics[m]
}

// ThreadInfo describes a thread for display purposes.
type ThreadInfo struct {
	ID    ThreadID
	Name  string
	State string
}
