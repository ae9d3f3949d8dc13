package proc

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/srodi/threadtop/pkg/collector/perfdata"
	"github.com/srodi/threadtop/pkg/sampler"
	"github.com/srodi/threadtop/pkg/types"
)

// ErrProcessGone is returned once the target process can no longer be read.
var ErrProcessGone = errors.New("target process is gone")

// handle is the subset of *process.Process the Source reads from.
type handle interface {
	ThreadsWithContext(ctx context.Context) (map[int32]*cpu.TimesStat, error)
	TimesWithContext(ctx context.Context) (*cpu.TimesStat, error)
	MemoryInfoWithContext(ctx context.Context) (*process.MemoryInfoStat, error)
	NumThreadsWithContext(ctx context.Context) (int32, error)
	IOCountersWithContext(ctx context.Context) (*process.IOCountersStat, error)
	NumCtxSwitchesWithContext(ctx context.Context) (*process.NumCtxSwitchesStat, error)
	PageFaultsWithContext(ctx context.Context) (*process.PageFaultsStat, error)
	CreateTimeWithContext(ctx context.Context) (int64, error)
	NameWithContext(ctx context.Context) (string, error)
	UsernameWithContext(ctx context.Context) (string, error)
	IsRunningWithContext(ctx context.Context) (bool, error)
}

// jvmSource yields the raw counters of a JVM's perfdata file.
type jvmSource interface {
	Counters() (map[string]int64, error)
	Close() error
}

// Package-level hooks so tests can avoid touching the host.
var (
	openPerfData = func(user string, pid int32) (jvmSource, error) {
		return perfdata.Open(perfdata.Path(user, pid))
	}
	newHandle = func(ctx context.Context, pid int32) (handle, error) {
		return process.NewProcessWithContext(ctx, pid)
	}
	netIOCounters = net.IOCountersByFileWithContext
	cpuCounts     = cpu.CountsWithContext
	now           = time.Now
)

// Source reads the raw counters of one live process.
type Source struct {
	pid        int32
	proc       handle
	name       string
	user       string
	created    time.Time
	processors int
	caps       types.Capabilities
	jvm        jvmSource
}

// Open attaches to pid.
func Open(ctx context.Context, pid int32) (*Source, error) {
	p, err := newHandle(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("attaching to pid %d: %w", pid, err)
	}
	createdMs, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading start time of pid %d: %w", pid, err)
	}

	s := &Source{pid: pid, proc: p, created: time.UnixMilli(createdMs)}
	if name, err := p.NameWithContext(ctx); err == nil {
		s.name = name
	}
	if user, err := p.UsernameWithContext(ctx); err == nil {
		s.user = user
	}
	s.processors = runtime.NumCPU()
	if n, err := cpuCounts(ctx, true); err == nil && n > 0 {
		s.processors = n
	}
	return s, nil
}

// Probe checks once which counters the target exposes.
func (s *Source) Probe(ctx context.Context) types.Capabilities {
	caps := types.Capabilities{Metrics: map[types.Metric]bool{}}

	if threads, err := s.proc.ThreadsWithContext(ctx); err == nil && len(threads) > 0 {
		caps.Metrics[types.MetricCPU] = true
		caps.Metrics[types.MetricUserCPU] = true
	}
	// Per-thread allocation counters are a managed-runtime feature; procfs
	// has nothing equivalent.
	caps.Metrics[types.MetricMemory] = false

	if _, err := s.proc.IOCountersWithContext(ctx); err == nil {
		caps.IO = true
	}
	if _, err := netIOCounters(ctx, false, s.netDevPath()); err == nil {
		caps.Net = true
	}
	caps.GC, caps.Safepoint = s.probeJVM()
	s.caps = caps
	return caps
}

// probeJVM keeps the perfdata mapping open when the target is a HotSpot JVM
// that publishes GC or safepoint counters.
func (s *Source) probeJVM() (gc, safepoint bool) {
	if s.user == "" {
		return false, false
	}
	jvm, err := openPerfData(s.user, s.pid)
	if err != nil {
		return false, false
	}
	raw, err := jvm.Counters()
	if err == nil {
		_, gc, safepoint = perfdata.JVMCounters(raw)
	}
	if !gc && !safepoint {
		jvm.Close()
		return false, false
	}
	if s.jvm != nil {
		s.jvm.Close()
	}
	s.jvm = jvm
	return gc, safepoint
}

// Close releases the perfdata mapping, if any.
func (s *Source) Close() error {
	if s.jvm == nil {
		return nil
	}
	err := s.jvm.Close()
	s.jvm = nil
	return err
}

// ProcessSample reads the process-level counters.
func (s *Source) ProcessSample(ctx context.Context) (types.ProcessSample, error) {
	running, err := s.proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return types.ProcessSample{}, fmt.Errorf("pid %d: %w", s.pid, ErrProcessGone)
	}
	times, err := s.proc.TimesWithContext(ctx)
	if err != nil {
		return types.ProcessSample{}, fmt.Errorf("reading cpu times of pid %d: %w", s.pid, err)
	}

	sample := types.ProcessSample{
		PID:        s.pid,
		Name:       s.name,
		User:       s.user,
		Processors: s.processors,
		Counters: map[string]int64{
			types.CounterUptimeMs:  now().Sub(s.created).Milliseconds(),
			types.CounterCPUTimeNs: secondsToNanos(times.User + times.System),
		},
	}
	if mem, err := s.proc.MemoryInfoWithContext(ctx); err == nil {
		sample.RSSBytes = mem.RSS
		sample.SwapBytes = mem.Swap
	}
	if n, err := s.proc.NumThreadsWithContext(ctx); err == nil {
		sample.Threads = n
	}
	if s.caps.IO {
		if io, err := s.proc.IOCountersWithContext(ctx); err == nil {
			sample.Counters[types.CounterReadBytes] = int64(io.ReadBytes)
			sample.Counters[types.CounterWriteBytes] = int64(io.WriteBytes)
			sample.Counters[types.CounterReadSyscalls] = int64(io.ReadCount)
			sample.Counters[types.CounterWriteSyscalls] = int64(io.WriteCount)
		}
	}
	if s.caps.Net {
		if stats, err := netIOCounters(ctx, false, s.netDevPath()); err == nil && len(stats) > 0 {
			sample.Counters[types.CounterRecvBytes] = int64(stats[0].BytesRecv)
			sample.Counters[types.CounterSendBytes] = int64(stats[0].BytesSent)
		}
	}
	if csw, err := s.proc.NumCtxSwitchesWithContext(ctx); err == nil {
		sample.Counters[types.CounterVoluntaryCtx] = csw.Voluntary
		sample.Counters[types.CounterInvoluntaryCtx] = csw.Involuntary
	}
	if pf, err := s.proc.PageFaultsWithContext(ctx); err == nil {
		sample.Counters[types.CounterMinorFaults] = int64(pf.MinorFaults)
		sample.Counters[types.CounterMajorFaults] = int64(pf.MajorFaults)
	}
	if s.jvm != nil {
		if raw, err := s.jvm.Counters(); err == nil {
			jvm, _, _ := perfdata.JVMCounters(raw)
			for name, v := range jvm {
				sample.Counters[name] = v
			}
		}
	}
	return sample, nil
}

// ThreadSnapshot reads total and user CPU time of every live thread in one
// batch. Both values come from the same read here, but the sampler still
// treats system time as a derived, skew-prone metric.
func (s *Source) ThreadSnapshot(ctx context.Context) (sampler.Snapshot, error) {
	threads, err := s.proc.ThreadsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading threads of pid %d: %w", s.pid, err)
	}
	total := make(types.ThreadValues, len(threads))
	user := make(types.ThreadValues, len(threads))
	for tid, t := range threads {
		if t == nil {
			continue
		}
		id := types.ThreadID(tid)
		total[id] = secondsToNanos(t.User + t.System)
		user[id] = secondsToNanos(t.User)
	}
	return sampler.Snapshot{
		types.MetricCPU:     total,
		types.MetricUserCPU: user,
	}, nil
}

func (s *Source) netDevPath() string {
	return "/proc/" + strconv.Itoa(int(s.pid)) + "/net/dev"
}

func secondsToNanos(sec float64) int64 {
	return int64(sec * float64(time.Second))
}

// SelfCPUTime returns the CPU time consumed by the current process.
func SelfCPUTime(ctx context.Context, self int32) (time.Duration, error) {
	p, err := newHandle(ctx, self)
	if err != nil {
		return 0, err
	}
	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(secondsToNanos(times.User + times.System)), nil
}
