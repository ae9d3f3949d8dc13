package proc

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/srodi/threadtop/pkg/types"
)

type fakeHandle struct {
	threads map[int32]*cpu.TimesStat
	times   *cpu.TimesStat
	io      *process.IOCountersStat
	ioErr   error
	running bool
}

func (f *fakeHandle) ThreadsWithContext(context.Context) (map[int32]*cpu.TimesStat, error) {
	if f.threads == nil {
		return nil, errors.New("no threads")
	}
	return f.threads, nil
}

func (f *fakeHandle) TimesWithContext(context.Context) (*cpu.TimesStat, error) {
	return f.times, nil
}

func (f *fakeHandle) MemoryInfoWithContext(context.Context) (*process.MemoryInfoStat, error) {
	return &process.MemoryInfoStat{RSS: 64 << 20, Swap: 1 << 20}, nil
}

func (f *fakeHandle) NumThreadsWithContext(context.Context) (int32, error) {
	return int32(len(f.threads)), nil
}

func (f *fakeHandle) IOCountersWithContext(context.Context) (*process.IOCountersStat, error) {
	return f.io, f.ioErr
}

func (f *fakeHandle) NumCtxSwitchesWithContext(context.Context) (*process.NumCtxSwitchesStat, error) {
	return &process.NumCtxSwitchesStat{Voluntary: 10, Involuntary: 3}, nil
}

func (f *fakeHandle) PageFaultsWithContext(context.Context) (*process.PageFaultsStat, error) {
	return &process.PageFaultsStat{MinorFaults: 100, MajorFaults: 2}, nil
}

func (f *fakeHandle) CreateTimeWithContext(context.Context) (int64, error) {
	return 1_000_000, nil
}

func (f *fakeHandle) NameWithContext(context.Context) (string, error) { return "java", nil }

func (f *fakeHandle) UsernameWithContext(context.Context) (string, error) { return "svc", nil }

func (f *fakeHandle) IsRunningWithContext(context.Context) (bool, error) { return f.running, nil }

type fakeJVM struct {
	counters map[string]int64
	closed   bool
}

func (f *fakeJVM) Counters() (map[string]int64, error) { return f.counters, nil }

func (f *fakeJVM) Close() error {
	f.closed = true
	return nil
}

func stubHost(t *testing.T, h handle, netErr error) {
	t.Helper()
	origHandle, origNet, origCounts, origNow, origPerf := newHandle, netIOCounters, cpuCounts, now, openPerfData
	t.Cleanup(func() {
		newHandle, netIOCounters, cpuCounts, now, openPerfData = origHandle, origNet, origCounts, origNow, origPerf
	})
	openPerfData = func(string, int32) (jvmSource, error) { return nil, os.ErrNotExist }
	newHandle = func(context.Context, int32) (handle, error) { return h, nil }
	netIOCounters = func(_ context.Context, pernic bool, path string) ([]net.IOCountersStat, error) {
		if netErr != nil {
			return nil, netErr
		}
		if pernic || path != "/proc/7/net/dev" {
			t.Fatalf("unexpected net read pernic=%v path=%s", pernic, path)
		}
		return []net.IOCountersStat{{Name: "all", BytesRecv: 4096, BytesSent: 1024}}, nil
	}
	cpuCounts = func(context.Context, bool) (int, error) { return 8, nil }
	now = func() time.Time { return time.UnixMilli(1_005_000) }
}

func TestSourceProbeAndSample(t *testing.T) {
	h := &fakeHandle{
		threads: map[int32]*cpu.TimesStat{
			7: {User: 1.5, System: 0.5},
			8: {User: 0.25, System: 0},
		},
		times:   &cpu.TimesStat{User: 2, System: 1},
		io:      &process.IOCountersStat{ReadBytes: 10, WriteBytes: 20, ReadCount: 1, WriteCount: 2},
		running: true,
	}
	stubHost(t, h, nil)

	ctx := context.Background()
	src, err := Open(ctx, 7)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	caps := src.Probe(ctx)
	if !caps.Supports(types.MetricCPU) || !caps.Supports(types.MetricUserCPU) {
		t.Fatalf("thread cpu should be supported: %+v", caps)
	}
	if caps.Supports(types.MetricMemory) || !caps.IO || !caps.Net {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}

	sample, err := src.ProcessSample(ctx)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if sample.Name != "java" || sample.User != "svc" || sample.Processors != 8 || sample.Threads != 2 {
		t.Fatalf("unexpected identity: %+v", sample)
	}
	want := map[string]int64{
		types.CounterUptimeMs:       5000,
		types.CounterCPUTimeNs:      int64(3 * time.Second),
		types.CounterReadBytes:      10,
		types.CounterWriteBytes:     20,
		types.CounterRecvBytes:      4096,
		types.CounterSendBytes:      1024,
		types.CounterVoluntaryCtx:   10,
		types.CounterInvoluntaryCtx: 3,
		types.CounterMinorFaults:    100,
		types.CounterMajorFaults:    2,
	}
	for name, v := range want {
		if got := sample.Counters[name]; got != v {
			t.Fatalf("counter %s: got %d want %d", name, got, v)
		}
	}
	if sample.RSSBytes != 64<<20 || sample.SwapBytes != 1<<20 {
		t.Fatalf("unexpected memory: %+v", sample)
	}

	snap, err := src.ThreadSnapshot(ctx)
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if got := snap[types.MetricCPU][7]; got != int64(2*time.Second) {
		t.Fatalf("unexpected total cpu for 7: %d", got)
	}
	if got := snap[types.MetricUserCPU][8]; got != int64(250*time.Millisecond) {
		t.Fatalf("unexpected user cpu for 8: %d", got)
	}
}

func TestSourceProbeWithoutIOOrNet(t *testing.T) {
	h := &fakeHandle{ioErr: errors.New("permission denied"), times: &cpu.TimesStat{}, running: true}
	stubHost(t, h, errors.New("no netns"))

	ctx := context.Background()
	src, err := Open(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	caps := src.Probe(ctx)
	if caps.IO || caps.Net || caps.Supports(types.MetricCPU) {
		t.Fatalf("nothing optional should be supported: %+v", caps)
	}
	sample, err := src.ProcessSample(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sample.Counters[types.CounterReadBytes]; ok {
		t.Fatalf("io counters must be skipped when unsupported")
	}
	if _, err := src.ThreadSnapshot(ctx); err == nil {
		t.Fatalf("expected thread read error")
	}
}

func TestSourceDetectsExit(t *testing.T) {
	h := &fakeHandle{times: &cpu.TimesStat{}, running: false}
	stubHost(t, h, nil)

	src, err := Open(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.ProcessSample(context.Background()); !errors.Is(err, ErrProcessGone) {
		t.Fatalf("expected ErrProcessGone, got %v", err)
	}
}

func TestSelfCPUTime(t *testing.T) {
	stubHost(t, &fakeHandle{times: &cpu.TimesStat{User: 0.5, System: 0.25}}, nil)
	got, err := SelfCPUTime(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %v", got)
	}
}

func TestSourceReadsJVMCounters(t *testing.T) {
	h := &fakeHandle{threads: map[int32]*cpu.TimesStat{7: {User: 1}}, times: &cpu.TimesStat{User: 1}, running: true}
	stubHost(t, h, nil)
	jvm := &fakeJVM{counters: map[string]int64{
		"sun.os.hrt.frequency":           1_000_000_000,
		"sun.gc.collector.0.invocations": 3,
		"sun.gc.collector.0.time":        30_000_000,
		"sun.gc.collector.1.invocations": 1,
		"sun.gc.collector.1.time":        200_000_000,
	}}
	var opened string
	openPerfData = func(user string, pid int32) (jvmSource, error) {
		opened = user
		return jvm, nil
	}

	ctx := context.Background()
	src, err := Open(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	caps := src.Probe(ctx)
	if opened != "svc" || !caps.GC || caps.Safepoint {
		t.Fatalf("expected gc only for user svc, got user=%q caps=%+v", opened, caps)
	}

	jvm.counters["sun.gc.collector.0.invocations"] = 5
	sample, err := src.ProcessSample(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sample.Counters[types.CounterYoungGCCount] != 5 || sample.Counters[types.CounterFullGCTimeMs] != 200 {
		t.Fatalf("jvm counters not merged: %v", sample.Counters)
	}
	if err := src.Close(); err != nil || !jvm.closed {
		t.Fatalf("close should release the perfdata mapping")
	}
}

func TestSourceIgnoresNonJVMPerfData(t *testing.T) {
	stubHost(t, &fakeHandle{times: &cpu.TimesStat{}, running: true}, nil)
	jvm := &fakeJVM{counters: map[string]int64{"sun.os.hrt.frequency": 1000}}
	openPerfData = func(string, int32) (jvmSource, error) { return jvm, nil }

	src, err := Open(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	caps := src.Probe(context.Background())
	if caps.GC || caps.Safepoint || !jvm.closed {
		t.Fatalf("perfdata without gc counters should be dropped: %+v closed=%v", caps, jvm.closed)
	}
}
