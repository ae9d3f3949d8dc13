//go:build linux
// +build linux

package sched

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/features"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"

	"github.com/srodi/threadtop/pkg/types"
)

// Collector owns the eBPF program and map that count per-thread context
// switches of one process.
type Collector struct {
	switches *ebpf.Map
	prog     *ebpf.Program
	tp       link.Link
}

const resetSweepRetries = 3

// NewCollector loads the switch counter for process tgid and attaches it to
// sched/sched_switch.
func NewCollector(tgid int32) (*Collector, error) {
	if err := features.HaveProgramType(ebpf.TracePoint); err != nil {
		return nil, fmt.Errorf("tracepoint programs unavailable: %w", err)
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("removing memlock rlimit: %w", err)
	}

	switches, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "thread_switches",
		Type:       ebpf.Hash,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: maxThreads,
	})
	if err != nil {
		return nil, fmt.Errorf("creating switch map: %w", err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "count_switches",
		Type:         ebpf.TracePoint,
		License:      "GPL",
		Instructions: switchCounter(switches.FD(), tgid),
	})
	if err != nil {
		switches.Close()
		return nil, fmt.Errorf("loading switch counter: %w", err)
	}

	tp, err := link.Tracepoint("sched", "sched_switch", prog, nil)
	if err != nil {
		prog.Close()
		switches.Close()
		return nil, fmt.Errorf("attaching tracepoint: %w", err)
	}

	return &Collector{switches: switches, prog: prog, tp: tp}, nil
}

// Close detaches the tracepoint and releases the BPF resources.
func (c *Collector) Close() error {
	var err error
	if c.tp != nil {
		err = errors.Join(err, c.tp.Close())
	}
	if c.prog != nil {
		err = errors.Join(err, c.prog.Close())
	}
	if c.switches != nil {
		err = errors.Join(err, c.switches.Close())
	}
	return err
}

// Snapshot returns the cumulative switch count of every thread seen so far.
func (c *Collector) Snapshot() (types.ThreadValues, error) {
	values := make(types.ThreadValues)
	iter := c.switches.Iterate()
	var tid uint32
	var count uint64
	for iter.Next(&tid, &count) {
		values[types.ThreadID(tid)] = int64(count)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("iterating switch map: %w", err)
	}
	return values, nil
}

// Prune deletes entries of threads that are no longer alive so the map does
// not fill up with dead tids.
func (c *Collector) Prune(live map[types.ThreadID]struct{}) error {
	for attempt := 1; attempt <= resetSweepRetries; attempt++ {
		iter := c.switches.Iterate()
		var tid uint32
		var count uint64
		for iter.Next(&tid, &count) {
			if _, ok := live[types.ThreadID(tid)]; ok {
				continue
			}
			if err := c.switches.Delete(&tid); err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
				return fmt.Errorf("clearing tid %d: %w", tid, err)
			}
		}
		if err := iter.Err(); err != nil {
			if errors.Is(err, ebpf.ErrIterationAborted) && attempt < resetSweepRetries {
				continue
			}
			return fmt.Errorf("iterating switch map: %w", err)
		}
		return nil
	}
	return nil
}
