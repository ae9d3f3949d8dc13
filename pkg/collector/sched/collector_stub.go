//go:build !linux
// +build !linux

package sched

import (
	"errors"

	"github.com/srodi/threadtop/pkg/types"
)

var errUnsupported = errors.New("context switch collector requires linux")

// Collector is a placeholder on non-Linux platforms.
type Collector struct{}

// NewCollector returns an error because eBPF is only supported on Linux.
func NewCollector(tgid int32) (*Collector, error) {
	return nil, errUnsupported
}

// Snapshot always fails on unsupported platforms.
func (c *Collector) Snapshot() (types.ThreadValues, error) {
	return nil, errUnsupported
}

// Prune does nothing on unsupported platforms.
func (c *Collector) Prune(live map[types.ThreadID]struct{}) error {
	return nil
}

// Close is a no-op stub.
func (c *Collector) Close() error {
	return nil
}
