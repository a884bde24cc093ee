package common

import (
	"github.com/apache/arrow/go/v13/arrow/memory"
	"go.uber.org/atomic"
)

// TrackingAllocator wraps a memory.Allocator and counts live and peak
// allocated bytes. It is safe for concurrent use, so a single instance may
// back builders running on different goroutines.
type TrackingAllocator struct {
	mem       memory.Allocator
	allocated atomic.Int64
	peak      atomic.Int64
}

func NewTrackingAllocator(mem memory.Allocator) *TrackingAllocator {
	return &TrackingAllocator{mem: mem}
}

func (a *TrackingAllocator) Allocate(size int) []byte {
	buf := a.mem.Allocate(size)
	a.grow(int64(size))

	return buf
}

func (a *TrackingAllocator) Reallocate(size int, b []byte) []byte {
	buf := a.mem.Reallocate(size, b)
	a.grow(int64(size - len(b)))

	return buf
}

func (a *TrackingAllocator) Free(b []byte) {
	a.mem.Free(b)
	a.allocated.Sub(int64(len(b)))
}

func (a *TrackingAllocator) Allocated() int64 { return a.allocated.Load() }

func (a *TrackingAllocator) Peak() int64 { return a.peak.Load() }

func (a *TrackingAllocator) grow(delta int64) {
	current := a.allocated.Add(delta)

	for {
		peak := a.peak.Load()
		if current <= peak || a.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}
