package common

import (
	"sync"
	"testing"

	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/stretchr/testify/require"
)

func TestTrackingAllocator(t *testing.T) {
	a := NewTrackingAllocator(memory.NewGoAllocator())

	buf := a.Allocate(100)
	require.Equal(t, int64(100), a.Allocated())
	require.Equal(t, int64(100), a.Peak())

	buf = a.Reallocate(300, buf)
	require.Equal(t, int64(300), a.Allocated())
	require.Equal(t, int64(300), a.Peak())

	a.Free(buf)
	require.Equal(t, int64(0), a.Allocated())

	// Peak stays at the high-water mark after frees.
	require.Equal(t, int64(300), a.Peak())
}

func TestTrackingAllocatorConcurrent(t *testing.T) {
	a := NewTrackingAllocator(memory.NewGoAllocator())

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				buf := a.Allocate(64)
				a.Free(buf)
			}
		}()
	}

	wg.Wait()

	require.Equal(t, int64(0), a.Allocated())
	require.GreaterOrEqual(t, a.Peak(), int64(64))
}
