package alloc

import (
	"fmt"
	"io"
)

// Stats holds allocator counters. Calls made internally (Realloc allocating
// and freeing) are counted as well.
type Stats struct {
	AllocCalls    int // Alloc calls, including zero-size requests
	AllocFastPath int // allocations satisfied from the free list
	AllocSlowPath int // allocations that had to grow the arena
	FreeCalls     int
	ReallocCalls  int

	GrowCalls  int   // successful arena extensions, including Init's first chunk
	GrowBytes  int64 // bytes added by successful extensions
	GrowFailed int   // extensions the store refused

	Splits       int   // placements that split off a free remainder
	FitScanSteps int64 // free-list nodes examined by first-fit

	CoalesceNone int // freed block had no free neighbour
	CoalesceNext int // merged with the following block
	CoalescePrev int // merged with the preceding block
	CoalesceBoth int // merged with both neighbours

	Violations int // pointer contract violations reported
}

// Usage describes how the arena is currently used.
type Usage struct {
	HeapSize      int     // arena bytes including sentinels
	FreeBlocks    int     // free blocks in the arena
	FreeBytes     uint64  // bytes in free blocks, tags included
	AllocBlocks   int     // allocated blocks, sentinels excluded
	AllocBytes    uint64  // bytes in allocated blocks, tags included
	LargestFree   uint32  // size of the largest free block
	Utilization   float64 // AllocBytes / HeapSize
	Fragmentation float64 // 1 - LargestFree/FreeBytes; 0 with no free bytes
}

// WriteTo prints the counters in a human-readable table.
func (s Stats) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w,
		"alloc calls:    %d (fast: %d, slow: %d)\n"+
			"free calls:     %d\n"+
			"realloc calls:  %d\n"+
			"grow calls:     %d (%d bytes, %d failed)\n"+
			"splits:         %d\n"+
			"fit scan steps: %d\n"+
			"coalesce:       none=%d next=%d prev=%d both=%d\n"+
			"violations:     %d\n",
		s.AllocCalls, s.AllocFastPath, s.AllocSlowPath,
		s.FreeCalls,
		s.ReallocCalls,
		s.GrowCalls, s.GrowBytes, s.GrowFailed,
		s.Splits,
		s.FitScanSteps,
		s.CoalesceNone, s.CoalesceNext, s.CoalescePrev, s.CoalesceBoth,
		s.Violations,
	)
	return int64(n), err
}
