// Package dirty tracks the arena byte ranges an allocator rewrites and flushes
// them to a durable store.
//
// The allocator reports every boundary-tag and free-list-link write through
// the DirtyTracker interface. The Tracker accumulates those ranges, coalesces
// them into page-aligned spans, and hands each span to the store's Flush
// (msync on a file-backed arena).
package dirty

import (
	"context"
	"os"
	"sort"
)

// defaultRangeCapacity is the pre-allocated capacity for dirty ranges.
const defaultRangeCapacity = 64

// DirtyTracker is the minimal interface for reporting modified byte ranges.
// Allocators and free lists depend on this, not on Tracker.
type DirtyTracker interface {
	// Add marks [off, off+length) as dirty.
	Add(off, length int)
}

// Target is a store whose ranges can be written back.
type Target interface {
	Len() int
	Flush(off, n int) error
}

// Syncer is implemented by targets that can force file metadata and data to
// stable storage after ranges are flushed.
type Syncer interface {
	Sync() error
}

// FlushMode controls durability of Flush.
type FlushMode int

const (
	// FlushDataOnly writes dirty pages back (msync) without a file sync.
	FlushDataOnly FlushMode = iota

	// FlushFull writes dirty pages back and then syncs the file descriptor.
	FlushFull
)

// Range is a dirty byte range of the arena.
type Range struct {
	Off int64
	Len int64
}

// Tracker accumulates dirty ranges and flushes them to a Target.
//
// NOT thread-safe.
type Tracker struct {
	target   Target
	ranges   []Range
	pageSize int64
}

// NewTracker creates a tracker flushing to target. target may be nil for a
// tracker that only records ranges.
func NewTracker(target Target) *Tracker {
	return &Tracker{
		target:   target,
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: int64(os.Getpagesize()),
	}
}

// Add records a dirty range. It only appends; alignment and merging happen in
// Ranges and Flush.
func (t *Tracker) Add(off, length int) {
	if length <= 0 {
		return
	}
	t.ranges = append(t.ranges, Range{Off: int64(off), Len: int64(length)})
}

// Pending returns the number of raw ranges recorded since the last flush.
func (t *Tracker) Pending() int { return len(t.ranges) }

// Reset drops all recorded ranges.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
}

// Ranges returns the recorded ranges page-aligned, sorted, and merged.
func (t *Tracker) Ranges() []Range {
	return t.coalesce()
}

// Flush writes every coalesced range back to the target and clears the
// tracker. Ranges past the target's current length are clamped. The context
// is checked between ranges; on cancellation some ranges may already be
// flushed and the remaining ones stay recorded.
func (t *Tracker) Flush(ctx context.Context, mode FlushMode) error {
	if t.target == nil || len(t.ranges) == 0 {
		t.Reset()
		return nil
	}

	size := int64(t.target.Len())
	for _, r := range t.coalesce() {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(r.Off+r.Len, size)
		if r.Off >= end {
			continue
		}
		if err := t.target.Flush(int(r.Off), int(end-r.Off)); err != nil {
			return err
		}
	}
	t.Reset()

	if mode == FlushFull {
		if s, ok := t.target.(Syncer); ok {
			return s.Sync()
		}
	}
	return nil
}

// coalesce page-aligns all ranges, sorts them, and merges overlapping or
// adjacent ranges.
func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	aligned := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		start := (r.Off / t.pageSize) * t.pageSize
		end := r.Off + r.Len
		if end%t.pageSize != 0 {
			end = ((end / t.pageSize) + 1) * t.pageSize
		}
		aligned[i] = Range{Off: start, Len: end - start}
	}

	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Off < aligned[j].Off
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]
	for _, next := range aligned[1:] {
		if next.Off <= current.Off+current.Len {
			current.Len = max(current.Off+current.Len, next.Off+next.Len) - current.Off
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
