// Package freelist is the explicit free-block index of a heapkit arena.
//
// The list is intrusive and index-based: links are uint32 arena offsets stored
// in the first two payload words of each free block (see package block), and
// only the head offset lives outside the arena. Because every reference is an
// offset, the list survives the arena being remapped to a new address.
//
// Insertion is always at the head (LIFO); order has no meaning beyond giving
// first-fit its scan order. Insert and Remove are O(1) and never allocate.
//
// A List is not safe for concurrent use.
package freelist

import (
	"errors"

	"github.com/joshuapare/heapkit/heap/block"
	"github.com/joshuapare/heapkit/heap/dirty"
	"github.com/joshuapare/heapkit/internal/format"
)

var (
	// ErrNotMember indicates an attempt to remove a block that is not in the list.
	ErrNotMember = errors.New("freelist: block is not a list member")

	// ErrAllocated indicates an attempt to insert a block whose allocated bit is set.
	ErrAllocated = errors.New("freelist: block is allocated")
)

// DirtyTracker receives the byte ranges the list rewrites.
type DirtyTracker = dirty.DirtyTracker

// List is a doubly linked list of free blocks threaded through the arena.
type List struct {
	head uint32
	n    int
	dt   DirtyTracker
}

// New returns an empty list. dt may be nil.
func New(dt DirtyTracker) *List {
	return &List{dt: dt}
}

// Head returns the first block in the list, or 0 when empty.
func (l *List) Head() uint32 { return l.head }

// Len returns the number of blocks in the list.
func (l *List) Len() int { return l.n }

// Reset empties the list without touching the arena.
func (l *List) Reset() {
	l.head = format.NilOffset
	l.n = 0
}

// Insert pushes bp at the head of the list. bp must be marked free.
func (l *List) Insert(data []byte, bp uint32) error {
	if block.IsAllocated(data, bp) {
		return ErrAllocated
	}

	old := l.head
	block.SetPrevFree(data, bp, format.NilOffset)
	block.SetNextFree(data, bp, old)
	l.mark(bp)
	if old != format.NilOffset {
		block.SetPrevFree(data, old, bp)
		l.mark(old)
	}
	l.head = bp
	l.n++
	return nil
}

// Remove unlinks bp from the list and clears its links.
//
// The membership check is O(1): bp must be free and either be the head or
// have a predecessor whose next link points back at it. Anything else returns
// ErrNotMember without modifying the arena.
func (l *List) Remove(data []byte, bp uint32) error {
	if !l.Contains(data, bp) {
		return ErrNotMember
	}

	prev := block.PrevFree(data, bp)
	next := block.NextFree(data, bp)
	switch {
	case prev == format.NilOffset && next == format.NilOffset:
		// Sole element.
		l.head = format.NilOffset
	case prev == format.NilOffset:
		// Head with a successor.
		l.head = next
		block.SetPrevFree(data, next, format.NilOffset)
		l.mark(next)
	case next == format.NilOffset:
		// Tail with a predecessor.
		block.SetNextFree(data, prev, format.NilOffset)
		l.mark(prev)
	default:
		block.SetNextFree(data, prev, next)
		block.SetPrevFree(data, next, prev)
		l.mark(prev)
		l.mark(next)
	}

	block.SetPrevFree(data, bp, format.NilOffset)
	block.SetNextFree(data, bp, format.NilOffset)
	l.mark(bp)
	l.n--
	return nil
}

// Contains reports whether bp is linked into the list, in O(1): bp must be
// free and either be the head or have a predecessor whose next link points
// back at it.
func (l *List) Contains(data []byte, bp uint32) bool {
	if l.head == format.NilOffset || block.IsAllocated(data, bp) {
		return false
	}
	prev := block.PrevFree(data, bp)
	switch {
	case prev == format.NilOffset:
		return l.head == bp
	case int(prev)+2*format.LinkSize > len(data):
		return false
	default:
		return block.NextFree(data, prev) == bp
	}
}

// Walk calls fn for each block from head to tail and stops early when fn
// returns false. A cycle guard bounds the walk at limit steps; limit <= 0
// means len(data)/MinBlockSize, the most blocks the arena could hold.
func (l *List) Walk(data []byte, limit int, fn func(bp uint32) bool) {
	if limit <= 0 {
		limit = len(data)/format.MinBlockSize + 1
	}
	for bp, steps := l.head, 0; bp != format.NilOffset && steps < limit; steps++ {
		if !fn(bp) {
			return
		}
		bp = block.NextFree(data, bp)
	}
}

func (l *List) mark(bp uint32) {
	if l.dt != nil {
		l.dt.Add(int(bp), 2*format.LinkSize)
	}
}
