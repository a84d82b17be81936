// Package alloc is a dynamic memory allocator over a single growable arena.
//
// # Overview
//
// The allocator hands out 8-byte aligned payload pointers with malloc-style
// Alloc, Free and Realloc. Pointers are offsets into the arena (type Ptr), so
// the arena may be relocated by its backing store without invalidating them.
//
// Design:
//
//   - Boundary tags: every block has a header and a footer word holding
//     size | allocated, so both neighbours of a block are found in O(1).
//   - Explicit free list: free blocks are threaded onto one doubly linked
//     list (package freelist). New and merged blocks go on the head.
//   - First fit: Alloc takes the first list block that is large enough.
//   - Splitting: the unused tail of a placed block becomes a new free block
//     when it can hold a minimum block (16 bytes).
//   - Immediate coalescing: Free merges with free neighbours on both sides,
//     so no two adjacent blocks are ever both free.
//
// # Arena Layout
//
//	0      4          8          12                    end-4
//	| pad  | hdr(8:a) | ftr(8:a) | blocks ...          | hdr(0:a) |
//	       |  prologue (bp=8)    |                     | epilogue |
//
// The allocated prologue and zero-size epilogue bound the block region, so
// coalescing never needs an edge check.
//
// # Usage Example
//
//	store, _ := arena.NewMemStore(0)
//	a, err := alloc.New(store, nil)
//	if err != nil {
//	    return err
//	}
//	if err := a.Init(); err != nil {
//	    return err
//	}
//
//	p, err := a.Alloc(100)
//	if err != nil {
//	    return err
//	}
//	buf, _ := a.Payload(p)
//	copy(buf, "hello")
//
//	p, err = a.Realloc(p, 400)
//	...
//	_ = a.Free(p)
//
// # Growth
//
// When no free block fits, the arena grows by max(request, ChunkSize) bytes
// through arena.Store.Grow. The new space replaces the old epilogue as one
// free block and is merged with a free last block before placement. A refused
// Grow returns ErrOutOfMemory and is never retried.
//
// # Pointer Checks
//
// Unless Options.Trusted is set, Free, Realloc, Payload and UsableSize check
// the pointer before touching the heap: alignment, position inside the block
// region, allocated bit, and header/footer agreement. A failing check returns
// a *PointerError that matches ErrContractViolation along with a specific
// reason (ErrMisaligned, ErrBadPointer, ErrDoubleFree, ErrCorruptBlock), and
// leaves the heap unchanged.
//
// # Consistency Checking
//
// CheckHeap runs the full verify suite against the live arena and returns a
// Report listing every fault. It is read-only and meant for tests and
// debugging, not hot paths.
//
// # Persistence
//
// With an arena.FileStore the heap lives in a file. Options.Dirty receives
// every range the allocator writes; a dirty.Tracker can then flush exactly
// those pages. Attach reopens such a file and rebuilds the free list.
//
// # Debugging
//
// Set HEAPKIT_LOG_ALLOC to any value to log grow events at debug level to
// stderr when no Logger is configured.
//
// # Thread Safety
//
// An Allocator is not safe for concurrent use. Independent allocators over
// different stores may be used from different goroutines.
package alloc
