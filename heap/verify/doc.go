// Package verify checks the structural invariants of a heapkit arena.
//
// It works on the raw arena bytes plus the free-list head, so it can inspect a
// live allocator, a file-backed heap reopened from disk, or a deliberately
// corrupted buffer in a test.
//
// # Checks
//
//   - Prologue: 8-byte allocated sentinel at offset 8, header equal to footer.
//   - Epilogue: zero-size allocated header in the last word; arena length is a
//     multiple of 8.
//   - Blocks: every block between the sentinels is 8-byte aligned, at least
//     MinBlockSize, has no reserved tag bits set, stays inside the arena, and
//     has a footer equal to its header. The walk must land exactly on the
//     epilogue.
//   - Coalescing: no two physically adjacent blocks are both free.
//   - FreeList: the list from head visits every free block exactly once and
//     nothing else, every prev link mirrors the walk, and the walk terminates.
//
// # Usage
//
// AllInvariants returns the first fault, which suits tests:
//
//	if err := verify.AllInvariants(data, head); err != nil {
//	    t.Fatalf("heap corrupted: %v", err)
//	}
//
// Collect reports every fault it can find along with a summary of the arena,
// which is what Allocator.CheckHeap uses:
//
//	faults, sum := verify.Collect(data, head, 0)
//
// Walk visits blocks in address order and stops at the first structural fault.
//
// All functions are read-only and never panic on corrupt input.
package verify
