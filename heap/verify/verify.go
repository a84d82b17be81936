package verify

import (
	"fmt"
	"slices"

	"github.com/joshuapare/heapkit/heap/block"
	"github.com/joshuapare/heapkit/internal/format"
)

// Fault categories used in ValidationError.Type.
const (
	TypeArena      = "Arena"
	TypePrologue   = "Prologue"
	TypeEpilogue   = "Epilogue"
	TypeBlock      = "Block"
	TypeCoalescing = "Coalescing"
	TypeFreeList   = "FreeList"
)

// DefaultMaxFaults caps the number of faults Collect returns when max <= 0.
const DefaultMaxFaults = 64

// ValidationError describes a single consistency fault.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Block is one block visited by Walk.
type Block struct {
	BP        uint32
	Size      uint32
	Allocated bool
}

// Summary aggregates what a scan saw.
type Summary struct {
	ArenaSize   int
	Blocks      int
	FreeBlocks  int
	FreeBytes   uint64
	AllocBlocks int
	AllocBytes  uint64
	LargestFree uint32
	ListLen     int
}

// reporter receives faults; returning false stops the scan.
type reporter func(*ValidationError) bool

func fault(typ string, off int, msg string, args ...any) *ValidationError {
	return &ValidationError{Type: typ, Message: fmt.Sprintf(msg, args...), Offset: off}
}

// firstOnly returns a reporter that keeps the first fault and stops.
func firstOnly(dst **ValidationError) reporter {
	return func(e *ValidationError) bool {
		*dst = e
		return false
	}
}

// errOf converts a possibly-nil fault into an error without the typed-nil trap.
func errOf(e *ValidationError) error {
	if e == nil {
		return nil
	}
	return e
}

// AllInvariants validates the whole arena and the free list from head.
// Returns the first fault, or nil if all checks pass.
func AllInvariants(data []byte, head uint32) error {
	var first *ValidationError
	scan(data, head, true, firstOnly(&first))
	return errOf(first)
}

// Heap validates the sentinels and the block sequence, ignoring the free list.
func Heap(data []byte) error {
	var first *ValidationError
	scan(data, 0, false, firstOnly(&first))
	return errOf(first)
}

// Prologue validates the prologue sentinel.
func Prologue(data []byte) error {
	var first *ValidationError
	checkPrologue(data, firstOnly(&first))
	return errOf(first)
}

// Epilogue validates the epilogue sentinel and the arena length.
func Epilogue(data []byte) error {
	var first *ValidationError
	checkEpilogue(data, firstOnly(&first))
	return errOf(first)
}

// FreeList validates the free list from head against the arena.
func FreeList(data []byte, head uint32) error {
	var first *ValidationError
	if !checkArena(data, firstOnly(&first)) {
		return errOf(first)
	}
	free, _, ok := walkBlocks(data, firstOnly(&first), nil)
	if !ok {
		return errOf(first)
	}
	checkFreeList(data, head, free, firstOnly(&first))
	return errOf(first)
}

// Collect runs every check and returns up to max faults (DefaultMaxFaults
// when max <= 0) together with a summary of the arena.
func Collect(data []byte, head uint32, max int) ([]*ValidationError, Summary) {
	if max <= 0 {
		max = DefaultMaxFaults
	}
	var faults []*ValidationError
	sum := scan(data, head, true, func(e *ValidationError) bool {
		faults = append(faults, e)
		return len(faults) < max
	})
	return faults, sum
}

// Walk visits every block between the sentinels in address order. It returns
// the first structural fault, after which no further blocks are visited.
// fn returning false stops the walk early without error.
func Walk(data []byte, fn func(Block) bool) error {
	var first *ValidationError
	if !checkArena(data, firstOnly(&first)) {
		return errOf(first)
	}
	walkBlocks(data, firstOnly(&first), fn)
	return errOf(first)
}

func scan(data []byte, head uint32, withList bool, report reporter) Summary {
	sum := Summary{ArenaSize: len(data)}
	if !checkArena(data, report) {
		return sum
	}

	free, sum, ok := walkBlocks(data, report, nil)
	sum.ArenaSize = len(data)
	if !ok || !withList {
		return sum
	}
	sum.ListLen = checkFreeList(data, head, free, report)
	return sum
}

// checkArena validates the length and both sentinels. It returns false when
// the arena cannot be walked or the reporter asked to stop.
func checkArena(data []byte, report reporter) bool {
	if len(data) < format.InitialArenaSize {
		report(fault(TypeArena, -1, "arena too small: %d bytes (need %d)", len(data), format.InitialArenaSize))
		return false
	}
	if len(data)%format.Alignment != 0 {
		report(fault(TypeArena, -1, "arena length %d is not a multiple of %d", len(data), format.Alignment))
		return false
	}
	if !checkPrologue(data, report) {
		return false
	}
	return checkEpilogue(data, report)
}

func checkPrologue(data []byte, report reporter) bool {
	if len(data) < format.InitialArenaSize {
		return report(fault(TypePrologue, -1, "arena too small for prologue: %d bytes", len(data)))
	}
	want := block.Pack(format.PrologueSize, true)
	hdr := block.TagAt(data, format.PrologueHeaderOffset)
	if hdr != want {
		return report(fault(TypePrologue, format.PrologueHeaderOffset,
			"bad prologue header: got 0x%X, expected 0x%X", hdr, want))
	}
	ftr := block.TagAt(data, format.PrologueBP)
	if ftr != want {
		return report(fault(TypePrologue, format.PrologueBP,
			"bad prologue footer: got 0x%X, expected 0x%X", ftr, want))
	}
	return true
}

func checkEpilogue(data []byte, report reporter) bool {
	if len(data) < format.InitialArenaSize {
		return report(fault(TypeEpilogue, -1, "arena too small for epilogue: %d bytes", len(data)))
	}
	off := len(data) - format.WordSize
	want := block.Pack(0, true)
	if tag := block.TagAt(data, uint32(off)); tag != want {
		return report(fault(TypeEpilogue, off, "bad epilogue header: got 0x%X, expected 0x%X", tag, want))
	}
	return true
}

// walkBlocks walks from the first block to the epilogue. It returns the set of
// free block pointers, the summary, and whether the walk completed and the
// reporter wants more.
func walkBlocks(data []byte, report reporter, visit func(Block) bool) (map[uint32]struct{}, Summary, bool) {
	var sum Summary
	free := make(map[uint32]struct{})
	end := uint64(len(data))
	prevFree := false

	bp := uint64(format.FirstBlockBP)
	for {
		hdr := block.TagAt(data, uint32(bp)-format.WordSize)
		size := block.Size(hdr)
		if size == 0 {
			if bp != end {
				report(fault(TypeBlock, int(bp), "zero-size block before end of arena (end 0x%X)", end))
				return free, sum, false
			}
			return free, sum, true
		}

		if hdr&format.TagFlagMask&^format.AllocatedBit != 0 {
			if !report(fault(TypeBlock, int(bp), "reserved tag bits set: 0x%X", hdr)) {
				return free, sum, false
			}
		}
		if !format.IsAligned8(uint32(bp)) {
			report(fault(TypeBlock, int(bp), "block pointer not %d-byte aligned", format.Alignment))
			return free, sum, false
		}
		if size < format.MinBlockSize {
			report(fault(TypeBlock, int(bp), "block size %d below minimum %d", size, format.MinBlockSize))
			return free, sum, false
		}
		if bp+uint64(size) > end {
			report(fault(TypeBlock, int(bp), "block of size %d runs past the epilogue (end 0x%X)", size, end))
			return free, sum, false
		}

		ftr := block.TagAt(data, uint32(bp)+size-format.DWordSize)
		if ftr != hdr {
			e := fault(TypeBlock, int(bp), "header 0x%X does not match footer 0x%X", hdr, ftr)
			e.Details = map[string]any{"header": hdr, "footer": ftr}
			if !report(e) {
				return free, sum, false
			}
		}

		allocated := block.Allocated(hdr)
		sum.Blocks++
		if allocated {
			sum.AllocBlocks++
			sum.AllocBytes += uint64(size)
		} else {
			if prevFree {
				if !report(fault(TypeCoalescing, int(bp), "free block follows another free block")) {
					return free, sum, false
				}
			}
			free[uint32(bp)] = struct{}{}
			sum.FreeBlocks++
			sum.FreeBytes += uint64(size)
			sum.LargestFree = max(sum.LargestFree, size)
		}
		prevFree = !allocated

		if visit != nil && !visit(Block{BP: uint32(bp), Size: size, Allocated: allocated}) {
			return free, sum, false
		}
		bp += uint64(size)
	}
}

// checkFreeList walks the list from head and compares its membership with the
// free blocks found by the arena walk. It returns the number of list nodes
// visited.
func checkFreeList(data []byte, head uint32, free map[uint32]struct{}, report reporter) int {
	seen := make(map[uint32]struct{}, len(free))
	prev := uint32(format.NilOffset)
	cur := head
	n := 0

	for cur != format.NilOffset {
		if _, dup := seen[cur]; dup {
			report(fault(TypeFreeList, int(cur), "cycle: block 0x%X visited twice", cur))
			return n
		}
		if _, ok := free[cur]; !ok {
			msg := "list member is not a free block"
			if inBlockRegion(data, cur) && block.IsAllocated(data, cur) {
				msg = "list member is marked allocated"
			}
			// Links of a non-block cannot be trusted; stop here.
			report(fault(TypeFreeList, int(cur), "%s", msg))
			return n
		}
		seen[cur] = struct{}{}
		n++

		if back := block.PrevFree(data, cur); back != prev {
			e := fault(TypeFreeList, int(cur), "prev link 0x%X does not match predecessor 0x%X", back, prev)
			if !report(e) {
				return n
			}
		}
		prev = cur
		cur = block.NextFree(data, cur)
	}

	if n == len(free) {
		return n
	}
	missing := make([]uint32, 0, len(free)-n)
	for bp := range free {
		if _, ok := seen[bp]; !ok {
			missing = append(missing, bp)
		}
	}
	slices.Sort(missing)
	for _, bp := range missing {
		if !report(fault(TypeFreeList, int(bp), "free block missing from free list")) {
			break
		}
	}
	return n
}

func inBlockRegion(data []byte, bp uint32) bool {
	return bp >= format.FirstBlockBP && uint64(bp)+format.DWordSize <= uint64(len(data))
}
