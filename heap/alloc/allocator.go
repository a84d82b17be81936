package alloc

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/heap/block"
	"github.com/joshuapare/heapkit/heap/freelist"
	"github.com/joshuapare/heapkit/heap/verify"
	"github.com/joshuapare/heapkit/internal/format"
)

// Ptr is a payload pointer: the arena offset of the first payload byte.
type Ptr uint32

// Nil is the null payload pointer. No block ever starts at offset 0.
const Nil Ptr = format.NilOffset

// Allocator manages one arena with boundary-tag blocks, an explicit LIFO free
// list, first-fit placement and immediate coalescing.
//
// An Allocator is not safe for concurrent use.
type Allocator struct {
	store   arena.Store
	free    *freelist.List
	dt      DirtyTracker // nil unless Options.Dirty was set
	log     *slog.Logger
	chunk   uint32
	trusted bool
	ready   bool

	stats Stats

	// Test hook: called with the byte count before each arena extension.
	onGrow func(int)
}

// New returns an allocator over store. Call Init before use, or use Attach to
// adopt a store that already holds a heap.
func New(store arena.Store, opts *Options) (*Allocator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrBadOptions)
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Allocator{
		store:   store,
		free:    freelist.New(o.Dirty),
		dt:      o.Dirty,
		log:     o.Logger,
		chunk:   o.ChunkSize,
		trusted: o.Trusted,
	}, nil
}

// Init writes the padding word, prologue and epilogue into an empty store and
// adds the first chunk as a single free block.
func (a *Allocator) Init() error {
	if a.ready {
		return ErrAlreadyInitialized
	}
	if n := a.store.Len(); n != 0 {
		return fmt.Errorf("%w: store already holds %d bytes", ErrInit, n)
	}

	base, err := a.store.Grow(format.InitialArenaSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	if base != 0 {
		return fmt.Errorf("%w: store returned base %d for an empty region", ErrInit, base)
	}

	data := a.store.Bytes()
	format.PutU32(data, format.PaddingOffset, 0)
	block.SetTags(data, format.PrologueBP, format.PrologueSize, true)
	block.PutTag(data, format.InitialEpilogueOffset, block.Pack(0, true))
	a.mark(0, format.InitialArenaSize)
	a.free.Reset()

	if _, err := a.extend(a.chunk / format.WordSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	a.ready = true
	a.log.Debug("heap initialized", "size", a.store.Len(), "chunk", a.chunk)
	return nil
}

// Attach adopts a store that already holds a heap written by an Allocator,
// such as a FileStore reopened from disk. The block sequence is validated and
// the free list is rebuilt from the free blocks in address order.
func Attach(store arena.Store, opts *Options) (*Allocator, error) {
	a, err := New(store, opts)
	if err != nil {
		return nil, err
	}

	data := store.Bytes()
	var free []uint32
	err = verify.Walk(data, func(b verify.Block) bool {
		if !b.Allocated {
			free = append(free, b.BP)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	// Insert from the top so the head is the lowest address.
	for i := len(free) - 1; i >= 0; i-- {
		if err := a.insert(data, free[i]); err != nil {
			return nil, err
		}
	}
	a.ready = true
	a.log.Debug("heap attached", "size", len(data), "free_blocks", len(free))
	return a, nil
}

// Alloc returns a pointer to at least n bytes of 8-byte aligned payload.
// A zero-size request returns Nil and no error.
func (a *Allocator) Alloc(n uint32) (Ptr, error) {
	if !a.ready {
		return Nil, ErrNotInitialized
	}
	a.stats.AllocCalls++
	if n == 0 {
		return Nil, nil
	}

	asize, ok := block.AdjustedSize(n)
	if !ok {
		return Nil, fmt.Errorf("%w: request of %d bytes exceeds the block size range", ErrOutOfMemory, n)
	}

	data := a.store.Bytes()
	bp := a.findFit(data, asize)
	if bp == format.NilOffset {
		a.stats.AllocSlowPath++
		var err error
		if bp, err = a.extend(max(asize, a.chunk) / format.WordSize); err != nil {
			return Nil, err
		}
		data = a.store.Bytes()
	} else {
		a.stats.AllocFastPath++
	}

	if err := a.place(data, bp, asize); err != nil {
		return Nil, err
	}
	return Ptr(bp), nil
}

// Free returns the block at p to the free list and merges it with free
// neighbours. Freeing Nil is a no-op.
func (a *Allocator) Free(p Ptr) error {
	if !a.ready {
		return ErrNotInitialized
	}
	a.stats.FreeCalls++
	if p == Nil {
		return nil
	}

	data := a.store.Bytes()
	if err := a.checkLive(data, "free", p); err != nil {
		return err
	}

	bp := uint32(p)
	size := block.SizeOf(data, bp)
	block.SetTags(data, bp, size, false)
	if _, err := a.coalesce(data, bp); err != nil {
		block.SetTags(data, bp, size, true)
		return err
	}
	a.markTags(bp, size)
	return nil
}

// Realloc moves the allocation at p into a block of at least n bytes and
// returns the new pointer. The first min(n, old payload) bytes are preserved.
//
// Realloc(Nil, n) is Alloc(n); Realloc(p, 0) frees p and returns Nil. If the
// new block cannot be obtained the error matches both ErrReallocFailed and
// ErrOutOfMemory, and p stays valid and unchanged. If freeing p fails after
// the copy (ErrCorruptHeap or a contract violation), the new pointer is still
// returned along with the error and the caller owns it.
func (a *Allocator) Realloc(p Ptr, n uint32) (Ptr, error) {
	if !a.ready {
		return Nil, ErrNotInitialized
	}
	a.stats.ReallocCalls++
	if p == Nil {
		return a.Alloc(n)
	}
	if n == 0 {
		return Nil, a.Free(p)
	}

	data := a.store.Bytes()
	if err := a.checkLive(data, "realloc", p); err != nil {
		return Nil, err
	}
	old := block.PayloadSize(block.SizeOf(data, uint32(p)))

	np, err := a.Alloc(n)
	if err != nil {
		a.log.Debug("realloc failed", "ptr", uint32(p), "size", n, "err", err)
		return Nil, fmt.Errorf("%w: %w", ErrReallocFailed, err)
	}

	// The arena may have moved while growing.
	data = a.store.Bytes()
	copy(data[np:uint32(np)+min(n, old)], data[p:uint32(p)+min(n, old)])
	a.mark(int(np), int(min(n, old)))

	if err := a.Free(p); err != nil {
		return np, err
	}
	return np, nil
}

// Payload returns the payload bytes of the live block at p. The slice is
// valid until the next call that grows the arena.
func (a *Allocator) Payload(p Ptr) ([]byte, error) {
	if !a.ready {
		return nil, ErrNotInitialized
	}
	data := a.store.Bytes()
	if err := a.checkLive(data, "payload", p); err != nil {
		return nil, err
	}
	end := uint32(p) + block.PayloadSize(block.SizeOf(data, uint32(p)))
	return data[p:end:end], nil
}

// UsableSize returns the payload capacity of the live block at p, which is at
// least the size it was requested with.
func (a *Allocator) UsableSize(p Ptr) (int, error) {
	if !a.ready {
		return 0, ErrNotInitialized
	}
	data := a.store.Bytes()
	if err := a.checkLive(data, "usable_size", p); err != nil {
		return 0, err
	}
	return int(block.PayloadSize(block.SizeOf(data, uint32(p)))), nil
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator) Stats() Stats { return a.stats }

// Usage walks the arena and reports how it is used. The walk stops at the
// first structural fault; CheckHeap reports what that fault is.
func (a *Allocator) Usage() Usage {
	data := a.store.Bytes()
	u := Usage{HeapSize: len(data)}
	_ = verify.Walk(data, func(b verify.Block) bool {
		if b.Allocated {
			u.AllocBlocks++
			u.AllocBytes += uint64(b.Size)
		} else {
			u.FreeBlocks++
			u.FreeBytes += uint64(b.Size)
			u.LargestFree = max(u.LargestFree, b.Size)
		}
		return true
	})
	if u.HeapSize > 0 {
		u.Utilization = float64(u.AllocBytes) / float64(u.HeapSize)
	}
	if u.FreeBytes > 0 {
		u.Fragmentation = 1 - float64(u.LargestFree)/float64(u.FreeBytes)
	}
	return u
}

// HeapSize returns the current arena size in bytes.
func (a *Allocator) HeapSize() int { return a.store.Len() }

// findFit returns the first free block of at least asize bytes, or 0.
func (a *Allocator) findFit(data []byte, asize uint32) uint32 {
	fit := uint32(format.NilOffset)
	steps := 0
	a.free.Walk(data, a.free.Len(), func(bp uint32) bool {
		steps++
		if block.SizeOf(data, bp) >= asize {
			fit = bp
			return false
		}
		return true
	})
	a.stats.FitScanSteps += int64(steps)
	return fit
}

// place allocates asize bytes at the start of the free block bp, splitting off
// the remainder when it can hold a minimum block.
func (a *Allocator) place(data []byte, bp, asize uint32) error {
	size := block.SizeOf(data, bp)
	if err := a.free.Remove(data, bp); err != nil {
		return a.corrupt(bp, "fit block is not on the free list")
	}

	if size-asize < format.MinBlockSize {
		block.SetTags(data, bp, size, true)
		a.markTags(bp, size)
		return nil
	}

	block.SetTags(data, bp, asize, true)
	a.markTags(bp, asize)
	rest := bp + asize
	block.SetTags(data, rest, size-asize, false)
	a.markTags(rest, size-asize)
	a.stats.Splits++
	return a.insert(data, rest)
}

// coalesce merges the free block bp with any free physical neighbours and
// pushes the result on the free list. bp must be tagged free and not yet on
// the list. It returns the merged block, which starts at the lowest address of
// the span. Neighbour membership is checked before anything is written.
func (a *Allocator) coalesce(data []byte, bp uint32) (uint32, error) {
	size := block.SizeOf(data, bp)
	next := block.Next(data, bp)
	nextFree := !block.IsAllocated(data, next)
	prevFree := !block.PrevAllocated(data, bp)

	var prev uint32
	if prevFree {
		prev = block.Prev(data, bp)
		if !a.free.Contains(data, prev) {
			return 0, a.corrupt(prev, "free predecessor is not on the free list")
		}
	}
	if nextFree && !a.free.Contains(data, next) {
		return 0, a.corrupt(next, "free successor is not on the free list")
	}

	switch {
	case !prevFree && !nextFree:
		a.stats.CoalesceNone++
		return bp, a.insert(data, bp)
	case !prevFree:
		a.stats.CoalesceNext++
		if err := a.unlink(data, next); err != nil {
			return 0, err
		}
		size += block.SizeOf(data, next)
	case !nextFree:
		a.stats.CoalescePrev++
		if err := a.unlink(data, prev); err != nil {
			return 0, err
		}
		size += block.SizeOf(data, prev)
		bp = prev
	default:
		a.stats.CoalesceBoth++
		if err := a.unlink(data, prev); err != nil {
			return 0, err
		}
		if err := a.unlink(data, next); err != nil {
			return 0, err
		}
		size += block.SizeOf(data, prev) + block.SizeOf(data, next)
		bp = prev
	}

	block.SetTags(data, bp, size, false)
	a.markTags(bp, size)
	return bp, a.insert(data, bp)
}

func (a *Allocator) insert(data []byte, bp uint32) error {
	if err := a.free.Insert(data, bp); err != nil {
		return a.corrupt(bp, err.Error())
	}
	return nil
}

func (a *Allocator) unlink(data []byte, bp uint32) error {
	if err := a.free.Remove(data, bp); err != nil {
		return a.corrupt(bp, err.Error())
	}
	return nil
}

// extend grows the arena by words words (rounded up to an even count and to at
// least one minimum block), formats the new space as a free block over the old
// epilogue, writes a new epilogue, and coalesces the block with its
// predecessor.
func (a *Allocator) extend(words uint32) (uint32, error) {
	size := max(uint64(format.EvenWords(words))*format.WordSize, format.MinBlockSize)
	heap := a.store.Len()
	if uint64(heap)+size > arena.MaxHeap {
		a.stats.GrowFailed++
		return 0, fmt.Errorf("%w: growing %d bytes at %d exceeds the offset range", ErrOutOfMemory, size, heap)
	}

	if a.onGrow != nil {
		a.onGrow(int(size))
	}
	base, err := a.store.Grow(int(size))
	if err != nil {
		a.stats.GrowFailed++
		a.log.Debug("grow refused", "bytes", size, "heap", heap, "err", err)
		return 0, fmt.Errorf("%w: grow by %d bytes: %w", ErrOutOfMemory, size, err)
	}
	a.stats.GrowCalls++
	a.stats.GrowBytes += int64(size)

	data := a.store.Bytes()
	bp, sz := uint32(base), uint32(size)
	block.SetTags(data, bp, sz, false)
	epilogue := bp + sz - format.WordSize
	block.PutTag(data, epilogue, block.Pack(0, true))
	a.markTags(bp, sz)
	a.mark(int(epilogue), format.WordSize)

	a.log.Debug("heap grown", "bytes", size, "heap", len(data))
	return a.coalesce(data, bp)
}

// checkLive validates that p points at an allocated block with sane tags.
func (a *Allocator) checkLive(data []byte, op string, p Ptr) error {
	if a.trusted {
		return nil
	}
	reason := liveBlockFault(data, uint32(p))
	if reason == nil {
		return nil
	}
	a.stats.Violations++
	a.log.Warn("pointer contract violation", "op", op, "ptr", uint32(p), "reason", reason)
	return &PointerError{Op: op, Ptr: p, Err: reason}
}

func liveBlockFault(data []byte, bp uint32) error {
	if !format.IsAligned8(bp) {
		return ErrMisaligned
	}
	if bp < format.FirstBlockBP || uint64(bp)+format.MinBlockSize > uint64(len(data)) {
		return ErrBadPointer
	}

	hdr := block.Header(data, bp)
	if !block.Allocated(hdr) {
		return ErrDoubleFree
	}
	size := block.Size(hdr)
	if hdr&format.TagFlagMask != format.AllocatedBit ||
		size < format.MinBlockSize ||
		uint64(bp)+uint64(size) > uint64(len(data)) {
		return ErrCorruptBlock
	}
	if block.TagAt(data, bp+size-format.DWordSize) != hdr {
		return ErrCorruptBlock
	}
	return nil
}

func (a *Allocator) corrupt(bp uint32, what string) error {
	a.log.Warn("heap corruption", "block", bp, "detail", what)
	return fmt.Errorf("%w: block 0x%X: %s", ErrCorruptHeap, bp, what)
}

func (a *Allocator) markTags(bp, size uint32) {
	a.mark(int(block.HeaderOff(bp)), format.WordSize)
	a.mark(int(bp+size-format.DWordSize), format.WordSize)
}

func (a *Allocator) mark(off, n int) {
	if a.dt != nil {
		a.dt.Add(off, n)
	}
}
