package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/internal/format"
)

var (
	ErrMisaligned     = errors.New("trace: payload not 8-byte aligned")
	ErrOverlap        = errors.New("trace: payload overlaps a live block")
	ErrShortPayload   = errors.New("trace: payload smaller than requested")
	ErrPayloadChanged = errors.New("trace: payload bytes changed")
	ErrUnknownID      = errors.New("trace: id is not live")
	ErrHeapCheck      = errors.New("trace: heap check failed")
	ErrNotCheckable   = errors.New("trace: heap does not support CheckHeap")
)

// ctxCheckInterval is how many operations run between context checks.
const ctxCheckInterval = 256

// Heap is the allocator surface a trace drives.
type Heap interface {
	Alloc(n uint32) (alloc.Ptr, error)
	Free(p alloc.Ptr) error
	Realloc(p alloc.Ptr, n uint32) (alloc.Ptr, error)
	Payload(p alloc.Ptr) ([]byte, error)
	HeapSize() int
}

// Checker is implemented by heaps that can verify themselves.
type Checker interface {
	CheckHeap(verbose bool) *alloc.Report
}

type statser interface {
	Stats() alloc.Stats
}

// ReplayOptions configures Replay. A nil *ReplayOptions uses the zero value.
type ReplayOptions struct {
	// CheckHeap runs the heap's consistency check after every operation.
	// The heap must implement Checker.
	CheckHeap bool

	// Logger receives a debug summary. Nil discards.
	Logger *slog.Logger
}

// Result summarizes a replay.
type Result struct {
	Ops         int
	PeakPayload uint64  // largest sum of live requested sizes
	HeapSize    int     // arena size after the last operation
	Utilization float64 // PeakPayload / HeapSize
	Stats       *alloc.Stats
}

// ReplayError reports the operation at which a replay failed.
type ReplayError struct {
	Index int
	Op    Op
	Err   error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("trace: op %d (%s id=%d size=%d): %v", e.Index, e.Op.Kind, e.Op.ID, e.Op.Size, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

type span struct {
	lo, hi uint32
}

// replayer holds the live-block bookkeeping for one replay.
type replayer struct {
	h       Heap
	checker Checker
	live    map[int]liveBlock
	spans   []span // live payloads sorted by lo, empty ones excluded
	payload uint64
	peak    uint64
}

type liveBlock struct {
	ptr  alloc.Ptr
	size uint32
}

// Replay runs every operation of tr against h, verifying each result. It stops
// at the first failure and returns a *ReplayError wrapping the cause.
func Replay(ctx context.Context, h Heap, tr *Trace, opts *ReplayOptions) (*Result, error) {
	var o ReplayOptions
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &replayer{h: h, live: make(map[int]liveBlock, tr.NumIDs)}
	if o.CheckHeap {
		c, ok := h.(Checker)
		if !ok {
			return nil, ErrNotCheckable
		}
		r.checker = c
	}

	for i, op := range tr.Ops {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := r.step(op); err != nil {
			return nil, &ReplayError{Index: i, Op: op, Err: err}
		}
		if r.checker != nil {
			if rep := r.checker.CheckHeap(false); !rep.OK() {
				return nil, &ReplayError{Index: i, Op: op, Err: fmt.Errorf("%w: %w", ErrHeapCheck, rep.Err())}
			}
		}
	}

	res := &Result{
		Ops:         len(tr.Ops),
		PeakPayload: r.peak,
		HeapSize:    h.HeapSize(),
	}
	if res.HeapSize > 0 {
		res.Utilization = float64(r.peak) / float64(res.HeapSize)
	}
	if s, ok := h.(statser); ok {
		st := s.Stats()
		res.Stats = &st
	}
	o.Logger.Debug("trace replayed", "ops", res.Ops, "peak", res.PeakPayload,
		"heap", res.HeapSize, "utilization", res.Utilization)
	return res, nil
}

func (r *replayer) step(op Op) error {
	switch op.Kind {
	case OpAlloc:
		if _, dup := r.live[op.ID]; dup {
			return fmt.Errorf("%w: id %d allocated twice", ErrUnknownID, op.ID)
		}
		p, err := r.h.Alloc(op.Size)
		if err != nil {
			return err
		}
		return r.adopt(op.ID, p, op.Size, 0)

	case OpRealloc:
		old, ok := r.live[op.ID]
		if ok {
			if err := r.verify(op.ID, old, old.size); err != nil {
				return err
			}
		}
		p, err := r.h.Realloc(old.ptr, op.Size)
		if err != nil {
			return err
		}
		r.forget(op.ID, old)
		if err := r.verify(op.ID, liveBlock{ptr: p, size: op.Size}, min(old.size, op.Size)); err != nil {
			return err
		}
		return r.adopt(op.ID, p, op.Size, min(old.size, op.Size))

	case OpFree:
		old, ok := r.live[op.ID]
		if !ok {
			return fmt.Errorf("%w: free of id %d", ErrUnknownID, op.ID)
		}
		if err := r.verify(op.ID, old, old.size); err != nil {
			return err
		}
		if err := r.h.Free(old.ptr); err != nil {
			return err
		}
		r.forget(op.ID, old)
		return nil

	default:
		return fmt.Errorf("unknown operation %s", op.Kind)
	}
}

// adopt checks a freshly returned block, fills its payload from byte keep on
// and records it as live.
func (r *replayer) adopt(id int, p alloc.Ptr, size, keep uint32) error {
	b := liveBlock{ptr: p, size: size}
	if size > 0 {
		if !format.IsAligned8(uint32(p)) {
			return fmt.Errorf("%w: 0x%X", ErrMisaligned, uint32(p))
		}
		buf, err := r.h.Payload(p)
		if err != nil {
			return err
		}
		if uint64(len(buf)) < uint64(size) {
			return fmt.Errorf("%w: %d < %d", ErrShortPayload, len(buf), size)
		}
		s := span{lo: uint32(p), hi: uint32(p) + size}
		if err := r.insertSpan(s); err != nil {
			return err
		}
		for i := keep; i < size; i++ {
			buf[i] = pattern(id, i)
		}
	}

	r.live[id] = b
	r.payload += uint64(size)
	r.peak = max(r.peak, r.payload)
	return nil
}

func (r *replayer) forget(id int, b liveBlock) {
	if _, ok := r.live[id]; !ok {
		return
	}
	delete(r.live, id)
	r.payload -= uint64(b.size)
	if b.size == 0 {
		return
	}
	i := sort.Search(len(r.spans), func(i int) bool { return r.spans[i].lo >= uint32(b.ptr) })
	if i < len(r.spans) && r.spans[i].lo == uint32(b.ptr) {
		r.spans = append(r.spans[:i], r.spans[i+1:]...)
	}
}

// verify checks the first n payload bytes of b still hold id's pattern.
func (r *replayer) verify(id int, b liveBlock, n uint32) error {
	if n == 0 {
		return nil
	}
	buf, err := r.h.Payload(b.ptr)
	if err != nil {
		return err
	}
	if uint64(len(buf)) < uint64(n) {
		return fmt.Errorf("%w: %d < %d", ErrShortPayload, len(buf), n)
	}
	for i := uint32(0); i < n; i++ {
		if buf[i] != pattern(id, i) {
			return fmt.Errorf("%w: id %d at 0x%X byte %d", ErrPayloadChanged, id, uint32(b.ptr), i)
		}
	}
	return nil
}

func (r *replayer) insertSpan(s span) error {
	i := sort.Search(len(r.spans), func(i int) bool { return r.spans[i].lo >= s.lo })
	if i > 0 && r.spans[i-1].hi > s.lo {
		return fmt.Errorf("%w: [0x%X, 0x%X) and [0x%X, 0x%X)", ErrOverlap, s.lo, s.hi, r.spans[i-1].lo, r.spans[i-1].hi)
	}
	if i < len(r.spans) && r.spans[i].lo < s.hi {
		return fmt.Errorf("%w: [0x%X, 0x%X) and [0x%X, 0x%X)", ErrOverlap, s.lo, s.hi, r.spans[i].lo, r.spans[i].hi)
	}
	r.spans = append(r.spans, span{})
	copy(r.spans[i+1:], r.spans[i:])
	r.spans[i] = s
	return nil
}

// pattern is the byte stored at offset i of block id's payload.
func pattern(id int, i uint32) byte {
	return byte(id) ^ byte(i) ^ byte(i>>8)
}
