package alloc

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joshuapare/heapkit/heap/verify"
)

// Report is the result of CheckHeap.
type Report struct {
	HeapSize     int
	FreeListHead Ptr
	Summary      verify.Summary
	Faults       []*verify.ValidationError

	// Blocks lists every block in address order up to the first structural
	// fault. Only filled in verbose mode.
	Blocks []verify.Block
}

// OK reports whether no faults were found.
func (r *Report) OK() bool { return len(r.Faults) == 0 }

// Err joins all faults into one error, or returns nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Faults))
	for i, f := range r.Faults {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// WriteTo prints the block listing (verbose reports only), every fault and a
// one-line summary.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if r.Blocks != nil {
		fmt.Fprintf(&b, "heap (0x%X bytes, free list head 0x%X):\n", r.HeapSize, uint32(r.FreeListHead))
		for _, blk := range r.Blocks {
			state := 'f'
			if blk.Allocated {
				state = 'a'
			}
			fmt.Fprintf(&b, "  0x%08X: [%d:%c]\n", blk.BP, blk.Size, state)
		}
	}
	for _, f := range r.Faults {
		fmt.Fprintf(&b, "fault: %v\n", f)
	}
	s := r.Summary
	fmt.Fprintf(&b, "blocks=%d allocated=%d free=%d free_bytes=%d largest_free=%d list_len=%d faults=%d\n",
		s.Blocks, s.AllocBlocks, s.FreeBlocks, s.FreeBytes, s.LargestFree, s.ListLen, len(r.Faults))

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func (r *Report) String() string {
	var b strings.Builder
	_, _ = r.WriteTo(&b)
	return b.String()
}

// CheckHeap scans the arena and the free list and reports every consistency
// fault it finds: bad sentinels, misaligned or undersized blocks, header and
// footer disagreement, uncoalesced neighbours, and free-list membership or
// link errors. With verbose set the report also lists every block.
//
// CheckHeap never modifies the heap.
func (a *Allocator) CheckHeap(verbose bool) *Report {
	data := a.store.Bytes()
	head := a.free.Head()
	faults, sum := verify.Collect(data, head, 0)

	r := &Report{
		HeapSize:     len(data),
		FreeListHead: Ptr(head),
		Summary:      sum,
		Faults:       faults,
	}
	if sum.ListLen != a.free.Len() && len(faults) == 0 {
		r.Faults = append(r.Faults, &verify.ValidationError{
			Type:    verify.TypeFreeList,
			Message: fmt.Sprintf("list walk found %d blocks, allocator counts %d", sum.ListLen, a.free.Len()),
			Offset:  -1,
		})
	}
	if verbose {
		r.Blocks = []verify.Block{}
		_ = verify.Walk(data, func(b verify.Block) bool {
			r.Blocks = append(r.Blocks, b)
			return true
		})
	}

	for _, f := range r.Faults {
		a.log.Warn("heap check fault", "type", f.Type, "offset", f.Offset, "msg", f.Message)
	}
	return r
}
