package verify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/block"
	"github.com/joshuapare/heapkit/internal/format"
)

// buildHeap lays out an arena with the given block sizes (negative means
// allocated) and threads every free block onto a list in address order.
// It returns the arena, the list head, and the block pointers.
func buildHeap(t *testing.T, sizes ...int) ([]byte, uint32, []uint32) {
	t.Helper()

	total := format.InitialArenaSize
	for _, s := range sizes {
		total += abs(s)
	}
	data := make([]byte, total)
	block.SetTags(data, format.PrologueBP, format.PrologueSize, true)

	bps := make([]uint32, 0, len(sizes))
	var free []uint32
	bp := uint32(format.FirstBlockBP)
	for _, s := range sizes {
		block.SetTags(data, bp, uint32(abs(s)), s < 0)
		if s > 0 {
			free = append(free, bp)
		}
		bps = append(bps, bp)
		bp += uint32(abs(s))
	}
	block.PutTag(data, bp-format.WordSize, block.Pack(0, true))

	var head uint32
	for i, f := range free {
		if i == 0 {
			head = f
		} else {
			block.SetPrevFree(data, f, free[i-1])
		}
		if i+1 < len(free) {
			block.SetNextFree(data, f, free[i+1])
		}
	}
	return data, head, bps
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func requireFault(t *testing.T, err error, typ, contains string) {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
	assert.Equal(t, typ, verr.Type)
	assert.Contains(t, verr.Message, contains)
}

func TestAllInvariants_Valid(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
	}{
		{"empty arena", nil},
		{"single free", []int{4096}},
		{"single allocated", []int{-24}},
		{"mixed", []int{-16, 32, -24, 4024}},
		{"alternating", []int{16, -16, 16, -16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, head, _ := buildHeap(t, tt.sizes...)
			require.NoError(t, AllInvariants(data, head))
		})
	}
}

func TestArena_TooSmallAndUnaligned(t *testing.T) {
	requireFault(t, AllInvariants(make([]byte, 8), 0), TypeArena, "too small")

	data, _, _ := buildHeap(t, -16)
	data = append(data, 0, 0, 0, 0)
	requireFault(t, AllInvariants(data, 0), TypeArena, "not a multiple")
}

func TestPrologue_Corrupt(t *testing.T) {
	data, head, _ := buildHeap(t, 32)
	block.PutTag(data, format.PrologueHeaderOffset, block.Pack(8, false))
	requireFault(t, AllInvariants(data, head), TypePrologue, "header")

	data, _, _ = buildHeap(t, 32)
	block.PutTag(data, format.PrologueBP, block.Pack(16, true))
	requireFault(t, Prologue(data), TypePrologue, "footer")
}

func TestEpilogue_Corrupt(t *testing.T) {
	data, head, _ := buildHeap(t, 32)
	block.PutTag(data, uint32(len(data)-format.WordSize), block.Pack(0, false))
	requireFault(t, AllInvariants(data, head), TypeEpilogue, "bad epilogue")
	requireFault(t, Epilogue(data), TypeEpilogue, "bad epilogue")
}

func TestBlocks_HeaderFooterMismatch(t *testing.T) {
	data, head, bps := buildHeap(t, -16, 32, -16)
	// Flip the allocated bit in the footer only.
	block.PutTag(data, bps[1]+32-format.DWordSize, block.Pack(32, true))

	err := AllInvariants(data, head)
	requireFault(t, err, TypeBlock, "does not match footer")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, int(bps[1]), verr.Offset)
	assert.Equal(t, block.Pack(32, false), verr.Details["header"])
}

func TestBlocks_SizeFaults(t *testing.T) {
	t.Run("below minimum", func(t *testing.T) {
		data, _, bps := buildHeap(t, -16, -16)
		block.PutTag(data, bps[0]-format.WordSize, block.Pack(8, true))
		requireFault(t, Heap(data), TypeBlock, "below minimum")
	})

	t.Run("past epilogue", func(t *testing.T) {
		data, _, bps := buildHeap(t, -16, -16)
		block.PutTag(data, bps[1]-format.WordSize, block.Pack(64, true))
		requireFault(t, Heap(data), TypeBlock, "runs past the epilogue")
	})

	t.Run("zero size before end", func(t *testing.T) {
		data, _, bps := buildHeap(t, -16, -16)
		block.PutTag(data, bps[1]-format.WordSize, block.Pack(0, true))
		requireFault(t, Heap(data), TypeBlock, "zero-size block")
	})

	t.Run("reserved bits", func(t *testing.T) {
		data, _, bps := buildHeap(t, -16)
		tag := block.Pack(16, true) | 0x4
		block.PutTag(data, bps[0]-format.WordSize, tag)
		block.PutTag(data, bps[0]+16-format.DWordSize, tag)
		requireFault(t, Heap(data), TypeBlock, "reserved tag bits")
	})
}

func TestCoalescing_AdjacentFree(t *testing.T) {
	data, head, bps := buildHeap(t, -16, 16, 24, -16)
	err := AllInvariants(data, head)
	requireFault(t, err, TypeCoalescing, "follows another free block")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, int(bps[2]), verr.Offset)
}

func TestFreeList_MissingBlock(t *testing.T) {
	data, _, bps := buildHeap(t, 16, -16, 16)
	// Head skips the first free block.
	block.SetPrevFree(data, bps[2], 0)
	requireFault(t, FreeList(data, bps[2]), TypeFreeList, "missing from free list")
}

func TestFreeList_AllocatedMember(t *testing.T) {
	data, head, bps := buildHeap(t, 16, -16, 16)
	block.SetNextFree(data, head, bps[1])
	requireFault(t, FreeList(data, head), TypeFreeList, "marked allocated")
}

func TestFreeList_NonBlockMember(t *testing.T) {
	data, head, _ := buildHeap(t, 16, -16)
	block.SetNextFree(data, head, 0xFFFF_FFF0)
	requireFault(t, FreeList(data, head), TypeFreeList, "not a free block")
}

func TestFreeList_Cycle(t *testing.T) {
	data, head, bps := buildHeap(t, 16, -16, 16)
	block.SetNextFree(data, bps[2], head)
	requireFault(t, FreeList(data, head), TypeFreeList, "cycle")
}

func TestFreeList_BadBackLink(t *testing.T) {
	data, head, bps := buildHeap(t, 16, -16, 16)
	block.SetPrevFree(data, bps[2], bps[1])
	requireFault(t, FreeList(data, head), TypeFreeList, "prev link")
}

func TestCollect_ReportsEveryFault(t *testing.T) {
	data, head, bps := buildHeap(t, 16, -16, 16, -16, 16)
	// Two independent faults: a footer mismatch and a missing list member.
	block.PutTag(data, bps[1]+16-format.DWordSize, block.Pack(16, false))
	block.SetNextFree(data, bps[2], 0)

	faults, sum := Collect(data, head, 0)
	require.Len(t, faults, 2)
	assert.Equal(t, TypeBlock, faults[0].Type)
	assert.Equal(t, TypeFreeList, faults[1].Type)
	assert.Equal(t, int(bps[4]), faults[1].Offset)

	assert.Equal(t, 5, sum.Blocks)
	assert.Equal(t, 3, sum.FreeBlocks)
	assert.Equal(t, 2, sum.ListLen)
	assert.Equal(t, uint64(48), sum.FreeBytes)
	assert.Equal(t, uint64(32), sum.AllocBytes)
	assert.Equal(t, len(data), sum.ArenaSize)
}

func TestCollect_RespectsMax(t *testing.T) {
	data, head, bps := buildHeap(t, -16, -16, -16)
	for _, bp := range bps {
		block.PutTag(data, bp+16-format.DWordSize, block.Pack(16, false))
	}
	faults, _ := Collect(data, head, 2)
	assert.Len(t, faults, 2)
}

func TestCollect_Summary(t *testing.T) {
	data, head, _ := buildHeap(t, -24, 4000, -16)
	faults, sum := Collect(data, head, 0)
	require.Empty(t, faults)
	assert.Equal(t, 3, sum.Blocks)
	assert.Equal(t, 2, sum.AllocBlocks)
	assert.Equal(t, uint32(4000), sum.LargestFree)
	assert.Equal(t, 1, sum.ListLen)
}

func TestWalk(t *testing.T) {
	data, _, bps := buildHeap(t, -16, 32, -24)

	var got []Block
	require.NoError(t, Walk(data, func(b Block) bool {
		got = append(got, b)
		return true
	}))
	assert.Equal(t, []Block{
		{BP: bps[0], Size: 16, Allocated: true},
		{BP: bps[1], Size: 32, Allocated: false},
		{BP: bps[2], Size: 24, Allocated: true},
	}, got)

	n := 0
	require.NoError(t, Walk(data, func(Block) bool {
		n++
		return false
	}))
	assert.Equal(t, 1, n)
}

func TestValidationError_Format(t *testing.T) {
	e := &ValidationError{Type: TypeBlock, Message: "bad", Offset: 0x20}
	assert.Equal(t, "Block at offset 0x20: bad", e.Error())

	e = &ValidationError{Type: TypeArena, Message: "small", Offset: -1}
	assert.Equal(t, "Arena: small", e.Error())
}
