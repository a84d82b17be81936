package freelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/block"
	"github.com/joshuapare/heapkit/internal/format"
)

type recordingTracker struct {
	adds int
}

func (r *recordingTracker) Add(off, length int) { r.adds++ }

// newFreeBlocks lays out n free 32-byte blocks after a prologue.
func newFreeBlocks(t *testing.T, n int) ([]byte, []uint32) {
	t.Helper()
	data := make([]byte, format.InitialArenaSize+n*32)
	block.SetTags(data, format.PrologueBP, format.PrologueSize, true)
	bps := make([]uint32, n)
	bp := uint32(format.FirstBlockBP)
	for i := range n {
		block.SetTags(data, bp, 32, false)
		bps[i] = bp
		bp += 32
	}
	block.PutTag(data, block.HeaderOff(bp), block.Pack(0, true))
	return data, bps
}

func collect(l *List, data []byte) []uint32 {
	var out []uint32
	l.Walk(data, 0, func(bp uint32) bool {
		out = append(out, bp)
		return true
	})
	return out
}

func TestInsertIsLIFO(t *testing.T) {
	data, bps := newFreeBlocks(t, 3)
	l := New(nil)

	for _, bp := range bps {
		require.NoError(t, l.Insert(data, bp))
	}

	assert.Equal(t, []uint32{bps[2], bps[1], bps[0]}, collect(l, data))
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, bps[2], l.Head())
	assert.Equal(t, uint32(0), block.PrevFree(data, bps[2]))
	assert.Equal(t, bps[2], block.PrevFree(data, bps[1]))
	assert.Equal(t, uint32(0), block.NextFree(data, bps[0]))
}

func TestInsertRejectsAllocated(t *testing.T) {
	data, bps := newFreeBlocks(t, 1)
	block.SetTags(data, bps[0], 32, true)

	l := New(nil)
	require.ErrorIs(t, l.Insert(data, bps[0]), ErrAllocated)
	assert.Equal(t, 0, l.Len())
}

func TestRemoveCases(t *testing.T) {
	tests := []struct {
		name   string
		remove int // index into bps; list order is bps[3], bps[2], bps[1], bps[0]
		want   []int
	}{
		{"head", 3, []int{2, 1, 0}},
		{"tail", 0, []int{3, 2, 1}},
		{"interior", 2, []int{3, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, bps := newFreeBlocks(t, 4)
			l := New(nil)
			for _, bp := range bps {
				require.NoError(t, l.Insert(data, bp))
			}

			require.NoError(t, l.Remove(data, bps[tt.remove]))

			want := make([]uint32, len(tt.want))
			for i, idx := range tt.want {
				want[i] = bps[idx]
			}
			assert.Equal(t, want, collect(l, data))
			assert.Equal(t, 3, l.Len())
			assert.Equal(t, uint32(0), block.PrevFree(data, bps[tt.remove]))
			assert.Equal(t, uint32(0), block.NextFree(data, bps[tt.remove]))
			assert.Equal(t, uint32(0), block.PrevFree(data, l.Head()))
		})
	}
}

func TestRemoveSoleElement(t *testing.T) {
	data, bps := newFreeBlocks(t, 1)
	l := New(nil)
	require.NoError(t, l.Insert(data, bps[0]))

	require.NoError(t, l.Remove(data, bps[0]))
	assert.Equal(t, uint32(0), l.Head())
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, collect(l, data))
}

func TestRemoveNonMember(t *testing.T) {
	data, bps := newFreeBlocks(t, 3)
	l := New(nil)
	require.NoError(t, l.Insert(data, bps[0]))
	require.NoError(t, l.Insert(data, bps[1]))

	// bps[2] is free but was never inserted.
	require.ErrorIs(t, l.Remove(data, bps[2]), ErrNotMember)

	// Removing twice is rejected and leaves the list intact.
	require.NoError(t, l.Remove(data, bps[1]))
	require.ErrorIs(t, l.Remove(data, bps[1]), ErrNotMember)
	assert.Equal(t, []uint32{bps[0]}, collect(l, data))

	// Allocated blocks are never members.
	block.SetTags(data, bps[0], 32, true)
	require.ErrorIs(t, l.Remove(data, bps[0]), ErrNotMember)

	// Empty list.
	require.ErrorIs(t, New(nil).Remove(data, bps[2]), ErrNotMember)
}

func TestWalkStopsEarlyAndBoundsCycles(t *testing.T) {
	data, bps := newFreeBlocks(t, 3)
	l := New(nil)
	for _, bp := range bps {
		require.NoError(t, l.Insert(data, bp))
	}

	seen := 0
	l.Walk(data, 0, func(uint32) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)

	// Corrupt the tail into a cycle; the walk must still terminate.
	block.SetNextFree(data, bps[0], bps[2])
	steps := 0
	l.Walk(data, 10, func(uint32) bool {
		steps++
		return true
	})
	assert.Equal(t, 10, steps)
}

func TestDirtyTracking(t *testing.T) {
	data, bps := newFreeBlocks(t, 2)
	rt := &recordingTracker{}
	l := New(rt)

	require.NoError(t, l.Insert(data, bps[0]))
	require.NoError(t, l.Insert(data, bps[1]))
	require.NoError(t, l.Remove(data, bps[0]))
	assert.Positive(t, rt.adds)

	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, uint32(0), l.Head())
}

func TestContains(t *testing.T) {
	data, bps := newFreeBlocks(t, 3)
	l := New(nil)
	assert.False(t, l.Contains(data, bps[0]), "empty list")

	require.NoError(t, l.Insert(data, bps[0]))
	require.NoError(t, l.Insert(data, bps[2]))

	assert.True(t, l.Contains(data, bps[0]))
	assert.True(t, l.Contains(data, bps[2]))
	assert.False(t, l.Contains(data, bps[1]))

	// A corrupt prev link pointing past the arena is not a member.
	block.SetPrevFree(data, bps[0], uint32(len(data)))
	assert.False(t, l.Contains(data, bps[0]))
}
