package dirty

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/arena"
)

type fakeTarget struct {
	size    int
	flushed []Range
	synced  int
	fail    error
}

func (f *fakeTarget) Len() int { return f.size }

func (f *fakeTarget) Flush(off, n int) error {
	if f.fail != nil {
		return f.fail
	}
	f.flushed = append(f.flushed, Range{Off: int64(off), Len: int64(n)})
	return nil
}

func (f *fakeTarget) Sync() error {
	f.synced++
	return nil
}

func page() int64 { return int64(os.Getpagesize()) }

func TestPageAlignment(t *testing.T) {
	tr := NewTracker(nil)
	tr.Add(100, 200)

	got := tr.Ranges()
	require.Len(t, got, 1)
	assert.Equal(t, Range{Off: 0, Len: page()}, got[0])
}

func TestCoalesceMergesAdjacentAndOverlapping(t *testing.T) {
	p := page()
	tr := NewTracker(nil)
	tr.Add(int(3*p+10), 8)
	tr.Add(16, 8)
	tr.Add(int(p-4), 8) // straddles the first page boundary
	tr.Add(int(3*p+100), 8)

	got := tr.Ranges()
	require.Len(t, got, 2)
	assert.Equal(t, Range{Off: 0, Len: 2 * p}, got[0])
	assert.Equal(t, Range{Off: 3 * p, Len: p}, got[1])
}

func TestAddIgnoresEmptyRanges(t *testing.T) {
	tr := NewTracker(nil)
	tr.Add(0, 0)
	tr.Add(8, -1)
	assert.Equal(t, 0, tr.Pending())
	assert.Nil(t, tr.Ranges())
}

func TestFlushClampsAndClears(t *testing.T) {
	p := page()
	target := &fakeTarget{size: int(p + 64)}
	tr := NewTracker(target)
	tr.Add(8, 8)
	tr.Add(int(p+8), 8)

	require.NoError(t, tr.Flush(context.Background(), FlushDataOnly))

	require.Len(t, target.flushed, 1, "adjacent pages merge into one flush")
	assert.Equal(t, Range{Off: 0, Len: p + 64}, target.flushed[0])
	assert.Equal(t, 0, target.synced)
	assert.Equal(t, 0, tr.Pending())
}

func TestFlushFullSyncs(t *testing.T) {
	target := &fakeTarget{size: 4096}
	tr := NewTracker(target)
	tr.Add(0, 4)

	require.NoError(t, tr.Flush(context.Background(), FlushFull))
	assert.Equal(t, 1, target.synced)
}

func TestFlushErrorKeepsRanges(t *testing.T) {
	boom := errors.New("boom")
	tr := NewTracker(&fakeTarget{size: 4096, fail: boom})
	tr.Add(0, 4)

	require.ErrorIs(t, tr.Flush(context.Background(), FlushDataOnly), boom)
	assert.Equal(t, 1, tr.Pending())
}

func TestFlushHonorsCancellation(t *testing.T) {
	target := &fakeTarget{size: 4096}
	tr := NewTracker(target)
	tr.Add(0, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tr.Flush(ctx, FlushDataOnly), context.Canceled)
	assert.Empty(t, target.flushed)
	assert.Equal(t, 1, tr.Pending())
}

func TestFlushWithoutTarget(t *testing.T) {
	tr := NewTracker(nil)
	tr.Add(0, 4)
	require.NoError(t, tr.Flush(context.Background(), FlushFull))
	assert.Equal(t, 0, tr.Pending())
}

type syncedMemStore struct {
	*arena.MemStore
	syncs int
}

func (s *syncedMemStore) Flush(off, n int) error { return nil }
func (s *syncedMemStore) Sync() error            { s.syncs++; return nil }

func TestFlushFullSyncsThroughCounting(t *testing.T) {
	m, err := arena.NewMemStore(1 << 16)
	require.NoError(t, err)
	inner := &syncedMemStore{MemStore: m}
	c := arena.NewCounting(inner)
	_, err = c.Grow(4096)
	require.NoError(t, err)

	tr := NewTracker(c)
	tr.Add(16, 32)
	require.NoError(t, tr.Flush(context.Background(), FlushFull))
	assert.Equal(t, 1, inner.syncs)
	assert.Empty(t, tr.Ranges())
}
