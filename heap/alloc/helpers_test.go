package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/heap/verify"
)

// newTestAllocator returns an initialized allocator over a counting MemStore
// of the given capacity (0 for the default).
func newTestAllocator(t testing.TB, capacity int, opts *Options) (*Allocator, *arena.Counting) {
	t.Helper()
	mem, err := arena.NewMemStore(capacity)
	require.NoError(t, err)
	store := arena.NewCounting(mem)

	a, err := New(store, opts)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	return a, store
}

// heap returns the live arena bytes.
func (a *Allocator) heap() []byte { return a.store.Bytes() }

// requireConsistent fails the test if any heap invariant is broken.
func requireConsistent(t testing.TB, a *Allocator) {
	t.Helper()
	require.NoError(t, verify.AllInvariants(a.heap(), a.free.Head()))
	r := a.CheckHeap(false)
	require.True(t, r.OK(), "heap check:\n%s", r)
}

// mustAlloc allocates n bytes and fills the payload with fill.
func mustAlloc(t testing.TB, a *Allocator, n uint32, fill byte) Ptr {
	t.Helper()
	p, err := a.Alloc(n)
	require.NoError(t, err)
	require.NotEqual(t, Nil, p)
	buf, err := a.Payload(p)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = fill
	}
	return p
}

// requireFilled checks the first n payload bytes of p all equal fill.
func requireFilled(t testing.TB, a *Allocator, p Ptr, n int, fill byte) {
	t.Helper()
	buf, err := a.Payload(p)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(buf), n)
	for i := 0; i < n; i++ {
		if buf[i] != fill {
			require.Failf(t, "payload corrupted", "ptr 0x%X byte %d: got 0x%X want 0x%X", uint32(p), i, buf[i], fill)
		}
	}
}

// movingStore reallocates its buffer on every Grow, like a remapped file.
type movingStore struct {
	buf []byte
}

func (m *movingStore) Grow(n int) (int, error) {
	old := len(m.buf)
	next := make([]byte, old+n)
	copy(next, m.buf)
	m.buf = next
	return old, nil
}

func (m *movingStore) Bytes() []byte { return m.buf }
func (m *movingStore) Len() int      { return len(m.buf) }
func (m *movingStore) Close() error  { return nil }

func newMovingAllocator(t testing.TB) *Allocator {
	t.Helper()
	a, err := New(&movingStore{}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	return a
}
