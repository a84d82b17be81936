package arena

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxHeap is the default capacity of a MemStore or MmapStore (20 MiB).
	DefaultMaxHeap = 20 << 20

	// MaxHeap is the largest arena any store will hand out. Block offsets are
	// uint32, so the arena must stay addressable by them.
	MaxHeap = 1<<32 - 8
)

var (
	// ErrExhausted indicates the store cannot extend the region any further.
	ErrExhausted = errors.New("arena: backing store exhausted")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("arena: store closed")

	// ErrUnsupported indicates the store type is unavailable on this platform.
	ErrUnsupported = errors.New("arena: unsupported on this platform")

	// ErrBadSize indicates a non-positive or oversized request.
	ErrBadSize = errors.New("arena: invalid size")
)

// Store is the growable backing region of an arena.
type Store interface {
	// Grow extends the region by n bytes and returns the offset of the first new
	// byte (the previous break). The region never shrinks. On failure the
	// region is unchanged.
	Grow(n int) (int, error)

	// Bytes returns the current region. The slice may be replaced by Grow.
	Bytes() []byte

	// Len returns the current size of the region in bytes.
	Len() int

	// Close releases the region. Bytes returns nil afterwards.
	Close() error
}

// Flusher is implemented by stores whose bytes have a durable home.
type Flusher interface {
	// Flush writes the byte range [off, off+n) back to its durable home.
	Flush(off, n int) error
}

// Syncer is implemented by stores that can force their durable home to stable
// storage.
type Syncer interface {
	Sync() error
}

// MemStore is a Go-heap backed Store with a fixed capacity.
type MemStore struct {
	buf    []byte
	max    int
	closed bool
}

// NewMemStore returns a MemStore that can grow up to max bytes.
// max <= 0 selects DefaultMaxHeap.
func NewMemStore(max int) (*MemStore, error) {
	if max <= 0 {
		max = DefaultMaxHeap
	}
	if int64(max) > MaxHeap {
		return nil, fmt.Errorf("%w: max %d exceeds %d", ErrBadSize, max, MaxHeap)
	}
	return &MemStore{buf: make([]byte, 0, max), max: max}, nil
}

// Grow implements Store.
func (m *MemStore) Grow(n int) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: grow by %d", ErrBadSize, n)
	}
	old := len(m.buf)
	if n > m.max-old {
		return 0, fmt.Errorf("%w: grow by %d at %d/%d bytes", ErrExhausted, n, old, m.max)
	}
	// Extend within the preallocated capacity; new bytes are zero.
	m.buf = m.buf[:old+n]
	clear(m.buf[old:])
	return old, nil
}

// Bytes implements Store.
func (m *MemStore) Bytes() []byte { return m.buf }

// Len implements Store.
func (m *MemStore) Len() int { return len(m.buf) }

// Cap returns the maximum size the store can reach.
func (m *MemStore) Cap() int { return m.max }

// Close implements Store.
func (m *MemStore) Close() error {
	m.buf = nil
	m.closed = true
	return nil
}

// Counting wraps a Store and counts successful and failed Grow calls.
type Counting struct {
	Store

	GrowCalls  int
	GrowBytes  int64
	GrowFailed int

	// OnGrow, when set, is called with each requested size before the inner
	// store is asked to grow.
	OnGrow func(n int)
}

// NewCounting wraps s.
func NewCounting(s Store) *Counting {
	return &Counting{Store: s}
}

// Grow implements Store.
func (c *Counting) Grow(n int) (int, error) {
	if c.OnGrow != nil {
		c.OnGrow(n)
	}
	base, err := c.Store.Grow(n)
	if err != nil {
		c.GrowFailed++
		return 0, err
	}
	c.GrowCalls++
	c.GrowBytes += int64(n)
	return base, nil
}

// Flush forwards to the inner store when it is a Flusher.
func (c *Counting) Flush(off, n int) error {
	if f, ok := c.Store.(Flusher); ok {
		return f.Flush(off, n)
	}
	return nil
}

// Sync forwards to the inner store when it is a Syncer.
func (c *Counting) Sync() error {
	if s, ok := c.Store.(Syncer); ok {
		return s.Sync()
	}
	return nil
}
