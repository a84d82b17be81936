//go:build unix

package arena

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MmapStore reserves its whole capacity as anonymous private memory and grows
// by exposing a longer prefix of the reservation. The mapping never moves.
type MmapStore struct {
	region []byte // full reservation
	brk    int
}

// NewMmapStore reserves max bytes of anonymous memory. max <= 0 selects
// DefaultMaxHeap. Pages are only backed by RAM once touched.
func NewMmapStore(max int) (*MmapStore, error) {
	if max <= 0 {
		max = DefaultMaxHeap
	}
	if int64(max) > MaxHeap {
		return nil, fmt.Errorf("%w: max %d exceeds %d", ErrBadSize, max, MaxHeap)
	}
	region, err := unix.Mmap(-1, 0, max, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap reserve %d bytes: %w", max, err)
	}
	return &MmapStore{region: region}, nil
}

// Grow implements Store.
func (m *MmapStore) Grow(n int) (int, error) {
	if m.region == nil {
		return 0, ErrClosed
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: grow by %d", ErrBadSize, n)
	}
	old := m.brk
	if n > len(m.region)-old {
		return 0, fmt.Errorf("%w: grow by %d at %d/%d bytes", ErrExhausted, n, old, len(m.region))
	}
	m.brk += n
	return old, nil
}

// Bytes implements Store.
func (m *MmapStore) Bytes() []byte {
	if m.region == nil {
		return nil
	}
	return m.region[:m.brk]
}

// Len implements Store.
func (m *MmapStore) Len() int { return m.brk }

// Cap returns the size of the reservation.
func (m *MmapStore) Cap() int { return len(m.region) }

// Close unmaps the reservation.
func (m *MmapStore) Close() error {
	if m.region == nil {
		return nil
	}
	err := unix.Munmap(m.region)
	m.region = nil
	m.brk = 0
	return err
}

// FileStore is a Store backed by a shared mapping of a regular file.
// Growth extends the file and remaps it, so Bytes may move after Grow.
type FileStore struct {
	f    *os.File
	data []byte
	size int
}

// CreateFile creates (or truncates) the heap file at path and returns an
// empty FileStore over it.
func CreateFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileStore{f: f}, nil
}

// OpenFile maps an existing heap file read-write. The current file size
// becomes the break.
func OpenFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("arena: empty heap file: %s", path)
	}
	if sz > MaxHeap {
		_ = f.Close()
		return nil, fmt.Errorf("%w: heap file %s is %d bytes", ErrBadSize, path, sz)
	}

	fs := &FileStore{f: f}
	if err := fs.remap(int(sz)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return fs, nil
}

// Grow implements Store by extending the file and remapping it.
func (fs *FileStore) Grow(n int) (int, error) {
	if fs.f == nil {
		return 0, ErrClosed
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: grow by %d", ErrBadSize, n)
	}
	old := fs.size
	if int64(old)+int64(n) > MaxHeap {
		return 0, fmt.Errorf("%w: grow by %d at %d bytes", ErrExhausted, n, old)
	}

	if err := fs.f.Truncate(int64(old + n)); err != nil {
		return 0, fmt.Errorf("%w: extend heap file: %v", ErrExhausted, err)
	}
	if err := fs.remap(old + n); err != nil {
		// Restore the previous length so the break stays consistent.
		_ = fs.f.Truncate(int64(old))
		if old > 0 {
			if rerr := fs.remap(old); rerr != nil {
				return 0, errors.Join(err, rerr)
			}
		}
		return 0, fmt.Errorf("%w: %v", ErrExhausted, err)
	}
	return old, nil
}

func (fs *FileStore) remap(size int) error {
	if fs.data != nil {
		if err := unix.Munmap(fs.data); err != nil {
			return fmt.Errorf("arena: unmap before remap: %w", err)
		}
		fs.data = nil
	}
	data, err := unix.Mmap(int(fs.f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	fs.data = data
	fs.size = size
	return nil
}

// Bytes implements Store.
func (fs *FileStore) Bytes() []byte { return fs.data }

// Len implements Store.
func (fs *FileStore) Len() int { return fs.size }

// Flush msyncs [off, off+n) to the file. The range is widened to page
// boundaries as msync requires.
func (fs *FileStore) Flush(off, n int) error {
	if fs.data == nil {
		return ErrClosed
	}
	if off < 0 || n < 0 || off+n > fs.size {
		return fmt.Errorf("%w: flush [%d, %d) beyond %d", ErrBadSize, off, off+n, fs.size)
	}
	if n == 0 {
		return nil
	}
	page := os.Getpagesize()
	start := off &^ (page - 1)
	end := min(off+n, fs.size)
	return unix.Msync(fs.data[start:end], unix.MS_SYNC)
}

// Close unmaps the file and closes it.
func (fs *FileStore) Close() error {
	var err error
	if fs.data != nil {
		err = unix.Munmap(fs.data)
		fs.data = nil
	}
	if fs.f != nil {
		if cerr := fs.f.Close(); err == nil {
			err = cerr
		}
		fs.f = nil
	}
	fs.size = 0
	return err
}

// Sync flushes the file's data and metadata to stable storage.
func (fs *FileStore) Sync() error {
	if fs.f == nil {
		return ErrClosed
	}
	return unix.Fsync(int(fs.f.Fd()))
}
