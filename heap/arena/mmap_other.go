//go:build !unix

package arena

// MmapStore is unavailable on this platform.
type MmapStore struct{ MemStore }

// NewMmapStore returns ErrUnsupported on non-unix platforms.
func NewMmapStore(max int) (*MmapStore, error) {
	return nil, ErrUnsupported
}

// FileStore is unavailable on this platform.
type FileStore struct{ MemStore }

// CreateFile returns ErrUnsupported on non-unix platforms.
func CreateFile(path string) (*FileStore, error) {
	return nil, ErrUnsupported
}

// OpenFile returns ErrUnsupported on non-unix platforms.
func OpenFile(path string) (*FileStore, error) {
	return nil, ErrUnsupported
}

// Flush is a no-op on non-unix platforms.
func (fs *FileStore) Flush(off, n int) error {
	return ErrUnsupported
}

// Sync is unsupported on non-unix platforms.
func (fs *FileStore) Sync() error {
	return ErrUnsupported
}
