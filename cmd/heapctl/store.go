package main

import (
	"context"
	"fmt"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/heap/dirty"
	"github.com/spf13/pflag"
)

// Store flags shared by replay and check.
var (
	storeKind string
	storePath string
	maxHeap   int
	chunkSize uint32
)

// heapSession is an initialized allocator and the store behind it.
type heapSession struct {
	alloc *alloc.Allocator
	store arena.Store
	dirty *dirty.Tracker // set for file stores
}

func registerStoreFlags(flags *pflag.FlagSet) {
	flags.StringVar(&storeKind, "store", "mem", "Backing store: mem, mmap, or file")
	flags.StringVar(&storePath, "path", "", "Heap file for --store file")
	flags.IntVar(&maxHeap, "max-heap", arena.DefaultMaxHeap, "Maximum heap size in bytes")
	flags.Uint32Var(&chunkSize, "chunk", alloc.DefaultOptions().ChunkSize, "Minimum arena growth in bytes")
}

// newSession creates the configured store and an initialized allocator on it.
func newSession() (*heapSession, error) {
	var (
		store arena.Store
		err   error
		s     = &heapSession{}
	)
	switch storeKind {
	case "mem":
		store, err = arena.NewMemStore(maxHeap)
	case "mmap":
		store, err = arena.NewMmapStore(maxHeap)
	case "file":
		if storePath == "" {
			return nil, fmt.Errorf("--store file requires --path")
		}
		var fs *arena.FileStore
		fs, err = arena.CreateFile(storePath)
		if err == nil {
			store = &cappedStore{Store: fs, max: maxHeap}
			s.dirty = dirty.NewTracker(fs)
		}
	default:
		return nil, fmt.Errorf("unknown store %q (must be mem, mmap, or file)", storeKind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", storeKind, err)
	}
	s.store = store

	opts := alloc.DefaultOptions()
	opts.ChunkSize = chunkSize
	if s.dirty != nil {
		opts.Dirty = s.dirty
	}
	a, err := alloc.New(store, &opts)
	if err == nil {
		err = a.Init()
	}
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s.alloc = a
	return s, nil
}

// cappedStore refuses growth past max. File stores have no capacity of their
// own.
type cappedStore struct {
	arena.Store
	max int
}

func (c *cappedStore) Grow(n int) (int, error) {
	if c.Len()+n > c.max {
		return 0, fmt.Errorf("%w: grow by %d at %d bytes exceeds --max-heap %d", arena.ErrExhausted, n, c.Len(), c.max)
	}
	return c.Store.Grow(n)
}

// Close flushes a file-backed heap and releases the store.
func (s *heapSession) Close() error {
	if s.dirty != nil {
		if err := s.dirty.Flush(context.Background(), dirty.FlushFull); err != nil {
			_ = s.store.Close()
			return fmt.Errorf("failed to flush heap file: %w", err)
		}
	}
	return s.store.Close()
}
