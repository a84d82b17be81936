// Package arena provides the backing stores a heapkit allocator grows into.
//
// # Overview
//
// A Store is the allocator's only view of the environment: a contiguous,
// monotonically growing byte region with an sbrk-like Grow call. The allocator
// never manages memory except through it.
//
//	base, err := store.Grow(4096) // base = previous break
//	data := store.Bytes()         // may have moved; re-fetch after every Grow
//
// # Implementations
//
// MemStore: Go-heap backed, capped at a fixed maximum (DefaultMaxHeap).
// The backing array is allocated once at the cap so the arena never moves.
//
// MmapStore (unix): reserves the maximum size as anonymous memory with
// mmap(2) and hands out a growing prefix, so addresses are stable.
//
// FileStore (unix): a shared file mapping. Grow extends the file with
// ftruncate(2) and remaps it, which may move the mapping. Because allocator
// metadata are offsets, relocation is transparent. OpenFile reopens an
// existing heap file so an allocator can Attach to it.
//
// Counting wraps any Store and records Grow calls, for tests and statistics.
//
// # Thread Safety
//
// Stores are not thread-safe. They are owned by exactly one allocator.
package arena
