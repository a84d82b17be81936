package format

import "encoding/binary"

// Binary encoding utilities for arena words.
//
// Tags and free-list links are little-endian uint32 values regardless of the
// host byte order, so an arena persisted through a file-backed store reads
// back the same on any machine. encoding/binary.LittleEndian compiles down to
// single loads and stores on little-endian hosts.

// PutU32 writes a uint32 value to the buffer at the specified offset in little-endian format.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// ReadU32 reads a uint32 value from the buffer at the specified offset in little-endian format.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}
