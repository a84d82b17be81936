// Package block is the boundary-tag codec for heapkit arenas.
//
// A block pointer (bp) is the arena offset of the first payload byte. Every
// block carries a header word at bp-4 and a footer word at bp+size-8, both
// encoding (size | allocated):
//
//	31                          3  2  1  0
//	+----------------------------+--+--+--+
//	| size (multiple of 8)       | 0| 0| a|
//	+----------------------------+--+--+--+
//
// Free blocks reuse the first two payload words as free-list links:
//
//	bp+0  prev_free (uint32 arena offset, 0 = none)
//	bp+4  next_free (uint32 arena offset, 0 = none)
//
// All functions are pure offset arithmetic over the arena slice. Offsets
// outside the slice panic through the ordinary bounds check, which is the
// single place arena bounds are enforced.
package block

import "github.com/joshuapare/heapkit/internal/format"

// Pack encodes a block size and allocated flag into a tag word.
// size must already be 8-byte aligned.
func Pack(size uint32, allocated bool) uint32 {
	if allocated {
		return size | format.AllocatedBit
	}
	return size
}

// Size decodes the block size from a tag word.
func Size(tag uint32) uint32 {
	return tag &^ format.TagFlagMask
}

// Allocated decodes the allocated flag from a tag word.
func Allocated(tag uint32) bool {
	return tag&format.AllocatedBit != 0
}

// TagAt reads the tag word stored at off.
func TagAt(data []byte, off uint32) uint32 {
	return format.ReadU32(data, int(off))
}

// PutTag stores a tag word at off.
func PutTag(data []byte, off uint32, tag uint32) {
	format.PutU32(data, int(off), tag)
}

// HeaderOff returns the offset of bp's header.
func HeaderOff(bp uint32) uint32 {
	return bp - format.WordSize
}

// FooterOff returns the offset of bp's footer, using the size in its header.
func FooterOff(data []byte, bp uint32) uint32 {
	return bp + SizeOf(data, bp) - format.DWordSize
}

// Header returns bp's header tag.
func Header(data []byte, bp uint32) uint32 {
	return TagAt(data, HeaderOff(bp))
}

// Footer returns bp's footer tag.
func Footer(data []byte, bp uint32) uint32 {
	return TagAt(data, FooterOff(data, bp))
}

// SizeOf returns the size recorded in bp's header.
func SizeOf(data []byte, bp uint32) uint32 {
	return Size(Header(data, bp))
}

// IsAllocated reports the allocated flag in bp's header.
func IsAllocated(data []byte, bp uint32) bool {
	return Allocated(Header(data, bp))
}

// SetTags writes matching header and footer tags for bp. The header is written
// first so the footer lands at bp+size-8 for the new size.
func SetTags(data []byte, bp, size uint32, allocated bool) {
	tag := Pack(size, allocated)
	PutTag(data, HeaderOff(bp), tag)
	PutTag(data, bp+size-format.DWordSize, tag)
}

// Next returns the block pointer of the block physically after bp.
// Must not be called on the epilogue.
func Next(data []byte, bp uint32) uint32 {
	return bp + SizeOf(data, bp)
}

// Prev returns the block pointer of the block physically before bp, read from
// the preceding block's footer. Must not be called on the prologue.
func Prev(data []byte, bp uint32) uint32 {
	return bp - Size(TagAt(data, bp-format.DWordSize))
}

// PrevAllocated reports whether the block before bp is allocated, reading
// only its footer.
func PrevAllocated(data []byte, bp uint32) bool {
	return Allocated(TagAt(data, bp-format.DWordSize))
}

// PrevFree returns the prev_free link stored in a free block.
func PrevFree(data []byte, bp uint32) uint32 {
	return format.ReadU32(data, int(bp))
}

// NextFree returns the next_free link stored in a free block.
func NextFree(data []byte, bp uint32) uint32 {
	return format.ReadU32(data, int(bp)+format.LinkSize)
}

// SetPrevFree stores the prev_free link of a free block.
func SetPrevFree(data []byte, bp, prev uint32) {
	format.PutU32(data, int(bp), prev)
}

// SetNextFree stores the next_free link of a free block.
func SetNextFree(data []byte, bp, next uint32) {
	format.PutU32(data, int(bp)+format.LinkSize, next)
}

// AdjustedSize converts a payload request into a block size: payload rounded
// up to 8 plus header/footer overhead, and never below MinBlockSize.
// ok is false when the result does not fit in a tag word.
func AdjustedSize(n uint32) (uint32, bool) {
	asize := format.Align8U64(uint64(n)) + format.TagOverhead
	if asize > format.MaxBlockSize {
		return 0, false
	}
	if asize < format.MinBlockSize {
		asize = format.MinBlockSize
	}
	return uint32(asize), true
}

// PayloadSize returns the usable payload bytes of a block of the given size.
func PayloadSize(size uint32) uint32 {
	return size - format.TagOverhead
}
