// Package format holds the binary layout of a heapkit arena: word sizes,
// alignment rules, sentinel geometry, and the little-endian encoding of
// boundary tags. Higher-level packages build the block codec, free list and
// allocator on top of these primitives.
package format

const (
	// WordSize is the size of a boundary tag (header or footer) in bytes.
	WordSize = 4

	// DWordSize is the double-word size. Payload pointers are aligned to it and
	// a block's header plus footer together occupy one double word.
	DWordSize = 8

	// Alignment is the required alignment of every block size and payload offset.
	Alignment = DWordSize

	// AlignmentMask masks the low bits that must be zero in an aligned value.
	AlignmentMask = Alignment - 1

	// TagFlagMask covers the low 3 bits of a tag word. Bit 0 is the allocated
	// flag; bits 1 and 2 are reserved and always zero.
	TagFlagMask = 0x7

	// AllocatedBit marks a block as allocated in its header and footer.
	AllocatedBit = 0x1

	// LinkSize is the size of one free-list link (a uint32 arena offset).
	LinkSize = 4

	// TagOverhead is the per-block cost of the header and footer.
	TagOverhead = 2 * WordSize

	// MinBlockSize is the smallest legal block: header, prev/next links and footer.
	MinBlockSize = TagOverhead + 2*LinkSize

	// DefaultChunkSize is the number of bytes the arena grows by when the
	// free list cannot satisfy a request (and the size of the initial seed).
	DefaultChunkSize = 1 << 12

	// MaxBlockSize is the largest size that fits in a tag word after masking.
	MaxBlockSize = 0xFFFFFFF8
)

// Arena prologue geometry.
//
//	Offset  Size  Description
//	0x00    4     Alignment padding (zero)
//	0x04    4     Prologue header, Pack(8, 1)
//	0x08    4     Prologue footer, Pack(8, 1)
//	0x0C    4     Epilogue header, Pack(0, 1)
const (
	// PaddingOffset is the offset of the alignment padding word.
	PaddingOffset = 0

	// PrologueHeaderOffset is the offset of the prologue header.
	PrologueHeaderOffset = WordSize

	// PrologueBP is the block pointer of the prologue block.
	PrologueBP = 2 * WordSize

	// PrologueSize is the size of the prologue block (header + footer only).
	PrologueSize = DWordSize

	// InitialEpilogueOffset is the offset of the epilogue header in a fresh arena.
	InitialEpilogueOffset = 3 * WordSize

	// InitialArenaSize is the size of the region requested before the first chunk.
	InitialArenaSize = 4 * WordSize

	// FirstBlockBP is the block pointer of the first block after the prologue.
	FirstBlockBP = InitialArenaSize

	// NilOffset is the null link / null pointer value. No block can start at 0.
	NilOffset = 0
)
