package alloc

import (
	"errors"
	"fmt"
)

var (
	// ErrInit indicates the backing store refused the initial region or chunk.
	ErrInit = errors.New("alloc: heap initialization failed")

	// ErrOutOfMemory indicates the backing store refused to grow the arena, or
	// the request cannot be represented in a block tag.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrReallocFailed indicates Realloc could not obtain the new block. The old
	// block is left untouched and still owned by the caller.
	ErrReallocFailed = errors.New("alloc: reallocation failed")

	// ErrNotInitialized indicates an operation on an allocator before Init.
	ErrNotInitialized = errors.New("alloc: allocator not initialized")

	// ErrAlreadyInitialized indicates a second call to Init.
	ErrAlreadyInitialized = errors.New("alloc: allocator already initialized")

	// ErrBadOptions indicates invalid Options.
	ErrBadOptions = errors.New("alloc: invalid options")

	// ErrCorruptHeap indicates allocator metadata no longer agrees with itself,
	// typically after a caller wrote outside its payload.
	ErrCorruptHeap = errors.New("alloc: heap metadata corrupted")
)

// ErrContractViolation is matched by every *PointerError.
var ErrContractViolation = errors.New("alloc: contract violation")

// Contract violation reasons carried by PointerError.Err.
var (
	// ErrMisaligned indicates a pointer that is not 8-byte aligned.
	ErrMisaligned = errors.New("alloc: pointer not 8-byte aligned")

	// ErrBadPointer indicates a pointer outside the block region of the arena.
	ErrBadPointer = errors.New("alloc: pointer outside the heap")

	// ErrDoubleFree indicates a pointer whose block is already free.
	ErrDoubleFree = errors.New("alloc: block is not allocated")

	// ErrCorruptBlock indicates a block whose header and footer disagree or
	// whose size cannot be right.
	ErrCorruptBlock = errors.New("alloc: corrupt block tags")
)

// PointerError reports a caller passing a pointer the allocator did not hand
// out, or no longer owns. No allocator state is changed when one is returned.
type PointerError struct {
	Op  string
	Ptr Ptr
	Err error
}

func (e *PointerError) Error() string {
	return fmt.Sprintf("alloc: %s(0x%X): %v", e.Op, uint32(e.Ptr), e.Err)
}

func (e *PointerError) Unwrap() error { return e.Err }

// Is makes every PointerError match ErrContractViolation.
func (e *PointerError) Is(target error) bool {
	return target == ErrContractViolation
}
