package format

// Align8 returns n aligned up to the next 8-byte boundary.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
func Align8(n int) int {
	return (n + AlignmentMask) &^ AlignmentMask
}

// Align8U64 is Align8 for uint64 values. Callers use it to detect requests that
// no longer fit in a 32-bit tag after rounding.
func Align8U64(n uint64) uint64 {
	return (n + AlignmentMask) &^ AlignmentMask
}

// IsAligned8 reports whether off is a multiple of 8.
func IsAligned8(off uint32) bool {
	return off&AlignmentMask == 0
}

// EvenWords rounds a word count up to an even number so that the resulting
// byte size stays double-word aligned.
//
// Example:
//
//	EvenWords(3) = 4
//	EvenWords(4) = 4
func EvenWords(words uint32) uint32 {
	if words%2 != 0 {
		return words + 1
	}
	return words
}
