package format

import "testing"

func TestAlign8(t *testing.T) {
	cases := map[int]int{0: 0, 1: 8, 7: 8, 8: 8, 9: 16, 4095: 4096, 4097: 4104}
	for in, want := range cases {
		if got := Align8(in); got != want {
			t.Fatalf("Align8(%d) = %d, want %d", in, got, want)
		}
	}
	if got := Align8U64(0xFFFFFFF9); got != 0x100000000 {
		t.Fatalf("Align8U64 overflow boundary = 0x%x", got)
	}
}

func TestIsAligned8(t *testing.T) {
	if !IsAligned8(16) || IsAligned8(12) || !IsAligned8(0) {
		t.Fatalf("IsAligned8 misclassified an offset")
	}
}

func TestEvenWords(t *testing.T) {
	if EvenWords(3) != 4 || EvenWords(4) != 4 || EvenWords(1025) != 1026 {
		t.Fatalf("EvenWords did not round to an even count")
	}
}

func TestEncodingRoundTrip(t *testing.T) {
	b := make([]byte, 8)
	PutU32(b, 4, 0xDEADBEEF)
	if b[4] != 0xEF || b[7] != 0xDE {
		t.Fatalf("PutU32 not little-endian: % x", b)
	}
	if got := ReadU32(b, 4); got != 0xDEADBEEF {
		t.Fatalf("ReadU32 = 0x%x", got)
	}
}

func TestLayoutConstants(t *testing.T) {
	if MinBlockSize != 16 {
		t.Fatalf("MinBlockSize = %d, want 16", MinBlockSize)
	}
	if FirstBlockBP%Alignment != 0 || PrologueBP%Alignment != 0 {
		t.Fatalf("sentinel block pointers must be 8-byte aligned")
	}
	if InitialEpilogueOffset+WordSize != InitialArenaSize {
		t.Fatalf("epilogue must be the last word of the initial region")
	}
}
