package main

import (
	"context"
	"testing"
)

func TestCheckCommand(t *testing.T) {
	resetFlags()
	path := writeTrace(t, "leak.rep", leakTrace)

	output, err := captureOutput(t, func() error {
		return runCheck(context.Background(), []string{path})
	})
	if err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}
	// 24 bytes rounds to a 32-byte block at 0x10, 100 bytes to 112 at 0x30.
	assertContains(t, output, []string{
		"heap (0x",
		"0x00000010: [32:a]",
		"0x00000030: [112:a]",
		"faults=0",
	})
}

func TestCheckCommand_JSON(t *testing.T) {
	resetFlags()
	jsonOut = true
	path := writeTrace(t, "leak.rep", leakTrace)

	output, err := captureOutput(t, func() error {
		return runCheck(context.Background(), []string{path})
	})
	if err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}
	assertJSON(t, output)

	var got checkResult
	if err := jsonAPI.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if !got.OK || len(got.Faults) != 0 {
		t.Errorf("expected clean heap, got faults %+v", got.Faults)
	}
	allocated := 0
	for _, b := range got.Blocks {
		if b.Allocated {
			allocated++
		}
	}
	if allocated != 2 {
		t.Errorf("allocated blocks = %d, want 2", allocated)
	}
}

func TestCheckCommand_Errors(t *testing.T) {
	resetFlags()
	if _, err := captureOutput(t, func() error {
		return runCheck(context.Background(), []string{"/nonexistent/trace.rep"})
	}); err == nil {
		t.Error("expected error for missing trace file")
	}

	resetFlags()
	storeKind = "file"
	path := writeTrace(t, "leak.rep", leakTrace)
	if _, err := captureOutput(t, func() error {
		return runCheck(context.Background(), []string{path})
	}); err == nil {
		t.Error("expected error for file store without --path")
	}
}
