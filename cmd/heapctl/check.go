package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/trace"
	"github.com/spf13/cobra"
)

// errHeapFaults is returned when a check finds inconsistencies.
var errHeapFaults = errors.New("heap check found faults")

func init() {
	cmd := newCheckCmd()
	registerStoreFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <trace>",
		Short: "Replay a trace and print the final heap layout",
		Long: `The check command replays a trace and then runs the full heap
consistency check, printing every block and any faults found.

Example:
  heapctl check traces/binary.rep
  heapctl check traces/binary.rep --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), args)
		},
	}
	return cmd
}

type faultJSON struct {
	Type    string `json:"type"`
	Offset  int    `json:"offset"`
	Message string `json:"message"`
}

type blockJSON struct {
	Ptr       uint32 `json:"ptr"`
	Size      uint32 `json:"size"`
	Allocated bool   `json:"allocated"`
}

type checkResult struct {
	Source      string      `json:"source"`
	OK          bool        `json:"ok"`
	HeapSize    int         `json:"heap_size"`
	Blocks      []blockJSON `json:"blocks,omitempty"`
	FreeBlocks  int         `json:"free_blocks"`
	FreeBytes   uint64      `json:"free_bytes"`
	LargestFree uint32      `json:"largest_free"`
	Faults      []faultJSON `json:"faults,omitempty"`
}

func runCheck(ctx context.Context, args []string) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	path := args[0]

	tr, err := trace.ParseFile(path)
	if err != nil {
		return err
	}
	s, err := newSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err := trace.Replay(ctx, s.alloc, tr, nil); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return reportHeap(path, s.alloc)
}

// reportHeap prints the verbose heap report of a and returns errHeapFaults
// when the heap is inconsistent.
func reportHeap(source string, a *alloc.Allocator) error {
	r := a.CheckHeap(true)

	if jsonOut {
		if err := printJSON(newCheckResult(source, r)); err != nil {
			return err
		}
	} else if !quiet {
		printInfo("%s:\n", source)
		if _, err := r.WriteTo(os.Stdout); err != nil {
			return err
		}
	}

	if !r.OK() {
		return fmt.Errorf("%s: %w (%d)", source, errHeapFaults, len(r.Faults))
	}
	return nil
}

func newCheckResult(source string, r *alloc.Report) checkResult {
	out := checkResult{
		Source:      source,
		OK:          r.OK(),
		HeapSize:    r.HeapSize,
		FreeBlocks:  r.Summary.FreeBlocks,
		FreeBytes:   r.Summary.FreeBytes,
		LargestFree: r.Summary.LargestFree,
	}
	for _, b := range r.Blocks {
		out.Blocks = append(out.Blocks, blockJSON{Ptr: b.BP, Size: b.Size, Allocated: b.Allocated})
	}
	for _, f := range r.Faults {
		out.Faults = append(out.Faults, faultJSON{Type: f.Type, Offset: f.Offset, Message: f.Message})
	}
	return out
}
