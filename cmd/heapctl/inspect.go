package main

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInspectCmd())
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <heap-file>",
		Short: "Check a heap file written by a file-backed allocator",
		Long: `The inspect command maps an existing heap file, rebuilds its free list,
and runs the full consistency check.

Example:
  heapctl replay --store file --path heap.bin traces/short1.rep
  heapctl inspect heap.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args)
		},
	}
	return cmd
}

func runInspect(args []string) error {
	path := args[0]
	printVerbose("Opening heap file: %s\n", path)

	fs, err := arena.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open heap file: %w", err)
	}
	defer fs.Close()

	a, err := alloc.Attach(fs, nil)
	if err != nil {
		return fmt.Errorf("failed to attach heap: %w", err)
	}

	u := a.Usage()
	printVerbose("heap=%d allocated=%d free=%d fragmentation=%.2f\n",
		u.HeapSize, u.AllocBlocks, u.FreeBlocks, u.Fragmentation)
	return reportHeap(path, a)
}
