package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/trace"
	"github.com/spf13/cobra"
)

var replayCheck bool

func init() {
	cmd := newReplayCmd()
	registerStoreFlags(cmd.Flags())
	cmd.Flags().BoolVar(&replayCheck, "check", false, "Check heap consistency after every operation")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <trace>...",
		Short: "Replay allocation traces and report utilization",
		Long: `The replay command runs each trace file against a fresh heap. Every
block the allocator returns is checked for alignment, overlap with other live
blocks, and payload integrity. Utilization is the peak live payload divided by
the final heap size.

Example:
  heapctl replay traces/*.rep
  heapctl replay --check --store mmap traces/realloc.rep
  heapctl replay --store file --path /tmp/heap.bin traces/short1.rep --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), args)
		},
	}
	return cmd
}

type replayResult struct {
	Trace       string       `json:"trace"`
	Ops         int          `json:"ops"`
	PeakPayload uint64       `json:"peak_payload"`
	HeapSize    int          `json:"heap_size"`
	Utilization float64      `json:"utilization"`
	Stats       *alloc.Stats `json:"-"`
	Counters    *statsJSON   `json:"stats,omitempty"`
}

type statsJSON struct {
	AllocCalls   int   `json:"alloc_calls"`
	FreeCalls    int   `json:"free_calls"`
	ReallocCalls int   `json:"realloc_calls"`
	GrowCalls    int   `json:"grow_calls"`
	GrowBytes    int64 `json:"grow_bytes"`
	Splits       int   `json:"splits"`
	FitScanSteps int64 `json:"fit_scan_steps"`
	Coalesces    int   `json:"coalesces"`
}

type replaySummary struct {
	Results         []replayResult `json:"results"`
	MeanUtilization float64        `json:"mean_utilization"`
}

func runReplay(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	summary := replaySummary{Results: make([]replayResult, 0, len(args))}
	for _, path := range args {
		printVerbose("Replaying %s\n", path)
		res, err := replayFile(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		summary.Results = append(summary.Results, res)
		summary.MeanUtilization += res.Utilization
	}
	summary.MeanUtilization /= float64(len(summary.Results))

	if jsonOut {
		return printJSON(summary)
	}

	for _, r := range summary.Results {
		printInfo("%-32s ops=%-6d peak=%-9d heap=%-9d util=%5.1f%%\n",
			r.Trace, r.Ops, r.PeakPayload, r.HeapSize, 100*r.Utilization)
		if verbose && !quiet && r.Stats != nil {
			_, _ = r.Stats.WriteTo(os.Stdout)
		}
	}
	printInfo("mean utilization: %.1f%%\n", 100*summary.MeanUtilization)
	return nil
}

func replayFile(ctx context.Context, path string) (res replayResult, err error) {
	tr, err := trace.ParseFile(path)
	if err != nil {
		return res, err
	}

	s, err := newSession()
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	out, err := trace.Replay(ctx, s.alloc, tr, &trace.ReplayOptions{CheckHeap: replayCheck})
	if err != nil {
		return res, err
	}
	return newReplayResult(path, out), nil
}

func newReplayResult(path string, out *trace.Result) replayResult {
	r := replayResult{
		Trace:       path,
		Ops:         out.Ops,
		PeakPayload: out.PeakPayload,
		HeapSize:    out.HeapSize,
		Utilization: out.Utilization,
		Stats:       out.Stats,
	}
	if s := out.Stats; s != nil {
		r.Counters = &statsJSON{
			AllocCalls:   s.AllocCalls,
			FreeCalls:    s.FreeCalls,
			ReallocCalls: s.ReallocCalls,
			GrowCalls:    s.GrowCalls,
			GrowBytes:    s.GrowBytes,
			Splits:       s.Splits,
			FitScanSteps: s.FitScanSteps,
			Coalesces:    s.CoalesceNext + s.CoalescePrev + s.CoalesceBoth,
		}
	}
	return r
}
