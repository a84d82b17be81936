package main

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool
)

var jsonAPI = jsoniter.Config{
	OnlyTaggedField: true,
	CaseSensitive:   true,
	SortMapKeys:     true,
	EscapeHTML:      false,
}.Froze()

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Replay allocator traces and inspect heapkit heaps",
	Long: `heapctl drives the heapkit allocator. It replays allocation trace files
against a fresh heap, verifies every block the allocator hands out, and
reports utilization. It can also check the consistency of a heap file written
by a file-backed allocator.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as indented JSON
func printJSON(v any) error {
	data, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = os.Stdout.Write(data)
	return err
}
