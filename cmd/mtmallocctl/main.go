// Command mtmallocctl is a small operator CLI for inspecting the
// heap package: it is not the benchmark/test harness this project
// leaves external, just enough to print effective configuration and
// run a short self-contained allocate/free/scan cycle.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "mtmallocctl",
	Short: "Inspect the memory-tagging heap allocator",
	Long: `mtmallocctl is an operator tool for the heap package: it prints
the effective GOMTALLOC_* configuration and can run a short
allocate/free/scan cycle against a fresh allocator to report its
resulting statistics.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
