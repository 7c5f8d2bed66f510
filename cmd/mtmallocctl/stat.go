package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kcc/sanitizers/heap"
)

var statCycles int

func init() {
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Run a short allocate/free/scan cycle and report statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStat()
		},
	}
	cmd.Flags().IntVar(&statCycles, "cycles", 1000, "number of allocate/free pairs to run")
	rootCmd.AddCommand(cmd)
}

func runStat() error {
	a, err := heap.NewAllocator(heap.LoadConfig())
	if err != nil {
		return fmt.Errorf("mtmallocctl: %w", err)
	}
	defer a.Close()

	ptrs := make([]uintptr, 0, statCycles)
	for i := 0; i < statCycles; i++ {
		p, err := a.Allocate(uintptr(16 + (i % 4096)))
		if err != nil {
			return fmt.Errorf("mtmallocctl: allocate: %w", err)
		}
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		if err := a.Free(p); err != nil {
			return fmt.Errorf("mtmallocctl: free: %w", err)
		}
	}

	stats := a.Stats()
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	fmt.Printf("super-pages:       range0=%d range1=%d\n", stats.SuperPages[0], stats.SuperPages[1])
	fmt.Printf("global quarantine: %d bytes\n", stats.GlobalQuarantine)
	fmt.Printf("last quarantine:   %d bytes\n", stats.LastQuarantine)
	fmt.Printf("scans run:         %d\n", stats.ScansRun)
	return nil
}
