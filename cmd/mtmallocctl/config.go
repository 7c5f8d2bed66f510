package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kcc/sanitizers/heap"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective GOMTALLOC_* configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig()
		},
	})
}

func runConfig() error {
	cfg := heap.LoadConfig()
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	fmt.Printf("print-stats:            %v\n", cfg.PrintStats)
	fmt.Printf("print-super-page-alloc: %v\n", cfg.PrintSuperPageAlloc)
	fmt.Printf("print-scan:             %v\n", cfg.PrintScan)
	fmt.Printf("large-alloc-fence:      %v\n", cfg.LargeAllocFence)
	fmt.Printf("large-alloc-verbose:    %v\n", cfg.LargeAllocVerbose)
	fmt.Printf("use-tag:                %d\n", cfg.UseTag)
	fmt.Printf("use-shadow:             %v\n", cfg.UseShadow)
	fmt.Printf("use-aliases:            %v\n", cfg.UseAliases)
	fmt.Printf("quarantine-size:        %d\n", cfg.QuarantineSize)
	fmt.Printf("handle-stop-signal:     %v\n", cfg.HandleStopSignal)
	fmt.Printf("release-freq:           %d\n", cfg.ReleaseFreqMillis)
	return nil
}
