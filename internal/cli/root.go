// Package cli implements the schedsim command-line interface using
// Cobra: run a simulation, report a recorded run, or serve metrics
// while simulating.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "schedsim",
	Short: "schedsim — fair-scheduler simulator",
	Long: `schedsim drives the fairsched per-CPU fair scheduler through
deterministic virtual-time workloads and reports how CPU time was
divided between tasks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "scheduler config YAML (empty = defaults)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
