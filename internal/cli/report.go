package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fairsched/internal/trace"
)

var (
	reportTraceDB string
	reportRunID   string
	reportCSV     bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a recorded simulation run",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportTraceDB == "" {
			return fmt.Errorf("--trace-db is required")
		}
		store, err := trace.Open(reportTraceDB)
		if err != nil {
			return err
		}
		defer store.Close()

		runID := reportRunID
		if runID == "" {
			runs, err := store.Runs()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return fmt.Errorf("no recorded runs in %s", reportTraceDB)
			}
			for _, r := range runs {
				cmd.Printf("%s  %s  cpus=%d  events=%d\n",
					r.ID, time.Unix(0, r.StartedAt).Format(time.RFC3339), r.CPUs, r.Events)
			}
			runID = runs[0].ID
			cmd.Printf("\nsummarizing newest run %s\n\n", runID)
		}

		if reportCSV {
			return store.ExportCSV(runID, os.Stdout)
		}

		summary, err := store.Summarize(runID)
		if err != nil {
			return err
		}
		cmd.Printf("%8s %10s %10s %10s %8s\n", "TASK", "SWITCHES", "PREEMPTS", "MIGRATES", "WAKES")
		for _, ts := range summary {
			cmd.Printf("%8d %10d %10d %10d %8d\n",
				ts.TaskID, ts.Switches, ts.Preempts, ts.Migrations, ts.Wakes)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportTraceDB, "trace-db", "", "SQLite trace database to read")
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "run ID (empty = list runs, summarize newest)")
	reportCmd.Flags().BoolVar(&reportCSV, "csv", false, "export raw events as CSV to stdout")
	rootCmd.AddCommand(reportCmd)
}
