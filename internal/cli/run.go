package cli

import (
	"time"

	"github.com/spf13/cobra"

	"fairsched/internal/sched"
	"fairsched/internal/sim"
	"fairsched/internal/trace"
)

var (
	runDuration time.Duration
	runWorkload string
	runTraceDB  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation and print the fairness report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := sched.Load(configPath)
		if runTraceDB != "" {
			cfg.TraceDB = runTraceDB
		}

		workload, err := sim.LoadWorkload(runWorkload)
		if err != nil {
			return err
		}

		var store *trace.Store
		if cfg.TraceDB != "" {
			store, err = trace.Open(cfg.TraceDB)
			if err != nil {
				return err
			}
			defer store.Close()
		}

		runner, err := sim.NewRunner(cfg, workload, store)
		if err != nil {
			return err
		}
		rep, err := runner.Run(runDuration)
		if err != nil {
			return err
		}
		printReport(cmd, rep, cfg)
		return nil
	},
}

func printReport(cmd *cobra.Command, rep sim.Report, cfg sched.Config) {
	cmd.Printf("simulated %v on %d CPUs, %d context switches\n",
		rep.Duration, cfg.CPUs, rep.Switches)
	if rep.RunID != "" {
		cmd.Printf("trace run %s\n", rep.RunID)
	}
	cmd.Printf("%-16s %8s %14s %8s\n", "TASK", "PRIO", "RUNTIME", "SHARE")
	for _, t := range rep.Tasks {
		cmd.Printf("%-16s %8d %14v %7.2f%%\n",
			t.Name, t.Priority, time.Duration(t.RuntimeNS), t.Share*100)
	}
}

func init() {
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 2*time.Second, "virtual duration to simulate")
	runCmd.Flags().StringVarP(&runWorkload, "workload", "w", "", "workload YAML (empty = built-in mix)")
	runCmd.Flags().StringVar(&runTraceDB, "trace-db", "", "record events into this SQLite database")
	rootCmd.AddCommand(runCmd)
}
