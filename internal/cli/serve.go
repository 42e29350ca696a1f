package cli

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"fairsched/internal/sched"
	"fairsched/internal/sim"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Loop the simulation and serve /metrics and /v1/state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := sched.Load(configPath)
		if serveAddr != "" {
			cfg.MetricsListenAddress = serveAddr
		}

		workload, err := sim.LoadWorkload(runWorkload)
		if err != nil {
			return err
		}
		runner, err := sim.NewRunner(cfg, workload, nil)
		if err != nil {
			return err
		}

		go func() {
			for {
				// serve mode ignores the report; metrics carry the data
				if _, err := runner.Run(time.Second); err != nil {
					return
				}
			}
		}()

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/v1/state", func(w http.ResponseWriter, req *http.Request) {
			s := runner.Scheduler()
			type cpuView struct {
				CPU         int           `json:"cpu"`
				Active      string        `json:"active"`
				Runnable    int           `json:"runnable"`
				QueueLen    int           `json:"queue_len"`
				VirtualTime int64         `json:"virtual_time_ns"`
				Queued      []sched.TaskID `json:"queued"`
			}
			out := make([]cpuView, 0, s.NumCPUs())
			for cpu := sched.CPU(0); int(cpu) < s.NumCPUs(); cpu++ {
				out = append(out, cpuView{
					CPU:         int(cpu),
					Active:      s.ActiveTask(cpu).Name,
					Runnable:    s.RunnableCount(cpu),
					QueueLen:    s.QueueLen(cpu),
					VirtualTime: s.VirtualTime(cpu),
					Queued:      s.QueuedTasks(cpu),
				})
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(out)
		})

		cmd.Printf("serving on %s\n", cfg.MetricsListenAddress)
		return http.ListenAndServe(cfg.MetricsListenAddress, r)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().StringVarP(&runWorkload, "workload", "w", "", "workload YAML (empty = built-in mix)")
	rootCmd.AddCommand(serveCmd)
}
