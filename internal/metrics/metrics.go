// Package metrics exposes the scheduler's Prometheus instrumentation:
// counters and gauges per CPU plus a timeslice histogram.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ContextSwitches counts completed context switches per CPU.
var ContextSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fairsched",
	Name:      "context_switches_total",
	Help:      "Total context switches performed.",
}, []string{"cpu"})

// Preemptions counts timeslice-expiry requeues per CPU.
var Preemptions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fairsched",
	Name:      "preemptions_total",
	Help:      "Total timeslice-expiry preemptions.",
}, []string{"cpu"})

// Enqueues counts run-queue insertions per CPU.
var Enqueues = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fairsched",
	Name:      "enqueues_total",
	Help:      "Total run queue insertions.",
}, []string{"cpu"})

// Wakeups counts unblocked tasks by destination CPU.
var Wakeups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fairsched",
	Name:      "wakeups_total",
	Help:      "Total task wakeups by placement destination.",
}, []string{"cpu"})

// Migrations counts cross-CPU task movements by destination CPU.
var Migrations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fairsched",
	Name:      "migrations_total",
	Help:      "Total cross-CPU task migrations.",
}, []string{"cpu"})

// RunnableTasks tracks the accounted runnable task count per CPU.
var RunnableTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fairsched",
	Name:      "runnable_tasks",
	Help:      "Runnable tasks accounted per CPU (queued plus running).",
}, []string{"cpu"})

// TimesliceSeconds observes the timeslices granted to tasks.
var TimesliceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "fairsched",
	Name:      "timeslice_seconds",
	Help:      "Timeslice durations granted at dispatch.",
	Buckets:   []float64{0.00075, 0.0015, 0.003, 0.006, 0.012, 0.016, 0.024, 0.048},
})
