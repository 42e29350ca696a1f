package sim

import (
	"fmt"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"

	"fairsched/internal/sched"
)

// TaskSpec describes one simulated task: its priority, where it may
// run, and its burst/block cycle.
type TaskSpec struct {
	Name     string        `yaml:"name"`
	Priority int           `yaml:"priority"`
	Affinity []int         `yaml:"affinity"` // empty = all CPUs
	Burst    time.Duration `yaml:"burst"`    // CPU time per cycle
	Block    time.Duration `yaml:"block"`    // 0 = yield instead of blocking
	Start    time.Duration `yaml:"start"`    // first wakeup offset
}

// Workload is a set of task specs, loadable from YAML.
type Workload struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// DefaultWorkload is a small mixed load: two CPU hogs at different
// priorities, one interactive task, one pinned task.
func DefaultWorkload() Workload {
	return Workload{Tasks: []TaskSpec{
		{Name: "hog-hi", Priority: 24, Burst: 50 * time.Millisecond},
		{Name: "hog-lo", Priority: 8, Burst: 50 * time.Millisecond},
		{Name: "interactive", Priority: 16, Burst: 500 * time.Microsecond, Block: 5 * time.Millisecond},
		{Name: "pinned", Priority: 16, Affinity: []int{0}, Burst: 2 * time.Millisecond, Block: 2 * time.Millisecond},
	}}
}

// LoadWorkload reads a workload from YAML; empty path = default.
func LoadWorkload(path string) (Workload, error) {
	if path == "" {
		return DefaultWorkload(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Workload{}, fmt.Errorf("read workload: %w", err)
	}
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Workload{}, fmt.Errorf("parse workload: %w", err)
	}
	if len(w.Tasks) == 0 {
		return DefaultWorkload(), nil
	}
	for i := range w.Tasks {
		if w.Tasks[i].Burst <= 0 {
			w.Tasks[i].Burst = time.Millisecond
		}
		if w.Tasks[i].Name == "" {
			w.Tasks[i].Name = fmt.Sprintf("task-%d", i)
		}
	}
	return w, nil
}

func (ts TaskSpec) affinityMask(cpus int) sched.CPUSet {
	if len(ts.Affinity) == 0 {
		return sched.AllCPUs
	}
	var mask sched.CPUSet
	for _, cpu := range ts.Affinity {
		if cpu >= 0 && cpu < cpus {
			mask = mask.With(sched.CPU(cpu))
		}
	}
	if mask.IsEmpty() {
		return sched.AllCPUs
	}
	return mask
}
