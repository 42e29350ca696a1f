// Package sim drives the scheduler through a deterministic virtual-time
// simulation: a tick loop advances a virtual clock, fires preemption
// timers, delivers reschedule IPIs, and runs scripted task behaviors.
package sim

import (
	"fmt"
	"sort"
	"time"

	"fairsched/internal/sched"
	"fairsched/internal/trace"
)

// simTask pairs a scheduler task with its scripted behavior state.
type simTask struct {
	task *sched.Task
	spec TaskSpec

	remainingBurst int64
	wakeAt         int64 // valid while asleep
	started        bool
}

// Report summarizes a finished simulation.
type Report struct {
	RunID    string
	Duration time.Duration
	Switches int64
	Tasks    []TaskReport
}

// TaskReport is one task's share of the run.
type TaskReport struct {
	Name      string
	Priority  int
	RuntimeNS int64
	Share     float64
}

// Runner owns one simulation: scheduler, platform, clock, workload.
type Runner struct {
	cfg   sched.Config
	s     *sched.Scheduler
	plat  *Platform
	clock *Clock
	tasks []*simTask

	store *trace.Store
	runID string
	batch []sched.Event
}

// NewRunner builds a simulation from cfg and workload. store may be nil
// to skip trace recording.
func NewRunner(cfg sched.Config, workload Workload, store *trace.Store) (*Runner, error) {
	plat := NewPlatform(cfg.CPUs)
	r := &Runner{
		cfg:   cfg,
		s:     sched.New(cfg, plat),
		plat:  plat,
		clock: NewClock(cfg.TickInterval),
		store: store,
	}
	for i, spec := range workload.Tasks {
		t := sched.NewTask(sched.TaskID(i+1), spec.Name, spec.Priority)
		t.Affinity = spec.affinityMask(cfg.CPUs)
		r.s.AddTask(t)
		r.tasks = append(r.tasks, &simTask{
			task:           t,
			spec:           spec,
			remainingBurst: spec.Burst.Nanoseconds(),
			wakeAt:         spec.Start.Nanoseconds(),
		})
	}
	if store != nil {
		id, err := store.BeginRun(time.Now().UnixNano(), cfg.CPUs, "schedsim")
		if err != nil {
			return nil, fmt.Errorf("begin trace run: %w", err)
		}
		r.runID = id
	}
	return r, nil
}

// Scheduler exposes the underlying scheduler, for the serve-mode state
// endpoint.
func (r *Runner) Scheduler() *sched.Scheduler { return r.s }

// Run executes the simulation for the given virtual duration, starting
// from wherever the clock currently stands so back-to-back runs keep
// extending the same timeline.
func (r *Runner) Run(d time.Duration) (Report, error) {
	end := r.clock.Now() + d.Nanoseconds()
	for r.clock.Now() < end {
		now := r.clock.Advance()

		r.wakeSleepers(now)
		r.deliverIPIs(now)
		r.fireTimers(now)
		r.burnTick(now)

		if err := r.flushEvents(false); err != nil {
			return Report{}, err
		}
	}
	if err := r.flushEvents(true); err != nil {
		return Report{}, err
	}
	return r.report(d), nil
}

// wakeSleepers unblocks every task whose wake deadline has passed,
// batched so remote CPUs get one coalesced signal.
func (r *Runner) wakeSleepers(now int64) {
	var woken []*sched.Task
	for _, st := range r.tasks {
		asleep := !st.started || st.task.State == sched.StateBlocked || st.task.State == sched.StateSleeping
		if asleep && st.wakeAt <= now {
			st.started = true
			st.remainingBurst = st.spec.Burst.Nanoseconds()
			woken = append(woken, st.task)
		}
	}
	if len(woken) == 0 {
		return
	}
	// CPU 0 plays the role of the waking CPU (interrupt handler).
	if r.s.UnblockAll(0, now, woken) {
		r.s.Reschedule(0, now)
	}
}

func (r *Runner) deliverIPIs(now int64) {
	mask := r.plat.TakePendingIPIs()
	for cpu := sched.CPU(0); int(cpu) < r.cfg.CPUs; cpu++ {
		if mask.Contains(cpu) {
			r.s.Reschedule(cpu, now)
		}
	}
}

func (r *Runner) fireTimers(now int64) {
	for cpu := sched.CPU(0); int(cpu) < r.cfg.CPUs; cpu++ {
		if r.plat.TimerDue(cpu, now) {
			r.s.TimerTick(cpu, now)
			r.s.Preempt(cpu, now)
		}
	}
}

// burnTick charges one tick of CPU time to each running task and
// advances its behavior script.
func (r *Runner) burnTick(now int64) {
	for cpu := sched.CPU(0); int(cpu) < r.cfg.CPUs; cpu++ {
		active := r.s.ActiveTask(cpu)
		if active.IsIdle() {
			continue
		}
		st := r.byID(active.ID)
		if st == nil {
			continue
		}
		st.remainingBurst -= r.clock.Interval()
		if st.remainingBurst > 0 {
			continue
		}
		if st.spec.Block > 0 {
			st.wakeAt = now + st.spec.Block.Nanoseconds()
			r.s.Block(cpu, now)
		} else {
			st.remainingBurst = st.spec.Burst.Nanoseconds()
			r.s.Yield(cpu, now)
		}
	}
}

func (r *Runner) byID(id sched.TaskID) *simTask {
	for _, st := range r.tasks {
		if st.task.ID == id {
			return st
		}
	}
	return nil
}

// flushEvents drains the scheduler's event channel into the trace
// store. Batches are written once they grow past a threshold, or
// unconditionally on final.
func (r *Runner) flushEvents(final bool) error {
	ch := r.s.EventChannel()
	if ch == nil {
		return nil
	}
drain:
	for {
		select {
		case ev := <-ch:
			r.batch = append(r.batch, ev)
		default:
			break drain
		}
	}
	if r.store == nil {
		r.batch = r.batch[:0]
		return nil
	}
	if final || len(r.batch) >= 512 {
		if err := r.store.RecordBatch(r.runID, r.batch); err != nil {
			return fmt.Errorf("record events: %w", err)
		}
		r.batch = r.batch[:0]
	}
	return nil
}

func (r *Runner) report(d time.Duration) Report {
	rep := Report{
		RunID:    r.runID,
		Duration: d,
		Switches: r.plat.Switches(),
	}
	total := float64(d.Nanoseconds()) * float64(r.cfg.CPUs)
	for _, st := range r.tasks {
		rep.Tasks = append(rep.Tasks, TaskReport{
			Name:      st.spec.Name,
			Priority:  st.spec.Priority,
			RuntimeNS: st.task.RuntimeNS,
			Share:     float64(st.task.RuntimeNS) / total,
		})
	}
	sort.Slice(rep.Tasks, func(i, j int) bool {
		return rep.Tasks[i].RuntimeNS > rep.Tasks[j].RuntimeNS
	})
	return rep
}
