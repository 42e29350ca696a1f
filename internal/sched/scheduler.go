// Package sched implements a per-CPU fair scheduler: weight-proportional
// virtual-time accounting, one ordered run queue per CPU, cross-CPU
// placement and migration, and priority inheritance. All mutation
// happens under one coarse scheduler lock, which is what makes
// cross-queue migration atomic.
package sched

import (
	"fmt"
	"sync"

	"fairsched/internal/fixed"
	"fairsched/internal/metrics"
)

// cpuState is one CPU's scheduling record: its run queue, aggregate
// weight, virtual clock, and dispatch bookkeeping.
type cpuState struct {
	id    CPU
	queue *runQueue

	idle   *Task
	active *Task // the task currently RUNNING here; idle when nothing is

	// weightTotal sums the weights of every accounted task (enqueued
	// plus running, idle excluded). scheduledWeightTotal is its value
	// as of the last timeslice computation, used to notice demand
	// change without recomputing every pass.
	weightTotal          fixed.Ratio
	scheduledWeightTotal fixed.Ratio

	// virtualTime advances with wall time only while weightTotal > 0.
	virtualTime int64
	lastUpdate  int64

	// periodGrans is the scheduling period in minimum-granularity
	// units. It stretches once runnableCount no longer fits the target
	// latency at minimum granularity.
	periodGrans int64

	runnableCount int

	startOfSlice int64

	timerArmed    bool
	timerDeadline int64

	preemptDisable int
	preemptPending bool
}

// Scheduler owns one cpuState per CPU behind a single lock. CPU
// identity is an explicit argument on every entry point; there is no
// hidden current-CPU global.
type Scheduler struct {
	mu sync.Mutex

	platform Platform

	targetLatencyNS  int64
	minGranularityNS int64

	cpus       []*cpuState
	tasks      map[TaskID]*Task
	activeCPUs CPUSet

	// nextGeneration stamps run-queue insertions; monotonic across the
	// whole scheduler so generation order is arrival order.
	nextGeneration uint64

	events        chan Event
	eventsDropped uint64
}

// New builds a scheduler for cfg.CPUs processors with the given
// architecture backend. Each CPU starts idle with its own idle task.
func New(cfg Config, platform Platform) *Scheduler {
	s := &Scheduler{
		platform:         platform,
		targetLatencyNS:  cfg.TargetLatency.Nanoseconds(),
		minGranularityNS: cfg.MinimumGranularity.Nanoseconds(),
		tasks:            make(map[TaskID]*Task),
		nextGeneration:   1,
	}
	if cfg.EventBuffer > 0 {
		s.events = make(chan Event, cfg.EventBuffer)
	}
	baseGrans := s.targetLatencyNS / s.minGranularityNS
	if baseGrans < 1 {
		baseGrans = 1
	}
	for i := 0; i < cfg.CPUs; i++ {
		cpu := CPU(i)
		idle := newIdleTask(cpu)
		idle.State = StateRunning
		s.cpus = append(s.cpus, &cpuState{
			id:          cpu,
			queue:       newRunQueue(),
			idle:        idle,
			active:      idle,
			periodGrans: baseGrans,
		})
		s.activeCPUs = s.activeCPUs.With(cpu)
	}
	return s
}

// NumCPUs returns the number of CPUs the scheduler governs.
func (s *Scheduler) NumCPUs() int { return len(s.cpus) }

// AddTask registers t with the scheduler's task table. Tasks must be
// registered before they can be unblocked or migrated.
func (s *Scheduler) AddTask(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tasks[t.ID]; dup {
		panic(fmt.Sprintf("sched: task %d already registered", t.ID))
	}
	s.tasks[t.ID] = t
}

// LookupTask resolves an ID to its task, or nil.
func (s *Scheduler) LookupTask(id TaskID) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

// EventsDropped reports how many trace events were discarded because
// the event channel was full.
func (s *Scheduler) EventsDropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventsDropped
}

func (s *Scheduler) cpu(cpu CPU) *cpuState {
	if cpu < 0 || int(cpu) >= len(s.cpus) {
		panic(fmt.Sprintf("sched: CPU %d out of range", cpu))
	}
	return s.cpus[cpu]
}

func (s *Scheduler) resolve(id TaskID) *Task {
	t := s.tasks[id]
	if t == nil {
		panic(fmt.Sprintf("sched: run queue holds unknown task %d", id))
	}
	return t
}

// Insert makes t READY on cpu. Exposed for direct use by lifecycle code
// and tests; the reschedule paths use the locked form.
func (s *Scheduler) Insert(cpu CPU, now int64, t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(s.cpu(cpu), now, t)
}

// Remove withdraws t's scheduling demand from cpu.
func (s *Scheduler) Remove(cpu CPU, t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(s.cpu(cpu), t)
}

// insertLocked accounts t as runnable on c and queues it. At most once
// per occupancy epoch: racing unblock sources beyond the first are
// no-ops.
func (s *Scheduler) insertLocked(c *cpuState, now int64, t *Task) {
	if t.IsIdle() {
		panic("sched: insert of idle task")
	}
	if t.Sched.Active {
		return
	}
	if !t.Sched.Weight.IsPositive() {
		panic(fmt.Sprintf("sched: task %d enqueued with non-positive weight %v", t.ID, t.Sched.Weight))
	}

	c.runnableCount++
	s.updateTimeline(c, now)
	s.updatePeriod(c)

	c.weightTotal = c.weightTotal.Add(t.Sched.Weight)
	if !c.weightTotal.IsPositive() {
		panic(fmt.Sprintf("sched: cpu %d weight total %v not positive after insert", c.id, c.weightTotal))
	}

	// An idle task cannot bank past credit: it starts no earlier than
	// the CPU's current virtual time.
	start := t.Sched.VirtualFinish
	if c.virtualTime > start {
		start = c.virtualTime
	}
	t.Sched.VirtualStart = start
	t.Sched.VirtualFinish = start + s.fairInterval(c, t.Sched.Weight)

	t.Sched.Generation = s.nextGeneration
	s.nextGeneration++
	t.Sched.Active = true
	t.Sched.InQueue = true
	t.State = StateReady
	t.CurrCPU = c.id
	c.queue.insert(t)

	metrics.Enqueues.WithLabelValues(c.id.String()).Inc()
	metrics.RunnableTasks.WithLabelValues(c.id.String()).Set(float64(c.runnableCount))
	s.publish(Event{
		Now: now, Kind: EventEnqueue, CPU: c.id, TaskID: t.ID,
		Generation: t.Sched.Generation, VirtualFinish: t.Sched.VirtualFinish,
	})
}

// removeLocked withdraws t's accounting from c. At most once per
// occupancy epoch, symmetric with insertLocked.
func (s *Scheduler) removeLocked(c *cpuState, t *Task) {
	if t.IsIdle() {
		panic("sched: remove of idle task")
	}
	if !t.Sched.Active {
		return
	}

	// Erase from the tree before the timeline is zeroed: the queue key
	// is reconstructed from the sched state.
	if t.Sched.InQueue {
		c.queue.remove(t)
		t.Sched.InQueue = false
	}

	c.runnableCount--
	if c.runnableCount < 0 {
		panic(fmt.Sprintf("sched: cpu %d runnable count went negative", c.id))
	}
	s.updatePeriod(c)

	t.Sched.VirtualStart = 0
	t.Sched.VirtualFinish = 0
	t.Sched.Active = false

	c.weightTotal = c.weightTotal.Sub(t.Sched.Weight)
	if c.weightTotal < 0 {
		panic(fmt.Sprintf("sched: cpu %d weight total %v went negative", c.id, c.weightTotal))
	}

	metrics.RunnableTasks.WithLabelValues(c.id.String()).Set(float64(c.runnableCount))
	s.publish(Event{Kind: EventDequeue, CPU: c.id, TaskID: t.ID, Generation: t.Sched.Generation})
}

// updateTimeline advances c's virtual clock to now. Virtual time stands
// still on an idle CPU: it moves only while weightTotal > 0.
func (s *Scheduler) updateTimeline(c *cpuState, now int64) {
	if c.weightTotal.IsPositive() && now > c.lastUpdate {
		c.virtualTime += now - c.lastUpdate
	}
	c.lastUpdate = now
}

// updatePeriod recomputes the scheduling period for the current
// runnable count: the target latency, stretched so every task still
// fits one minimum-granularity slice.
func (s *Scheduler) updatePeriod(c *cpuState) {
	grans := s.targetLatencyNS / s.minGranularityNS
	if grans < 1 {
		grans = 1
	}
	if int64(c.runnableCount) > grans {
		grans = int64(c.runnableCount)
	}
	c.periodGrans = grans
}

// fairInterval is the span of virtual time a task of the given weight
// is entitled to within the current period: the period scaled down by
// the task's weight relative to the weight floor.
func (s *Scheduler) fairInterval(c *cpuState, weight fixed.Ratio) int64 {
	periodNS := c.periodGrans * s.minGranularityNS
	return fixed.ScaleDuration(periodNS, MinWeight, weight)
}

// calculateTimeslice grants t its weight-proportional share of the
// period, rounded up to whole granules, never below the floor.
func (s *Scheduler) calculateTimeslice(c *cpuState, t *Task) int64 {
	if !c.weightTotal.IsPositive() {
		panic(fmt.Sprintf("sched: cpu %d timeslice with weight total %v", c.id, c.weightTotal))
	}
	grans := fixed.CeilDiv(c.periodGrans*int64(t.Sched.Weight), int64(c.weightTotal))
	if grans < 1 {
		grans = 1
	}
	c.scheduledWeightTotal = c.weightTotal
	slice := grans * s.minGranularityNS
	metrics.TimesliceSeconds.Observe(float64(slice) / 1e9)
	return slice
}

// requeueAdjusted re-stamps t's timeline for a fresh period and puts it
// back in c's queue at its fair position. This is a position
// adjustment, not a new arrival: the generation is kept.
func (s *Scheduler) requeueAdjusted(c *cpuState, t *Task) {
	start := t.Sched.VirtualFinish
	if c.virtualTime > start {
		start = c.virtualTime
	}
	t.Sched.VirtualStart = start
	t.Sched.VirtualFinish = start + s.fairInterval(c, t.Sched.Weight)
	t.Sched.InQueue = true
	c.queue.insert(t)
}

// WeightTotal returns cpu's aggregate accounted weight. Read by
// placement on every CPU, so it is exposed under the lock.
func (s *Scheduler) WeightTotal(cpu CPU) fixed.Ratio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu(cpu).weightTotal
}

// VirtualTime returns cpu's current virtual clock.
func (s *Scheduler) VirtualTime(cpu CPU) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu(cpu).virtualTime
}

// RunnableCount returns cpu's accounted runnable task count.
func (s *Scheduler) RunnableCount(cpu CPU) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu(cpu).runnableCount
}

// QueueLen returns the number of tasks waiting in cpu's run queue.
func (s *Scheduler) QueueLen(cpu CPU) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu(cpu).queue.len()
}

// ActiveTask returns the task currently RUNNING on cpu (possibly the
// idle task).
func (s *Scheduler) ActiveTask(cpu CPU) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu(cpu).active
}

// QueuedTasks returns the IDs in cpu's run queue in dequeue order.
func (s *Scheduler) QueuedTasks(cpu CPU) []TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu(cpu).queue.ids()
}

func (c CPU) String() string { return fmt.Sprintf("%d", int(c)) }
