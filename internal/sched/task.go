package sched

import (
	"math/bits"

	"fairsched/internal/fixed"
)

// TaskID uniquely identifies a task in the scheduler.
type TaskID uint64

// CPU identifies one logical processor.
type CPU int

// NoCPU marks a task that has never been placed.
const NoCPU CPU = -1

// CPUSet is a bitmask of CPUs.
type CPUSet uint64

// AllCPUs is the affinity mask allowing every CPU.
const AllCPUs CPUSet = ^CPUSet(0)

// SingleCPU returns a mask containing only cpu.
func SingleCPU(cpu CPU) CPUSet { return 1 << uint(cpu) }

// Contains reports whether cpu is in the set.
func (s CPUSet) Contains(cpu CPU) bool { return s&(1<<uint(cpu)) != 0 }

// With returns the set with cpu added.
func (s CPUSet) With(cpu CPU) CPUSet { return s | 1<<uint(cpu) }

// Without returns the set with cpu removed.
func (s CPUSet) Without(cpu CPU) CPUSet { return s &^ (1 << uint(cpu)) }

// IsEmpty reports whether the set contains no CPUs.
func (s CPUSet) IsEmpty() bool { return s == 0 }

// First returns the lowest-numbered CPU in the set; NoCPU when empty.
func (s CPUSet) First() CPU {
	if s == 0 {
		return NoCPU
	}
	return CPU(bits.TrailingZeros64(uint64(s)))
}

// TaskState is the lifecycle state of a task. The scheduler reads and
// writes it only around insert, remove, and dispatch; everything else
// belongs to the thread-lifecycle code.
type TaskState int

const (
	StateInitial TaskState = iota
	StateReady
	StateRunning
	StateBlocked
	StateSleeping
	StateSuspended
	StateDeath
)

func (s TaskState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSleeping:
		return "sleeping"
	case StateSuspended:
		return "suspended"
	case StateDeath:
		return "death"
	default:
		return "unknown"
	}
}

// SchedState is the per-task scheduling state. It is owned by the task
// it is embedded in and mutated only under the scheduler lock.
type SchedState struct {
	Weight fixed.Ratio

	// Virtual timeline entitlement, valid while the task is enqueued
	// or running on some CPU.
	VirtualStart  int64
	VirtualFinish int64

	// Timeslice granted for the current period, nanoseconds.
	TimesliceNS int64

	// Generation is stamped from a scheduler-wide monotonic counter on
	// each true insertion. It is the run-queue tie-break and the
	// flow-correlation key for tracing; position adjustments keep it.
	Generation uint64

	// Active and InQueue make Insert/Remove at-most-once per occupancy
	// epoch. Active covers the whole accounted span (queued or
	// running); InQueue only the time spent in the run queue proper.
	Active  bool
	InQueue bool
}

// Task is the schedulable unit.
type Task struct {
	ID   TaskID
	Name string

	State TaskState

	BasePriority      int
	InheritedPriority int // -1 when no inheritance is in effect

	Affinity CPUSet

	CurrCPU CPU
	LastCPU CPU

	// RuntimeNS accumulates actual time spent running.
	RuntimeNS          int64
	LastStartedRunning int64

	// BlockedOn is the resource handle the task is blocked on, if any.
	// Used only to decide whether a priority change must propagate.
	BlockedOn uint64

	Sched SchedState

	idle bool
}

// NewTask creates a task with its weight derived from priority and its
// affinity defaulting to all CPUs. The priority is clamped into the
// legal range.
func NewTask(id TaskID, name string, priority int) *Task {
	if priority < MinPriority {
		priority = MinPriority
	} else if priority > MaxPriority {
		priority = MaxPriority
	}
	return &Task{
		ID:                id,
		Name:              name,
		State:             StateInitial,
		BasePriority:      priority,
		InheritedPriority: -1,
		Affinity:          AllCPUs,
		CurrCPU:           NoCPU,
		LastCPU:           NoCPU,
		Sched:             SchedState{Weight: PriorityToWeight(priority)},
	}
}

// EffectivePriority is max(base, inherited).
func (t *Task) EffectivePriority() int {
	if t.InheritedPriority > t.BasePriority {
		return t.InheritedPriority
	}
	return t.BasePriority
}

// IsIdle reports whether this is a per-CPU idle task. Idle tasks never
// enter a run queue and never accrue weight.
func (t *Task) IsIdle() bool { return t.idle }

func newIdleTask(cpu CPU) *Task {
	return &Task{
		ID:                TaskID(^uint64(0) - uint64(cpu)),
		Name:              "idle",
		State:             StateReady,
		InheritedPriority: -1,
		Affinity:          SingleCPU(cpu),
		CurrCPU:           cpu,
		LastCPU:           cpu,
		idle:              true,
	}
}
