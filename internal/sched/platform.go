package sched

// Platform is the architecture surface the scheduler is injected with
// at construction. The core never touches registers, timer hardware, or
// inter-processor interrupts directly; it calls these hooks, so it can
// run against a fake in tests and against a simulator backend in
// cmd/schedsim.
//
// Every hook is invoked with the scheduler lock held, so hooks must not
// call back into the scheduler.
type Platform interface {
	// SwitchTo performs the context switch on cpu from old to next.
	// It is only called when old != next.
	SwitchTo(cpu CPU, old, next *Task)

	// ArmPreemptionTimer arms cpu's preemption timer for the given
	// absolute deadline, replacing any earlier arming.
	ArmPreemptionTimer(cpu CPU, deadline int64)

	// CancelPreemptionTimer disarms cpu's preemption timer.
	CancelPreemptionTimer(cpu CPU)

	// SignalReschedule asynchronously requests that every CPU in mask
	// run its own reschedule decision at its next opportunity.
	SignalReschedule(mask CPUSet)

	// PropagatePriorityChange notifies the wait-queue layer that a
	// blocked task's effective priority changed, so ownership chains
	// can re-sort and inherit.
	PropagatePriorityChange(t *Task, oldPriority int)
}

// NopPlatform discards every hook. Embed it to implement only the hooks
// a backend cares about.
type NopPlatform struct{}

func (NopPlatform) SwitchTo(CPU, *Task, *Task)         {}
func (NopPlatform) ArmPreemptionTimer(CPU, int64)      {}
func (NopPlatform) CancelPreemptionTimer(CPU)          {}
func (NopPlatform) SignalReschedule(CPUSet)            {}
func (NopPlatform) PropagatePriorityChange(*Task, int) {}
