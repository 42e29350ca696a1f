package sched

// EventKind represents the type of scheduler event.
type EventKind int

const (
	EventEnqueue EventKind = iota
	EventDequeue
	EventDispatch
	EventPreempt
	EventBlock
	EventWake
	EventYield
	EventMigrate
	EventContextSwitch
	EventPriorityUpdate
)

func (k EventKind) String() string {
	switch k {
	case EventEnqueue:
		return "Enqueue"
	case EventDequeue:
		return "Dequeue"
	case EventDispatch:
		return "Dispatch"
	case EventPreempt:
		return "Preempt"
	case EventBlock:
		return "Block"
	case EventWake:
		return "Wake"
	case EventYield:
		return "Yield"
	case EventMigrate:
		return "Migrate"
	case EventContextSwitch:
		return "ContextSwitch"
	case EventPriorityUpdate:
		return "PriorityUpdate"
	default:
		return "Unknown"
	}
}

// Event is emitted on key scheduler actions. Generation correlates all
// events belonging to one queueing epoch of a task.
type Event struct {
	Now        int64
	Kind       EventKind
	CPU        CPU
	TaskID     TaskID
	Generation uint64

	// VirtualFinish and TimesliceNS carry the task's entitlement at
	// the time of the event, when meaningful.
	VirtualFinish int64
	TimesliceNS   int64

	// For EventMigrate: the CPU the task left.
	FromCPU CPU
}

// EventChannel exposes the read-only event stream. nil if the scheduler
// was built without one.
func (s *Scheduler) EventChannel() <-chan Event { return s.events }

// publish sends ev without ever blocking: the scheduler lock is held on
// every emission path, and a slow consumer must not be able to stall a
// context switch. Overflow drops the event.
func (s *Scheduler) publish(ev Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.eventsDropped++
	}
}
