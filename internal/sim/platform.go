package sim

import "fairsched/internal/sched"

// Platform is the simulator's architecture backend. Hooks are invoked
// with the scheduler lock held, so they only record state; the run loop
// polls and acts on it between ticks.
type Platform struct {
	timerDeadline []int64
	timerArmed    []bool
	pendingIPIs   sched.CPUSet
	switches      int64
}

// NewPlatform creates a backend for cpus processors.
func NewPlatform(cpus int) *Platform {
	return &Platform{
		timerDeadline: make([]int64, cpus),
		timerArmed:    make([]bool, cpus),
	}
}

func (p *Platform) SwitchTo(cpu sched.CPU, old, next *sched.Task) {
	p.switches++
}

func (p *Platform) ArmPreemptionTimer(cpu sched.CPU, deadline int64) {
	p.timerArmed[cpu] = true
	p.timerDeadline[cpu] = deadline
}

func (p *Platform) CancelPreemptionTimer(cpu sched.CPU) {
	p.timerArmed[cpu] = false
}

func (p *Platform) SignalReschedule(mask sched.CPUSet) {
	p.pendingIPIs |= mask
}

func (p *Platform) PropagatePriorityChange(t *sched.Task, oldPriority int) {}

// TakePendingIPIs returns and clears the reschedule-signal mask.
func (p *Platform) TakePendingIPIs() sched.CPUSet {
	m := p.pendingIPIs
	p.pendingIPIs = 0
	return m
}

// TimerDue reports whether cpu's preemption timer fires at or before
// now, disarming it if so.
func (p *Platform) TimerDue(cpu sched.CPU, now int64) bool {
	if p.timerArmed[cpu] && p.timerDeadline[cpu] <= now {
		p.timerArmed[cpu] = false
		return true
	}
	return false
}

// Switches returns the total context switches performed.
func (p *Platform) Switches() int64 { return p.switches }
