package sched

import (
	"fmt"

	"fairsched/internal/metrics"
)

// Block is called when cpu's running task is leaving for BLOCKED; the
// scheduler picks and switches to a replacement.
func (s *Scheduler) Block(cpu CPU, now int64) {
	s.transitionOut(cpu, now, StateBlocked)
}

// Sleep is Block with the SLEEPING state.
func (s *Scheduler) Sleep(cpu CPU, now int64) {
	s.transitionOut(cpu, now, StateSleeping)
}

// Exit retires cpu's running task permanently.
func (s *Scheduler) Exit(cpu CPU, now int64) {
	s.transitionOut(cpu, now, StateDeath)
}

func (s *Scheduler) transitionOut(cpu CPU, now int64, state TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpu(cpu)
	if c.active.IsIdle() {
		panic(fmt.Sprintf("sched: cpu %d idle task cannot leave RUNNING", cpu))
	}
	c.active.State = state
	s.publish(Event{Now: now, Kind: EventBlock, CPU: cpu, TaskID: c.active.ID,
		Generation: c.active.Sched.Generation})
	s.rescheduleLocked(c, now, false)
}

// Unblock makes t READY on the CPU placement chooses. It returns true
// when t landed on the calling CPU, meaning the caller must reschedule
// itself; remote CPUs are signaled asynchronously.
func (s *Scheduler) Unblock(cpu CPU, now int64, t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	local, remote := s.unblockLocked(cpu, now, t)
	if !remote.IsEmpty() {
		s.platform.SignalReschedule(remote)
	}
	return local
}

// UnblockAll wakes a batch in one lock hold, coalescing the remote
// reschedule signals into a single mask. Returns true when any task in
// the batch was assigned to the calling CPU.
func (s *Scheduler) UnblockAll(cpu CPU, now int64, tasks []*Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var anyLocal bool
	var allRemote CPUSet
	for _, t := range tasks {
		local, remote := s.unblockLocked(cpu, now, t)
		anyLocal = anyLocal || local
		allRemote |= remote
	}
	if !allRemote.IsEmpty() {
		s.platform.SignalReschedule(allRemote)
	}
	return anyLocal
}

func (s *Scheduler) unblockLocked(cpu CPU, now int64, t *Task) (local bool, remote CPUSet) {
	// A racing wake source that lost the race finds the task already
	// accounted and does nothing. Designed tolerance, not an error.
	if t.Sched.Active {
		return false, 0
	}
	t.BlockedOn = 0
	target := s.findTargetCPULocked(t, cpu, 0)
	s.insertLocked(s.cpu(target), now, t)
	metrics.Wakeups.WithLabelValues(target.String()).Inc()
	s.publish(Event{Now: now, Kind: EventWake, CPU: target, TaskID: t.ID,
		Generation: t.Sched.Generation})
	if target == cpu {
		return true, 0
	}
	return false, SingleCPU(target)
}

// Yield forfeits the running task's remaining entitlement for this
// period: its virtual finish snaps to the CPU's current virtual time
// and the slice is treated as expired.
func (s *Scheduler) Yield(cpu CPU, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpu(cpu)
	s.updateTimeline(c, now)
	if !c.active.IsIdle() {
		c.active.Sched.VirtualFinish = c.virtualTime
		c.active.State = StateReady
		s.publish(Event{Now: now, Kind: EventYield, CPU: cpu, TaskID: c.active.ID,
			Generation: c.active.Sched.Generation})
	}
	s.rescheduleLocked(c, now, true)
}

// Preempt re-evaluates cpu's decision unconditionally, typically from
// the preemption-timer interrupt path.
func (s *Scheduler) Preempt(cpu CPU, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpu(cpu)
	if !c.active.IsIdle() && c.active.State == StateRunning {
		c.active.State = StateReady
	}
	s.rescheduleLocked(c, now, false)
}

// Reschedule requests a re-evaluation but defers it when the calling
// task currently holds preemption disabled; the pending flag is
// consumed on the next enable or reschedule.
func (s *Scheduler) Reschedule(cpu CPU, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpu(cpu)
	if c.preemptDisable > 0 {
		c.preemptPending = true
		return
	}
	if !c.active.IsIdle() && c.active.State == StateRunning {
		c.active.State = StateReady
	}
	s.rescheduleLocked(c, now, false)
}

// TimerTick notes that cpu's preemption timer fired. It only records
// the pending preemption; the CPU acts on it via Preempt.
func (s *Scheduler) TimerTick(cpu CPU, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpu(cpu)
	c.timerArmed = false
	c.preemptPending = true
}

// PreemptPending reports whether cpu has a deferred preemption.
func (s *Scheduler) PreemptPending(cpu CPU) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu(cpu).preemptPending
}

// PreemptDisable enters a no-preemption critical section on cpu.
func (s *Scheduler) PreemptDisable(cpu CPU) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpu(cpu).preemptDisable++
}

// PreemptEnable leaves the critical section; a reschedule deferred
// while it was held runs now. Returns whether one ran.
func (s *Scheduler) PreemptEnable(cpu CPU, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpu(cpu)
	c.preemptDisable--
	if c.preemptDisable < 0 {
		panic(fmt.Sprintf("sched: cpu %d preempt enable without disable", cpu))
	}
	if c.preemptDisable == 0 && c.preemptPending {
		if !c.active.IsIdle() && c.active.State == StateRunning {
			c.active.State = StateReady
		}
		s.rescheduleLocked(c, now, false)
		return true
	}
	return false
}

// rescheduleLocked is the central decision, always run on the CPU it
// governs with the scheduler lock held.
func (s *Scheduler) rescheduleLocked(c *cpuState, now int64, forceExpire bool) {
	c.preemptPending = false
	s.updateTimeline(c, now)

	current := c.active

	// Charge the outgoing task for the time it actually ran.
	totalRuntime := now - c.startOfSlice
	if !current.IsIdle() {
		if actual := now - current.LastStartedRunning; actual > 0 {
			current.RuntimeNS += actual
		}
		current.LastStartedRunning = now
	}

	// Demand changed since the slice was computed: the fair share
	// shrank or grew, so refresh it and pull the timer in if the
	// boundary moved earlier than currently armed.
	if !current.IsIdle() && current.Sched.Active &&
		c.weightTotal.IsPositive() && c.weightTotal != c.scheduledWeightTotal {
		current.Sched.TimesliceNS = s.calculateTimeslice(c, current)
		deadline := c.startOfSlice + current.Sched.TimesliceNS
		if c.timerArmed && deadline < c.timerDeadline {
			c.timerDeadline = deadline
			s.platform.ArmPreemptionTimer(c.id, deadline)
		}
	}

	expired := forceExpire || current.IsIdle() || totalRuntime >= current.Sched.TimesliceNS

	next := s.evaluateNextThread(c, now, current, expired)

	fresh := next != current || expired
	if fresh && !next.IsIdle() {
		c.startOfSlice = now
		next.Sched.TimesliceNS = s.calculateTimeslice(c, next)
	}

	next.CurrCPU = c.id
	next.LastCPU = c.id
	next.State = StateRunning
	c.active = next

	if next.IsIdle() {
		if c.timerArmed {
			c.timerArmed = false
			s.platform.CancelPreemptionTimer(c.id)
		}
	} else {
		deadline := c.startOfSlice + next.Sched.TimesliceNS
		if !c.timerArmed || deadline != c.timerDeadline {
			c.timerArmed = true
			c.timerDeadline = deadline
			s.platform.ArmPreemptionTimer(c.id, deadline)
		}
	}

	if next != current {
		next.LastStartedRunning = now
		metrics.ContextSwitches.WithLabelValues(c.id.String()).Inc()
		s.publish(Event{Now: now, Kind: EventContextSwitch, CPU: c.id,
			TaskID: next.ID, Generation: next.Sched.Generation,
			TimesliceNS: next.Sched.TimesliceNS})
		s.platform.SwitchTo(c.id, current, next)
	}
}

// evaluateNextThread decides what happens to the outgoing task and
// picks its replacement.
func (s *Scheduler) evaluateNextThread(c *cpuState, now int64, current *Task, expired bool) *Task {
	// A task whose accounting was already withdrawn (racing remove)
	// must not be requeued or re-removed; the guards make that a
	// fall-through to plain selection.
	runnable := (current.State == StateReady || current.State == StateRunning) &&
		current.Sched.Active

	switch {
	case runnable && !current.IsIdle() && !current.Affinity.Contains(c.id):
		// Affinity no longer includes this CPU: migrate eagerly, never
		// lazily at some later tick.
		s.removeLocked(c, current)
		current.State = StateReady
		target := s.findTargetCPULocked(current, c.id, SingleCPU(c.id))
		s.insertLocked(s.cpu(target), now, current)
		metrics.Migrations.WithLabelValues(target.String()).Inc()
		s.publish(Event{Now: now, Kind: EventMigrate, CPU: target, TaskID: current.ID,
			Generation: current.Sched.Generation, FromCPU: c.id})
		if target != c.id {
			s.platform.SignalReschedule(SingleCPU(target))
		}

	case runnable && !current.IsIdle():
		if !expired {
			// Keep running it; no queue mutation at all.
			return current
		}
		current.State = StateReady
		s.requeueAdjusted(c, current)
		metrics.Preemptions.WithLabelValues(c.id.String()).Inc()
		s.publish(Event{Now: now, Kind: EventPreempt, CPU: c.id, TaskID: current.ID,
			Generation: current.Sched.Generation, VirtualFinish: current.Sched.VirtualFinish})

	case !current.IsIdle():
		// No longer runnable: withdraw its accounting.
		s.removeLocked(c, current)
	}

	if !c.queue.isEmpty() {
		next := s.resolve(c.queue.popMin())
		next.Sched.InQueue = false
		s.publish(Event{Now: now, Kind: EventDispatch, CPU: c.id, TaskID: next.ID,
			Generation: next.Sched.Generation, VirtualFinish: next.Sched.VirtualFinish})
		return next
	}
	return c.idle
}
