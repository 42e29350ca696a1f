package sched

import (
	"fmt"

	"fairsched/internal/fixed"
)

// ChangePriority updates t's base priority. The effective priority is
// max(base, inherited); when it does not move, nothing else happens.
func (s *Scheduler) ChangePriority(now int64, t *Task, priority int) {
	if priority < MinPriority {
		priority = MinPriority
	} else if priority > MaxPriority {
		priority = MaxPriority
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	oldEff := t.EffectivePriority()
	t.BasePriority = priority
	s.applyEffectivePriorityLocked(now, t, oldEff)
}

// ChangeWeight is ChangePriority expressed in weight units.
func (s *Scheduler) ChangeWeight(now int64, t *Task, weight fixed.Ratio) {
	s.ChangePriority(now, t, WeightToPriority(weight))
}

// InheritPriority sets the priority t temporarily inherits from a
// higher-priority waiter blocked on a resource t holds. The base
// priority is untouched; pass a value below MinPriority to drop the
// inheritance. This is how priority inversion is bounded.
func (s *Scheduler) InheritPriority(now int64, t *Task, priority int) {
	if priority > MaxPriority {
		priority = MaxPriority
	}
	if priority < MinPriority {
		priority = -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	oldEff := t.EffectivePriority()
	t.InheritedPriority = priority
	s.applyEffectivePriorityLocked(now, t, oldEff)
}

// InheritWeight is InheritPriority expressed in weight units.
func (s *Scheduler) InheritWeight(now int64, t *Task, weight fixed.Ratio) {
	s.InheritPriority(now, t, WeightToPriority(weight))
}

// applyEffectivePriorityLocked propagates a changed effective priority
// into the scheduling state, dispatching on the task's current state.
func (s *Scheduler) applyEffectivePriorityLocked(now int64, t *Task, oldEff int) {
	newEff := t.EffectivePriority()
	if newEff == oldEff {
		return
	}
	newWeight := PriorityToWeight(newEff)
	oldWeight := t.Sched.Weight

	switch t.State {
	case StateInitial, StateSleeping, StateSuspended:
		// Takes effect on the next insert.
		t.Sched.Weight = newWeight

	case StateRunning:
		c := s.cpu(t.CurrCPU)
		c.weightTotal = c.weightTotal.Sub(oldWeight).Add(newWeight)
		if !c.weightTotal.IsPositive() {
			panic(fmt.Sprintf("sched: cpu %d weight total %v not positive after weight change", c.id, c.weightTotal))
		}
		t.Sched.Weight = newWeight

	case StateReady:
		if !t.Sched.Active {
			t.Sched.Weight = newWeight
			break
		}
		c := s.cpu(t.CurrCPU)
		c.weightTotal = c.weightTotal.Sub(oldWeight).Add(newWeight)
		if !c.weightTotal.IsPositive() {
			panic(fmt.Sprintf("sched: cpu %d weight total %v not positive after weight change", c.id, c.weightTotal))
		}
		// Re-sort at the adjusted position: this is a correction, not
		// a new arrival, so the virtual start and the generation stay.
		if t.Sched.InQueue {
			c.queue.remove(t)
		}
		t.Sched.Weight = newWeight
		t.Sched.VirtualFinish = t.Sched.VirtualStart + s.fairInterval(c, newWeight)
		if t.Sched.InQueue {
			c.queue.insert(t)
		}
		s.publish(Event{Now: now, Kind: EventPriorityUpdate, CPU: c.id, TaskID: t.ID,
			Generation: t.Sched.Generation, VirtualFinish: t.Sched.VirtualFinish})

	case StateBlocked:
		t.Sched.Weight = newWeight
		if t.BlockedOn != 0 {
			// The task sits on a contended resource; whoever owns the
			// wait queue must re-sort and re-inherit.
			s.platform.PropagatePriorityChange(t, oldEff)
		}

	case StateDeath:
		// Nothing to adjust.
		t.Sched.Weight = newWeight
	}
}
