package sched

import (
	"fairsched/internal/metrics"
)

// FindTargetCpu picks the CPU a task should be placed on: affinity- and
// availability-masked, preferring the least-loaded candidate. caller is
// the CPU running the placement decision.
func (s *Scheduler) FindTargetCpu(t *Task, caller CPU) CPU {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findTargetCPULocked(t, caller, 0)
}

// findTargetCPULocked implements the placement policy. Initial guess in
// priority order: the task's last CPU, then the caller, then the lowest
// eligible CPU. The refinement is a bounded linear scan over eligible
// CPUs by weight total, stopping early once the best candidate is idle.
// No cache-topology awareness; that is a known simplification.
func (s *Scheduler) findTargetCPULocked(t *Task, caller CPU, exclude CPUSet) CPU {
	candidates := t.Affinity & s.activeCPUs &^ exclude
	if candidates.IsEmpty() {
		// Boot-time special case: nothing is marked active yet.
		return caller
	}

	var best CPU
	switch {
	case t.LastCPU != NoCPU && candidates.Contains(t.LastCPU):
		best = t.LastCPU
	case candidates.Contains(caller):
		best = caller
	default:
		best = candidates.First()
	}

	rest := candidates.Without(best)
	for rest != 0 {
		if !s.cpus[best].weightTotal.IsPositive() {
			break // best is idle; no point searching further
		}
		cpu := rest.First()
		rest = rest.Without(cpu)
		if s.cpus[cpu].weightTotal < s.cpus[best].weightTotal {
			best = cpu
		}
	}
	return best
}

// Migrate moves t toward a CPU in its affinity mask. A RUNNING task is
// not touched directly: its CPU is signaled and self-migrates the task
// in its own reschedule decision. A READY task is moved here, and the
// destination is signaled when it is not the calling CPU.
func (s *Scheduler) Migrate(caller CPU, now int64, t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case t.State == StateRunning && !t.Affinity.Contains(t.CurrCPU):
		s.platform.SignalReschedule(SingleCPU(t.CurrCPU))

	case t.State == StateReady && t.Sched.Active && !t.Affinity.Contains(t.CurrCPU):
		from := s.cpu(t.CurrCPU)
		s.removeLocked(from, t)
		target := s.findTargetCPULocked(t, caller, 0)
		s.insertLocked(s.cpu(target), now, t)
		metrics.Migrations.WithLabelValues(target.String()).Inc()
		s.publish(Event{Now: now, Kind: EventMigrate, CPU: target, TaskID: t.ID,
			Generation: t.Sched.Generation, FromCPU: from.id})
		if target != caller {
			s.platform.SignalReschedule(SingleCPU(target))
		}
	}
}

// MigrateUnpinnedThreads drains cpu's run queue ahead of taking it
// offline: tasks that can only run there stay, everything else is
// redistributed across the remaining active CPUs. One reschedule signal
// is issued per distinct destination.
func (s *Scheduler) MigrateUnpinnedThreads(caller CPU, now int64, cpu CPU) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cpu(cpu)
	remaining := s.activeCPUs.Without(cpu)

	var signal CPUSet
	for _, id := range c.queue.ids() {
		t := s.resolve(id)
		if (t.Affinity & remaining).IsEmpty() {
			continue // pinned to the CPU going away; it keeps the task
		}
		s.removeLocked(c, t)
		target := s.findTargetCPULocked(t, caller, SingleCPU(cpu))
		s.insertLocked(s.cpu(target), now, t)
		metrics.Migrations.WithLabelValues(target.String()).Inc()
		s.publish(Event{Now: now, Kind: EventMigrate, CPU: target, TaskID: t.ID,
			Generation: t.Sched.Generation, FromCPU: cpu})
		if target != caller {
			signal = signal.With(target)
		}
	}
	if !signal.IsEmpty() {
		s.platform.SignalReschedule(signal)
	}
}
