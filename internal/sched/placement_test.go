package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindTargetCpuHonorsPinning(t *testing.T) {
	s, _ := newTestSched(t, 4)
	pinned := addTask(s, 1, 15)
	pinned.Affinity = SingleCPU(0)

	// Pile load onto CPU 0; the pinned task must still land there,
	// idle CPUs elsewhere notwithstanding.
	for i := 0; i < 5; i++ {
		s.Insert(0, 0, addTask(s, TaskID(i+10), 31))
	}
	for caller := CPU(0); caller < 4; caller++ {
		assert.Equal(t, CPU(0), s.FindTargetCpu(pinned, caller))
	}
}

func TestFindTargetCpuPrefersLastCPU(t *testing.T) {
	s, _ := newTestSched(t, 4)
	a := addTask(s, 1, 15)
	a.LastCPU = 2

	// All CPUs idle: the last CPU wins the initial guess and the scan
	// stops as soon as the best candidate is idle.
	assert.Equal(t, CPU(2), s.FindTargetCpu(a, 0))
}

func TestFindTargetCpuPicksLeastLoaded(t *testing.T) {
	s, _ := newTestSched(t, 3)
	s.Insert(0, 0, addTask(s, 10, 31))
	s.Insert(0, 0, addTask(s, 11, 31))
	s.Insert(1, 0, addTask(s, 12, 0))
	s.Insert(2, 0, addTask(s, 13, 31))

	// Caller CPU 0 is the initial guess but CPU 1 carries the least
	// weight.
	a := addTask(s, 1, 15)
	assert.Equal(t, CPU(1), s.FindTargetCpu(a, 0))
}

func TestFindTargetCpuFallbackWhenMaskEmpty(t *testing.T) {
	s, _ := newTestSched(t, 2)
	a := addTask(s, 1, 15)
	a.Affinity = 0

	// Boot-time special case: no eligible CPU, fall back to caller.
	assert.Equal(t, CPU(1), s.FindTargetCpu(a, 1))
}

func TestMigrateReadyTask(t *testing.T) {
	s, p := newTestSched(t, 2)
	a := addTask(s, 1, 15)
	b := addTask(s, 2, 31)

	s.Insert(0, 0, b)
	s.Insert(0, 0, a)
	s.Preempt(0, 0) // b runs (earlier by generation is b? a inserted second) — b dispatched first
	ready := s.ActiveTask(0)
	queued := a
	if ready == a {
		queued = b
	}

	queued.Affinity = SingleCPU(1)
	s.Migrate(0, 1_000_000, queued)
	assert.Equal(t, CPU(1), queued.CurrCPU)
	assert.Equal(t, 1, s.QueueLen(1))
	assert.Equal(t, SingleCPU(1), p.signaledMask())
	checkAccounting(t, s, 0, a, b)
	checkAccounting(t, s, 1, a, b)
}

func TestMigrateRunningTaskSignalsItsCPU(t *testing.T) {
	s, p := newTestSched(t, 2)
	a := addTask(s, 1, 15)

	s.Insert(0, 0, a)
	s.Preempt(0, 0)
	require.Same(t, a, s.ActiveTask(0))

	// A running task is never yanked directly: its CPU self-migrates
	// it in its own reschedule decision.
	a.Affinity = SingleCPU(1)
	s.Migrate(1, 1_000_000, a)
	assert.Same(t, a, s.ActiveTask(0))
	assert.Equal(t, SingleCPU(0), p.signaledMask())

	s.Reschedule(0, 2_000_000)
	assert.Equal(t, CPU(1), a.CurrCPU)
}

func TestMigrateWithinAffinityIsNoop(t *testing.T) {
	s, p := newTestSched(t, 2)
	a := addTask(s, 1, 15)
	s.Insert(0, 0, a)

	s.Migrate(0, 0, a)
	assert.Equal(t, CPU(0), a.CurrCPU)
	assert.Empty(t, p.signals)
}

func TestMigrateUnpinnedThreadsSplitsQueue(t *testing.T) {
	s, p := newTestSched(t, 3)

	var pinned, unpinned []*Task
	for i := 0; i < 3; i++ {
		tk := addTask(s, TaskID(i+1), 15)
		tk.Affinity = SingleCPU(2)
		s.Insert(2, 0, tk)
		pinned = append(pinned, tk)
	}
	for i := 0; i < 2; i++ {
		tk := addTask(s, TaskID(i+10), 15)
		s.Insert(2, 0, tk)
		unpinned = append(unpinned, tk)
	}
	require.Equal(t, 5, s.QueueLen(2))

	s.MigrateUnpinnedThreads(0, 1_000_000, 2)

	// Exactly the pinned tasks remain on CPU 2.
	assert.Equal(t, 3, s.QueueLen(2))
	for _, tk := range pinned {
		assert.Equal(t, CPU(2), tk.CurrCPU)
		assert.True(t, tk.Sched.InQueue)
	}
	// The unpinned tasks land on other CPUs, none lost or duplicated.
	seen := map[TaskID]int{}
	for cpu := CPU(0); cpu < 3; cpu++ {
		for _, id := range s.QueuedTasks(cpu) {
			seen[id]++
		}
	}
	require.Len(t, seen, 5)
	for _, tk := range unpinned {
		assert.Equal(t, 1, seen[tk.ID])
		assert.NotEqual(t, CPU(2), tk.CurrCPU)
	}
	// One signal batch covering each distinct destination once.
	var dests CPUSet
	for _, tk := range unpinned {
		if tk.CurrCPU != 0 { // caller reschedules itself, no signal
			dests = dests.With(tk.CurrCPU)
		}
	}
	assert.Equal(t, dests, p.signaledMask())
	require.LessOrEqual(t, len(p.signals), 1)

	checkAccounting(t, s, 0, append(pinned, unpinned...)...)
	checkAccounting(t, s, 1, append(pinned, unpinned...)...)
	checkAccounting(t, s, 2, append(pinned, unpinned...)...)
}
