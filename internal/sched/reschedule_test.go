package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchFIFOAmongEqualFinish(t *testing.T) {
	s, _ := newTestSched(t, 1)
	a := addTask(s, 1, 15)
	b := addTask(s, 2, 15)

	// Same virtual time, same weight: identical finish times. Arrival
	// order decides.
	s.Insert(0, 0, a)
	s.Insert(0, 0, b)
	require.Equal(t, a.Sched.VirtualFinish, b.Sched.VirtualFinish)

	s.Preempt(0, 0)
	assert.Same(t, a, s.ActiveTask(0))

	s.Block(0, 0)
	assert.Same(t, b, s.ActiveTask(0))
}

func TestBlockPicksReplacementOrIdle(t *testing.T) {
	s, p := newTestSched(t, 1)
	a := addTask(s, 1, 15)

	s.Insert(0, 0, a)
	s.Preempt(0, 0)
	require.Same(t, a, s.ActiveTask(0))
	require.Contains(t, p.armed, CPU(0))

	s.Block(0, 1_000_000)
	assert.Equal(t, StateBlocked, a.State)
	assert.True(t, s.ActiveTask(0).IsIdle())
	assert.Equal(t, 0, s.RunnableCount(0))
	// Nothing left to preempt: the timer is disarmed for idle.
	assert.NotContains(t, p.armed, CPU(0))
}

func TestUnblockReturnsWhetherCallerMustReschedule(t *testing.T) {
	s, p := newTestSched(t, 2)
	a := addTask(s, 1, 15)
	b := addTask(s, 2, 15)

	// First wake lands on the calling CPU (it is eligible and idle).
	require.True(t, s.Unblock(0, 0, a))
	assert.Empty(t, p.signals)

	// Second wake prefers the idle CPU 1; the caller is not involved,
	// so it gets a signal instead.
	require.False(t, s.Unblock(0, 0, b))
	assert.Equal(t, SingleCPU(1), p.signaledMask())
	assert.Equal(t, CPU(1), b.CurrCPU)
}

func TestUnblockIdempotentUnderRacingWakes(t *testing.T) {
	s, _ := newTestSched(t, 1)
	a := addTask(s, 1, 15)

	require.True(t, s.Unblock(0, 0, a))
	w := s.WeightTotal(0)

	// The losing wake source finds the task already accounted.
	require.False(t, s.Unblock(0, 0, a))
	assert.Equal(t, w, s.WeightTotal(0))
	assert.Equal(t, 1, s.RunnableCount(0))
}

func TestUnblockAllCoalescesSignals(t *testing.T) {
	s, p := newTestSched(t, 4)
	var batch []*Task
	for i := 0; i < 4; i++ {
		batch = append(batch, addTask(s, TaskID(i+1), 15))
	}

	local := s.UnblockAll(0, 0, batch)
	require.True(t, local, "one of the wakes must land on the caller")
	// Remote CPUs are signaled exactly once, in one coalesced mask.
	require.Len(t, p.signals, 1)
	assert.Equal(t, AllCPUs.Without(0)&CPUSet(0b1111), p.signals[0])
}

func TestYieldForfeitsEntitlement(t *testing.T) {
	s, _ := newTestSched(t, 1)
	a := addTask(s, 1, 15)
	b := addTask(s, 2, 15)

	s.Insert(0, 0, a)
	s.Insert(0, 0, b)
	s.Preempt(0, 0)
	require.Same(t, a, s.ActiveTask(0))

	// a yields mid-slice: b takes over even though a's slice had time
	// left, and a waits at the back of its fair position.
	s.Yield(0, 500_000)
	assert.Same(t, b, s.ActiveTask(0))
	assert.Equal(t, StateReady, a.State)
	assert.True(t, a.Sched.InQueue)
	assert.Greater(t, a.Sched.VirtualFinish, b.Sched.VirtualFinish)
}

func TestTimesliceExpiryRotates(t *testing.T) {
	s, p := newTestSched(t, 1)
	a := addTask(s, 1, 15)
	b := addTask(s, 2, 15)

	s.Insert(0, 0, a)
	s.Insert(0, 0, b)
	s.Preempt(0, 0)
	require.Same(t, a, s.ActiveTask(0))
	slice := a.Sched.TimesliceNS
	require.GreaterOrEqual(t, slice, int64(1_000_000))

	// The timer fires at the slice boundary; the expired task goes to
	// the back and keeps its generation (requeue is an adjustment).
	gen := a.Sched.Generation
	s.TimerTick(0, slice)
	require.True(t, s.PreemptPending(0))
	s.Preempt(0, slice)
	assert.Same(t, b, s.ActiveTask(0))
	assert.Equal(t, gen, a.Sched.Generation)
	assert.True(t, a.Sched.InQueue)
	assert.GreaterOrEqual(t, p.switches, 2)
}

func TestKeepRunningWithinSlice(t *testing.T) {
	s, p := newTestSched(t, 1)
	a := addTask(s, 1, 31)
	b := addTask(s, 2, 0)

	s.Insert(0, 0, a)
	s.Preempt(0, 0)
	require.Same(t, a, s.ActiveTask(0))
	switches := p.switches

	s.Insert(0, 100_000, b)
	// Mid-slice reschedule with time left: a keeps the CPU, no queue
	// mutation, no context switch.
	s.Reschedule(0, 200_000)
	assert.Same(t, a, s.ActiveTask(0))
	assert.False(t, a.Sched.InQueue)
	assert.Equal(t, switches, p.switches)
}

func TestRescheduleDefersWhilePreemptDisabled(t *testing.T) {
	s, _ := newTestSched(t, 1)
	a := addTask(s, 1, 15)
	b := addTask(s, 2, 31)

	s.Insert(0, 0, a)
	s.Preempt(0, 0)
	require.Same(t, a, s.ActiveTask(0))

	s.PreemptDisable(0)
	s.Insert(0, 0, b)
	s.Reschedule(0, 10_000_000)
	// Deferred: a holds the CPU until the critical section ends.
	assert.Same(t, a, s.ActiveTask(0))
	assert.True(t, s.PreemptPending(0))

	require.True(t, s.PreemptEnable(0, 10_000_000))
	assert.False(t, s.PreemptPending(0))
	assert.NotSame(t, a, s.ActiveTask(0))
}

func TestPreemptEnableUnderflowPanics(t *testing.T) {
	s, _ := newTestSched(t, 1)
	require.Panics(t, func() { s.PreemptEnable(0, 0) })
}

func TestAffinityMigratesEagerly(t *testing.T) {
	s, p := newTestSched(t, 2)
	a := addTask(s, 1, 15)

	s.Insert(0, 0, a)
	s.Preempt(0, 0)
	require.Same(t, a, s.ActiveTask(0))

	// Affinity now excludes CPU 0: the very next reschedule moves the
	// task off, regardless of its remaining slice.
	a.Affinity = SingleCPU(1)
	s.Reschedule(0, 100_000)
	assert.True(t, s.ActiveTask(0).IsIdle())
	assert.Equal(t, CPU(1), a.CurrCPU)
	assert.Equal(t, 1, s.QueueLen(1))
	assert.Equal(t, SingleCPU(1), p.signaledMask())

	// The signaled CPU picks it up in its own decision.
	s.Reschedule(1, 200_000)
	assert.Same(t, a, s.ActiveTask(1))
	checkAccounting(t, s, 0, a)
	checkAccounting(t, s, 1, a)
}

func TestExitWithdrawsAccounting(t *testing.T) {
	s, _ := newTestSched(t, 1)
	a := addTask(s, 1, 15)
	b := addTask(s, 2, 15)

	s.Insert(0, 0, a)
	s.Insert(0, 0, b)
	s.Preempt(0, 0)
	s.Exit(0, 1_000_000)

	assert.Equal(t, StateDeath, a.State)
	assert.False(t, a.Sched.Active)
	assert.Same(t, b, s.ActiveTask(0))
	checkAccounting(t, s, 0, a, b)
}

func TestRuntimeAccounting(t *testing.T) {
	s, _ := newTestSched(t, 1)
	a := addTask(s, 1, 15)

	s.Insert(0, 0, a)
	s.Preempt(0, 0)
	s.Preempt(0, 3_000_000)
	assert.Equal(t, int64(3_000_000), a.RuntimeNS)

	s.Block(0, 5_000_000)
	assert.Equal(t, int64(5_000_000), a.RuntimeNS)
}

func TestTimerArmedForDispatchedSlice(t *testing.T) {
	s, p := newTestSched(t, 1)
	a := addTask(s, 1, 15)

	s.Insert(0, 0, a)
	s.Preempt(0, 0)
	deadline, ok := p.armed[0]
	require.True(t, ok)
	assert.Equal(t, a.Sched.TimesliceNS, deadline)
}

func TestBlockOnIdlePanics(t *testing.T) {
	s, _ := newTestSched(t, 1)
	require.Panics(t, func() { s.Block(0, 0) })
}
