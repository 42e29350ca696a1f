package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queuedTask(id TaskID, finish int64, gen uint64) *Task {
	t := NewTask(id, "", 15)
	t.Sched.VirtualFinish = finish
	t.Sched.Generation = gen
	return t
}

func TestRunQueueOrdersByFinish(t *testing.T) {
	q := newRunQueue()
	q.insert(queuedTask(1, 300, 1))
	q.insert(queuedTask(2, 100, 2))
	q.insert(queuedTask(3, 200, 3))

	assert.Equal(t, 3, q.len())
	assert.Equal(t, TaskID(2), q.popMin())
	assert.Equal(t, TaskID(3), q.popMin())
	assert.Equal(t, TaskID(1), q.popMin())
	assert.True(t, q.isEmpty())
}

func TestRunQueueTieBreaksByGeneration(t *testing.T) {
	q := newRunQueue()
	q.insert(queuedTask(7, 100, 2))
	q.insert(queuedTask(5, 100, 1))
	q.insert(queuedTask(9, 100, 3))

	assert.Equal(t, []TaskID{5, 7, 9}, q.ids())
}

func TestRunQueueRemoveByIdentity(t *testing.T) {
	q := newRunQueue()
	a := queuedTask(1, 100, 1)
	b := queuedTask(2, 100, 2)
	q.insert(a)
	q.insert(b)

	q.remove(a)
	assert.Equal(t, 1, q.len())
	assert.Equal(t, TaskID(2), q.popMin())
}

func TestRunQueueRemoveAbsentPanics(t *testing.T) {
	q := newRunQueue()
	q.insert(queuedTask(1, 100, 1))

	require.Panics(t, func() { q.remove(queuedTask(2, 200, 2)) })

	// Double remove is scheduler corruption at this layer; idempotence
	// lives above it.
	a := queuedTask(3, 300, 3)
	q.insert(a)
	q.remove(a)
	require.Panics(t, func() { q.remove(a) })
}

func TestRunQueuePeek(t *testing.T) {
	q := newRunQueue()
	_, ok := q.peekMin()
	assert.False(t, ok)

	q.insert(queuedTask(4, 50, 1))
	id, ok := q.peekMin()
	require.True(t, ok)
	assert.Equal(t, TaskID(4), id)
	assert.Equal(t, 1, q.len())
}

func TestRunQueuePopEmptyPanics(t *testing.T) {
	require.Panics(t, func() { newRunQueue().popMin() })
}
