package sched

import (
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// queueKey orders the run queue: ascending virtual finish time, ties
// broken by insertion generation so simultaneously-eligible tasks run
// in FIFO order.
type queueKey struct {
	finish     int64
	generation uint64
}

func queueCmp(a, b any) int {
	ka, kb := a.(queueKey), b.(queueKey)
	switch {
	case ka.finish < kb.finish:
		return -1
	case ka.finish > kb.finish:
		return 1
	case ka.generation < kb.generation:
		return -1
	case ka.generation > kb.generation:
		return 1
	default:
		return 0
	}
}

// runQueue is the ordered set of ready tasks for one CPU. The tree
// stores TaskID handles, not pointers; a task's position key is
// reconstructed from its sched state, so removal is by identity and
// never by search over values.
type runQueue struct {
	tree *redblacktree.Tree
	size int
}

func newRunQueue() *runQueue {
	return &runQueue{tree: redblacktree.NewWith(queueCmp)}
}

func (q *runQueue) key(t *Task) queueKey {
	return queueKey{finish: t.Sched.VirtualFinish, generation: t.Sched.Generation}
}

// insert adds t under its current (finish, generation) key.
func (q *runQueue) insert(t *Task) {
	q.tree.Put(q.key(t), t.ID)
	q.size++
}

// remove erases t. Removing a task that is not present means the queue
// and the task's sched state disagree, which is scheduler corruption.
func (q *runQueue) remove(t *Task) {
	k := q.key(t)
	if _, found := q.tree.Get(k); !found {
		panic(fmt.Sprintf("sched: remove of absent task %d (finish=%d gen=%d)",
			t.ID, k.finish, k.generation))
	}
	q.tree.Remove(k)
	q.size--
}

// popMin removes and returns the ID of the task with the smallest
// (finish, generation) key. The queue must be non-empty.
func (q *runQueue) popMin() TaskID {
	node := q.tree.Left()
	if node == nil {
		panic("sched: popMin on empty run queue")
	}
	q.tree.Remove(node.Key)
	q.size--
	return node.Value.(TaskID)
}

// peekMin returns the front task's ID without removing it, and whether
// the queue is non-empty.
func (q *runQueue) peekMin() (TaskID, bool) {
	node := q.tree.Left()
	if node == nil {
		return 0, false
	}
	return node.Value.(TaskID), true
}

func (q *runQueue) isEmpty() bool { return q.size == 0 }

func (q *runQueue) len() int { return q.size }

// ids returns every queued TaskID in dequeue order. Used by migration
// drains and tests, not by the dispatch hot path.
func (q *runQueue) ids() []TaskID {
	out := make([]TaskID, 0, q.size)
	it := q.tree.Iterator()
	for it.Next() {
		out = append(out, it.Value().(TaskID))
	}
	return out
}
