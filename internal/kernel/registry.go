// internal/kernel/registry.go

package kernel

import (
	"fmt"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/trees/redblacktree"
)

// Registry derives from the TCB table which tasks may run now (the ready
// tree) and which are waiting on a tick (the sleep set). A task is in the
// ready tree iff it is Ready and in the sleep set iff it is Sleeping; every
// state change goes through move to keep it that way.
type Registry struct {
	ready    *redblacktree.Tree // readyKey -> *Task
	sleeping *treeset.Set       // *Task ordered by (WakeTime, ID)
}

func newRegistry() *Registry {
	return &Registry{
		ready:    redblacktree.NewWith(readyOrder),
		sleeping: treeset.NewWith(wakeOrder),
	}
}

// readyKey orders the run queue: highest priority first, then the task that
// has waited longest since its last dispatch, then table order.
type readyKey struct {
	priority     Priority
	lastDispatch uint64
	id           TaskID
}

func keyOf(t *Task) readyKey {
	return readyKey{priority: t.Priority, lastDispatch: t.lastDispatch, id: t.ID}
}

func readyOrder(a, b any) int {
	ka, kb := a.(readyKey), b.(readyKey)
	switch {
	case ka.priority > kb.priority:
		return -1
	case ka.priority < kb.priority:
		return 1
	case ka.lastDispatch < kb.lastDispatch:
		return -1
	case ka.lastDispatch > kb.lastDispatch:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}

// wakeOrder puts earlier deadlines first; equal deadlines wake in table order.
func wakeOrder(a, b any) int {
	ta, tb := a.(*Task), b.(*Task)
	switch {
	case ta.WakeTime < tb.WakeTime:
		return -1
	case ta.WakeTime > tb.WakeTime:
		return 1
	case ta.ID < tb.ID:
		return -1
	case ta.ID > tb.ID:
		return 1
	default:
		return 0
	}
}

// legal is the task state machine.
func legal(from, to State) bool {
	switch {
	case to == StateInvalid:
		return from != StateInvalid
	case from == StateReady:
		return to == StateRunning
	case from == StateRunning:
		return to == StateReady || to == StateSleeping || to == StateSuspended
	case from == StateSleeping, from == StateSuspended:
		return to == StateReady
	default:
		return false
	}
}

// move performs one state transition and keeps the registry in step.
func (r *Registry) move(t *Task, to State) error {
	if !legal(t.State, to) {
		return fmt.Errorf("%w: task %d (%s) %s -> %s", ErrIllegalTransition, t.ID, t.Name, t.State, to)
	}
	r.drop(t)
	t.State = to
	r.add(t)
	return nil
}

func (r *Registry) add(t *Task) {
	switch t.State {
	case StateReady:
		r.ready.Put(keyOf(t), t)
	case StateSleeping:
		r.sleeping.Add(t)
	}
}

func (r *Registry) drop(t *Task) {
	switch t.State {
	case StateReady:
		r.ready.Remove(keyOf(t))
	case StateSleeping:
		r.sleeping.Remove(t)
	}
}

// reprioritize changes t's priority, re-keying it if it is queued.
func (r *Registry) reprioritize(t *Task, p Priority) {
	r.drop(t)
	t.Priority = p
	r.add(t)
}

// best returns the Ready task the scheduler would pick, or nil.
func (r *Registry) best() *Task {
	node := r.ready.Left()
	if node == nil {
		return nil
	}
	return node.Value.(*Task)
}

// nextDue returns the earliest sleeper if its deadline is at or before now.
func (r *Registry) nextDue(now uint64) *Task {
	it := r.sleeping.Iterator()
	if !it.First() {
		return nil
	}
	t := it.Value().(*Task)
	if t.WakeTime > now {
		return nil
	}
	return t
}

func (r *Registry) readyCount() int    { return r.ready.Size() }
func (r *Registry) sleepingCount() int { return r.sleeping.Size() }
