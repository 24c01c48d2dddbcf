package kernel

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/emirpasic/gods/stacks/arraystack"
)

// DefaultMaxTasks bounds the TCB table when the config does not.
const DefaultMaxTasks = 32

type slot struct {
	task *Task
	gen  uint32
}

// Table is the TCB table: the single source of truth for which tasks exist.
// Tasks are addressed by slot handles; iteration follows creation order.
type Table struct {
	slots    []slot
	free     *arraystack.Stack  // reusable slot indices
	byID     *linkedhashmap.Map // TaskID -> *Task in table order
	nextID   TaskID
	capacity int
}

func newTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultMaxTasks
	}
	return &Table{
		free:     arraystack.New(),
		byID:     linkedhashmap.New(),
		nextID:   1,
		capacity: capacity,
	}
}

func (tb *Table) full() bool { return tb.byID.Size() >= tb.capacity }

func (tb *Table) len() int { return tb.byID.Size() }

// assignID hands out the next task id. Ids are consumed only by tasks that
// make it into the table.
func (tb *Table) assignID() TaskID {
	id := tb.nextID
	tb.nextID++
	return id
}

// insert registers t and returns its handle. The caller checked full().
func (tb *Table) insert(t *Task) Handle {
	var idx uint32
	if v, ok := tb.free.Pop(); ok {
		idx = v.(uint32)
	} else {
		idx = uint32(len(tb.slots))
		tb.slots = append(tb.slots, slot{gen: 1})
	}
	s := &tb.slots[idx]
	s.task = t
	t.handle = Handle{slot: idx, gen: s.gen}
	tb.byID.Put(t.ID, t)
	return t.handle
}

// remove unlinks t and retires its handle.
func (tb *Table) remove(t *Task) {
	h := t.handle
	if int(h.slot) >= len(tb.slots) || tb.slots[h.slot].gen != h.gen {
		return
	}
	s := &tb.slots[h.slot]
	s.task = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	tb.free.Push(h.slot)
	tb.byID.Remove(t.ID)
}

// resolve maps a handle to its live task.
func (tb *Table) resolve(h Handle) (*Task, bool) {
	if h.IsZero() || int(h.slot) >= len(tb.slots) {
		return nil, false
	}
	s := tb.slots[h.slot]
	if s.gen != h.gen || s.task == nil {
		return nil, false
	}
	return s.task, true
}

func (tb *Table) find(id TaskID) (*Task, bool) {
	v, ok := tb.byID.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Task), true
}

// each visits live tasks in table order until fn returns false.
func (tb *Table) each(fn func(*Task) bool) {
	it := tb.byID.Iterator()
	for it.Next() {
		if !fn(it.Value().(*Task)) {
			return
		}
	}
}
