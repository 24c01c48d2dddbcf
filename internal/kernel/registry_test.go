package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLegalTransitions(t *testing.T) {
	states := []State{StateInvalid, StateReady, StateRunning, StateBlocked, StateSleeping, StateSuspended}
	allowed := map[[2]State]bool{
		{StateReady, StateRunning}:     true,
		{StateRunning, StateReady}:     true,
		{StateRunning, StateSleeping}:  true,
		{StateRunning, StateSuspended}: true,
		{StateSleeping, StateReady}:    true,
		{StateSuspended, StateReady}:   true,
		{StateReady, StateInvalid}:     true,
		{StateRunning, StateInvalid}:   true,
		{StateBlocked, StateInvalid}:   true,
		{StateSleeping, StateInvalid}:  true,
		{StateSuspended, StateInvalid}: true,
	}
	for _, from := range states {
		for _, to := range states {
			require.Equal(t, allowed[[2]State{from, to}], legal(from, to), "%s -> %s", from, to)
		}
	}
}

func TestRegistryMoveKeepsQueuesInStep(t *testing.T) {
	r := newRegistry()
	task := newTask(1, "T", PriorityNormal, func(*TaskContext) {}, Region{})
	r.add(task)
	require.Equal(t, 1, r.readyCount())

	require.NoError(t, r.move(task, StateRunning))
	require.Zero(t, r.readyCount())

	task.WakeTime = 10
	require.NoError(t, r.move(task, StateSleeping))
	require.Equal(t, 1, r.sleepingCount())
	require.Nil(t, r.nextDue(9))
	require.Same(t, task, r.nextDue(10))

	err := r.move(task, StateRunning)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.Equal(t, StateSleeping, task.State)

	require.NoError(t, r.move(task, StateReady))
	require.Zero(t, r.sleepingCount())
	require.Same(t, task, r.best())
}

func TestReadyOrder(t *testing.T) {
	r := newRegistry()
	entry := func(*TaskContext) {}
	low := newTask(1, "low", PriorityLow, entry, Region{})
	a := newTask(2, "a", PriorityHigh, entry, Region{})
	b := newTask(3, "b", PriorityHigh, entry, Region{})
	for _, task := range []*Task{low, b, a} {
		r.add(task)
	}

	// Same priority, neither dispatched yet: table order.
	require.Same(t, a, r.best())

	// a has run more recently than b, so b goes first.
	r.drop(a)
	a.lastDispatch = 5
	b.lastDispatch = 0
	r.add(a)
	require.Same(t, b, r.best())

	r.reprioritize(low, PriorityCritical)
	require.Same(t, low, r.best())
}

func TestWakeOrderBreaksTiesByID(t *testing.T) {
	r := newRegistry()
	entry := func(*TaskContext) {}
	late := newTask(1, "late", PriorityNormal, entry, Region{})
	second := newTask(3, "second", PriorityNormal, entry, Region{})
	first := newTask(2, "first", PriorityNormal, entry, Region{})
	late.WakeTime, second.WakeTime, first.WakeTime = 20, 10, 10
	for _, task := range []*Task{late, second, first} {
		task.State = StateSleeping
		r.add(task)
	}

	var order []TaskID
	for task := r.nextDue(15); task != nil; task = r.nextDue(15) {
		require.NoError(t, r.move(task, StateReady))
		order = append(order, task.ID)
	}
	require.Equal(t, []TaskID{2, 3}, order)
	require.Equal(t, 1, r.sleepingCount())
}

func TestTableHandlesGoStale(t *testing.T) {
	tb := newTable(2)
	entry := func(*TaskContext) {}

	t1 := newTask(tb.assignID(), "one", PriorityNormal, entry, Region{})
	h1 := tb.insert(t1)
	t2 := newTask(tb.assignID(), "two", PriorityNormal, entry, Region{})
	tb.insert(t2)
	require.True(t, tb.full())

	got, ok := tb.resolve(h1)
	require.True(t, ok)
	require.Same(t, t1, got)

	tb.remove(t1)
	_, ok = tb.resolve(h1)
	require.False(t, ok)
	_, ok = tb.find(t1.ID)
	require.False(t, ok)

	// The slot is reused under a new generation and a new id.
	t3 := newTask(tb.assignID(), "three", PriorityNormal, entry, Region{})
	h3 := tb.insert(t3)
	require.NotEqual(t, h1, h3)
	require.Equal(t, TaskID(3), t3.ID)
	_, ok = tb.resolve(h1)
	require.False(t, ok)

	var names []string
	tb.each(func(task *Task) bool {
		names = append(names, task.Name)
		return true
	})
	require.Equal(t, []string{"two", "three"}, names)

	_, ok = tb.resolve(Handle{})
	require.False(t, ok)
}
