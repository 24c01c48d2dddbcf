package kernel

import (
	"context"
	"fmt"
)

// Create registers a new Ready task with a stack of stackSize bytes. The
// first time the task is dispatched, entry runs on a fresh goroutine with the
// task's initial register image. On failure nothing is registered.
func (k *Kernel) Create(name string, entry Entry, priority Priority, stackSize uint32) (Handle, error) {
	if entry == nil || name == "" || !priority.Valid() {
		return Handle{}, fmt.Errorf("%w: name=%q entry=%t priority=%d", ErrInvalidParameters, name, entry != nil, priority)
	}
	if stackSize < uint32(k.cfg.MinStack) || stackSize > uint32(k.cfg.MaxStack) {
		return Handle{}, fmt.Errorf("%w: stack size %d outside %d..%d", ErrInvalidParameters, stackSize, k.cfg.MinStack, k.cfg.MaxStack)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.halted {
		return Handle{}, k.haltErr
	}
	if k.table.full() {
		return Handle{}, fmt.Errorf("%w: task table full (%d tasks)", ErrInvalidParameters, k.table.capacity)
	}
	region, err := k.arena.Allocate(stackSize)
	if err != nil {
		return Handle{}, fmt.Errorf("create task %q: %w", name, err)
	}

	t := newTask(k.table.assignID(), name, priority, entry, region)
	t.TimeSlice = k.cfg.SliceTicks
	t.sp, t.frameSum = initialFrame(k.arena.mem, region, t.EntryPC)
	h := k.table.insert(t)
	k.reg.add(t)

	k.metrics.TasksCreated.Add(context.Background(), 1)
	k.metrics.LiveTasks.Add(context.Background(), 1)
	k.emitLocked(StatusEvent{Kind: StatusCreate, TaskID: t.ID, Name: t.Name, Priority: t.Priority})
	k.wantPreemptLocked(t)
	k.interruptLocked()
	return h, nil
}

// Delete unlinks the task and marks it Invalid. Unknown or stale handles are
// ignored. Deleting the running task takes effect at its next kernel call.
func (k *Kernel) Delete(h Handle) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t, ok := k.table.resolve(h); ok {
		k.deleteLocked(t)
	}
}

func (k *Kernel) deleteLocked(t *Task) {
	if err := k.reg.move(t, StateInvalid); err != nil {
		k.haltLocked(err)
		return
	}
	k.table.remove(t)
	if t == k.idle {
		k.idle = nil
	}
	k.metrics.TasksDeleted.Add(context.Background(), 1)
	k.metrics.LiveTasks.Add(context.Background(), -1)
	k.emitLocked(StatusEvent{Kind: StatusDelete, TaskID: t.ID, Name: t.Name, Priority: t.Priority})

	if t == k.current {
		// Still executing on this stack; dispatch releases it.
		k.evictLocked()
		return
	}
	k.arena.Free(t.Region)
	if t.started {
		select {
		case t.resume <- sigExit:
		default:
		}
	}
}

// Suspend stops the running task. Only the running task can be suspended;
// for any other handle this is a no-op.
func (k *Kernel) Suspend(h Handle) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t, ok := k.table.resolve(h); ok {
		k.suspendLocked(t)
	}
}

func (k *Kernel) suspendLocked(t *Task) {
	if t != k.current || t.State != StateRunning {
		return
	}
	if err := k.reg.move(t, StateSuspended); err != nil {
		k.haltLocked(err)
		return
	}
	k.emitLocked(StatusEvent{Kind: StatusSuspend, TaskID: t.ID, Name: t.Name, Priority: t.Priority})
	k.evictLocked()
}

// Resume makes a Suspended task Ready. Any other state is left alone.
func (k *Kernel) Resume(h Handle) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.table.resolve(h)
	if !ok || t.State != StateSuspended {
		return
	}
	if err := k.reg.move(t, StateReady); err != nil {
		k.haltLocked(err)
		return
	}
	k.emitLocked(StatusEvent{Kind: StatusResume, TaskID: t.ID, Name: t.Name, Priority: t.Priority})
	k.wantPreemptLocked(t)
	k.interruptLocked()
}

// Sleep puts the running task to sleep for ms milliseconds. It is a no-op
// when h is not the running task or nothing is running.
func (k *Kernel) Sleep(h Handle, ms uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == nil {
		return
	}
	if t, ok := k.table.resolve(h); ok && t == k.current && t.State == StateRunning {
		k.sleepLocked(t, ms)
	}
}

// sleepLocked moves the running task t to Sleeping. Zero ms is a yield.
func (k *Kernel) sleepLocked(t *Task, ms uint32) {
	if ms == 0 {
		k.yieldLocked(t)
		k.evictLocked()
		return
	}
	n := k.msToTicks(ms)
	wake := k.ticks + n
	if k.cfg.SleepAnchor == AnchorDeadline && t.WakeTime > 0 && t.WakeTime+n > k.ticks {
		wake = t.WakeTime + n
	}
	t.WakeTime = wake
	if err := k.reg.move(t, StateSleeping); err != nil {
		k.haltLocked(err)
		return
	}
	k.emitLocked(StatusEvent{Kind: StatusSleep, TaskID: t.ID, Name: t.Name, Priority: t.Priority, Arg: ms})
	k.evictLocked()
}

// evictLocked wakes the running task if it is parked in WaitForInterrupt so
// that it gives up the CPU it no longer owns.
func (k *Kernel) evictLocked() {
	k.cond.Broadcast()
}

func (k *Kernel) yieldLocked(t *Task) {
	if err := k.reg.move(t, StateReady); err != nil {
		k.haltLocked(err)
		return
	}
	if t != k.idle {
		k.emitLocked(StatusEvent{Kind: StatusYield, TaskID: t.ID, Name: t.Name, Priority: t.Priority})
	}
}

// msToTicks rounds up so a sleep never ends early; every sleep lasts at
// least one tick.
func (k *Kernel) msToTicks(ms uint32) uint64 {
	n := (uint64(ms)*uint64(k.hz) + 999) / 1000
	if n == 0 {
		n = 1
	}
	return n
}

// SetPriority changes an existing task's priority on the fly, re-queueing it
// if it is Ready.
func (k *Kernel) SetPriority(h Handle, p Priority) error {
	if !p.Valid() {
		return fmt.Errorf("%w: priority %d", ErrInvalidParameters, p)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.table.resolve(h)
	if !ok {
		return ErrUnknownHandle
	}
	k.reg.reprioritize(t, p)
	k.emitLocked(StatusEvent{Kind: StatusPriorityUpdate, TaskID: t.ID, Name: t.Name, Priority: t.Priority})
	if t.State == StateReady {
		k.wantPreemptLocked(t)
	}
	return nil
}

// Find looks a live task up by id.
func (k *Kernel) Find(id TaskID) (Handle, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.table.find(id)
	if !ok {
		return Handle{}, false
	}
	return t.handle, true
}

// Tasks lists live tasks in table order.
func (k *Kernel) Tasks() []Handle {
	k.mu.Lock()
	defer k.mu.Unlock()
	hs := make([]Handle, 0, k.table.len())
	k.table.each(func(t *Task) bool {
		hs = append(hs, t.handle)
		return true
	})
	return hs
}

// Info snapshots one task.
func (k *Kernel) Info(h Handle) (TaskInfo, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.table.resolve(h)
	if !ok {
		return TaskInfo{}, false
	}
	return t.info(), true
}

// Snapshot copies every live task in table order.
func (k *Kernel) Snapshot() []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]TaskInfo, 0, k.table.len())
	k.table.each(func(t *Task) bool {
		out = append(out, t.info())
		return true
	})
	return out
}

// Current returns the running task, if any.
func (k *Kernel) Current() (Handle, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == nil || k.current.State != StateRunning {
		return Handle{}, false
	}
	return k.current.handle, true
}
