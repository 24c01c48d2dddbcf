package kernel

import "nucleus/internal/console"

// TaskContext is a task's view of the kernel, handed to its entry function.
// Its methods act on the calling task and may only be called from that
// task's own body. Each call is a kernel entry and therefore a preemption
// point: if the task was suspended, deleted or preempted in the meantime, the
// switch happens here.
type TaskContext struct {
	k *Kernel
	t *Task
}

func (tc *TaskContext) Handle() Handle  { return tc.t.handle }
func (tc *TaskContext) ID() TaskID      { return tc.t.ID }
func (tc *TaskContext) Name() string    { return tc.t.Name }
func (tc *TaskContext) Kernel() *Kernel { return tc.k }

// Ticks returns the kernel tick count.
func (tc *TaskContext) Ticks() uint64 { return tc.k.Ticks() }

// Sleep blocks the task for ms milliseconds of ticks. Sleep(0) yields.
func (tc *TaskContext) Sleep(ms uint32) {
	k := tc.k
	k.mu.Lock()
	if tc.running() {
		k.sleepLocked(tc.t, ms)
	}
	k.switchFrom(tc.t)
}

// Yield gives up the CPU without changing priority or wake time. The task
// keeps running if nothing else of its priority or higher is Ready.
func (tc *TaskContext) Yield() {
	k := tc.k
	k.mu.Lock()
	if tc.running() {
		k.yieldLocked(tc.t)
	}
	k.switchFrom(tc.t)
}

// Suspend stops the task until someone resumes it.
func (tc *TaskContext) Suspend() {
	k := tc.k
	k.mu.Lock()
	k.suspendLocked(tc.t)
	k.switchFrom(tc.t)
}

// Exit deletes the task. It does not return.
func (tc *TaskContext) Exit() {
	k := tc.k
	k.mu.Lock()
	if tc.t.State != StateInvalid {
		k.deleteLocked(tc.t)
	}
	k.switchFrom(tc.t)
}

// Checkpoint is an explicit preemption point for long-running loops.
func (tc *TaskContext) Checkpoint() {
	tc.k.mu.Lock()
	tc.k.switchFrom(tc.t)
}

// WaitForInterrupt blocks until the next interrupt: a tick, or a task being
// created or resumed. The task keeps the CPU while it waits.
func (tc *TaskContext) WaitForInterrupt() {
	k := tc.k
	k.mu.Lock()
	seq := k.irqSeq
	isIdle := tc.t == k.idle
	if isIdle {
		k.idleWaiting = true
		k.idleSeq = seq
		k.cond.Broadcast()
	}
	for k.irqSeq == seq && !k.halted && tc.t.State == StateRunning {
		k.cond.Wait()
	}
	if isIdle {
		k.idleWaiting = false
	}
	k.switchFrom(tc.t)
}

// Printf queues a line of task output for the console.
func (tc *TaskContext) Printf(format string, args ...any) {
	text := console.Sprintf(format, args...)
	k := tc.k
	k.mu.Lock()
	k.emitLocked(StatusEvent{Kind: StatusLog, TaskID: tc.t.ID, Name: tc.t.Name, Priority: tc.t.Priority, Text: text})
	k.switchFrom(tc.t)
}

func (tc *TaskContext) running() bool {
	return tc.k.current == tc.t && tc.t.State == StateRunning
}
