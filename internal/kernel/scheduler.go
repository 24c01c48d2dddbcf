// internal/kernel/scheduler.go

package kernel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"nucleus/internal/console"
	"nucleus/internal/timer"
)

// Version of the kernel printed in the boot banner.
const Version = "0.1.0"

// Kernel is one boot session of the nucleus: TCB table, stack arena,
// ready/sleep registry, scheduler and tick dispatcher.
//
// Every task body runs on its own goroutine but only the goroutine of the
// current task executes; the others are parked on their resume channel. A
// context switch saves the outgoing register image, validates the incoming
// one and passes the CPU from one goroutine to the other.
type Kernel struct {
	// mu is the interrupt mask. Holding it is running with interrupts off;
	// tick dispatch, task calls and external calls all serialize on it.
	mu   sync.Mutex
	cond *sync.Cond // broadcast on every interrupt, idle entry and halt

	cfg   Config
	arena *Arena
	table *Table
	reg   *Registry
	clock timer.Backend
	hz    uint32

	current *Task
	idle    *Task

	ticks       uint64
	irqSeq      uint64 // bumped by anything that may make a task runnable
	dispatchSeq uint64
	needResched bool

	idleWaiting bool
	idleSeq     uint64 // irqSeq observed when the idle task last went to sleep

	started bool
	halted  bool
	haltErr error

	session  uuid.UUID
	statusCh chan StatusEvent
	dropped  atomic.Uint64

	console console.Sink
	log     *slog.Logger
	metrics *Metrics

	// logging-related
	csvFile   *os.File
	csvWriter *csv.Writer
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithConsole sets the diagnostic console. The default discards output.
func WithConsole(s console.Sink) Option { return func(k *Kernel) { k.console = s } }

// WithLogger sets the host-side structured logger.
func WithLogger(l *slog.Logger) Option { return func(k *Kernel) { k.log = l } }

// WithMetrics sets the metric instruments. The default is a no-op meter.
func WithMetrics(m *Metrics) Option { return func(k *Kernel) { k.metrics = m } }

// New boots a kernel on the given timer. The timer is configured to
// cfg.TickHz and its tick handler is bound to the kernel, but ticks start only
// with Start. When cfg.IdleTask is set the idle task is created here; failing
// to create it is fatal to the boot.
func New(cfg Config, clock timer.Backend, opts ...Option) (*Kernel, error) {
	cfg = cfg.sanitized()
	k := &Kernel{
		cfg:      cfg,
		arena:    NewArena(uint32(cfg.ArenaSize), uint32(cfg.MinStack), uint32(cfg.MaxStack), cfg.ReclaimStacks),
		table:    newTable(cfg.MaxTasks),
		reg:      newRegistry(),
		clock:    clock,
		session:  uuid.New(),
		statusCh: make(chan StatusEvent, cfg.EventBuffer),
		console:  console.Discard,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	k.cond = sync.NewCond(&k.mu)
	for _, opt := range opts {
		opt(k)
	}
	if k.metrics == nil {
		k.metrics = noopMetrics()
	}

	k.hz = clock.Configure(cfg.TickHz)
	clock.OnTick(k.Tick)

	if cfg.IdleTask {
		h, err := k.Create("idle", idleLoop, PriorityIdle, uint32(cfg.IdleStack))
		if err != nil {
			return nil, fmt.Errorf("create idle task: %w", err)
		}
		k.idle, _ = k.table.resolve(h)
	}
	return k, nil
}

// idleLoop runs when nothing else can: sleep until an interrupt, then give
// the scheduler a chance.
func idleLoop(tc *TaskContext) {
	for {
		tc.WaitForInterrupt()
		tc.Yield()
	}
}

// Start dispatches the first task and enables the timer. It returns once the
// first task owns the CPU.
func (k *Kernel) Start() error {
	k.mu.Lock()
	if k.halted {
		err := k.haltErr
		k.mu.Unlock()
		return err
	}
	if k.started {
		k.mu.Unlock()
		return ErrAlreadyStarted
	}
	k.started = true

	next := k.reg.best()
	if next == nil {
		k.haltLocked(ErrSchedulingUnavailable)
		err := k.haltErr
		k.mu.Unlock()
		return err
	}
	if err := k.dispatchLocked(nil, next); err != nil {
		k.haltLocked(err)
		err = k.haltErr
		k.mu.Unlock()
		return err
	}
	next.started = true
	k.mu.Unlock()

	k.clock.Start()
	go k.trampoline(next)
	return nil
}

// Run starts the kernel and consumes its event stream until the kernel stops
// or halts. A kernel already started with Start is only consumed. Cancelling
// ctx shuts the kernel down. Run returns nil after an orderly shutdown and the
// fault after a halt.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.Start(); err != nil && !errors.Is(err, ErrAlreadyStarted) {
		k.closeCSV()
		return err
	}
	stop := context.AfterFunc(ctx, k.Shutdown)
	defer stop()

	// consume events
	for ev := range k.statusCh {
		k.handleEvent(ev)
	}
	k.closeCSV()

	if n := k.dropped.Load(); n > 0 {
		k.log.Warn("diagnostic events dropped", "count", n)
	}
	err := k.Err()
	if errors.Is(err, ErrStopped) {
		return nil
	}
	return err
}

// Shutdown stops the kernel in an orderly way: the timer stops, parked tasks
// terminate, and the running task terminates at its next kernel call.
func (k *Kernel) Shutdown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.halted {
		return
	}
	k.stopLocked(ErrStopped)
}

// Err returns why the kernel stopped, or nil while it is alive.
func (k *Kernel) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.haltErr
}

// Next reports the task the scheduler would run if it were asked now,
// without switching. The running task competes as if it had just yielded.
func (k *Kernel) Next() (Handle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.halted {
		return Handle{}, k.haltErr
	}
	best := k.reg.best()
	if cur := k.current; cur != nil && cur.State == StateRunning {
		if best == nil || readyOrder(keyOf(cur), keyOf(best)) < 0 {
			return cur.handle, nil
		}
	}
	if best == nil {
		return Handle{}, ErrSchedulingUnavailable
	}
	return best.handle, nil
}

// WaitIdle blocks until the idle task is waiting for an interrupt that has
// not arrived yet, i.e. every task that could run has run. It is how a
// simulation steps the kernel deterministically one tick at a time.
func (k *Kernel) WaitIdle() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.started {
		return ErrNotStarted
	}
	for !(k.idleWaiting && k.idleSeq == k.irqSeq) {
		if k.halted {
			return k.haltErr
		}
		if k.idle == nil {
			return ErrNoIdleTask
		}
		k.cond.Wait()
	}
	return nil
}

// trampoline is the first thing a task goroutine runs. Returning from the
// entry function is an implicit Exit.
func (k *Kernel) trampoline(t *Task) {
	tc := &TaskContext{k: k, t: t}
	t.Entry(tc)
	tc.Exit()
}

// switchFrom is the kernel exit path of a task goroutine. The caller holds
// k.mu and is the goroutine of self; switchFrom releases the lock. If self
// keeps the CPU it returns at once, otherwise it hands the CPU to the next
// task and parks until self is dispatched again. A dead task, or any task of
// a halted kernel, never returns.
func (k *Kernel) switchFrom(self *Task) {
	if k.halted {
		k.mu.Unlock()
		runtime.Goexit()
	}
	if self.State == StateRunning {
		if !k.preemptLocked(self) {
			k.mu.Unlock()
			return
		}
		if err := k.reg.move(self, StateReady); err != nil {
			k.faultLocked(err)
		}
		k.emitLocked(StatusEvent{Kind: StatusPreempt, TaskID: self.ID, Name: self.Name, Priority: self.Priority})
	}

	next := k.reg.best()
	if next == nil {
		k.faultLocked(ErrSchedulingUnavailable)
	}
	if err := k.dispatchLocked(self, next); err != nil {
		k.faultLocked(err)
	}
	if next == self {
		k.mu.Unlock()
		return
	}
	start := !next.started
	next.started = true
	dead := self.State == StateInvalid
	k.mu.Unlock()

	if start {
		go k.trampoline(next)
	} else {
		next.resume <- sigRun
	}
	if dead {
		runtime.Goexit()
	}
	if <-self.resume == sigExit {
		runtime.Goexit()
	}
}

// faultLocked halts the kernel from a task goroutine. It does not return.
func (k *Kernel) faultLocked(err error) {
	k.haltLocked(err)
	k.mu.Unlock()
	runtime.Goexit()
}

// preemptLocked consumes a pending reschedule request and reports whether
// self must give up the CPU to an equal or higher priority contender.
func (k *Kernel) preemptLocked(self *Task) bool {
	if !k.needResched {
		return false
	}
	k.needResched = false
	top := k.reg.best()
	return top != nil && top.Priority >= self.Priority
}

// dispatchLocked makes next the running task. from is the task giving up the
// CPU, nil at boot. The goroutine hand-off is the caller's job.
func (k *Kernel) dispatchLocked(from, next *Task) error {
	if next != from {
		if err := switchContext(k.arena, from, next); err != nil {
			return err
		}
	}
	if err := k.reg.move(next, StateRunning); err != nil {
		return err
	}
	k.dispatchSeq++
	next.lastDispatch = k.dispatchSeq
	next.TimeUsed = 0
	k.current = next
	if next == from {
		return nil
	}
	// A request made against from does not carry over to a fresh slice.
	k.needResched = false

	// A task that deleted itself was still on its stack until now.
	if from != nil && from.State == StateInvalid {
		k.arena.Free(from.Region)
	}
	next.ContextSwitches++
	k.metrics.ContextSwitches.Add(context.Background(), 1)

	var prev TaskID
	if from != nil {
		prev = from.ID
	}
	k.emitLocked(StatusEvent{Kind: StatusDispatch, TaskID: next.ID, Name: next.Name, Priority: next.Priority, Arg: uint32(prev)})
	return nil
}

// wantPreemptLocked requests a reschedule when t outranks the running task.
// Cooperative kernels never preempt.
func (k *Kernel) wantPreemptLocked(t *Task) {
	if !k.cfg.Preemptive {
		return
	}
	if cur := k.current; cur != nil && cur.State == StateRunning && t.Priority > cur.Priority {
		k.needResched = true
	}
}

// interruptLocked wakes anything waiting for an interrupt.
func (k *Kernel) interruptLocked() {
	k.irqSeq++
	k.cond.Broadcast()
}

// haltLocked is the fatal path: interrupts off, panic banner, every task
// terminates, Run returns err.
func (k *Kernel) haltLocked(err error) {
	if k.halted {
		return
	}
	k.console.WriteLine("")
	k.console.WriteLine("*** KERNEL PANIC ***")
	k.console.Printf("Fatal error: %s\n", err.Error())
	k.console.WriteLine("System halted.")
	k.log.Error("kernel halted", "session", k.session, "tick", k.ticks, "err", err)
	k.emitLocked(StatusEvent{Kind: StatusHalt, Text: err.Error()})
	k.stopLocked(fmt.Errorf("%w: %w", ErrHalted, err))
}

func (k *Kernel) stopLocked(reason error) {
	k.halted = true
	k.haltErr = reason
	k.clock.Stop()
	k.table.each(func(t *Task) bool {
		if t.started && t.State != StateRunning {
			select {
			case t.resume <- sigExit:
			default:
			}
		}
		return true
	})
	k.cond.Broadcast()
	close(k.statusCh)
}

// emitLocked queues a diagnostic. It never blocks: when the queue is full the
// event is counted and dropped.
func (k *Kernel) emitLocked(ev StatusEvent) {
	if k.halted {
		return
	}
	ev.Tick = k.ticks
	select {
	case k.statusCh <- ev:
	default:
		k.dropped.Add(1)
		k.metrics.EventsDropped.Add(context.Background(), 1)
	}
}

// StatusChannel exposes the read-only event stream for consumers that do not
// use Run. It is closed when the kernel stops.
func (k *Kernel) StatusChannel() <-chan StatusEvent { return k.statusCh }

// Dropped is the number of events lost to a full queue.
func (k *Kernel) Dropped() uint64 { return k.dropped.Load() }

// Session identifies this boot session.
func (k *Kernel) Session() uuid.UUID { return k.session }

// Ticks returns the kernel tick count.
func (k *Kernel) Ticks() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// ElapsedMs is the kernel time base in milliseconds.
func (k *Kernel) ElapsedMs() uint64 {
	return k.Ticks() * 1000 / uint64(k.hz)
}

// FrequencyHz is the tick rate the timer accepted.
func (k *Kernel) FrequencyHz() uint32 { return k.hz }

// ArenaUsage reports the stack arena capacity, high-water mark and bytes in use.
func (k *Kernel) ArenaUsage() (capacity, highWater, inUse uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.arena.Capacity(), k.arena.HighWater(), k.arena.InUse()
}

// Banner writes the boot banner to the console.
func (k *Kernel) Banner() {
	k.console.WriteLine("")
	k.console.WriteLine("========================================")
	k.console.Printf("         nucleus v%s\n", Version)
	k.console.WriteLine("  Real-Time Kernel Nucleus")
	k.console.Printf("  session %s, %d Hz, arena %s\n", k.session.String(), int(k.hz), k.cfg.ArenaSize)
	k.console.WriteLine("========================================")
	k.console.WriteLine("")
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (k *Kernel) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	w.Write([]string{"session", "tick", "event", "task_id", "name", "priority", "arg", "text"})
	w.Flush()
	k.csvFile = f
	k.csvWriter = w
	return nil
}

func (k *Kernel) closeCSV() {
	if k.csvFile != nil {
		k.csvWriter.Flush()
		k.csvFile.Close()
		k.csvFile = nil
	}
}

// handleEvent prints what the firmware printed, after the fact and outside
// the critical section.
func (k *Kernel) handleEvent(ev StatusEvent) {
	switch ev.Kind {
	case StatusCreate:
		k.console.Printf("Task '%s' created (ID: %d, Priority: %d)\n", ev.Name, ev.TaskID, int(ev.Priority))
	case StatusDelete:
		k.console.Printf("Task '%s' deleted\n", ev.Name)
	case StatusSuspend:
		k.console.Printf("Task '%s' suspended\n", ev.Name)
	case StatusResume:
		k.console.Printf("Task '%s' resumed\n", ev.Name)
	case StatusSleep:
		k.console.Printf("Task '%s' sleeping for %d ms\n", ev.Name, ev.Arg)
	case StatusYield:
		k.console.Printf("Task '%s' yielding\n", ev.Name)
	case StatusHeartbeat:
		k.console.Printf("Timer tick: %d\n", ev.Arg)
	case StatusLog:
		k.console.Printf("%s", ev.Text)
	default:
		// Dispatch, wake and preemption happen every tick; keep them off the
		// console.
		k.log.Debug("kernel event", "tick", ev.Tick, "event", ev.Kind.String(), "task", ev.TaskID, "name", ev.Name)
	}

	// CSV output
	if k.csvWriter != nil {
		rec := []string{
			k.session.String(),
			strconv.FormatUint(ev.Tick, 10),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			ev.Name,
			ev.Priority.String(),
			strconv.FormatUint(uint64(ev.Arg), 10),
			ev.Text,
		}
		k.csvWriter.Write(rec)
		k.csvWriter.Flush()
	}
}
