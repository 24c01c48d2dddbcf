package kernel

import "context"

// Tick is the timer interrupt handler. It advances the tick counter, charges
// the running task, wakes every sleeper whose deadline has arrived (earliest
// first, ties in table order) and, in preemptive mode, requests a reschedule
// that the running task honours at its next kernel call.
//
// Tick runs in interrupt context: it never blocks beyond the critical
// section and never writes to the console; what it has to say is queued.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.halted {
		return
	}
	k.ticks++

	cur := k.current
	running := cur != nil && cur.State == StateRunning
	if running {
		cur.TotalRuntime++
		cur.TimeUsed++
	}

	for t := k.reg.nextDue(k.ticks); t != nil; t = k.reg.nextDue(k.ticks) {
		if err := k.reg.move(t, StateReady); err != nil {
			k.haltLocked(err)
			return
		}
		t.Wakeups++
		k.metrics.Wakeups.Add(context.Background(), 1)
		k.emitLocked(StatusEvent{Kind: StatusWake, TaskID: t.ID, Name: t.Name, Priority: t.Priority})
	}

	if k.cfg.Preemptive && running {
		if top := k.reg.best(); top != nil {
			if top.Priority > cur.Priority || (top.Priority == cur.Priority && cur.TimeUsed >= cur.TimeSlice) {
				k.needResched = true
			}
		}
	}

	if hb := uint64(k.cfg.HeartbeatTicks); hb > 0 && k.ticks%hb == 0 {
		k.emitLocked(StatusEvent{Kind: StatusHeartbeat, Arg: uint32(k.ticks)})
	}
	k.metrics.Ticks.Add(context.Background(), 1)
	k.interruptLocked()
}
