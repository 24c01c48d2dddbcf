package job

import (
	"sync/atomic"

	"nucleus/internal/kernel"
	"nucleus/internal/timer"
)

// Periodic returns a task body that prints a counter and sleeps ms between
// iterations, like the firmware's demo tasks. runs, if not nil, counts
// iterations.
func Periodic(label string, ms uint32, runs *atomic.Uint32) kernel.Entry {
	return func(tc *kernel.TaskContext) {
		var counter uint32
		for {
			tc.Printf("%s: Counter = %d\n", label, counter)
			counter++
			if runs != nil {
				runs.Add(1)
			}
			tc.Sleep(ms)
		}
	}
}

// Burst returns a task body that keeps the CPU busy for ms milliseconds of
// timer time per round, offering a preemption point every tick, then sleeps
// for rest milliseconds.
func Burst(clock timer.Backend, strategy timer.WaitStrategy, ms, rest uint32) kernel.Entry {
	return func(tc *kernel.TaskContext) {
		for {
			for i := uint32(0); i < ms; i++ {
				timer.Delay(clock, 1, strategy)
				tc.Checkpoint()
			}
			tc.Sleep(rest)
		}
	}
}
