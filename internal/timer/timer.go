// internal/timer/timer.go

package timer

import (
	"runtime"
	"sync"
)

const (
	DefaultFrequencyHz uint32 = 1000  // 1ms tick period
	MaxFrequencyHz     uint32 = 10000 // 0.1ms tick period
)

// Backend is the hardware timer as the kernel sees it: a controller plus a
// tick source. Handlers registered with OnTick run in "interrupt context".
type Backend interface {
	// Configure sets the tick frequency and returns the effective value.
	Configure(hz uint32) uint32
	Frequency() uint32
	Start()
	Stop()
	ElapsedTicks() uint32
	OnTick(fn func())
	// Wait returns a channel closed at the next tick (wait-for-interrupt).
	Wait() <-chan struct{}
}

// ClampFrequency applies the controller limits: 0 selects the default rate
// and anything above MaxFrequencyHz is clamped.
func ClampFrequency(hz uint32) uint32 {
	switch {
	case hz == 0:
		return DefaultFrequencyHz
	case hz > MaxFrequencyHz:
		return MaxFrequencyHz
	default:
		return hz
	}
}

// WaitStrategy selects how Delay passes time.
type WaitStrategy int

const (
	WaitInterrupt WaitStrategy = iota // sleep until the next tick
	WaitBusy                          // spin on the tick counter
)

func (w WaitStrategy) String() string {
	switch w {
	case WaitInterrupt:
		return "interrupt"
	case WaitBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// ParseWaitStrategy maps a config value onto a strategy; unknown values fall
// back to WaitInterrupt.
func ParseWaitStrategy(s string) WaitStrategy {
	if s == "busy" {
		return WaitBusy
	}
	return WaitInterrupt
}

// Delay blocks the caller for at least ms milliseconds of timer ticks.
func Delay(b Backend, ms uint32, strategy WaitStrategy) {
	n := uint32(uint64(ms) * uint64(b.Frequency()) / 1000)
	start := b.ElapsedTicks()
	for b.ElapsedTicks()-start < n {
		if strategy == WaitBusy {
			runtime.Gosched()
			continue
		}
		<-b.Wait()
	}
}

// edge is the shared tick notification used by both backends.
type edge struct {
	mu   sync.Mutex
	next chan struct{}
}

func (e *edge) wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next == nil {
		e.next = make(chan struct{})
	}
	return e.next
}

func (e *edge) fire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next != nil {
		close(e.next)
		e.next = nil
	}
}
