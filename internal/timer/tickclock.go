// internal/timer/tickclock.go

package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// TickClock is the interrupt-driven backend: a host ticker standing in for
// SysTick. Ticks are counted atomically and delivered to the handler from the
// clock goroutine.
type TickClock struct {
	mu      sync.Mutex
	hz      uint32
	handler func()
	stop    chan struct{}
	count   atomic.Uint32
	edge    edge
}

// NewTickClock creates a stopped clock at the given frequency.
func NewTickClock(hz uint32) *TickClock {
	return &TickClock{hz: ClampFrequency(hz)}
}

func (c *TickClock) Configure(hz uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hz = ClampFrequency(hz)
	return c.hz
}

func (c *TickClock) Frequency() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hz
}

func (c *TickClock) OnTick(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

// Start begins emitting ticks. Starting a running clock does nothing.
func (c *TickClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	stop := make(chan struct{})
	c.stop = stop
	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	handler := c.handler

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				if handler != nil {
					handler()
				}
				c.edge.fire()
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts tick delivery; a stopped clock keeps its count.
func (c *TickClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	c.stop = nil
}

// ElapsedTicks returns the current tick count atomically.
func (c *TickClock) ElapsedTicks() uint32 {
	return c.count.Load()
}

func (c *TickClock) Wait() <-chan struct{} {
	return c.edge.wait()
}
