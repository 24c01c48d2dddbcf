// internal/timer/manual.go

package timer

import "sync"

// Manual is a timer whose ticks are fired by the caller. Fire delivers each
// tick synchronously on the calling goroutine, which plays the interrupt.
type Manual struct {
	mu      sync.Mutex
	hz      uint32
	running bool
	count   uint32
	handler func()
	edge    edge
}

func NewManual(hz uint32) *Manual {
	return &Manual{hz: ClampFrequency(hz)}
}

func (m *Manual) Configure(hz uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hz = ClampFrequency(hz)
	return m.hz
}

func (m *Manual) Frequency() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hz
}

func (m *Manual) OnTick(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

func (m *Manual) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

func (m *Manual) ElapsedTicks() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Manual) Wait() <-chan struct{} {
	return m.edge.wait()
}

// Fire delivers n ticks and returns how many were delivered. A stopped timer
// delivers none.
func (m *Manual) Fire(n int) int {
	fired := 0
	for i := 0; i < n; i++ {
		m.mu.Lock()
		if !m.running {
			m.mu.Unlock()
			break
		}
		m.count++
		handler := m.handler
		m.mu.Unlock()

		if handler != nil {
			handler()
		}
		m.edge.fire()
		fired++
	}
	return fired
}
