package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClampFrequency(t *testing.T) {
	require.Equal(t, DefaultFrequencyHz, ClampFrequency(0))
	require.Equal(t, uint32(250), ClampFrequency(250))
	require.Equal(t, MaxFrequencyHz, ClampFrequency(50000))

	m := NewManual(1000)
	require.Equal(t, MaxFrequencyHz, m.Configure(MaxFrequencyHz+1))
	require.Equal(t, MaxFrequencyHz, m.Frequency())
}

func TestManualFireRequiresStart(t *testing.T) {
	m := NewManual(1000)
	var seen int
	m.OnTick(func() { seen++ })

	require.Zero(t, m.Fire(5))
	m.Start()
	require.Equal(t, 3, m.Fire(3))
	m.Stop()
	require.Zero(t, m.Fire(3))

	require.Equal(t, 3, seen)
	require.Equal(t, uint32(3), m.ElapsedTicks())
}

func TestDelayStrategies(t *testing.T) {
	for _, strategy := range []WaitStrategy{WaitInterrupt, WaitBusy} {
		t.Run(strategy.String(), func(t *testing.T) {
			m := NewManual(1000)
			m.Start()

			done := make(chan struct{})
			go func() {
				Delay(m, 5, strategy)
				close(done)
			}()

			// Keep firing until the delay observes five ticks past its start.
			require.Eventually(t, func() bool {
				m.Fire(1)
				select {
				case <-done:
					return true
				default:
					return false
				}
			}, 2*time.Second, time.Millisecond)
			require.GreaterOrEqual(t, m.ElapsedTicks(), uint32(5))
		})
	}
}

func TestTickClockDeliversTicks(t *testing.T) {
	c := NewTickClock(MaxFrequencyHz)
	var n atomic.Int32
	c.OnTick(func() { n.Add(1) })
	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, time.Millisecond)
	require.GreaterOrEqual(t, c.ElapsedTicks(), uint32(3))
}

func TestParseWaitStrategy(t *testing.T) {
	require.Equal(t, WaitBusy, ParseWaitStrategy("busy"))
	require.Equal(t, WaitInterrupt, ParseWaitStrategy("interrupt"))
	require.Equal(t, WaitInterrupt, ParseWaitStrategy("bogus"))
}
