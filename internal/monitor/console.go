package monitor

import (
	"strings"
	"sync"

	"nucleus/internal/console"
)

// Console is a console.Sink that keeps the last lines written to it for the
// monitor's output pane.
type Console struct {
	mu      sync.Mutex
	lines   []string
	partial string
	max     int
}

func NewConsole(maxLines int) *Console {
	if maxLines <= 0 {
		maxLines = 200
	}
	return &Console{max: maxLines}
}

func (c *Console) WriteLine(text string) { c.write(text + "\n") }

func (c *Console) Printf(format string, args ...any) { c.write(console.Sprintf(format, args...)) }

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s = c.partial + s
	parts := strings.Split(s, "\n")
	c.partial = parts[len(parts)-1]
	c.lines = append(c.lines, parts[:len(parts)-1]...)
	if over := len(c.lines) - c.max; over > 0 {
		c.lines = c.lines[over:]
	}
}

// Tail returns up to n of the most recent complete lines.
func (c *Console) Tail(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.lines) {
		n = len(c.lines)
	}
	out := make([]string, n)
	copy(out, c.lines[len(c.lines)-n:])
	return out
}
