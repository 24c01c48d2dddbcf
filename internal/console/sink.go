// internal/console/sink.go

package console

import (
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Sink is the diagnostic console the kernel writes to. Writes are best effort.
type Sink interface {
	WriteLine(text string)
	Printf(format string, args ...any)
}

// UART is a Sink over any byte stream: a serial port, a terminal, a buffer.
type UART struct {
	mu   sync.Mutex
	w    io.Writer
	crlf bool // convert LF to CRLF like the firmware driver
}

// NewUART wraps w. With crlf set every '\n' goes out as "\n\r".
func NewUART(w io.Writer, crlf bool) *UART {
	return &UART{w: w, crlf: crlf}
}

// WriteLine writes text followed by a newline.
func (u *UART) WriteLine(text string) {
	u.put(text + "\n")
}

// Printf writes a formatted string; no newline is appended.
func (u *UART) Printf(format string, args ...any) {
	u.put(Sprintf(format, args...))
}

func (u *UART) put(s string) {
	if u.crlf {
		s = strings.ReplaceAll(s, "\n", "\n\r")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	// Best effort: a failed write on the console is not the kernel's problem.
	_, _ = io.WriteString(u.w, s)
}

// Discard drops everything written to it.
var Discard Sink = NewUART(io.Discard, false)

// OpenSerial opens a serial device (8N1) and returns a UART writing to it.
// The returned closer releases the port.
func OpenSerial(port string, baud int) (*UART, io.Closer, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, nil, err
	}
	return NewUART(p, true), p, nil
}
