package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSprintfConversions(t *testing.T) {
	cases := []struct {
		name   string
		format string
		args   []any
		want   string
	}{
		{"decimal", "Counter = %d", []any{42}, "Counter = 42"},
		{"negative decimal", "%d", []any{-7}, "-7"},
		{"hex", "0x%x", []any{uint32(0xFFFFFFFD)}, "0xfffffffd"},
		{"negative hex", "%x", []any{-1}, "ffffffff"},
		{"string", "Task '%s' created", []any{"DemoTask1"}, "Task 'DemoTask1' created"},
		{"char", "[%c]", []any{'A'}, "[A]"},
		{"percent", "100%%", nil, "100%"},
		{"unknown passes through", "%q%d", []any{3}, "%q3"},
		{"trailing percent", "50%", nil, "50%"},
		{"missing argument", "%d and %s", []any{1}, "1 and "},
		{"mixed", "Task '%s' created (ID: %d, Priority: %d)", []any{"A", uint32(2), 2}, "Task 'A' created (ID: 2, Priority: 2)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Sprintf(tc.format, tc.args...))
		})
	}
}

func TestSprintfBoundsText(t *testing.T) {
	long := strings.Repeat("x", MaxText+40)
	require.Len(t, Sprintf("%s", long), MaxText)
}

func TestUARTLineEndings(t *testing.T) {
	var raw, crlf bytes.Buffer

	NewUART(&raw, false).WriteLine("Timer started")
	require.Equal(t, "Timer started\n", raw.String())

	u := NewUART(&crlf, true)
	u.Printf("Demo Task %d: Counter = %d\n", 1, 0)
	require.Equal(t, "Demo Task 1: Counter = 0\n\r", crlf.String())
}
