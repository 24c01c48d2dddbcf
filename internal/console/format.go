// internal/console/format.go

package console

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxText bounds the bytes a single %s conversion may emit.
const MaxText = 256

// Sprintf formats like the firmware printf: %d, %x, %s, %c and %%.
// Unknown conversions are emitted literally and missing arguments print nothing.
func Sprintf(format string, args ...any) string {
	var b strings.Builder
	next := 0
	arg := func() (any, bool) {
		if next >= len(args) {
			return nil, false
		}
		v := args[next]
		next++
		return v, true
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)
			continue
		}
		i++
		switch verb := format[i]; verb {
		case 'd':
			if v, ok := arg(); ok {
				b.WriteString(decimal(v))
			}
		case 'x':
			if v, ok := arg(); ok {
				b.WriteString(hex(v))
			}
		case 's':
			if v, ok := arg(); ok {
				s := text(v)
				if len(s) > MaxText {
					s = s[:MaxText]
				}
				b.WriteString(s)
			}
		case 'c':
			if v, ok := arg(); ok {
				b.WriteString(char(v))
			}
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(verb)
		}
	}
	return b.String()
}

func decimal(v any) string {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10)
	case int8:
		return strconv.FormatInt(int64(n), 10)
	case int16:
		return strconv.FormatInt(int64(n), 10)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint:
		return strconv.FormatUint(uint64(n), 10)
	case uint8:
		return strconv.FormatUint(uint64(n), 10)
	case uint16:
		return strconv.FormatUint(uint64(n), 10)
	case uint32:
		return strconv.FormatUint(uint64(n), 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	case uintptr:
		return strconv.FormatUint(uint64(n), 10)
	default:
		return fmt.Sprint(v)
	}
}

// hex prints negative 32-bit values as their two's complement word.
func hex(v any) string {
	switch n := v.(type) {
	case int:
		return signedHex(int64(n))
	case int8:
		return signedHex(int64(n))
	case int16:
		return signedHex(int64(n))
	case int32:
		return signedHex(int64(n))
	case int64:
		return signedHex(n)
	case uint:
		return strconv.FormatUint(uint64(n), 16)
	case uint8:
		return strconv.FormatUint(uint64(n), 16)
	case uint16:
		return strconv.FormatUint(uint64(n), 16)
	case uint32:
		return strconv.FormatUint(uint64(n), 16)
	case uint64:
		return strconv.FormatUint(n, 16)
	case uintptr:
		return strconv.FormatUint(uint64(n), 16)
	default:
		return fmt.Sprintf("%x", v)
	}
}

func signedHex(n int64) string {
	if n < 0 && n >= -1<<31 {
		return strconv.FormatUint(uint64(uint32(n)), 16)
	}
	if n < 0 {
		return strconv.FormatUint(uint64(n), 16)
	}
	return strconv.FormatInt(n, 16)
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func char(v any) string {
	switch c := v.(type) {
	case rune:
		return string(c)
	case byte:
		return string(rune(c))
	case int:
		return string(rune(c))
	case string:
		if c == "" {
			return ""
		}
		return c[:1]
	default:
		return ""
	}
}
