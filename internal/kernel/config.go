package kernel

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	yaml "github.com/goccy/go-yaml"
	bytesize "github.com/inhies/go-bytesize"

	"nucleus/internal/timer"
)

// Sleep anchors.
const (
	AnchorTick     = "tick"     // wake = now + ticks
	AnchorDeadline = "deadline" // wake = previous wake + ticks, no drift
)

// Config mirrors config.yml
type Config struct {
	TickHz         uint32 `yaml:"tick_hz"`         // 1000 (by default)
	Preemptive     bool   `yaml:"preemptive"`      // false = cooperative
	SliceTicks     uint32 `yaml:"slice_ticks"`     // 10 (by default)
	ArenaSize      Size   `yaml:"arena_size"`      // 32KB (by default)
	MinStack       Size   `yaml:"min_stack"`       // 512B
	MaxStack       Size   `yaml:"max_stack"`       // 8KB
	DefaultStack   Size   `yaml:"default_stack"`   // 1KB
	ReclaimStacks  bool   `yaml:"reclaim_stacks"`  // free stacks on delete
	MaxTasks       int    `yaml:"max_tasks"`       // 32
	SleepAnchor    string `yaml:"sleep_anchor"`    // "tick" or "deadline"
	IdleTask       bool   `yaml:"idle_task"`       // create the idle task
	IdleStack      Size   `yaml:"idle_stack"`      // 512B
	EventBuffer    int    `yaml:"event_buffer"`    // 256
	HeartbeatTicks uint32 `yaml:"heartbeat_ticks"` // 0 disables the heartbeat line
	CSVLog         string `yaml:"csv_log"`         // empty = no CSV trace

	Console ConsoleConfig `yaml:"console"`
	Timer   TimerConfig   `yaml:"timer"`
}

type ConsoleConfig struct {
	Port string `yaml:"port"` // serial device; empty = stdout
	Baud int    `yaml:"baud"`
	CRLF bool   `yaml:"crlf"`
}

type TimerConfig struct {
	Backend string `yaml:"backend"` // "ticker" or "manual"
	Wait    string `yaml:"wait"`    // "interrupt" or "busy"
}

// DefaultConfig is what the firmware ran with.
func DefaultConfig() Config {
	return Config{
		TickHz:         timer.DefaultFrequencyHz,
		SliceTicks:     DefaultTimeSlice,
		ArenaSize:      32 * 1024,
		MinStack:       512,
		MaxStack:       8 * 1024,
		DefaultStack:   1024,
		MaxTasks:       DefaultMaxTasks,
		SleepAnchor:    AnchorTick,
		IdleTask:       true,
		IdleStack:      512,
		EventBuffer:    256,
		HeartbeatTicks: 1000,
		Console:        ConsoleConfig{Baud: 115200, CRLF: false},
		Timer:          TimerConfig{Backend: "ticker", Wait: "interrupt"},
	}
}

// Load reads YAML over the defaults. An empty path or a missing file yields
// the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.sanitized(), nil
}

// sanitized applies the sanity clamps.
func (c Config) sanitized() Config {
	d := DefaultConfig()
	c.TickHz = timer.ClampFrequency(c.TickHz)
	if c.SliceTicks == 0 {
		c.SliceTicks = d.SliceTicks
	}
	if c.ArenaSize == 0 {
		c.ArenaSize = d.ArenaSize
	}
	if c.MinStack < frameSize+8 {
		c.MinStack = d.MinStack
	}
	if c.MaxStack < c.MinStack {
		c.MaxStack = max(d.MaxStack, c.MinStack)
	}
	if c.DefaultStack < c.MinStack || c.DefaultStack > c.MaxStack {
		c.DefaultStack = min(max(d.DefaultStack, c.MinStack), c.MaxStack)
	}
	if c.IdleStack < c.MinStack || c.IdleStack > c.MaxStack {
		c.IdleStack = c.MinStack
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = d.MaxTasks
	}
	if c.SleepAnchor != AnchorTick && c.SleepAnchor != AnchorDeadline {
		c.SleepAnchor = AnchorTick
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.Console.Baud <= 0 {
		c.Console.Baud = d.Console.Baud
	}
	if c.Timer.Backend == "" {
		c.Timer.Backend = d.Timer.Backend
	}
	if c.Timer.Wait == "" {
		c.Timer.Wait = d.Timer.Wait
	}
	return c
}

// Size is a byte count that reads from YAML as 2048, "1KB" or "32KB".
type Size uint32

func (s *Size) UnmarshalYAML(b []byte) error {
	v := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	n, err := ParseSize(v)
	if err != nil {
		return err
	}
	*s = n
	return nil
}

func (s Size) String() string { return bytesize.New(float64(s)).String() }

// ParseSize accepts a plain byte count or a size with a unit (B, KB, MB).
func ParseSize(v string) (Size, error) {
	if n, err := strconv.ParseUint(v, 10, 32); err == nil {
		return Size(n), nil
	}
	b, err := bytesize.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", v, err)
	}
	if b < 0 || float64(b) > math.MaxUint32 {
		return 0, fmt.Errorf("size %q out of range", v)
	}
	return Size(uint64(b)), nil
}
