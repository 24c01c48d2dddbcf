package kernel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
tick_hz: 20000
preemptive: true
arena_size: 32KB
min_stack: 1KB
max_stack: 4096
sleep_anchor: deadline
reclaim_stacks: true
console:
  port: /dev/ttyUSB0
timer:
  backend: manual
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, uint32(10000), cfg.TickHz)
	require.True(t, cfg.Preemptive)
	require.Equal(t, Size(32*1024), cfg.ArenaSize)
	require.Equal(t, Size(1024), cfg.MinStack)
	require.Equal(t, Size(4096), cfg.MaxStack)
	require.Equal(t, Size(1024), cfg.DefaultStack)
	require.Equal(t, Size(1024), cfg.IdleStack)
	require.Equal(t, AnchorDeadline, cfg.SleepAnchor)
	require.True(t, cfg.ReclaimStacks)
	require.Equal(t, "/dev/ttyUSB0", cfg.Console.Port)
	require.Equal(t, 115200, cfg.Console.Baud)
	require.Equal(t, "manual", cfg.Timer.Backend)
	require.Equal(t, "interrupt", cfg.Timer.Wait)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "tick_hz: [oops\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "arena_size: plenty\n"))
	require.Error(t, err)
}

func TestSanitizedClampsNonsense(t *testing.T) {
	cfg := Config{SleepAnchor: "sometime", MinStack: 16, MaxStack: 8, IdleStack: 1}.sanitized()
	d := DefaultConfig()
	require.Equal(t, d.TickHz, cfg.TickHz)
	require.Equal(t, d.MinStack, cfg.MinStack)
	require.Equal(t, d.MaxStack, cfg.MaxStack)
	require.Equal(t, d.MinStack, cfg.IdleStack)
	require.Equal(t, AnchorTick, cfg.SleepAnchor)
	require.Equal(t, d.EventBuffer, cfg.EventBuffer)
	require.Equal(t, d.MaxTasks, cfg.MaxTasks)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
		ok   bool
	}{
		{"2048", 2048, true},
		{"512B", 512, true},
		{"1KB", 1024, true},
		{"32KB", 32768, true},
		{"1MB", 1 << 20, true},
		{"lots", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if !tt.ok {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}
