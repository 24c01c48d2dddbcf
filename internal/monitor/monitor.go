// Package monitor is a live terminal view of a running kernel: the task
// table, tick count, arena usage and the tail of the console.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nucleus/internal/kernel"
)

const refreshEvery = 100 * time.Millisecond

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	stateStyles = map[kernel.State]lipgloss.Style{
		kernel.StateRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		kernel.StateReady:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		kernel.StateSleeping:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		kernel.StateSuspended: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

type refreshMsg time.Time

type model struct {
	k     *kernel.Kernel
	con   *Console
	tasks []kernel.TaskInfo
	ticks uint64
	err   error
}

func newModel(k *kernel.Kernel, con *Console) model {
	return model{k: k, con: con}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m model) Init() tea.Cmd { return refresh() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case refreshMsg:
		m.tasks = m.k.Snapshot()
		m.ticks = m.k.Ticks()
		if err := m.k.Err(); err != nil {
			m.err = err
			return m, tea.Quit
		}
		return m, refresh()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	capacity, high, inUse := m.k.ArenaUsage()
	b.WriteString(titleStyle.Render(fmt.Sprintf("nucleus v%s", kernel.Version)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  tick %d  arena %d/%d (high %d)  session %s",
		m.ticks, inUse, capacity, high, m.k.Session())))
	b.WriteString("\n\n")
	b.WriteString(RenderTasks(m.tasks))
	b.WriteString("\n")
	for _, line := range m.con.Tail(10) {
		b.WriteString(dimStyle.Render(line))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("q to quit"))
	return b.String()
}

// RenderTasks formats the task table.
func RenderTasks(tasks []kernel.TaskInfo) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %-15s %-9s %-8s %8s %8s %7s %7s",
		"ID", "NAME", "STATE", "PRIO", "SWITCHES", "RUNTIME", "WAKEUPS", "WAKE")))
	b.WriteString("\n")
	for _, t := range tasks {
		state := fmt.Sprintf("%-9s", t.State)
		if st, ok := stateStyles[t.State]; ok {
			state = st.Render(state)
		}
		wake := "-"
		if t.State == kernel.StateSleeping {
			wake = fmt.Sprint(t.WakeTime)
		}
		fmt.Fprintf(&b, "%-4d %-15s %s %-8s %8d %8d %7d %7s\n",
			t.ID, t.Name, state, t.Priority, t.ContextSwitches, t.TotalRuntime, t.Wakeups, wake)
	}
	return b.String()
}

// Run shows the monitor until the user quits, ctx ends or the kernel stops.
func Run(ctx context.Context, k *kernel.Kernel, con *Console) error {
	p := tea.NewProgram(newModel(k, con), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil {
		return nil
	}
	return err
}
