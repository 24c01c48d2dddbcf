package kernel

import (
	"fmt"
	"reflect"
)

// TaskID uniquely identifies a task within a boot session. IDs start at 1 and
// are never reused.
type TaskID uint32

// State is a task's position in the lifecycle state machine.
type State int

const (
	StateInvalid State = iota
	StateReady
	StateRunning
	StateBlocked
	StateSleeping
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "Invalid"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateBlocked:
		return "Blocked"
	case StateSleeping:
		return "Sleeping"
	case StateSuspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// Priority orders Ready tasks; a higher value is scheduled first.
type Priority int

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

const (
	MinPriority = PriorityIdle
	MaxPriority = PriorityCritical
)

func (p Priority) Valid() bool { return p >= MinPriority && p <= MaxPriority }

func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "Idle"
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

const (
	MaxNameLength    = 15 // visible characters kept from a task name
	DefaultTimeSlice = 10 // ticks
)

// Entry is a task body. It runs on its own goroutine, holds the CPU only
// between kernel calls made through tc, and is invoked exactly once.
type Entry func(tc *TaskContext)

// Handle names a task slot. A handle outlives its task: once the task is
// deleted the slot generation moves on and the handle resolves to nothing.
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether h is the zero handle, which never names a task.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string { return fmt.Sprintf("%d#%d", h.slot, h.gen) }

type signal int

const (
	sigRun signal = iota
	sigExit
)

// Task is the task control block.
type Task struct {
	ID       TaskID
	Name     string
	State    State
	Priority Priority
	Region   Region // stack, exclusively owned until the task dies

	Entry   Entry
	EntryPC uintptr // code address the initial frame resumes at

	WakeTime        uint64 // absolute tick; meaningful while Sleeping
	TimeSlice       uint32
	TimeUsed        uint32 // ticks spent in the current slice
	ContextSwitches uint32
	TotalRuntime    uint64 // ticks charged while Running
	Wakeups         uint32 // Sleeping -> Ready transitions

	sp           uint32 // arena offset of the saved register image
	frameSum     uint16 // checksum of the saved register image
	lastDispatch uint64 // dispatch sequence number; 0 = never dispatched
	handle       Handle
	started      bool
	resume       chan signal
}

// newTask builds a Ready TCB. The caller has validated every argument.
func newTask(id TaskID, name string, priority Priority, entry Entry, region Region) *Task {
	return &Task{
		ID:        id,
		Name:      truncateName(name),
		State:     StateReady,
		Priority:  priority,
		Region:    region,
		Entry:     entry,
		EntryPC:   reflect.ValueOf(entry).Pointer(),
		TimeSlice: DefaultTimeSlice,
		resume:    make(chan signal, 1),
	}
}

// truncateName keeps the first MaxNameLength characters of name, cutting on
// a rune boundary.
func truncateName(name string) string {
	n := 0
	for i := range name {
		if n == MaxNameLength {
			return name[:i]
		}
		n++
	}
	return name
}

// TaskInfo is a read-only snapshot of a TCB.
type TaskInfo struct {
	Handle          Handle
	ID              TaskID
	Name            string
	State           State
	Priority        Priority
	Region          Region
	StackPointer    uint32
	WakeTime        uint64
	TimeSlice       uint32
	TimeUsed        uint32
	ContextSwitches uint32
	TotalRuntime    uint64
	Wakeups         uint32
}

func (t *Task) info() TaskInfo {
	return TaskInfo{
		Handle:          t.handle,
		ID:              t.ID,
		Name:            t.Name,
		State:           t.State,
		Priority:        t.Priority,
		Region:          t.Region,
		StackPointer:    t.sp,
		WakeTime:        t.WakeTime,
		TimeSlice:       t.TimeSlice,
		TimeUsed:        t.TimeUsed,
		ContextSwitches: t.ContextSwitches,
		TotalRuntime:    t.TotalRuntime,
		Wakeups:         t.Wakeups,
	}
}
