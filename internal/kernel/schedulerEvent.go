// internal/kernel/schedulerEvent.go

package kernel

// StatusKind represents the type of kernel event
type StatusKind int

const (
	StatusCreate StatusKind = iota
	StatusDelete
	StatusDispatch
	StatusPreempt
	StatusYield
	StatusSleep
	StatusWake
	StatusSuspend
	StatusResume
	StatusPriorityUpdate
	StatusHeartbeat
	StatusLog
	StatusHalt
)

// StatusEvent is queued on every lifecycle change. Events are produced inside
// the kernel critical section, including from tick context, and are consumed
// later; nothing is printed where the event happens.
type StatusEvent struct {
	Tick     uint64
	Kind     StatusKind
	TaskID   TaskID
	Name     string
	Priority Priority
	Arg      uint32 // ms for Sleep, previous task id for Dispatch
	Text     string // task output for Log, reason for Halt
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusCreate:
		return "Create"
	case StatusDelete:
		return "Delete"
	case StatusDispatch:
		return "Dispatch"
	case StatusPreempt:
		return "Preempt"
	case StatusYield:
		return "Yield"
	case StatusSleep:
		return "Sleep"
	case StatusWake:
		return "Wake"
	case StatusSuspend:
		return "Suspend"
	case StatusResume:
		return "Resume"
	case StatusPriorityUpdate:
		return "Priority"
	case StatusHeartbeat:
		return "Heartbeat"
	case StatusLog:
		return "Log"
	case StatusHalt:
		return "Halt"
	default:
		return "Unknown"
	}
}
