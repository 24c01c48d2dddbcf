package kernel

import "errors"

var (
	// ErrInvalidParameters rejects a bad name, entry point, priority or stack size.
	ErrInvalidParameters = errors.New("invalid task parameters")
	// ErrInvalidSize is the arena's rejection of a size outside the stack policy.
	ErrInvalidSize = errors.New("stack size out of range")
	// ErrOutOfMemory means the stack arena is exhausted.
	ErrOutOfMemory = errors.New("stack arena exhausted")
	// ErrUnknownHandle is reported by queries; lifecycle operations treat it as a no-op.
	ErrUnknownHandle = errors.New("unknown task handle")

	// ErrSchedulingUnavailable is fatal: nothing is Ready and there is no idle task.
	ErrSchedulingUnavailable = errors.New("no task ready to run")
	// ErrStackCorrupted is fatal: a saved context or stack canary failed its check.
	ErrStackCorrupted = errors.New("task stack corrupted")
	// ErrIllegalTransition is fatal: a task state change outside the state machine.
	ErrIllegalTransition = errors.New("illegal task state transition")

	ErrHalted         = errors.New("kernel halted")
	ErrStopped        = errors.New("kernel stopped")
	ErrAlreadyStarted = errors.New("kernel already started")
	ErrNoIdleTask     = errors.New("kernel has no idle task")
	ErrNotStarted     = errors.New("kernel not started")
)
