package errors

import "golang.org/x/sys/unix"

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Spawn errors, raised before or while a child is being created.
const (
	// ErrCodeSpawnSetup indicates stdio routing, descriptor duplication,
	// null-device open or control-pipe creation failed. No process exists.
	ErrCodeSpawnSetup ErrorCode = "SPAWN_SETUP"
	// ErrCodeForkFailed indicates the fork itself failed. No process exists.
	ErrCodeForkFailed ErrorCode = "FORK_FAILED"
	// ErrCodeExecFailed indicates the child reported a failure before its
	// image was replaced. The child has been reaped.
	ErrCodeExecFailed ErrorCode = "EXEC_FAILED"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid (NUL bytes, empty image).
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Post-spawn errors
const (
	// ErrCodeProcessReaped indicates a signal was requested for a process
	// whose status has already been collected.
	ErrCodeProcessReaped ErrorCode = "PROCESS_REAPED"
	// ErrCodeWaitFailed indicates waitid/wait4 failed.
	ErrCodeWaitFailed ErrorCode = "WAIT_FAILED"
	// ErrCodeSignalFailed indicates kill(2) failed.
	ErrCodeSignalFailed ErrorCode = "SIGNAL_FAILED"
	// ErrCodeIOFailed indicates a read or write on a child stream failed.
	ErrCodeIOFailed ErrorCode = "IO_FAILED"
	// ErrCodeNonZeroExit indicates the child ran but did not exit successfully.
	ErrCodeNonZeroExit ErrorCode = "NON_ZERO_EXIT"
)

// Runner errors
const (
	// ErrCodeTimeout indicates the run was stopped by its context.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeCircuitOpen indicates the crash breaker rejected the run.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrCodeInternal labels failures that carry no AppError.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeForkFailed:  true,
	ErrCodeCircuitOpen: true,
	ErrCodeTimeout:     false,
	ErrCodeInternal:    false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
// EXEC_FAILED is decided per errno, see IsTransientErrno.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// transientErrnos are resource-pressure conditions that may clear on their own.
var transientErrnos = map[unix.Errno]bool{
	unix.EAGAIN:  true,
	unix.ENOMEM:  true,
	unix.ETXTBSY: true,
	unix.EMFILE:  true,
	unix.ENFILE:  true,
	unix.EINTR:   true,
}

// IsTransientErrno reports whether a spawn that failed with errno may succeed
// when attempted again.
func IsTransientErrno(errno unix.Errno) bool {
	return transientErrnos[errno]
}
