package errors

import (
	stderrors "errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// AppError is the error type returned by every launcher package. Code
// classifies the failure; Cause keeps the wrapped errno or library error.
type AppError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes Cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause replaces Cause.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails copies details into e.Details, overwriting existing keys.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets one detail.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New returns an AppError whose Retryable flag follows the code's default.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Spawn errors ---

// SpawnSetup creates an error for a failed pre-fork step such as opening
// /dev/null or duplicating a descriptor.
func SpawnSetup(op string, cause error) *AppError {
	e := &AppError{
		Code: ErrCodeSpawnSetup, Message: fmt.Sprintf("spawn setup failed during %s", op),
		Details: map[string]any{"op": op}, Cause: cause,
	}
	if errno, ok := Errno(cause); ok {
		e.Details["errno"] = int(errno)
		e.Retryable = IsTransientErrno(errno)
	}
	return e
}

// ForkFailed creates an error for a failed fork. No child exists.
func ForkFailed(cause error) *AppError {
	e := &AppError{
		Code: ErrCodeForkFailed, Message: "fork failed",
		Retryable: true, Cause: cause,
	}
	if errno, ok := Errno(cause); ok {
		e.Details = map[string]any{"errno": int(errno)}
	}
	return e
}

// ExecFailed creates an error for a failure reported by the child through
// the control pipe. The errno is preserved unmodified as the cause.
func ExecFailed(program string, errno unix.Errno) *AppError {
	return &AppError{
		Code: ErrCodeExecFailed, Message: fmt.Sprintf("failed to execute %s", program),
		Retryable: IsTransientErrno(errno),
		Details:   map[string]any{"program": program, "errno": int(errno)},
		Cause:     errno,
	}
}

// --- Validation errors ---

// InvalidInput reports a rejected argument. The cause is EINVAL so callers
// matching on errno see the same value the kernel would have returned.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details, Cause: unix.EINVAL,
	}
}

// Validation reports failed checks over a whole struct; the field list
// travels in Details.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// --- Post-spawn errors ---

// ProcessReaped creates the error returned when signalling a process whose
// exit status was already collected; its pid may belong to someone else now.
func ProcessReaped(pid int) *AppError {
	return &AppError{
		Code: ErrCodeProcessReaped, Message: "cannot signal a reaped process",
		Details: map[string]any{"pid": pid}, Cause: unix.EINVAL,
	}
}

// WaitFailed creates an error for a failed waitid/wait4.
func WaitFailed(pid int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeWaitFailed, Message: fmt.Sprintf("wait for pid %d failed", pid),
		Details: map[string]any{"pid": pid}, Cause: cause,
	}
}

// SignalFailed creates an error for a failed kill(2).
func SignalFailed(pid int, sig unix.Signal, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSignalFailed, Message: fmt.Sprintf("sending %s to pid %d failed", unix.SignalName(sig), pid),
		Details: map[string]any{"pid": pid, "signal": int(sig)}, Cause: cause,
	}
}

// IOFailed creates an error for a failed read or write on a child stream.
func IOFailed(stream string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeIOFailed, Message: fmt.Sprintf("i/o on %s failed", stream),
		Details: map[string]any{"stream": stream}, Cause: cause,
	}
}

// NonZeroExit creates an error for a child that did not exit successfully.
func NonZeroExit(program, status string) *AppError {
	return &AppError{
		Code: ErrCodeNonZeroExit, Message: fmt.Sprintf("%s %s", program, status),
		Details: map[string]any{"program": program, "status": status},
	}
}

// --- Runner errors ---

// Timeout reports a run stopped by its context.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s was stopped by its context", operation),
		Details: map[string]any{"operation": operation},
	}
}

// CircuitOpen creates the error returned when the crash breaker rejects a run.
func CircuitOpen(name string) *AppError {
	return &AppError{
		Code: ErrCodeCircuitOpen, Message: fmt.Sprintf("crash breaker %s is open", name),
		Retryable: true, Details: map[string]any{"breaker": name},
	}
}

// --- Inspection helpers ---

// IsAppError reports whether err's chain holds an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsRetryable reports whether err is an AppError marked retryable.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable
}

// Errno extracts the raw OS error number from err's chain.
func Errno(err error) (unix.Errno, bool) {
	var errno unix.Errno
	if stderrors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
