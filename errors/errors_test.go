package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestAppError_New_Retryable(t *testing.T) {
	if !New(ErrCodeForkFailed, "fork").Retryable {
		t.Error("FORK_FAILED should be retryable")
	}
	if New(ErrCodeTimeout, "timed out").Retryable {
		t.Error("TIMEOUT should not be retryable")
	}
	if New(ErrCodeInvalidInput, "bad").Retryable {
		t.Error("INVALID_INPUT should not be retryable")
	}
}

func TestAppError_Error_WithCause(t *testing.T) {
	err := New(ErrCodeIOFailed, "read failed").WithCause(fmt.Errorf("boom"))
	msg := err.Error()
	if !strings.Contains(msg, "IO_FAILED") || !strings.Contains(msg, "cause: boom") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestAppError_Error_NoCause(t *testing.T) {
	err := New(ErrCodeInternal, "oops")
	if got := err.Error(); got != "INTERNAL_ERROR: oops" {
		t.Errorf("got %q", got)
	}
}

func TestExecFailed_PreservesErrno(t *testing.T) {
	err := ExecFailed("tool", unix.ENOEXEC)
	if !stderrors.Is(err, unix.ENOEXEC) {
		t.Fatal("expected errors.Is to find ENOEXEC")
	}
	errno, ok := Errno(fmt.Errorf("wrapped: %w", err))
	if !ok || errno != unix.ENOEXEC {
		t.Fatalf("expected ENOEXEC, got %v (%v)", errno, ok)
	}
	if err.Details["errno"] != int(unix.ENOEXEC) {
		t.Errorf("expected errno detail, got %v", err.Details["errno"])
	}
	if err.Retryable {
		t.Error("ENOEXEC should not be retryable")
	}
}

func TestExecFailed_TransientRetryable(t *testing.T) {
	if !ExecFailed("tool", unix.ETXTBSY).Retryable {
		t.Error("ETXTBSY should be retryable")
	}
}

func TestSpawnSetup_Details(t *testing.T) {
	err := SpawnSetup("open /dev/null", unix.EMFILE)
	if err.Details["op"] != "open /dev/null" {
		t.Errorf("expected op detail, got %v", err.Details["op"])
	}
	if !err.Retryable {
		t.Error("EMFILE should be retryable")
	}
}

func TestInvalidInput_IsEINVAL(t *testing.T) {
	err := InvalidInput("argv", "contains NUL byte")
	if !stderrors.Is(err, unix.EINVAL) {
		t.Error("invalid input should unwrap to EINVAL")
	}
	if err.Details["field"] != "argv" {
		t.Errorf("expected field detail, got %v", err.Details["field"])
	}
	if len(InvalidInput("", "x").Details) != 0 {
		t.Error("expected no field detail when field is empty")
	}
}

func TestProcessReaped(t *testing.T) {
	err := ProcessReaped(1234)
	if !IsCode(err, ErrCodeProcessReaped) {
		t.Fatalf("expected PROCESS_REAPED, got %v", err)
	}
	if !stderrors.Is(err, unix.EINVAL) {
		t.Error("expected EINVAL cause")
	}
}

func TestSignalFailed_Message(t *testing.T) {
	err := SignalFailed(10, unix.SIGTERM, unix.ESRCH)
	if !strings.Contains(err.Error(), "SIGTERM") {
		t.Errorf("expected signal name in %q", err.Error())
	}
}

func TestAsAppError_Wrapped(t *testing.T) {
	base := WaitFailed(5, unix.ECHILD)
	wrapped := fmt.Errorf("outer: %w", base)
	got, ok := AsAppError(wrapped)
	if !ok || got != base {
		t.Fatal("expected to unwrap AppError")
	}
	if !IsAppError(wrapped) {
		t.Error("IsAppError should be true")
	}
	if IsAppError(fmt.Errorf("plain")) {
		t.Error("IsAppError should be false for plain errors")
	}
	if _, ok := AsAppError(nil); ok {
		t.Error("nil is not an AppError")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(CircuitOpen("crash")) {
		t.Error("circuit open should be retryable")
	}
	if IsRetryable(NonZeroExit("tool", "exit status: 1")) {
		t.Error("non-zero exit should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain error should not be retryable")
	}
}

func TestWithDetails_Merge(t *testing.T) {
	err := New(ErrCodeInternal, "x").WithDetail("a", 1).WithDetails(map[string]any{"b": 2})
	if err.Details["a"] != 1 || err.Details["b"] != 2 {
		t.Errorf("unexpected details %v", err.Details)
	}
}
