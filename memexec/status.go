//go:build linux

package memexec

import (
	"fmt"

	apperrors "github.com/kbukum/memexec/errors"
	"golang.org/x/sys/unix"
)

// ExitStatus wraps a raw wait status. Every accessor decodes the raw word
// on each call.
type ExitStatus struct {
	raw int
}

// ExitStatusFromRaw wraps a raw wait(2) status word.
func ExitStatusFromRaw(raw int) ExitStatus { return ExitStatus{raw: raw} }

func (s ExitStatus) ws() unix.WaitStatus { return unix.WaitStatus(uint32(s.raw)) }

// Raw returns the wait status word.
func (s ExitStatus) Raw() int { return s.raw }

// Exited reports a normal exit.
func (s ExitStatus) Exited() bool { return s.ws().Exited() }

// Success reports a normal exit with code 0.
func (s ExitStatus) Success() bool { return s.Exited() && s.ws().ExitStatus() == 0 }

// Code returns the exit code, or false when the process did not exit normally.
func (s ExitStatus) Code() (int, bool) {
	if !s.Exited() {
		return 0, false
	}
	return s.ws().ExitStatus(), true
}

// Signaled reports termination by a signal.
func (s ExitStatus) Signaled() bool { return s.ws().Signaled() }

// Signal returns the terminating signal.
func (s ExitStatus) Signal() (unix.Signal, bool) {
	if !s.Signaled() {
		return 0, false
	}
	return s.ws().Signal(), true
}

// CoreDumped reports whether a terminating signal produced a core dump.
func (s ExitStatus) CoreDumped() bool { return s.Signaled() && s.ws().CoreDump() }

// Stopped reports whether the process is stopped.
func (s ExitStatus) Stopped() bool { return s.ws().Stopped() }

// StopSignal returns the signal that stopped the process.
func (s ExitStatus) StopSignal() (unix.Signal, bool) {
	if !s.Stopped() {
		return 0, false
	}
	return s.ws().StopSignal(), true
}

// Continued reports whether the process was resumed by SIGCONT.
func (s ExitStatus) Continued() bool { return s.ws().Continued() }

// ExitOK returns nil for a successful exit and a NON_ZERO_EXIT error otherwise.
func (s ExitStatus) ExitOK() error {
	if s.Success() {
		return nil
	}
	return apperrors.New(apperrors.ErrCodeNonZeroExit, s.String()).WithDetail("status", s.raw)
}

func (s ExitStatus) String() string {
	if code, ok := s.Code(); ok {
		return fmt.Sprintf("exit status: %d", code)
	}
	if sig, ok := s.Signal(); ok {
		if s.CoreDumped() {
			return fmt.Sprintf("signal: %d (%s) (core dumped)", int(sig), unix.SignalName(sig))
		}
		return fmt.Sprintf("signal: %d (%s)", int(sig), unix.SignalName(sig))
	}
	if sig, ok := s.StopSignal(); ok {
		return fmt.Sprintf("stopped (not terminated) by signal: %d (%s)", int(sig), unix.SignalName(sig))
	}
	if s.Continued() {
		return "continued (WIFCONTINUED)"
	}
	return fmt.Sprintf("unrecognised wait status: %d %#x", s.raw, s.raw)
}
