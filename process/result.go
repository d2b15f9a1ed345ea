//go:build linux

package process

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/kbukum/memexec/memexec"
)

// Result holds the output and status of a completed run.
type Result struct {
	RunID string
	PID   int
	// Stdout and Stderr are captured in full.
	Stdout []byte
	Stderr []byte
	// ExitCode is -1 when a signal terminated the child.
	ExitCode int
	// Signal names the terminating signal, if any.
	Signal   string
	Duration time.Duration
	Status   memexec.ExitStatus
}

func newResult(runID string, pid int, out *memexec.Output, d time.Duration) *Result {
	r := &Result{
		RunID:    runID,
		PID:      pid,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: -1,
		Duration: d,
		Status:   out.Status,
	}
	if code, ok := out.Status.Code(); ok {
		r.ExitCode = code
	}
	if sig, ok := out.Status.Signal(); ok {
		r.Signal = unix.SignalName(sig)
	}
	return r
}

// Success reports whether the child exited with status zero.
func (r *Result) Success() bool {
	return r.Status.Success()
}
