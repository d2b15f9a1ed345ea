//go:build linux

package memexec

import (
	"sync"

	apperrors "github.com/kbukum/memexec/errors"
	"github.com/kbukum/memexec/logger"
	"golang.org/x/sys/unix"
)

// Process is a spawned child and its cached exit status. It is safe for
// concurrent use; Kill may race with Wait.
type Process struct {
	pid int
	log *logger.Logger

	// mu guards status. Reaping holds it exclusively so no signal can be
	// sent to a pid that has already been released.
	mu     sync.RWMutex
	status *ExitStatus
}

func newProcess(pid int, log *logger.Logger) *Process {
	return &Process{pid: pid, log: log}
}

// ID returns the process id.
func (p *Process) ID() int { return p.pid }

func (p *Process) cached() (ExitStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.status == nil {
		return ExitStatus{}, false
	}
	return *p.status, true
}

// Wait blocks until the process exits and returns its status. Later calls
// return the cached status without another wait.
func (p *Process) Wait() (ExitStatus, error) {
	if st, ok := p.cached(); ok {
		return st, nil
	}

	// Wait for the exit without reaping, so Kill stays safe meanwhile.
	for {
		var info unix.Siginfo
		err := unix.Waitid(unix.P_PID, p.pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == unix.EINTR {
			continue
		}
		if err == unix.ECHILD {
			// Reaped by a concurrent TryWait.
			if st, ok := p.cached(); ok {
				return st, nil
			}
		}
		if err != nil {
			return ExitStatus{}, apperrors.WaitFailed(p.pid, err)
		}
		break
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	st, _, err := p.reapLocked(0)
	return st, err
}

// TryWait returns the status if the process has exited, without blocking.
func (p *Process) TryWait() (ExitStatus, bool, error) {
	if st, ok := p.cached(); ok {
		return st, true, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reapLocked(unix.WNOHANG)
}

func (p *Process) reapLocked(options int) (ExitStatus, bool, error) {
	if p.status != nil {
		return *p.status, true, nil
	}
	var ws unix.WaitStatus
	for {
		pid, err := unix.Wait4(p.pid, &ws, options, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ExitStatus{}, false, apperrors.WaitFailed(p.pid, err)
		}
		if pid == 0 {
			return ExitStatus{}, false, nil
		}
		break
	}
	st := ExitStatus{raw: int(ws)}
	p.status = &st
	p.log.Debug("reaped", logger.Fields(logger.FieldPID, p.pid, logger.FieldStatus, st.String()))
	return st, true, nil
}

// Kill sends SIGKILL. It fails without signalling once the status has been
// collected, since the pid may belong to another process by then.
func (p *Process) Kill() error { return p.Signal(unix.SIGKILL) }

// Signal sends sig under the same rule as Kill.
func (p *Process) Signal(sig unix.Signal) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.status != nil {
		return apperrors.ProcessReaped(p.pid)
	}
	for {
		err := unix.Kill(p.pid, sig)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return apperrors.SignalFailed(p.pid, sig, err)
		}
		return nil
	}
}
