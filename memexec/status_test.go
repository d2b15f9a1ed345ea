//go:build linux

package memexec_test

import (
	"testing"

	apperrors "github.com/kbukum/memexec/errors"
	"github.com/kbukum/memexec/memexec"
	"golang.org/x/sys/unix"
)

func TestExitStatus_Decoding(t *testing.T) {
	tests := []struct {
		name       string
		raw        int
		exited     bool
		code       int
		signaled   bool
		signal     unix.Signal
		core       bool
		stopped    bool
		stopSignal unix.Signal
		continued  bool
		str        string
	}{
		{name: "success", raw: 0, exited: true, code: 0, str: "exit status: 0"},
		{name: "exit 42", raw: 42 << 8, exited: true, code: 42, str: "exit status: 42"},
		{name: "killed", raw: int(unix.SIGKILL), signaled: true, signal: unix.SIGKILL, str: "signal: 9 (SIGKILL)"},
		{name: "segv core", raw: int(unix.SIGSEGV) | 0x80, signaled: true, signal: unix.SIGSEGV, core: true, str: "signal: 11 (SIGSEGV) (core dumped)"},
		{name: "stopped", raw: int(unix.SIGSTOP)<<8 | 0x7f, stopped: true, stopSignal: unix.SIGSTOP, str: "stopped (not terminated) by signal: 19 (SIGSTOP)"},
		{name: "continued", raw: 0xffff, continued: true, str: "continued (WIFCONTINUED)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memexec.ExitStatusFromRaw(tt.raw)
			if st.Raw() != tt.raw {
				t.Errorf("Raw() = %d", st.Raw())
			}
			if st.Exited() != tt.exited {
				t.Errorf("Exited() = %v", st.Exited())
			}
			code, ok := st.Code()
			if ok != tt.exited || (ok && code != tt.code) {
				t.Errorf("Code() = (%d, %v)", code, ok)
			}
			sig, ok := st.Signal()
			if ok != tt.signaled || (ok && sig != tt.signal) {
				t.Errorf("Signal() = (%v, %v)", sig, ok)
			}
			if st.CoreDumped() != tt.core {
				t.Errorf("CoreDumped() = %v", st.CoreDumped())
			}
			ssig, ok := st.StopSignal()
			if st.Stopped() != tt.stopped || ok != tt.stopped || (ok && ssig != tt.stopSignal) {
				t.Errorf("StopSignal() = (%v, %v)", ssig, ok)
			}
			if st.Continued() != tt.continued {
				t.Errorf("Continued() = %v", st.Continued())
			}
			if st.String() != tt.str {
				t.Errorf("String() = %q, want %q", st.String(), tt.str)
			}
			if st.Success() != (tt.exited && tt.code == 0) {
				t.Errorf("Success() = %v", st.Success())
			}
		})
	}
}

func TestExitStatus_ExitOK(t *testing.T) {
	if err := memexec.ExitStatusFromRaw(0).ExitOK(); err != nil {
		t.Fatalf("success: %v", err)
	}
	err := memexec.ExitStatusFromRaw(1 << 8).ExitOK()
	if !apperrors.IsCode(err, apperrors.ErrCodeNonZeroExit) {
		t.Fatalf("expected NON_ZERO_EXIT, got %v", err)
	}
}
