// Package errors provides the structured error type used across memexec.
//
// Spawn-time failures carry one of SPAWN_SETUP, FORK_FAILED or EXEC_FAILED,
// post-spawn failures WAIT_FAILED, SIGNAL_FAILED, PROCESS_REAPED or IO_FAILED.
// The raw errno stays in the cause chain:
//
//	_, err := memexec.New("tool", image).Spawn()
//	if errors.Is(err, unix.ENOEXEC) {
//	    // not an executable image
//	}
package errors
