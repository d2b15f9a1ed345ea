// Package fdio provides owned raw file descriptors, close-on-exec pipes and
// a deadlock-free drain of two pipes at once.
//
// Operations return the raw unix.Errno on failure, unwrapped, so callers can
// compare against unix.EAGAIN and friends directly.
package fdio
