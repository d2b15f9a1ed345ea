//go:build linux

package memexec

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Control pipe record: big-endian errno followed by this marker.
const (
	controlRecordLen = 8
	controlFooter    = "NOEX"
)

// Kernel sigset size for rt_sigprocmask and rt_sigaction.
const (
	kernelSigsetSize = 8
	sigSetmask       = 2
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// forkArgs is everything the child needs, prepared before the fork so the
// child never allocates.
type forkArgs struct {
	stdio [3]int // -1 leaves the slot alone
	dir   *byte
	name  *byte
	empty *byte
	image []byte
	argv  []*byte
	envp  []*byte
	ctl   int

	emptySet uint64
	dflAct   [4]uint64 // zeroed kernel sigaction: SIG_DFL, no flags, empty mask
	record   [controlRecordLen]byte
}

//go:noinline
func newForkArgs(image []byte, name string, argv, envp []string, dir *string, stdio [3]int, ctl int) *forkArgs {
	a := &forkArgs{
		stdio: stdio,
		name:  cstring(name),
		empty: cstring(""),
		image: image,
		argv:  cstringSlice(argv),
		envp:  cstringSlice(envp),
		ctl:   ctl,
	}
	if dir != nil {
		a.dir = cstring(*dir)
	}
	copy(a.record[4:], controlFooter)
	return a
}

func cstring(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

func cstringSlice(list []string) []*byte {
	out := make([]*byte, len(list)+1)
	for i, s := range list {
		out[i] = cstring(s)
	}
	return out
}

// forkExec clones the calling process. The child installs its stdio, moves
// to dir, resets its signal state, loads the image into a memfd and execs
// it. Any failure there is written to the control pipe followed by exit(127).
//
// The child runs with the runtime in its post-fork state: only raw system
// calls, no allocation, no pointer writes, no calls that may grow the stack.
//
//go:norace
//go:nocheckptr
func forkExec(a *forkArgs) (pid int, err unix.Errno) {
	var (
		r1    uintptr
		memfd uintptr
		n     uintptr
		off   int
		err1  unix.Errno
	)

	beforeFork()
	r1, _, err1 = unix.RawSyscall6(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0, 0, 0, 0)
	if err1 != 0 || r1 != 0 {
		afterFork()
		return int(r1), err1
	}

	afterForkInChild()

	for i := 0; i < 3; i++ {
		fd := a.stdio[i]
		if fd < 0 {
			continue
		}
		if fd == i {
			_, _, err1 = unix.RawSyscall(unix.SYS_FCNTL, uintptr(fd), unix.F_SETFD, 0)
		} else {
			_, _, err1 = unix.RawSyscall(unix.SYS_DUP3, uintptr(fd), uintptr(i), 0)
		}
		if err1 != 0 {
			goto fail
		}
	}

	if a.dir != nil {
		_, _, err1 = unix.RawSyscall(unix.SYS_CHDIR, uintptr(unsafe.Pointer(a.dir)), 0, 0)
		if err1 != 0 {
			goto fail
		}
	}

	_, _, err1 = unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, sigSetmask, uintptr(unsafe.Pointer(&a.emptySet)), 0, kernelSigsetSize, 0, 0)
	if err1 != 0 {
		goto fail
	}
	_, _, err1 = unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(unix.SIGPIPE), uintptr(unsafe.Pointer(&a.dflAct[0])), 0, kernelSigsetSize, 0, 0)
	if err1 != 0 {
		goto fail
	}

	memfd, _, err1 = unix.RawSyscall(unix.SYS_MEMFD_CREATE, uintptr(unsafe.Pointer(a.name)), unix.MFD_CLOEXEC, 0)
	if err1 != 0 {
		goto fail
	}
	for off < len(a.image) {
		n, _, err1 = unix.RawSyscall(unix.SYS_WRITE, memfd, uintptr(unsafe.Pointer(&a.image[off])), uintptr(len(a.image)-off))
		if err1 == unix.EINTR {
			continue
		}
		if err1 != 0 {
			goto fail
		}
		if n == 0 {
			err1 = unix.EPIPE
			goto fail
		}
		off += int(n)
	}

	_, _, err1 = unix.RawSyscall6(unix.SYS_EXECVEAT, memfd,
		uintptr(unsafe.Pointer(a.empty)),
		uintptr(unsafe.Pointer(&a.argv[0])),
		uintptr(unsafe.Pointer(&a.envp[0])),
		unix.AT_EMPTY_PATH, 0)

fail:
	a.record[0] = byte(uint32(err1) >> 24)
	a.record[1] = byte(uint32(err1) >> 16)
	a.record[2] = byte(uint32(err1) >> 8)
	a.record[3] = byte(uint32(err1))
	for {
		_, _, e := unix.RawSyscall(unix.SYS_WRITE, uintptr(a.ctl), uintptr(unsafe.Pointer(&a.record[0])), controlRecordLen)
		if e != unix.EINTR {
			break
		}
	}
	for {
		unix.RawSyscall(unix.SYS_EXIT, 127, 0, 0)
	}
}

// decodeControl parses a control pipe record.
func decodeControl(b []byte) (unix.Errno, bool) {
	if len(b) != controlRecordLen || string(b[4:]) != controlFooter {
		return 0, false
	}
	return unix.Errno(int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))), true
}
