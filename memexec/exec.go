//go:build linux

package memexec

import (
	"fmt"
	"maps"
	"os"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"unsafe"

	apperrors "github.com/kbukum/memexec/errors"
	"github.com/kbukum/memexec/fdio"
	"github.com/kbukum/memexec/logger"
	"github.com/kbukum/memexec/stdio"
	"golang.org/x/sys/unix"
)

// memfd_create rejects names longer than this.
const maxMemfdName = 249

// Executable is an in-memory executable image plus everything needed to
// launch it: arguments, environment changes, working directory and stdio.
type Executable struct {
	name    string
	image   []byte
	program string
	args    []string
	env     EnvDiff
	dir     *string

	stdin, stdout, stderr *stdio.Stdio

	log *logger.Logger
}

// New prepares image for launch. name labels the memory object and is the
// default argv[0]. The image is borrowed until a launch returns.
func New(name string, image []byte) *Executable {
	return &Executable{
		name:  name,
		image: image,
		log:   logger.Get("memexec"),
	}
}

// Name returns the display name.
func (e *Executable) Name() string { return e.name }

// SetProgram overrides argv[0].
func (e *Executable) SetProgram(program string) *Executable {
	e.program = program
	return e
}

// Arg appends one argument.
func (e *Executable) Arg(arg string) *Executable {
	e.args = append(e.args, arg)
	return e
}

// Args appends arguments.
func (e *Executable) Args(args ...string) *Executable {
	e.args = append(e.args, args...)
	return e
}

// Env sets an environment variable for the child.
func (e *Executable) Env(key, value string) *Executable {
	e.env.Set(key, value)
	return e
}

// Envs sets several variables, applied in key order.
func (e *Executable) Envs(vars map[string]string) *Executable {
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		e.env.Set(k, vars[k])
	}
	return e
}

// EnvRemove removes a variable from the child's environment.
func (e *Executable) EnvRemove(key string) *Executable {
	e.env.Remove(key)
	return e
}

// EnvClear starts the child from an empty environment.
func (e *Executable) EnvClear() *Executable {
	e.env.Clear()
	return e
}

// LoadEnvFile applies the variables of a dotenv file.
func (e *Executable) LoadEnvFile(path string) error {
	return e.env.LoadFile(path)
}

// EnvDiff returns the recorded environment changes.
func (e *Executable) EnvDiff() *EnvDiff { return &e.env }

// Dir sets the child's working directory.
func (e *Executable) Dir(dir string) *Executable {
	e.dir = &dir
	return e
}

// Stdin configures the child's standard input.
func (e *Executable) Stdin(s stdio.Stdio) *Executable {
	e.stdin = &s
	return e
}

// Stdout configures the child's standard output.
func (e *Executable) Stdout(s stdio.Stdio) *Executable {
	e.stdout = &s
	return e
}

// Stderr configures the child's standard error.
func (e *Executable) Stderr(s stdio.Stdio) *Executable {
	e.stderr = &s
	return e
}

// WithLogger sets the logger used for launch diagnostics.
func (e *Executable) WithLogger(l *logger.Logger) *Executable {
	if l != nil {
		e.log = l
	}
	return e
}

// Spawn launches the image as a child process. Unset streams are inherited.
// On success the child's image has been replaced; exec-time failures come
// back as EXEC_FAILED with the child's errno and the child already reaped.
func (e *Executable) Spawn() (*Child, error) {
	return e.spawn(stdio.Inherit(), stdio.Inherit(), stdio.Inherit())
}

// Output runs the image to completion and collects its output. Unset
// streams default to a null stdin and piped stdout and stderr.
func (e *Executable) Output() (*Output, error) {
	child, err := e.spawn(stdio.Null(), stdio.Piped(), stdio.Piped())
	if err != nil {
		return nil, err
	}
	return child.WaitWithOutput()
}

// Status runs the image to completion with inherited streams by default.
func (e *Executable) Status() (ExitStatus, error) {
	child, err := e.spawn(stdio.Inherit(), stdio.Inherit(), stdio.Inherit())
	if err != nil {
		return ExitStatus{}, err
	}
	return child.Wait()
}

func pick(s *stdio.Stdio, def stdio.Stdio) stdio.Stdio {
	if s != nil {
		return *s
	}
	return def
}

func (e *Executable) argv() []string {
	program := e.program
	if program == "" {
		program = e.name
	}
	return append([]string{program}, e.args...)
}

func (e *Executable) memfdName() string {
	if len(e.name) > maxMemfdName {
		return e.name[:maxMemfdName]
	}
	return e.name
}

func hasNUL(list ...string) bool {
	for _, s := range list {
		if strings.IndexByte(s, 0) >= 0 {
			return true
		}
	}
	return false
}

// checkArgs rejects an empty image and NUL bytes in argv, the name and the
// working directory.
func (e *Executable) checkArgs(argv []string) error {
	if len(e.image) == 0 {
		return apperrors.InvalidInput("image", "executable image is empty")
	}
	if hasNUL(e.name) {
		return apperrors.InvalidInput("name", "name contains a NUL byte")
	}
	if hasNUL(argv...) {
		return apperrors.InvalidInput("argv", "argument contains a NUL byte")
	}
	if e.dir != nil && hasNUL(*e.dir) {
		return apperrors.InvalidInput("dir", "working directory contains a NUL byte")
	}
	return nil
}

func (e *Executable) spawn(defIn, defOut, defErr stdio.Stdio) (*Child, error) {
	argv := e.argv()
	if err := e.checkArgs(argv); err != nil {
		return nil, err
	}
	in, out, errStream := pick(e.stdin, defIn), pick(e.stdout, defOut), pick(e.stderr, defErr)

	syscall.ForkLock.Lock()
	locked := true
	unlock := func() {
		if locked {
			locked = false
			syscall.ForkLock.Unlock()
		}
	}
	defer unlock()

	envp := e.env.Environ(os.Environ())
	if hasNUL(envp...) {
		return nil, apperrors.InvalidInput("env", "environment contains a NUL byte")
	}

	parent, child, err := stdio.RouteAll(in, out, errStream)
	if err != nil {
		return nil, err
	}
	ctlR, ctlW, err := fdio.NewPipe()
	if err != nil {
		parent.Close()
		child.Close()
		return nil, apperrors.SpawnSetup("control pipe", err)
	}

	var slots [3]int
	for i, c := range []stdio.ChildStdio{child.Stdin, child.Stdout, child.Stderr} {
		slots[i] = -1
		if fd, ok := c.Fd(); ok {
			slots[i] = fd
		}
	}

	args := newForkArgs(e.image, e.memfdName(), argv, envp, e.dir, slots, ctlW.Fd())
	pid, errno := forkExec(args)
	unlock()
	runtime.KeepAlive(args)

	child.Close()
	_ = ctlW.Close()
	defer ctlR.Close()

	if errno != 0 {
		parent.Close()
		return nil, apperrors.ForkFailed(errno)
	}

	proc := newProcess(pid, e.log)
	if err := e.awaitExec(proc, ctlR); err != nil {
		parent.Close()
		return nil, err
	}

	e.log.Debug("spawned", logger.Fields(
		logger.FieldPID, pid,
		logger.FieldProgram, argv[0],
		logger.FieldArgc, len(argv),
		logger.FieldImageLen, len(e.image),
		"stdin", in.String(), "stdout", out.String(), "stderr", errStream.String(),
	))

	return newChild(proc, parent), nil
}

// awaitExec reads the control pipe until the child has either replaced its
// image (end of file) or reported why it could not.
func (e *Executable) awaitExec(proc *Process, ctl *fdio.Pipe) error {
	var buf [controlRecordLen]byte
	for {
		n, err := ctl.Read(buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			_, _ = proc.Wait()
			panic(fmt.Sprintf("memexec: reading control pipe of pid %d: %v", proc.ID(), err))
		}
		if n == 0 {
			return nil
		}
		errno, ok := decodeControl(buf[:n])
		_, _ = proc.Wait()
		if !ok {
			panic(fmt.Sprintf("memexec: malformed control record from pid %d: %x", proc.ID(), buf[:n]))
		}
		e.log.Debug("exec failed", logger.Fields(
			logger.FieldPID, proc.ID(),
			logger.FieldProgram, e.name,
			logger.FieldErrno, int(errno),
		))
		return apperrors.ExecFailed(e.name, errno).WithDetail("pid", proc.ID())
	}
}

// Exec replaces the current process with the image. It returns only on
// failure, and by then the calling process's stdio and working directory
// may already have been changed. Piped streams are rejected. Unlike Spawn,
// the signal mask of the calling thread is passed on unchanged.
func (e *Executable) Exec() error {
	argv := e.argv()
	if err := e.checkArgs(argv); err != nil {
		return err
	}
	in, out, errStream := pick(e.stdin, stdio.Inherit()), pick(e.stdout, stdio.Inherit()), pick(e.stderr, stdio.Inherit())
	for _, s := range []stdio.Stdio{in, out, errStream} {
		if s.Kind() == stdio.KindPiped {
			return apperrors.InvalidInput("stdio", "piped streams cannot be used with Exec")
		}
	}

	syscall.ForkLock.Lock()
	defer syscall.ForkLock.Unlock()

	envp := e.env.Environ(os.Environ())
	if hasNUL(envp...) {
		return apperrors.InvalidInput("env", "environment contains a NUL byte")
	}

	_, child, err := stdio.RouteAll(in, out, errStream)
	if err != nil {
		return err
	}
	defer child.Close()

	memfd, err := unix.MemfdCreate(e.memfdName(), unix.MFD_CLOEXEC)
	if err != nil {
		return apperrors.SpawnSetup("memfd_create", err)
	}
	image := fdio.NewFileDesc(memfd)
	defer image.Close()
	if _, err := image.WriteAll(e.image); err != nil {
		return apperrors.SpawnSetup("write image", err)
	}

	for i, c := range []stdio.ChildStdio{child.Stdin, child.Stdout, child.Stderr} {
		fd, ok := c.Fd()
		if !ok {
			continue
		}
		if fd == i {
			_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0)
		} else {
			err = unix.Dup3(fd, i, 0)
		}
		if err != nil {
			return apperrors.SpawnSetup("install stdio", err)
		}
	}
	if e.dir != nil {
		if err := unix.Chdir(*e.dir); err != nil {
			errno, _ := apperrors.Errno(err)
			return apperrors.ExecFailed(e.name, errno).WithCause(err)
		}
	}

	args := newForkArgs(e.image, e.memfdName(), argv, envp, e.dir, [3]int{-1, -1, -1}, -1)
	_, _, errno := unix.Syscall6(unix.SYS_EXECVEAT, uintptr(image.Fd()),
		uintptr(unsafe.Pointer(args.empty)),
		uintptr(unsafe.Pointer(&args.argv[0])),
		uintptr(unsafe.Pointer(&args.envp[0])),
		unix.AT_EMPTY_PATH, 0)
	runtime.KeepAlive(args)
	return apperrors.ExecFailed(e.name, errno)
}
