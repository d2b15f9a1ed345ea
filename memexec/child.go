//go:build linux

package memexec

import (
	"fmt"
	"io"
	"unicode/utf8"

	apperrors "github.com/kbukum/memexec/errors"
	"github.com/kbukum/memexec/fdio"
	"github.com/kbukum/memexec/stdio"
	"golang.org/x/sys/unix"
)

// ChildStdin is the parent's write end of a piped stdin.
type ChildStdin struct{ pipe *fdio.Pipe }

// Write writes p completely.
func (s *ChildStdin) Write(p []byte) (int, error) { return s.pipe.WriteAll(p) }

// Close closes the pipe, which the child sees as end of input.
func (s *ChildStdin) Close() error { return s.pipe.Close() }

// Fd returns the raw descriptor.
func (s *ChildStdin) Fd() int { return s.pipe.Fd() }

// ChildStdout is the parent's read end of a piped stdout.
type ChildStdout struct{ pipe *fdio.Pipe }

func (s *ChildStdout) Read(p []byte) (int, error) { return s.pipe.FileDesc().Reader().Read(p) }
func (s *ChildStdout) Close() error { return s.pipe.Close() }
func (s *ChildStdout) Fd() int { return s.pipe.Fd() }

// ChildStderr is the parent's read end of a piped stderr.
type ChildStderr struct{ pipe *fdio.Pipe }

func (s *ChildStderr) Read(p []byte) (int, error) { return s.pipe.FileDesc().Reader().Read(p) }
func (s *ChildStderr) Close() error { return s.pipe.Close() }
func (s *ChildStderr) Fd() int { return s.pipe.Fd() }

var (
	_ io.WriteCloser = (*ChildStdin)(nil)
	_ io.ReadCloser  = (*ChildStdout)(nil)
	_ io.ReadCloser  = (*ChildStderr)(nil)
)

// Child is a running child process with the parent ends of its piped
// streams. Streams that were not piped are nil.
type Child struct {
	Stdin  *ChildStdin
	Stdout *ChildStdout
	Stderr *ChildStderr

	process *Process
}

func newChild(p *Process, parent stdio.Parent) *Child {
	c := &Child{process: p}
	if parent.Stdin != nil {
		c.Stdin = &ChildStdin{pipe: parent.Stdin}
	}
	if parent.Stdout != nil {
		c.Stdout = &ChildStdout{pipe: parent.Stdout}
	}
	if parent.Stderr != nil {
		c.Stderr = &ChildStderr{pipe: parent.Stderr}
	}
	return c
}

// Process returns the underlying process handle.
func (c *Child) Process() *Process { return c.process }

// ID returns the process id.
func (c *Child) ID() int { return c.process.ID() }

// Kill sends SIGKILL to the child.
func (c *Child) Kill() error { return c.process.Kill() }

// Signal sends sig to the child.
func (c *Child) Signal(sig unix.Signal) error { return c.process.Signal(sig) }

// TryWait returns the exit status if the child has exited, without blocking.
func (c *Child) TryWait() (ExitStatus, bool, error) { return c.process.TryWait() }

func (c *Child) closeStdin() {
	if c.Stdin != nil {
		_ = c.Stdin.Close()
		c.Stdin = nil
	}
}

// Wait closes stdin, so a child reading it cannot block forever, then
// waits for the child to exit.
func (c *Child) Wait() (ExitStatus, error) {
	c.closeStdin()
	return c.process.Wait()
}

// WaitWithOutput closes stdin, reads stdout and stderr to end of file and
// waits for the child. Streams that were not piped come back empty.
func (c *Child) WaitWithOutput() (*Output, error) {
	c.closeStdin()

	var stdout, stderr []byte
	var readErr error
	switch {
	case c.Stdout != nil && c.Stderr != nil:
		stdout, stderr, readErr = fdio.ReadBoth(c.Stdout.pipe, c.Stderr.pipe)
	case c.Stdout != nil:
		stdout, readErr = c.Stdout.pipe.ReadToEnd(nil)
	case c.Stderr != nil:
		stderr, readErr = c.Stderr.pipe.ReadToEnd(nil)
	}
	if c.Stdout != nil {
		_ = c.Stdout.Close()
		c.Stdout = nil
	}
	if c.Stderr != nil {
		_ = c.Stderr.Close()
		c.Stderr = nil
	}

	status, err := c.process.Wait()
	if readErr != nil {
		return nil, apperrors.IOFailed("output", readErr)
	}
	if err != nil {
		return nil, err
	}
	return &Output{Status: status, Stdout: stdout, Stderr: stderr}, nil
}

// Output is the result of WaitWithOutput.
type Output struct {
	Status ExitStatus
	Stdout []byte
	Stderr []byte
}

func (o *Output) String() string {
	return fmt.Sprintf("Output{status: %s, stdout: %s, stderr: %s}", o.Status, render(o.Stdout), render(o.Stderr))
}

func render(b []byte) string {
	if utf8.Valid(b) {
		return fmt.Sprintf("%q", b)
	}
	return fmt.Sprintf("%v", b)
}
