//go:build linux

package stdio

import (
	"runtime"

	apperrors "github.com/kbukum/memexec/errors"
	"github.com/kbukum/memexec/fdio"
	"golang.org/x/sys/unix"
)

const nullDevice = "/dev/null"

type childKind int

const (
	childInherit childKind = iota
	childOwned
	childExplicit
)

// ChildStdio is the descriptor a child receives on one standard slot.
type ChildStdio struct {
	kind  childKind
	owned *fdio.FileDesc
	fd    int
}

// Fd returns the descriptor to install, or false when the slot is inherited.
func (c ChildStdio) Fd() (int, bool) {
	switch c.kind {
	case childOwned:
		return c.owned.Fd(), true
	case childExplicit:
		return c.fd, true
	default:
		return -1, false
	}
}

// Owned reports whether the router created the descriptor.
func (c ChildStdio) Owned() bool { return c.kind == childOwned }

// Close releases the descriptor if the router created it. Explicit caller
// descriptors are never closed.
func (c *ChildStdio) Close() error {
	if c.kind != childOwned || c.owned == nil {
		return nil
	}
	return c.owned.Close()
}

// Route resolves cfg for a stream the child reads from (readable) or writes to.
// For KindPiped the returned pipe is the parent's end: the write end for a
// readable stream, the read end otherwise.
func Route(cfg Stdio, readable bool) (ChildStdio, *fdio.Pipe, error) {
	switch cfg.kind {
	case KindInherit:
		return ChildStdio{kind: childInherit}, nil, nil

	case KindNull:
		mode := unix.O_WRONLY
		if readable {
			mode = unix.O_RDONLY
		}
		fd, err := unix.Open(nullDevice, mode|unix.O_CLOEXEC, 0)
		if err != nil {
			return ChildStdio{}, nil, apperrors.SpawnSetup("open "+nullDevice, err)
		}
		return ChildStdio{kind: childOwned, owned: fdio.NewFileDesc(fd)}, nil, nil

	case KindPiped:
		r, w, err := fdio.NewPipe()
		if err != nil {
			return ChildStdio{}, nil, apperrors.SpawnSetup("pipe", err)
		}
		if readable {
			return ChildStdio{kind: childOwned, owned: r.IntoFileDesc()}, w, nil
		}
		return ChildStdio{kind: childOwned, owned: w.IntoFileDesc()}, r, nil

	case KindDescriptor:
		if cfg.fd < 0 {
			return ChildStdio{}, nil, apperrors.InvalidInput("stdio", "negative descriptor")
		}
		if cfg.fd <= 2 {
			// Installing slots 0, 1 and 2 in order would otherwise clobber a
			// low descriptor that a later slot still reads from.
			dup, err := unix.FcntlInt(uintptr(cfg.fd), unix.F_DUPFD_CLOEXEC, 3)
			runtime.KeepAlive(cfg.file)
			if err != nil {
				return ChildStdio{}, nil, apperrors.SpawnSetup("dup", err)
			}
			return ChildStdio{kind: childOwned, owned: fdio.NewFileDesc(dup)}, nil, nil
		}
		return ChildStdio{kind: childExplicit, fd: cfg.fd}, nil, nil

	default:
		return ChildStdio{}, nil, apperrors.InvalidInput("stdio", "unknown stdio kind "+cfg.kind.String())
	}
}

// Parent holds the pipe ends the parent keeps. Nil fields were not piped.
type Parent struct {
	Stdin  *fdio.Pipe
	Stdout *fdio.Pipe
	Stderr *fdio.Pipe
}

// Close closes every pipe end still held.
func (p *Parent) Close() {
	for _, pipe := range []*fdio.Pipe{p.Stdin, p.Stdout, p.Stderr} {
		if pipe != nil {
			_ = pipe.Close()
		}
	}
}

// Child holds the descriptors destined for slots 0, 1 and 2.
type Child struct {
	Stdin  ChildStdio
	Stdout ChildStdio
	Stderr ChildStdio
}

// Close releases the router-created descriptors. The parent calls this
// right after the fork, when the child holds its own copies.
func (c *Child) Close() {
	_ = c.Stdin.Close()
	_ = c.Stdout.Close()
	_ = c.Stderr.Close()
}

// RouteAll routes all three streams. On failure everything created so far
// is closed.
func RouteAll(in, out, errStream Stdio) (Parent, Child, error) {
	var parent Parent
	var child Child
	var err error

	if child.Stdin, parent.Stdin, err = Route(in, true); err != nil {
		return Parent{}, Child{}, err
	}
	if child.Stdout, parent.Stdout, err = Route(out, false); err != nil {
		parent.Close()
		child.Close()
		return Parent{}, Child{}, err
	}
	if child.Stderr, parent.Stderr, err = Route(errStream, false); err != nil {
		parent.Close()
		child.Close()
		return Parent{}, Child{}, err
	}
	return parent, child, nil
}
