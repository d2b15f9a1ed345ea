//go:build linux

// Package stdio maps a requested standard-stream configuration onto the
// descriptor a child receives and the pipe end its parent keeps.
package stdio

import (
	"fmt"
	"strings"

	"github.com/kbukum/memexec/fdio"
)

// Kind is the closed set of stream configurations.
type Kind int

const (
	// KindInherit leaves the child's slot as the parent has it.
	KindInherit Kind = iota
	// KindNull connects the slot to /dev/null.
	KindNull
	// KindPiped connects the slot to a new pipe whose other end the parent keeps.
	KindPiped
	// KindDescriptor connects the slot to a descriptor the caller already holds.
	KindDescriptor
)

func (k Kind) String() string {
	switch k {
	case KindInherit:
		return "inherit"
	case KindNull:
		return "null"
	case KindPiped:
		return "piped"
	case KindDescriptor:
		return "descriptor"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses the configuration names "inherit", "null" and "piped".
// Descriptors cannot be named in configuration.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inherit":
		return KindInherit, nil
	case "null":
		return KindNull, nil
	case "piped", "pipe":
		return KindPiped, nil
	default:
		return 0, fmt.Errorf("unknown stdio kind %q", s)
	}
}

// Stdio describes how one standard stream of a child is set up.
// The zero value inherits the parent's stream.
type Stdio struct {
	kind Kind
	fd   int
	file *fdio.FileDesc
}

// Inherit leaves the stream as the parent has it.
func Inherit() Stdio { return Stdio{kind: KindInherit} }

// Null discards output, or reads as empty input.
func Null() Stdio { return Stdio{kind: KindNull} }

// Piped creates a pipe between parent and child.
func Piped() Stdio { return Stdio{kind: KindPiped} }

// FromFd uses a raw descriptor the caller keeps owning.
func FromFd(fd int) Stdio { return Stdio{kind: KindDescriptor, fd: fd} }

// FromFileDesc uses f, which the caller keeps owning and must not close
// before the spawn returns.
func FromFileDesc(f *fdio.FileDesc) Stdio {
	return Stdio{kind: KindDescriptor, fd: f.Fd(), file: f}
}

// FromKind builds a Stdio for one of the descriptor-free kinds.
func FromKind(k Kind) Stdio {
	switch k {
	case KindNull:
		return Null()
	case KindPiped:
		return Piped()
	default:
		return Inherit()
	}
}

// Kind returns the configuration kind.
func (s Stdio) Kind() Kind { return s.kind }

// Fd returns the descriptor for KindDescriptor, or -1.
func (s Stdio) Fd() int {
	if s.kind != KindDescriptor {
		return -1
	}
	return s.fd
}

func (s Stdio) String() string {
	if s.kind == KindDescriptor {
		return fmt.Sprintf("descriptor(%d)", s.fd)
	}
	return s.kind.String()
}
