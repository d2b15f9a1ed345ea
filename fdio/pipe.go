//go:build linux

package fdio

import "golang.org/x/sys/unix"

// Pipe is one end of an anonymous pipe.
type Pipe struct {
	fd *FileDesc
}

// NewPipe creates a pipe with both ends close-on-exec from the start, so a
// concurrent fork elsewhere in the process never inherits them.
func NewPipe() (r, w *Pipe, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, err
	}
	return &Pipe{fd: NewFileDesc(p[0])}, &Pipe{fd: NewFileDesc(p[1])}, nil
}

// PipeFromFileDesc wraps an owned descriptor as a pipe end.
func PipeFromFileDesc(fd *FileDesc) *Pipe { return &Pipe{fd: fd} }

// FileDesc returns the owned descriptor without transferring it.
func (p *Pipe) FileDesc() *FileDesc { return p.fd }

// IntoFileDesc transfers ownership of the descriptor out of the pipe.
func (p *Pipe) IntoFileDesc() *FileDesc {
	fd := p.fd
	p.fd = closedFileDesc()
	return fd
}

func (p *Pipe) Fd() int { return p.fd.Fd() }
func (p *Pipe) Close() error { return p.fd.Close() }
func (p *Pipe) Read(b []byte) (int, error) { return p.fd.Read(b) }
func (p *Pipe) Write(b []byte) (int, error) { return p.fd.Write(b) }
func (p *Pipe) ReadV(bufs [][]byte) (int, error) { return p.fd.ReadV(bufs) }
func (p *Pipe) WriteV(bufs [][]byte) (int, error) { return p.fd.WriteV(bufs) }
func (p *Pipe) SetNonblock(nonblocking bool) error { return p.fd.SetNonblock(nonblocking) }
func (p *Pipe) ReadToEnd(dst []byte) ([]byte, error) { return p.fd.ReadToEnd(dst) }
func (p *Pipe) WriteAll(b []byte) (int, error) { return p.fd.WriteAll(b) }
