//go:build linux

package fdio

import (
	"io"
	"runtime"
	"slices"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// minRead is the smallest free space handed to read(2) by ReadToEnd.
const minRead = 512

// FileDesc exclusively owns a raw descriptor. A leaked FileDesc closes its
// descriptor when garbage collected.
type FileDesc struct {
	fd      atomic.Int64
	cleanup runtime.Cleanup
}

// NewFileDesc takes ownership of raw.
func NewFileDesc(raw int) *FileDesc {
	f := &FileDesc{}
	f.fd.Store(int64(raw))
	f.cleanup = runtime.AddCleanup(f, func(fd int) { _ = unix.Close(fd) }, raw)
	return f
}

func closedFileDesc() *FileDesc {
	f := &FileDesc{}
	f.fd.Store(-1)
	return f
}

// Fd returns the raw descriptor, or -1 once closed or released.
func (f *FileDesc) Fd() int { return int(f.fd.Load()) }

// Close closes the descriptor. Only the first call has an effect.
func (f *FileDesc) Close() error {
	fd := int(f.fd.Swap(-1))
	if fd < 0 {
		return nil
	}
	f.cleanup.Stop()
	return unix.Close(fd)
}

// IntoRaw releases ownership and returns the raw descriptor. The caller is
// now responsible for closing it.
func (f *FileDesc) IntoRaw() int {
	fd := int(f.fd.Swap(-1))
	if fd >= 0 {
		f.cleanup.Stop()
	}
	return fd
}

// Read performs a single read(2). It returns (0, nil) at end of file.
func (f *FileDesc) Read(p []byte) (int, error) {
	n, err := unix.Read(f.Fd(), p)
	runtime.KeepAlive(f)
	if n < 0 {
		n = 0
	}
	return n, err
}

// Write performs a single write(2) and may write less than len(p).
func (f *FileDesc) Write(p []byte) (int, error) {
	n, err := unix.Write(f.Fd(), p)
	runtime.KeepAlive(f)
	if n < 0 {
		n = 0
	}
	return n, err
}

// ReadV performs a single readv(2) into bufs.
func (f *FileDesc) ReadV(bufs [][]byte) (int, error) {
	n, err := unix.Readv(f.Fd(), bufs)
	runtime.KeepAlive(f)
	if n < 0 {
		n = 0
	}
	return n, err
}

// WriteV performs a single writev(2) from bufs.
func (f *FileDesc) WriteV(bufs [][]byte) (int, error) {
	n, err := unix.Writev(f.Fd(), bufs)
	runtime.KeepAlive(f)
	if n < 0 {
		n = 0
	}
	return n, err
}

// ReadToEnd appends everything up to end of file to dst. Interrupted reads
// are retried. On error the bytes read so far are still in the returned
// slice, which is how a nonblocking drain keeps its progress on EAGAIN.
func (f *FileDesc) ReadToEnd(dst []byte) ([]byte, error) {
	for {
		if cap(dst)-len(dst) < minRead {
			dst = slices.Grow(dst, minRead)
		}
		n, err := f.Read(dst[len(dst):cap(dst)])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return dst, err
		}
		if n == 0 {
			return dst, nil
		}
		dst = dst[:len(dst)+n]
	}
}

// Duplicate returns an independently owned close-on-exec copy. The copy is
// never placed in slots 0, 1 or 2.
func (f *FileDesc) Duplicate() (*FileDesc, error) {
	fd, err := unix.FcntlInt(uintptr(f.Fd()), unix.F_DUPFD_CLOEXEC, 3)
	runtime.KeepAlive(f)
	if err != nil {
		return nil, err
	}
	return NewFileDesc(fd), nil
}

// SetNonblock toggles O_NONBLOCK.
func (f *FileDesc) SetNonblock(nonblocking bool) error {
	err := unix.SetNonblock(f.Fd(), nonblocking)
	runtime.KeepAlive(f)
	return err
}

// SetCloexec sets FD_CLOEXEC.
func (f *FileDesc) SetCloexec() error {
	_, err := unix.FcntlInt(uintptr(f.Fd()), unix.F_SETFD, unix.FD_CLOEXEC)
	runtime.KeepAlive(f)
	return err
}

// Cloexec reports whether FD_CLOEXEC is set.
func (f *FileDesc) Cloexec() (bool, error) {
	flags, err := unix.FcntlInt(uintptr(f.Fd()), unix.F_GETFD, 0)
	runtime.KeepAlive(f)
	if err != nil {
		return false, err
	}
	return flags&unix.FD_CLOEXEC != 0, nil
}

// Reader adapts f to io.Reader: end of file becomes io.EOF and interrupted
// reads are retried.
func (f *FileDesc) Reader() io.Reader { return fdReader{f} }

type fdReader struct{ f *FileDesc }

func (r fdReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := r.f.Read(p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// WriteAll writes p completely, retrying short and interrupted writes.
func (f *FileDesc) WriteAll(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := f.Write(p[written:])
		written += n
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
