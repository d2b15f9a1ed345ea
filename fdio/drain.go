//go:build linux

package fdio

import "golang.org/x/sys/unix"

// ReadBoth drains two pipes to end of file without letting either one block
// the other. Both are switched to nonblocking mode and polled; as soon as one
// reaches end of file the other is switched back to blocking mode and read to
// completion. The pipes stay open; closing them is up to the caller.
func ReadBoth(p1, p2 *Pipe) (out1, out2 []byte, err error) {
	if err := p1.SetNonblock(true); err != nil {
		return nil, nil, err
	}
	if err := p2.SetNonblock(true); err != nil {
		return nil, nil, err
	}

	fds := []unix.PollFd{
		{Fd: int32(p1.Fd()), Events: unix.POLLIN},
		{Fd: int32(p2.Fd()), Events: unix.POLLIN},
	}
	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return out1, out2, err
		}

		if fds[0].Revents != 0 {
			var eof bool
			if out1, eof, err = drainReady(p1, out1); err != nil {
				return out1, out2, err
			}
			if eof {
				out2, err = finish(p2, out2)
				return out1, out2, err
			}
		}
		if fds[1].Revents != 0 {
			var eof bool
			if out2, eof, err = drainReady(p2, out2); err != nil {
				return out1, out2, err
			}
			if eof {
				out1, err = finish(p1, out1)
				return out1, out2, err
			}
		}
	}
}

// drainReady reads a nonblocking pipe until it would block or hits end of file.
func drainReady(p *Pipe, dst []byte) ([]byte, bool, error) {
	dst, err := p.ReadToEnd(dst)
	switch err {
	case nil:
		return dst, true, nil
	case unix.EAGAIN:
		return dst, false, nil
	default:
		return dst, false, err
	}
}

func finish(p *Pipe, dst []byte) ([]byte, error) {
	if err := p.SetNonblock(false); err != nil {
		return dst, err
	}
	return p.ReadToEnd(dst)
}
