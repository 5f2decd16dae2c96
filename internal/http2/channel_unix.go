//go:build unix

package http2

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// FDChannel reads from a raw file descriptor in non-blocking mode.
// EAGAIN is reported as ErrWouldBlock and a zero-length read as io.EOF.
// The caller keeps ownership of the descriptor.
type FDChannel struct {
	fd int
}

// NewFDChannel switches fd to non-blocking mode and wraps it.
func NewFDChannel(fd int) (*FDChannel, error) {
	if fd < 0 {
		return nil, fmt.Errorf("%w: file descriptor %d", ErrInvalidArgument, fd)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, os.NewSyscallError("setnonblock", err)
	}
	return &FDChannel{fd: fd}, nil
}

func (c *FDChannel) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(c.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, os.NewSyscallError("read", err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// FD returns the wrapped descriptor.
func (c *FDChannel) FD() int { return c.fd }
