//go:build unix

package util

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// NewListenerFromFD wraps an inherited listening socket. The descriptor is
// marked close-on-exec so it does not leak into child processes.
func NewListenerFromFD(fd uintptr) (net.Listener, error) {
	if _, err := unix.FcntlInt(fd, unix.F_GETFD, 0); err != nil {
		return nil, fmt.Errorf("inherited FD %d is not open: %w", fd, err)
	}
	unix.CloseOnExec(int(fd))

	file := os.NewFile(fd, fmt.Sprintf("listener-from-fd-%d", fd))
	if file == nil {
		return nil, fmt.Errorf("os.NewFile returned nil for FD %d", fd)
	}
	// net.FileListener dups the descriptor, so file is closed either way.
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("net.FileListener failed for FD %d: %w", fd, err)
	}
	return listener, nil
}
