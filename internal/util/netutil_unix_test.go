//go:build unix

package util

import (
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewListenerFromFD(t *testing.T) {
	orig, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer orig.Close()

	f, err := orig.(*net.TCPListener).File()
	require.NoError(t, err)
	fd, err := syscall.Dup(int(f.Fd()))
	require.NoError(t, err)
	f.Close()

	l, err := NewListenerFromFD(uintptr(fd))
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, orig.Addr().String(), l.Addr().String())

	conn, err := net.Dial("tcp", orig.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	accepted, err := l.Accept()
	require.NoError(t, err)
	accepted.Close()
}

func TestNewListenerFromFD_ClosedDescriptor(t *testing.T) {
	_, err := NewListenerFromFD(1 << 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not open")
}
