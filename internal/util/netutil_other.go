//go:build !unix

package util

import (
	"errors"
	"net"
)

// NewListenerFromFD is only supported on Unix systems.
func NewListenerFromFD(fd uintptr) (net.Listener, error) {
	return nil, errors.ErrUnsupported
}
