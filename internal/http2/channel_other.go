//go:build !unix

package http2

import (
	"errors"
	"fmt"
)

// FDChannel is not available on this platform.
type FDChannel struct{}

// NewFDChannel always fails on platforms without non-blocking fd reads.
func NewFDChannel(fd int) (*FDChannel, error) {
	return nil, fmt.Errorf("%w: non-blocking fd channel unsupported (fd %d)", errors.ErrUnsupported, fd)
}

func (c *FDChannel) Read(p []byte) (int, error) { return 0, errors.ErrUnsupported }

// FD returns -1.
func (c *FDChannel) FD() int { return -1 }
