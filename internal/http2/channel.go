package http2

import (
	"errors"
	"net"
	"os"
	"time"
)

// Channel is the non-blocking byte source consumed by FrameDecoder.
//
// Read follows io.Reader with two extra conventions: returning (0, nil) or
// ErrWouldBlock means no data is available right now, and io.EOF means the
// stream has ended. Any io.Reader is therefore a valid Channel.
type Channel interface {
	Read(p []byte) (n int, err error)
}

// ErrWouldBlock is returned by a Channel that has no data available right now.
var ErrWouldBlock = errors.New("http2: channel would block")

// DefaultPollTimeout is the read deadline ConnChannel arms when none is given.
const DefaultPollTimeout = 10 * time.Millisecond

// ConnChannel adapts a net.Conn to the Channel contract. Each Read arms a short
// read deadline; a deadline expiry is reported as "no data right now".
type ConnChannel struct {
	conn        net.Conn
	pollTimeout time.Duration
}

// NewConnChannel wraps conn. A non-positive pollTimeout selects DefaultPollTimeout.
func NewConnChannel(conn net.Conn, pollTimeout time.Duration) *ConnChannel {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &ConnChannel{conn: conn, pollTimeout: pollTimeout}
}

func (c *ConnChannel) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pollTimeout)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Conn returns the wrapped connection.
func (c *ConnChannel) Conn() net.Conn { return c.conn }

// Close closes the wrapped connection.
func (c *ConnChannel) Close() error { return c.conn.Close() }

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
