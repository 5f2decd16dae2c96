package server

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/h2framein/internal/config"
	"example.com/h2framein/internal/http2"
	"example.com/h2framein/internal/logger"
	"example.com/h2framein/internal/testutil"
)

type runningServer struct {
	srv     *Server
	addr    string
	results chan ConnResult
	cancel  context.CancelFunc
	done    chan error
}

func startServer(t *testing.T, cfg *config.Config) *runningServer {
	t.Helper()
	srv, err := NewServer(cfg, logger.Nop())
	require.NoError(t, err)

	rs := &runningServer{srv: srv, results: make(chan ConnResult, 4), done: make(chan error, 1)}
	srv.OnConnDone = func(r ConnResult) { rs.results <- r }

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	rs.addr = l.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	go func() { rs.done <- srv.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-rs.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return rs
}

func (rs *runningServer) waitResult(t *testing.T) ConnResult {
	t.Helper()
	select {
	case r := <-rs.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection result")
		return ConnResult{}
	}
}

func sendAndClose(t *testing.T, addr string, data []byte) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestNewServer_InvalidArguments(t *testing.T) {
	_, err := NewServer(nil, logger.Nop())
	assert.Error(t, err)
	_, err = NewServer(config.Default(), nil)
	assert.Error(t, err)

	bad := config.Default()
	*bad.Decoder.MaxFrameSize = 10
	_, err = NewServer(bad, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoder.max_frame_size")
}

func TestServer_InspectsConnectionUntilClose(t *testing.T) {
	cfg := config.Default()
	*cfg.Inspector.ExpectPreface = true
	rs := startServer(t, cfg)

	frames := testutil.Concat(
		testutil.EncodeFrame(http2.FrameSettings, 0, 0, nil),
		testutil.EncodeFrame(http2.FramePing, 0, 0, make([]byte, 8)),
		testutil.EncodePaddedFrame(http2.FrameData, http2.FlagDataEndStream, 1, []byte("hi"), 3),
	)
	sendAndClose(t, rs.addr, testutil.Concat([]byte(testutil.ClientPreface), frames))

	r := rs.waitResult(t)
	require.NoError(t, r.Err)
	assert.True(t, r.Result.Closed)
	assert.Equal(t, uint64(3), r.Result.Frames)
	assert.Equal(t, uint64(len(frames)), r.Result.Bytes)
	assert.NotEmpty(t, r.RemoteAddr)
}

func TestServer_ReportsProtocolError(t *testing.T) {
	rs := startServer(t, config.Default())

	sendAndClose(t, rs.addr, testutil.EncodeRawHeader(http2.DefaultMaxFrameSize+1, http2.FrameData, 0, 1))

	r := rs.waitResult(t)
	ce, ok := http2.AsConnectionError(r.Err)
	require.True(t, ok, "got %v", r.Err)
	assert.Equal(t, http2.ErrCodeFrameSizeError, ce.Code)
}

func TestServer_ConcurrentConnections(t *testing.T) {
	rs := startServer(t, config.Default())
	ping := testutil.EncodeFrame(http2.FramePing, 0, 0, make([]byte, 8))

	for i := 0; i < 3; i++ {
		go func() {
			conn, err := net.Dial("tcp", rs.addr)
			if err != nil {
				return
			}
			defer conn.Close()
			conn.Write(bytes.Repeat(ping, 2))
		}()
	}
	for i := 0; i < 3; i++ {
		r := rs.waitResult(t)
		assert.NoError(t, r.Err)
		assert.Equal(t, uint64(2), r.Result.Frames)
	}
}

func TestServer_ShutdownStopsIdleConnections(t *testing.T) {
	rs := startServer(t, config.Default())

	conn, err := net.Dial("tcp", rs.addr)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return rs.srv.ActiveConnections() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NotNil(t, rs.srv.Addr())

	rs.cancel()
	select {
	case err := <-rs.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	r := rs.waitResult(t)
	assert.ErrorIs(t, r.Err, context.Canceled)
	assert.False(t, r.Result.Closed)
	assert.Equal(t, 0, rs.srv.ActiveConnections())
	rs.done <- nil
}
