package http2_test

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/h2framein/internal/http2"
	"example.com/h2framein/internal/testutil"
)

func TestConnChannel_NoDataIsNotAnError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ch := http2.NewConnChannel(server, 5*time.Millisecond)
	buf := make([]byte, 16)
	n, err := ch.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConnChannel_DataThenEOF(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		client.Write([]byte("abc"))
		client.Close()
	}()

	ch := http2.NewConnChannel(server, 50*time.Millisecond)
	buf := make([]byte, 16)
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := ch.Read(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "abc", string(got))
}

func TestConnChannel_ZeroLengthRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	n, err := http2.NewConnChannel(server, 0).Read(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConnChannel_DrivesDecoder(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	wire := testutil.Concat(
		testutil.EncodeFrame(http2.FrameSettings, 0, 0, []byte{0x00, 0x05, 0x00, 0x00, 0x40, 0x00}),
		testutil.EncodeFrame(http2.FramePing, 0, 0, []byte("pingpong")),
	)
	go func() {
		for _, chunk := range testutil.Split(wire, 4) {
			client.Write(chunk)
			time.Sleep(time.Millisecond)
		}
		client.Close()
	}()

	d, m := newDecoder(t, 64)
	ch := http2.NewConnChannel(server, 2*time.Millisecond)
	var frames []http2.Frame
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f, st, err := d.Decode(ch)
		if errors.Is(err, http2.ErrConnectionClosed) {
			break
		}
		require.NoError(t, err)
		if st == http2.StatusFrame {
			frames = append(frames, f.Clone())
		}
	}
	require.Len(t, frames, 2)
	assert.Equal(t, http2.FrameSettings, frames[0].Type)
	assert.Equal(t, []byte("pingpong"), frames[1].Payload)
	assert.Equal(t, uint64(len(wire)), m.BytesTransferred())
}
