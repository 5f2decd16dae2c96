// Package inspect drives a frame decoder over a connection and reports what
// the peer sent, one summary per frame.
package inspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"example.com/h2framein/internal/config"
	"example.com/h2framein/internal/http2"
	"example.com/h2framein/internal/logger"
)

// ClientPreface is the connection preface a client sends before its first frame.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// DefaultIdleBackoff is how long Run waits after a read that produced no frame.
const DefaultIdleBackoff = 5 * time.Millisecond

// Options configures an Inspector.
type Options struct {
	ExpectPreface   bool
	IdleBackoff     time.Duration
	MaxFrames       int
	DecodeHeaders   bool
	HeaderTableSize uint32
	// Handler, when set, receives every summary. A non-nil return stops Run
	// with that error.
	Handler func(FrameSummary) error
}

// OptionsFromConfig maps a defaulted inspector configuration onto Options.
func OptionsFromConfig(cfg *config.InspectorConfig) Options {
	opts := Options{IdleBackoff: DefaultIdleBackoff, DecodeHeaders: true, HeaderTableSize: 4096}
	if cfg == nil {
		return opts
	}
	if cfg.ExpectPreface != nil {
		opts.ExpectPreface = *cfg.ExpectPreface
	}
	if cfg.IdleBackoff != nil {
		opts.IdleBackoff = cfg.IdleBackoff.Value()
	}
	if cfg.MaxFrames != nil {
		opts.MaxFrames = *cfg.MaxFrames
	}
	if cfg.DecodeHeaders != nil {
		opts.DecodeHeaders = *cfg.DecodeHeaders
	}
	if cfg.HeaderTableSize != nil {
		opts.HeaderTableSize = *cfg.HeaderTableSize
	}
	return opts
}

// Result describes a finished Run.
type Result struct {
	// Frames is the number of frames this Run accepted.
	Frames uint64
	// Bytes is the decoder's cumulative count of octets read from channels.
	Bytes uint64
	// Closed is true when the peer ended the stream at a frame boundary.
	Closed bool
}

// Inspector owns one FrameDecoder and inspects a single connection.
type Inspector struct {
	dec     *http2.FrameDecoder
	opts    Options
	log     *logger.Logger
	headers *HeaderBlockDecoder

	frames      uint64
	inBlock     bool
	blockStream uint32
}

// New creates an Inspector around dec. A nil lg discards log output.
func New(dec *http2.FrameDecoder, opts Options, lg *logger.Logger) (*Inspector, error) {
	if dec == nil {
		return nil, fmt.Errorf("%w: nil frame decoder", http2.ErrInvalidArgument)
	}
	if opts.IdleBackoff <= 0 {
		opts.IdleBackoff = DefaultIdleBackoff
	}
	if opts.MaxFrames < 0 {
		return nil, fmt.Errorf("%w: negative frame limit %d", http2.ErrInvalidArgument, opts.MaxFrames)
	}
	if lg == nil {
		lg = logger.Nop()
	}
	in := &Inspector{dec: dec, opts: opts, log: lg}
	if opts.DecodeHeaders {
		in.headers = NewHeaderBlockDecoder(opts.HeaderTableSize)
	}
	return in, nil
}

// Run reads frames from ch until the peer closes cleanly, the frame limit is
// reached, a fatal error occurs, or ctx is done. A clean close returns a nil
// error with Result.Closed set.
func (in *Inspector) Run(ctx context.Context, ch http2.Channel) (Result, error) {
	if in.opts.ExpectPreface {
		if err := in.readPreface(ctx, ch); err != nil {
			if errors.Is(err, http2.ErrConnectionClosed) {
				in.log.Info("Connection closed before preface")
				return Result{Closed: true}, nil
			}
			return in.fail(err)
		}
		in.log.Debug("Client preface received")
	}

	for {
		if err := ctx.Err(); err != nil {
			return in.result(false), err
		}

		f, status, err := in.dec.Decode(ch)
		switch status {
		case http2.StatusNeedMoreInput:
			if err := sleep(ctx, in.opts.IdleBackoff); err != nil {
				return in.result(false), err
			}
			continue
		case http2.StatusError:
			if errors.Is(err, http2.ErrConnectionClosed) {
				if in.inBlock {
					in.log.Warn("Connection closed inside a header block", logger.LogFields{"stream_id": in.blockStream})
				}
				res := in.result(true)
				in.log.Info("Connection closed", logger.LogFields{"frames": res.Frames, "bytes": res.Bytes})
				return res, nil
			}
			return in.fail(err)
		}

		in.frames++
		sum, err := in.handleFrame(f)
		if err != nil {
			return in.fail(err)
		}
		in.log.Debug("Frame decoded", sum.Fields())
		in.log.Frame(sum.Fields())
		if in.opts.Handler != nil {
			if err := in.opts.Handler(sum); err != nil {
				return in.result(false), err
			}
		}
		if in.opts.MaxFrames > 0 && in.frames >= uint64(in.opts.MaxFrames) {
			res := in.result(false)
			in.log.Info("Frame limit reached", logger.LogFields{"frames": res.Frames, "bytes": res.Bytes})
			return res, nil
		}
	}
}

func (in *Inspector) result(closed bool) Result {
	return Result{Frames: in.frames, Bytes: in.dec.Metrics().BytesTransferred(), Closed: closed}
}

func (in *Inspector) fail(err error) (Result, error) {
	code, debug := http2.GoAwayDetails(err)
	in.log.Error("Inspection stopped", logger.LogFields{
		"error":      err.Error(),
		"error_code": code.String(),
		"debug":      debug,
		"frames":     in.frames,
	})
	return in.result(false), err
}

func (in *Inspector) handleFrame(f http2.Frame) (FrameSummary, error) {
	sum, err := Summarize(f)
	if err != nil {
		return sum, err
	}

	if in.inBlock && (f.Type != http2.FrameContinuation || f.StreamID != in.blockStream) {
		return sum, http2.NewConnectionError(http2.ErrCodeProtocolError,
			fmt.Sprintf("expected CONTINUATION on stream %d, got %s on stream %d", in.blockStream, f.Type, f.StreamID))
	}

	switch f.Type {
	case http2.FrameHeaders, http2.FramePushPromise:
		in.inBlock = true
		in.blockStream = f.StreamID
	case http2.FrameContinuation:
		if !in.inBlock {
			return sum, http2.NewConnectionError(http2.ErrCodeProtocolError,
				fmt.Sprintf("CONTINUATION on stream %d without an open header block", f.StreamID))
		}
	default:
		return sum, nil
	}

	if in.headers != nil {
		if err := in.headers.DecodeFragment(sum.fragment); err != nil {
			return sum, http2.NewConnectionErrorWithCause(http2.ErrCodeCompressionError, "header block decoding failed", err)
		}
	}
	if sum.EndsHeaderBlock() {
		in.inBlock = false
		if in.headers != nil {
			fields, err := in.headers.FinishDecoding()
			if err != nil {
				return sum, http2.NewConnectionErrorWithCause(http2.ErrCodeCompressionError, "header block decoding failed", err)
			}
			sum.Headers = fields
		}
	}
	sum.fragment = nil
	return sum, nil
}

func (in *Inspector) readPreface(ctx context.Context, ch http2.Channel) error {
	var buf [len(ClientPreface)]byte
	got := 0
	for got < len(buf) {
		n, err := ch.Read(buf[got:])
		if n < 0 || n > len(buf)-got {
			return fmt.Errorf("http2: channel returned invalid count %d", n)
		}
		got += n
		if !bytes.Equal(buf[:got], []byte(ClientPreface[:got])) {
			return http2.NewConnectionError(http2.ErrCodeProtocolError, "invalid client connection preface")
		}
		if got == len(buf) {
			return nil
		}
		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, http2.ErrWouldBlock):
			if err := sleep(ctx, in.opts.IdleBackoff); err != nil {
				return err
			}
		case errors.Is(err, io.EOF):
			if got == 0 {
				return http2.ErrConnectionClosed
			}
			return http2.NewConnectionError(http2.ErrCodeProtocolError,
				fmt.Sprintf("connection closed after %d octets of client preface", got))
		default:
			return fmt.Errorf("http2: reading client preface: %w", err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
