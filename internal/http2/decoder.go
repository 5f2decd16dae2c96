package http2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DecodeStatus is the non-error outcome of FrameDecoder.Decode.
type DecodeStatus uint8

const (
	// StatusError accompanies a non-nil error.
	StatusError DecodeStatus = iota
	// StatusFrame means a complete frame was decoded.
	StatusFrame
	// StatusNeedMoreInput means the channel has no more bytes right now.
	StatusNeedMoreInput
)

func (s DecodeStatus) String() string {
	switch s {
	case StatusError:
		return "ERROR"
	case StatusFrame:
		return "FRAME"
	case StatusNeedMoreInput:
		return "NEED_MORE_INPUT"
	default:
		return fmt.Sprintf("UNKNOWN_DECODE_STATUS_%d", uint8(s))
	}
}

type decodeState uint8

const (
	awaitingHeader decodeState = iota
	awaitingPayload
)

// FrameDecoder turns bytes read from a non-blocking Channel into HTTP/2 frames.
//
// It owns a single fixed-size buffer used as a sliding window. Payloads of
// returned frames are views into that buffer and stay valid only until the next
// Decode or Reset call.
//
// A FrameDecoder is not safe for concurrent use.
type FrameDecoder struct {
	metrics        MetricsSink
	maxPayloadSize int

	buf  []byte
	rpos int // next unread octet
	wpos int // end of buffered data

	state      decodeState
	payloadLen int
	frameType  FrameType
	flags      Flags
	streamID   uint32

	// readErr is an error returned together with data by the previous Read.
	// It is reported on the next refill instead of calling Read again.
	readErr error
}

// NewFrameDecoder creates a decoder with an explicit buffer length.
// bufferLen must hold at least a frame header; it should be
// FrameHeaderLen+maxPayloadSize for frames of the maximum size to fit.
func NewFrameDecoder(metrics MetricsSink, bufferLen, maxPayloadSize int) (*FrameDecoder, error) {
	if metrics == nil {
		return nil, fmt.Errorf("%w: transport metrics must not be nil", ErrInvalidArgument)
	}
	if maxPayloadSize <= 0 {
		return nil, fmt.Errorf("%w: maximum payload size must be positive, got %d", ErrInvalidArgument, maxPayloadSize)
	}
	if uint64(maxPayloadSize) > uint64(MaxAllowedFrameSize) {
		return nil, fmt.Errorf("%w: maximum payload size %d exceeds %d", ErrInvalidArgument, maxPayloadSize, MaxAllowedFrameSize)
	}
	if bufferLen <= 0 {
		return nil, fmt.Errorf("%w: buffer length must be positive, got %d", ErrInvalidArgument, bufferLen)
	}
	if bufferLen < FrameHeaderLen {
		return nil, fmt.Errorf("%w: buffer length %d cannot hold a %d octet frame header", ErrInvalidArgument, bufferLen, FrameHeaderLen)
	}
	return &FrameDecoder{
		metrics:        metrics,
		maxPayloadSize: maxPayloadSize,
		buf:            make([]byte, bufferLen),
		state:          awaitingHeader,
	}, nil
}

// NewFrameDecoderWithMetrics creates a decoder whose buffer holds exactly one
// header plus one maximum-size payload.
func NewFrameDecoderWithMetrics(metrics MetricsSink, maxPayloadSize int) (*FrameDecoder, error) {
	return NewFrameDecoder(metrics, FrameHeaderLen+maxPayloadSize, maxPayloadSize)
}

// NewDefaultFrameDecoder creates a decoder reporting into a fresh BasicTransportMetrics.
func NewDefaultFrameDecoder(maxPayloadSize int) (*FrameDecoder, error) {
	return NewFrameDecoderWithMetrics(NewBasicTransportMetrics(), maxPayloadSize)
}

// Decode returns at most one frame per call.
//
// It first tries to complete a frame from already buffered bytes and otherwise
// reads from ch, once per attempt, until a frame is complete, ch has nothing
// more to offer right now (StatusNeedMoreInput, nil error), or a fatal
// condition occurs. On error the decoder must be Reset before further use.
func (d *FrameDecoder) Decode(ch Channel) (Frame, DecodeStatus, error) {
	for {
		if d.state == awaitingHeader && d.wpos-d.rpos >= FrameHeaderLen {
			if err := d.parseHeader(); err != nil {
				return Frame{}, StatusError, err
			}
		}
		if d.state == awaitingPayload && d.wpos-d.rpos >= d.payloadLen {
			f, err := d.parsePayload()
			if err != nil {
				return Frame{}, StatusError, err
			}
			return f, StatusFrame, nil
		}

		d.compact()
		n, err := d.fill(ch)
		if err != nil {
			switch {
			case errors.Is(err, ErrWouldBlock):
				return Frame{}, StatusNeedMoreInput, nil
			case errors.Is(err, io.EOF):
				if d.state != awaitingHeader || d.wpos > d.rpos {
					return Frame{}, StatusError, d.corruptFrameError()
				}
				return Frame{}, StatusError, ErrConnectionClosed
			default:
				return Frame{}, StatusError, fmt.Errorf("http2: reading frame: %w", err)
			}
		}
		if n == 0 {
			return Frame{}, StatusNeedMoreInput, nil
		}
	}
}

func (d *FrameDecoder) parseHeader() error {
	lengthAndType := binary.BigEndian.Uint32(d.buf[d.rpos:])
	payloadLen := int(lengthAndType >> 8)
	if payloadLen > d.maxPayloadSize {
		return NewConnectionError(ErrCodeFrameSizeError,
			fmt.Sprintf("frame payload length %d exceeds maximum %d", payloadLen, d.maxPayloadSize))
	}
	if payloadLen > len(d.buf) {
		return NewConnectionError(ErrCodeFrameSizeError,
			fmt.Sprintf("frame payload length %d exceeds decoder buffer of %d octets", payloadLen, len(d.buf)))
	}
	d.payloadLen = payloadLen
	d.frameType = FrameType(lengthAndType & 0xFF)
	d.flags = Flags(d.buf[d.rpos+4])
	d.streamID = binary.BigEndian.Uint32(d.buf[d.rpos+5:]) & streamIDMask
	d.rpos += FrameHeaderLen
	d.state = awaitingPayload
	return nil
}

func (d *FrameDecoder) parsePayload() (Frame, error) {
	var payload []byte
	if d.flags&FlagPadded == 0 {
		if d.payloadLen > 0 {
			end := d.rpos + d.payloadLen
			payload = d.buf[d.rpos:end:end]
			d.rpos = end
		}
	} else {
		if d.payloadLen == 0 {
			return Frame{}, NewConnectionError(ErrCodeProtocolError,
				fmt.Sprintf("inconsistent padding: padded %s frame on stream %d has no pad length octet", d.frameType, d.streamID))
		}
		padLen := int(d.buf[d.rpos])
		if padLen+1 > d.payloadLen {
			return Frame{}, NewConnectionError(ErrCodeProtocolError,
				fmt.Sprintf("inconsistent padding: pad length %d exceeds %s frame payload of %d octets on stream %d", padLen, d.frameType, d.payloadLen, d.streamID))
		}
		start := d.rpos + 1
		end := start + d.payloadLen - padLen - 1
		payload = d.buf[start:end:end]
		d.rpos += d.payloadLen
	}

	d.state = awaitingHeader
	d.metrics.IncrementFramesTransferred()
	return Frame{
		Type:     d.frameType,
		Flags:    d.flags &^ FlagPadded,
		StreamID: d.streamID,
		Payload:  payload,
	}, nil
}

// fill performs a single read into the free tail of the buffer.
func (d *FrameDecoder) fill(ch Channel) (int, error) {
	if d.readErr != nil {
		err := d.readErr
		d.readErr = nil
		return 0, err
	}
	n, err := ch.Read(d.buf[d.wpos:])
	if n < 0 || n > len(d.buf)-d.wpos {
		return 0, fmt.Errorf("http2: channel returned invalid read count %d", n)
	}
	if n > 0 {
		d.wpos += n
		d.metrics.IncrementBytesTransferred(uint64(n))
		if err != nil {
			d.readErr = err
		}
		return n, nil
	}
	return 0, err
}

// compact slides unread bytes to the start of the buffer, or clears it when
// everything has been consumed.
func (d *FrameDecoder) compact() {
	if d.rpos == 0 {
		return
	}
	if d.rpos < d.wpos {
		d.wpos = copy(d.buf, d.buf[d.rpos:d.wpos])
	} else {
		d.wpos = 0
	}
	d.rpos = 0
}

func (d *FrameDecoder) corruptFrameError() error {
	e := &CorruptFrameError{Buffered: d.wpos - d.rpos}
	if d.state == awaitingPayload {
		e.InPayload = true
		e.PayloadLen = d.payloadLen
	}
	return e
}

// Reset compacts the buffer, keeping unread bytes, and returns the decoder to
// the awaiting-header state, discarding any partially parsed header.
func (d *FrameDecoder) Reset() {
	d.compact()
	d.state = awaitingHeader
	d.payloadLen = 0
	d.frameType = 0
	d.flags = 0
	d.streamID = 0
	d.readErr = nil
}

// Metrics returns the sink the decoder reports into.
func (d *FrameDecoder) Metrics() TransportMetrics { return d.metrics }

// Buffered returns the number of unread octets held in the buffer.
func (d *FrameDecoder) Buffered() int { return d.wpos - d.rpos }

// MaxPayloadSize returns the configured maximum frame payload size.
func (d *FrameDecoder) MaxPayloadSize() int { return d.maxPayloadSize }

// BufferLen returns the fixed capacity of the decoder buffer.
func (d *FrameDecoder) BufferLen() int { return len(d.buf) }
