package http2

import (
	"errors"
	"fmt"
)

// ErrorCode represents an HTTP/2 error code.
type ErrorCode uint32

// HTTP/2 error codes from RFC 7540 Section 7.
const (
	// ErrCodeNoError (0x0): Graceful shutdown.
	ErrCodeNoError ErrorCode = 0x0
	// ErrCodeProtocolError (0x1): Protocol error detected.
	ErrCodeProtocolError ErrorCode = 0x1
	// ErrCodeInternalError (0x2): Implementation fault.
	ErrCodeInternalError ErrorCode = 0x2
	// ErrCodeFlowControlError (0x3): Flow-control limits exceeded.
	ErrCodeFlowControlError ErrorCode = 0x3
	// ErrCodeSettingsTimeout (0x4): Settings not acknowledged.
	ErrCodeSettingsTimeout ErrorCode = 0x4
	// ErrCodeStreamClosed (0x5): Frame received for already closed stream.
	ErrCodeStreamClosed ErrorCode = 0x5
	// ErrCodeFrameSizeError (0x6): Frame size incorrect.
	ErrCodeFrameSizeError ErrorCode = 0x6
	// ErrCodeRefusedStream (0x7): Stream not processed.
	ErrCodeRefusedStream ErrorCode = 0x7
	// ErrCodeCancel (0x8): Stream cancelled.
	ErrCodeCancel ErrorCode = 0x8
	// ErrCodeCompressionError (0x9): Compression state not maintained.
	ErrCodeCompressionError ErrorCode = 0x9
	// ErrCodeConnectError (0xa): Connection established in error.
	ErrCodeConnectError ErrorCode = 0xa
	// ErrCodeEnhanceYourCalm (0xb): Processing capacity exceeded.
	ErrCodeEnhanceYourCalm ErrorCode = 0xb
	// ErrCodeInadequateSecurity (0xc): Negotiated TLS parameters not acceptable.
	ErrCodeInadequateSecurity ErrorCode = 0xc
	// ErrCodeHTTP11Required (0xd): Use HTTP/1.1 for the request.
	ErrCodeHTTP11Required ErrorCode = 0xd
)

// String returns the string representation of the ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrCodeNoError:
		return "NO_ERROR"
	case ErrCodeProtocolError:
		return "PROTOCOL_ERROR"
	case ErrCodeInternalError:
		return "INTERNAL_ERROR"
	case ErrCodeFlowControlError:
		return "FLOW_CONTROL_ERROR"
	case ErrCodeSettingsTimeout:
		return "SETTINGS_TIMEOUT"
	case ErrCodeStreamClosed:
		return "STREAM_CLOSED"
	case ErrCodeFrameSizeError:
		return "FRAME_SIZE_ERROR"
	case ErrCodeRefusedStream:
		return "REFUSED_STREAM"
	case ErrCodeCancel:
		return "CANCEL"
	case ErrCodeCompressionError:
		return "COMPRESSION_ERROR"
	case ErrCodeConnectError:
		return "CONNECT_ERROR"
	case ErrCodeEnhanceYourCalm:
		return "ENHANCE_YOUR_CALM"
	case ErrCodeInadequateSecurity:
		return "INADEQUATE_SECURITY"
	case ErrCodeHTTP11Required:
		return "HTTP_1_1_REQUIRED"
	default:
		return fmt.Sprintf("UNKNOWN_ERROR_CODE_%d", uint32(e))
	}
}

var (
	// ErrInvalidArgument is wrapped by every constructor validation failure.
	ErrInvalidArgument = errors.New("http2: invalid argument")

	// ErrConnectionClosed reports that the peer closed the byte stream exactly
	// at a frame boundary. It signals orderly shutdown, not corruption.
	ErrConnectionClosed = errors.New("http2: connection closed")

	// ErrCorruptFrame reports that the byte stream ended in the middle of a frame.
	// Errors returned for this condition are *CorruptFrameError values that
	// match ErrCorruptFrame with errors.Is.
	ErrCorruptFrame = errors.New("http2: corrupt or incomplete frame")
)

// ConnectionError represents an error that affects the entire HTTP/2 connection.
// It implements the standard Go error interface.
type ConnectionError struct {
	LastStreamID uint32
	Code         ErrorCode
	Msg          string
	Cause        error // Optional underlying cause
	// DebugData can be used for the AdditionalDebugData in a GOAWAY frame.
	// It should be human-readable and not security-sensitive.
	DebugData []byte
}

// Error returns a string representation of the ConnectionError.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error: %s (last_stream_id %d, code %s, %d): %s", e.Msg, e.LastStreamID, e.Code.String(), e.Code, e.Cause)
	}
	return fmt.Sprintf("connection error: %s (last_stream_id %d, code %s, %d)", e.Msg, e.LastStreamID, e.Code.String(), e.Code)
}

// Unwrap returns the underlying cause of the error, if any.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(code ErrorCode, msg string) *ConnectionError {
	return &ConnectionError{
		Code: code,
		Msg:  msg,
	}
}

// NewConnectionErrorWithCause creates a new ConnectionError with an underlying cause.
func NewConnectionErrorWithCause(code ErrorCode, msg string, cause error) *ConnectionError {
	return &ConnectionError{
		Code:  code,
		Msg:   msg,
		Cause: cause,
	}
}

// CorruptFrameError is returned when the channel reports end of stream while a
// frame is only partially buffered.
type CorruptFrameError struct {
	// Buffered is the number of unread octets left in the decoder buffer.
	Buffered int
	// InPayload is true when the header had already been parsed.
	InPayload bool
	// PayloadLen is the declared payload length of the partial frame, if known.
	PayloadLen int
}

func (e *CorruptFrameError) Error() string {
	if e.InPayload {
		return fmt.Sprintf("%s: stream ended with %d of %d payload octets buffered", ErrCorruptFrame, e.Buffered, e.PayloadLen)
	}
	return fmt.Sprintf("%s: stream ended with %d unread octets", ErrCorruptFrame, e.Buffered)
}

// Unwrap lets errors.Is match ErrCorruptFrame.
func (e *CorruptFrameError) Unwrap() error { return ErrCorruptFrame }

// AsConnectionError reports whether err carries a *ConnectionError.
func AsConnectionError(err error) (*ConnectionError, bool) {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrorCodeOf maps a decode error onto the HTTP/2 error code a session layer
// would report to the peer. Clean closes map to NO_ERROR, corrupt streams to
// PROTOCOL_ERROR and anything else to INTERNAL_ERROR.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeNoError
	}
	if ce, ok := AsConnectionError(err); ok {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrConnectionClosed):
		return ErrCodeNoError
	case errors.Is(err, ErrCorruptFrame):
		return ErrCodeProtocolError
	default:
		return ErrCodeInternalError
	}
}

// GoAwayDetails returns the error code and debug text that a GOAWAY frame
// reporting err would carry. For a *ConnectionError its DebugData wins over
// its Msg; other errors use their Error text.
func GoAwayDetails(err error) (ErrorCode, string) {
	if err == nil {
		return ErrCodeNoError, ""
	}
	if ce, ok := AsConnectionError(err); ok {
		if len(ce.DebugData) > 0 {
			return ce.Code, string(ce.DebugData)
		}
		return ce.Code, ce.Msg
	}
	return ErrorCodeOf(err), err.Error()
}
