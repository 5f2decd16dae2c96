package http2

import (
	"encoding/binary"
	"fmt"
)

// FrameType represents an HTTP/2 frame type.
type FrameType uint8

const (
	// FrameData is for DATA frames (0x0).
	FrameData FrameType = 0x0
	// FrameHeaders is for HEADERS frames (0x1).
	FrameHeaders FrameType = 0x1
	// FramePriority is for PRIORITY frames (0x2).
	FramePriority FrameType = 0x2
	// FrameRSTStream is for RST_STREAM frames (0x3).
	FrameRSTStream FrameType = 0x3
	// FrameSettings is for SETTINGS frames (0x4).
	FrameSettings FrameType = 0x4
	// FramePushPromise is for PUSH_PROMISE frames (0x5).
	FramePushPromise FrameType = 0x5
	// FramePing is for PING frames (0x6).
	FramePing FrameType = 0x6
	// FrameGoAway is for GOAWAY frames (0x7).
	FrameGoAway FrameType = 0x7
	// FrameWindowUpdate is for WINDOW_UPDATE frames (0x8).
	FrameWindowUpdate FrameType = 0x8
	// FrameContinuation is for CONTINUATION frames (0x9).
	FrameContinuation FrameType = 0x9
)

// String returns the string representation of the FrameType.
func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameRSTStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	default:
		return fmt.Sprintf("UNKNOWN_FRAME_TYPE_%d", uint8(t))
	}
}

// Flags represents flags for an HTTP/2 frame.
type Flags uint8

// Frame header flags
const (
	// FlagPadded marks a frame whose payload starts with a pad length octet
	// and ends with that many padding octets. DATA, HEADERS and PUSH_PROMISE
	// share the same bit.
	FlagPadded Flags = 0x8

	// FlagDataEndStream indicates that this DATA frame is the last from the sender.
	FlagDataEndStream Flags = 0x1
	// FlagDataPadded indicates that this DATA frame is padded.
	FlagDataPadded = FlagPadded

	// FlagHeadersEndStream indicates that this HEADERS frame is the last from the sender.
	FlagHeadersEndStream Flags = 0x1
	// FlagHeadersEndHeaders indicates that this HEADERS frame contains an entire block of header fields.
	FlagHeadersEndHeaders Flags = 0x4
	// FlagHeadersPadded indicates that this HEADERS frame is padded.
	FlagHeadersPadded = FlagPadded
	// FlagHeadersPriority indicates that this HEADERS frame includes priority information.
	FlagHeadersPriority Flags = 0x20

	// FlagSettingsAck indicates that this SETTINGS frame acknowledges receipt and application of the peer's SETTINGS frame.
	FlagSettingsAck Flags = 0x1

	// FlagPingAck indicates that this PING frame is an acknowledgment.
	FlagPingAck Flags = 0x1

	// FlagContinuationEndHeaders indicates that this CONTINUATION frame contains the end of a header block.
	FlagContinuationEndHeaders Flags = 0x4

	// FlagPushPromiseEndHeaders indicates that this PUSH_PROMISE frame contains an entire block of header fields.
	FlagPushPromiseEndHeaders Flags = 0x4
	// FlagPushPromisePadded indicates that this PUSH_PROMISE frame is padded.
	FlagPushPromisePadded = FlagPadded
)

// Has reports whether all bits of v are set in f.
func (f Flags) Has(v Flags) bool { return f&v == v }

// SettingID represents a SETTINGS parameter identifier.
type SettingID uint16

// SETTINGS parameters from RFC 7540 Section 6.5.2.
const (
	// SettingHeaderTableSize (0x1): Initial size of the HPACK header table.
	SettingHeaderTableSize SettingID = 0x1
	// SettingEnablePush (0x2): Whether server push is enabled.
	SettingEnablePush SettingID = 0x2
	// SettingMaxConcurrentStreams (0x3): Maximum number of concurrent streams.
	SettingMaxConcurrentStreams SettingID = 0x3
	// SettingInitialWindowSize (0x4): Initial window size for flow control.
	SettingInitialWindowSize SettingID = 0x4
	// SettingMaxFrameSize (0x5): Maximum size of a frame payload.
	SettingMaxFrameSize SettingID = 0x5
	// SettingMaxHeaderListSize (0x6): Maximum size of header list.
	SettingMaxHeaderListSize SettingID = 0x6
)

// String returns the string representation of the SettingID.
func (s SettingID) String() string {
	switch s {
	case SettingHeaderTableSize:
		return "SETTINGS_HEADER_TABLE_SIZE"
	case SettingEnablePush:
		return "SETTINGS_ENABLE_PUSH"
	case SettingMaxConcurrentStreams:
		return "SETTINGS_MAX_CONCURRENT_STREAMS"
	case SettingInitialWindowSize:
		return "SETTINGS_INITIAL_WINDOW_SIZE"
	case SettingMaxFrameSize:
		return "SETTINGS_MAX_FRAME_SIZE"
	case SettingMaxHeaderListSize:
		return "SETTINGS_MAX_HEADER_LIST_SIZE"
	default:
		return fmt.Sprintf("UNKNOWN_SETTING_ID_%d", uint16(s))
	}
}

const (
	// DefaultMaxFrameSize is the default maximum frame payload size.
	// "The size of a frame payload is limited by the maximum size that a receiver advertises in the SETTINGS_MAX_FRAME_SIZE setting.
	// This setting can have any value between 2^14 (16,384) and 2^24-1 (16,777,215) octets, inclusive."
	DefaultMaxFrameSize uint32 = 16384 // 2^14
	MaxAllowedFrameSize uint32 = (1 << 24) - 1
	MinAllowedFrameSize uint32 = 16384

	// FrameHeaderLen is the length of the HTTP/2 frame header.
	FrameHeaderLen = 9

	// streamIDMask clears the reserved high bit of a 32-bit stream identifier.
	streamIDMask uint32 = 0x7FFFFFFF
)

// FrameHeader represents the 9-octet header common to all frames.
type FrameHeader struct {
	Length   uint32    // 24 bits
	Type     FrameType // 8 bits
	Flags    Flags     // 8 bits
	StreamID uint32    // 31 bits (R is 1 bit, masked out)
}

// ParseFrameHeader decodes the first FrameHeaderLen bytes of b.
// It panics if b is shorter than FrameHeaderLen.
func ParseFrameHeader(b []byte) FrameHeader {
	_ = b[FrameHeaderLen-1]
	lengthAndType := binary.BigEndian.Uint32(b[0:4])
	return FrameHeader{
		Length:   lengthAndType >> 8,
		Type:     FrameType(lengthAndType & 0xFF),
		Flags:    Flags(b[4]),
		StreamID: binary.BigEndian.Uint32(b[5:9]) & streamIDMask, // Mask out R bit
	}
}

// AppendTo appends the wire form of the header to dst and returns the extended slice.
// Length is truncated to 24 bits and the reserved stream bit is always written as 0.
func (fh FrameHeader) AppendTo(dst []byte) []byte {
	return append(dst,
		byte(fh.Length>>16),
		byte(fh.Length>>8),
		byte(fh.Length),
		byte(fh.Type),
		byte(fh.Flags),
		byte(fh.StreamID>>24)&0x7F,
		byte(fh.StreamID>>16),
		byte(fh.StreamID>>8),
		byte(fh.StreamID),
	)
}

// Frame is a decoded HTTP/2 frame as produced by FrameDecoder.
//
// Payload is nil for a frame that carries no payload octets and is not padded.
// Otherwise it is a view into the decoder's buffer that is only valid until the
// next call to Decode or Reset on the decoder that produced it. Use Clone to keep it.
// The PADDED flag is never set on a decoded frame; padding has already been removed.
type Frame struct {
	Type     FrameType
	Flags    Flags
	StreamID uint32
	Payload  []byte
}

// HasPayload reports whether the frame carries a payload view.
func (f Frame) HasPayload() bool { return f.Payload != nil }

// Clone returns a copy of f whose payload no longer aliases the decoder buffer.
func (f Frame) Clone() Frame {
	if f.Payload != nil {
		p := make([]byte, len(f.Payload))
		copy(p, f.Payload)
		f.Payload = p
	}
	return f
}

// String returns a short human readable description of the frame.
func (f Frame) String() string {
	return fmt.Sprintf("%s stream=%d flags=0x%x len=%d", f.Type, f.StreamID, uint8(f.Flags), len(f.Payload))
}
