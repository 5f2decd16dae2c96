package testutil

import (
	"bytes"

	"example.com/h2framein/internal/http2"
)

// ClientPreface is the HTTP/2 client connection preface (RFC 7540, Section 3.5).
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// EncodeFrame serializes an unpadded frame. The header length is taken from
// len(payload).
func EncodeFrame(typ http2.FrameType, flags http2.Flags, streamID uint32, payload []byte) []byte {
	fh := http2.FrameHeader{
		Length:   uint32(len(payload)),
		Type:     typ,
		Flags:    flags,
		StreamID: streamID,
	}
	out := fh.AppendTo(make([]byte, 0, http2.FrameHeaderLen+len(payload)))
	return append(out, payload...)
}

// EncodePaddedFrame serializes a frame with the PADDED flag set, a pad length
// octet of padLen, the data, and padLen zero octets of padding.
func EncodePaddedFrame(typ http2.FrameType, flags http2.Flags, streamID uint32, data []byte, padLen uint8) []byte {
	body := make([]byte, 0, 1+len(data)+int(padLen))
	body = append(body, padLen)
	body = append(body, data...)
	body = append(body, make([]byte, padLen)...)
	return EncodeFrame(typ, flags|http2.FlagPadded, streamID, body)
}

// EncodeRawHeader serializes a header whose declared length need not match any
// payload that follows. Used to build malformed input.
func EncodeRawHeader(length uint32, typ http2.FrameType, flags http2.Flags, streamID uint32) []byte {
	fh := http2.FrameHeader{Length: length, Type: typ, Flags: flags, StreamID: streamID}
	return fh.AppendTo(nil)
}

// Concat joins byte slices into one new slice.
func Concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}
