package inspect

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/net/http2/hpack"

	"example.com/h2framein/internal/http2"
	"example.com/h2framein/internal/logger"
)

// Setting is one identifier/value pair from a SETTINGS frame.
type Setting struct {
	ID    http2.SettingID
	Value uint32
}

// PriorityParam is the stream dependency block of a PRIORITY frame or a
// HEADERS frame with the PRIORITY flag.
type PriorityParam struct {
	Exclusive        bool
	StreamDependency uint32
	Weight           uint8
}

// GoAwayInfo holds the fields of a GOAWAY frame.
type GoAwayInfo struct {
	LastStreamID uint32
	ErrorCode    http2.ErrorCode
	DebugData    []byte
}

// FrameSummary is an owned, type-aware description of one decoded frame.
// Nothing in it aliases the decoder buffer.
type FrameSummary struct {
	Type     http2.FrameType
	Flags    http2.Flags
	StreamID uint32
	Length   int

	Settings         []Setting
	PingData         []byte
	GoAway           *GoAwayInfo
	WindowIncrement  uint32
	RSTCode          http2.ErrorCode
	Priority         *PriorityParam
	PromisedStreamID uint32

	// Headers is set on the frame that completes a header block.
	Headers []hpack.HeaderField

	// fragment is the header block fragment view for HEADERS, PUSH_PROMISE
	// and CONTINUATION. Valid only until the next Decode.
	fragment []byte
}

func frameSizeError(f http2.Frame, format string, args ...interface{}) error {
	msg := fmt.Sprintf("%s frame on stream %d: ", f.Type, f.StreamID) + fmt.Sprintf(format, args...)
	return http2.NewConnectionError(http2.ErrCodeFrameSizeError, msg)
}

func parsePriority(b []byte) *PriorityParam {
	dep := binary.BigEndian.Uint32(b[0:4])
	return &PriorityParam{
		Exclusive:        dep&0x80000000 != 0,
		StreamDependency: dep & 0x7FFFFFFF,
		Weight:           b[4],
	}
}

// Summarize interprets the payload of f according to its type. Malformed
// fixed-size payloads yield a FRAME_SIZE_ERROR connection error.
func Summarize(f http2.Frame) (FrameSummary, error) {
	p := f.Payload
	s := FrameSummary{Type: f.Type, Flags: f.Flags, StreamID: f.StreamID, Length: len(p)}

	switch f.Type {
	case http2.FrameSettings:
		if f.Flags.Has(http2.FlagSettingsAck) && len(p) != 0 {
			return s, frameSizeError(f, "ACK with %d octet payload", len(p))
		}
		if len(p)%6 != 0 {
			return s, frameSizeError(f, "payload length %d is not a multiple of 6", len(p))
		}
		for i := 0; i < len(p); i += 6 {
			s.Settings = append(s.Settings, Setting{
				ID:    http2.SettingID(binary.BigEndian.Uint16(p[i:])),
				Value: binary.BigEndian.Uint32(p[i+2:]),
			})
		}
	case http2.FramePing:
		if len(p) != 8 {
			return s, frameSizeError(f, "payload length %d, want 8", len(p))
		}
		s.PingData = append([]byte(nil), p...)
	case http2.FrameGoAway:
		if len(p) < 8 {
			return s, frameSizeError(f, "payload length %d, want at least 8", len(p))
		}
		s.GoAway = &GoAwayInfo{
			LastStreamID: binary.BigEndian.Uint32(p[0:4]) & 0x7FFFFFFF,
			ErrorCode:    http2.ErrorCode(binary.BigEndian.Uint32(p[4:8])),
		}
		if len(p) > 8 {
			s.GoAway.DebugData = append([]byte(nil), p[8:]...)
		}
	case http2.FrameWindowUpdate:
		if len(p) != 4 {
			return s, frameSizeError(f, "payload length %d, want 4", len(p))
		}
		s.WindowIncrement = binary.BigEndian.Uint32(p) & 0x7FFFFFFF
	case http2.FrameRSTStream:
		if len(p) != 4 {
			return s, frameSizeError(f, "payload length %d, want 4", len(p))
		}
		s.RSTCode = http2.ErrorCode(binary.BigEndian.Uint32(p))
	case http2.FramePriority:
		if len(p) != 5 {
			return s, frameSizeError(f, "payload length %d, want 5", len(p))
		}
		s.Priority = parsePriority(p)
	case http2.FrameHeaders:
		if f.Flags.Has(http2.FlagHeadersPriority) {
			if len(p) < 5 {
				return s, frameSizeError(f, "payload length %d too short for priority fields", len(p))
			}
			s.Priority = parsePriority(p)
			p = p[5:]
		}
		s.fragment = p
	case http2.FramePushPromise:
		if len(p) < 4 {
			return s, frameSizeError(f, "payload length %d too short for promised stream id", len(p))
		}
		s.PromisedStreamID = binary.BigEndian.Uint32(p[0:4]) & 0x7FFFFFFF
		s.fragment = p[4:]
	case http2.FrameContinuation:
		s.fragment = p
	}
	return s, nil
}

// EndsHeaderBlock reports whether the frame carries END_HEADERS.
func (s FrameSummary) EndsHeaderBlock() bool {
	switch s.Type {
	case http2.FrameHeaders, http2.FramePushPromise, http2.FrameContinuation:
		return s.Flags.Has(http2.FlagHeadersEndHeaders)
	}
	return false
}

// Fields renders the summary for structured logging.
func (s FrameSummary) Fields() logger.LogFields {
	f := logger.LogFields{
		"type":      s.Type.String(),
		"flags":     fmt.Sprintf("0x%x", uint8(s.Flags)),
		"stream_id": s.StreamID,
		"length":    s.Length,
	}
	switch s.Type {
	case http2.FrameSettings:
		settings := make(map[string]uint32, len(s.Settings))
		for _, st := range s.Settings {
			settings[st.ID.String()] = st.Value
		}
		f["settings"] = settings
	case http2.FramePing:
		f["opaque_data"] = hex.EncodeToString(s.PingData)
	case http2.FrameGoAway:
		if s.GoAway != nil {
			f["last_stream_id"] = s.GoAway.LastStreamID
			f["error_code"] = s.GoAway.ErrorCode.String()
			if len(s.GoAway.DebugData) > 0 {
				f["debug_data"] = string(s.GoAway.DebugData)
			}
		}
	case http2.FrameWindowUpdate:
		f["increment"] = s.WindowIncrement
	case http2.FrameRSTStream:
		f["error_code"] = s.RSTCode.String()
	case http2.FramePushPromise:
		f["promised_stream_id"] = s.PromisedStreamID
	}
	if s.Priority != nil {
		f["priority"] = map[string]interface{}{
			"exclusive":  s.Priority.Exclusive,
			"depends_on": s.Priority.StreamDependency,
			"weight":     s.Priority.Weight,
		}
	}
	if len(s.Headers) > 0 {
		hdrs := make([]string, len(s.Headers))
		for i, hf := range s.Headers {
			if hf.Sensitive {
				hdrs[i] = hf.Name + ": <redacted>"
				continue
			}
			hdrs[i] = hf.Name + ": " + hf.Value
		}
		f["headers"] = hdrs
	}
	return f
}
