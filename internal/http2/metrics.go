package http2

import "sync/atomic"

// TransportMetrics exposes the transport counters maintained by a decoder.
type TransportMetrics interface {
	// BytesTransferred is the sum of all positive channel read sizes.
	BytesTransferred() uint64
	// FramesTransferred is the number of frames successfully decoded.
	FramesTransferred() uint64
}

// MetricsSink is a TransportMetrics that a decoder can report into.
type MetricsSink interface {
	TransportMetrics
	IncrementBytesTransferred(n uint64)
	IncrementFramesTransferred()
}

// BasicTransportMetrics is the default MetricsSink. The zero value is ready to use
// and safe for concurrent use, so one instance may be shared by several connections.
type BasicTransportMetrics struct {
	bytes  atomic.Uint64
	frames atomic.Uint64
}

// NewBasicTransportMetrics returns a zeroed metrics sink.
func NewBasicTransportMetrics() *BasicTransportMetrics {
	return &BasicTransportMetrics{}
}

func (m *BasicTransportMetrics) BytesTransferred() uint64  { return m.bytes.Load() }
func (m *BasicTransportMetrics) FramesTransferred() uint64 { return m.frames.Load() }

func (m *BasicTransportMetrics) IncrementBytesTransferred(n uint64) { m.bytes.Add(n) }
func (m *BasicTransportMetrics) IncrementFramesTransferred()        { m.frames.Add(1) }

// Reset zeroes both counters.
func (m *BasicTransportMetrics) Reset() {
	m.bytes.Store(0)
	m.frames.Store(0)
}
