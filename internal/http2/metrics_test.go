package http2

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicTransportMetrics(t *testing.T) {
	var m BasicTransportMetrics
	assert.Equal(t, uint64(0), m.BytesTransferred())
	assert.Equal(t, uint64(0), m.FramesTransferred())

	m.IncrementBytesTransferred(10)
	m.IncrementBytesTransferred(5)
	m.IncrementFramesTransferred()
	assert.Equal(t, uint64(15), m.BytesTransferred())
	assert.Equal(t, uint64(1), m.FramesTransferred())

	m.Reset()
	assert.Equal(t, uint64(0), m.BytesTransferred())
	assert.Equal(t, uint64(0), m.FramesTransferred())
}

func TestBasicTransportMetrics_SharedAcrossGoroutines(t *testing.T) {
	m := NewBasicTransportMetrics()
	const workers, perWorker = 8, 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.IncrementBytesTransferred(2)
				m.IncrementFramesTransferred()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*perWorker*2), m.BytesTransferred())
	assert.Equal(t, uint64(workers*perWorker), m.FramesTransferred())
}

func TestFrameDecoder_MetricsAccessor(t *testing.T) {
	m := NewBasicTransportMetrics()
	d, err := NewFrameDecoderWithMetrics(m, 16)
	if err != nil {
		t.Fatalf("NewFrameDecoderWithMetrics: %v", err)
	}
	var tm TransportMetrics = m
	assert.Equal(t, tm, d.Metrics())
}
