package testutil

import (
	"io"
	"sync"
)

// Step is one scripted outcome of ScriptedChannel.
//
// A step with Data is delivered across as many reads as needed; once it is
// drained Err (if any) is returned by the following read. A step with neither
// Data nor Err yields a single (0, nil) read, i.e. "no data right now".
type Step struct {
	Data []byte
	Err  error
}

// ScriptedChannel is a Channel that replays a fixed script of reads, in the
// spirit of a scripted transport. After the script is exhausted it returns
// (0, End); End defaults to io.EOF.
type ScriptedChannel struct {
	mu    sync.Mutex
	steps []Step
	step  int
	off   int

	// MaxRead caps the number of octets handed out per Read when positive.
	MaxRead int
	// End is returned once every step has been consumed.
	End error

	reads     int
	bytesRead int
}

// NewScriptedChannel returns a channel replaying steps and then reporting io.EOF.
func NewScriptedChannel(steps ...Step) *ScriptedChannel {
	return &ScriptedChannel{steps: steps, End: io.EOF}
}

// Chunks returns a script that delivers each chunk as its own step.
func Chunks(chunks ...[]byte) []Step {
	steps := make([]Step, len(chunks))
	for i, c := range chunks {
		steps[i] = Step{Data: c}
	}
	return steps
}

// Split cuts data into pieces of at most size octets.
func Split(data []byte, size int) [][]byte {
	var out [][]byte
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		out = append(out, data)
	}
	return out
}

func (c *ScriptedChannel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	for c.step < len(c.steps) {
		st := c.steps[c.step]
		if c.off < len(st.Data) {
			limit := len(p)
			if c.MaxRead > 0 && c.MaxRead < limit {
				limit = c.MaxRead
			}
			n := copy(p[:limit], st.Data[c.off:])
			c.off += n
			c.bytesRead += n
			if c.off == len(st.Data) && st.Err == nil {
				c.step++
				c.off = 0
			}
			return n, nil
		}
		c.step++
		c.off = 0
		return 0, st.Err
	}
	return 0, c.End
}

// Append adds steps to the end of the script.
func (c *ScriptedChannel) Append(steps ...Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, steps...)
}

// Reads returns how many times Read has been called.
func (c *ScriptedChannel) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// BytesRead returns the total number of octets handed out.
func (c *ScriptedChannel) BytesRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesRead
}
