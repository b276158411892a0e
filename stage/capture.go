package stage

import (
	"sync"
	"time"

	"github.com/signalpath/signalpath"
)

// Capture is an observing stage that accumulates every block it sees.
// It runs entirely on its observer worker, so the growing sample slice
// never costs the audio thread anything. The recorded signal can be
// inspected or exported once capture is done.
type Capture struct {
	mu      sync.Mutex
	format  signalpath.Format
	samples []float32
}

// NewCapture returns an empty capture tap.
func NewCapture() *Capture {
	return &Capture{}
}

// Init remembers the stream format.
func (c *Capture) Init(f signalpath.Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = f
	return nil
}

// Dispose implements signalpath.Stage.
func (c *Capture) Dispose() {}

// Observe appends the block to the recording. Blocks may arrive with a
// different format than Init saw (a downmix upstream); the latest block
// format wins.
func (c *Capture) Observe(block []float32, f signalpath.Format) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format.NumChannels = f.NumChannels
	c.format.SampleRate = f.SampleRate
	c.samples = append(c.samples, block...)
}

// Samples returns a copy of the recorded interleaved samples.
func (c *Capture) Samples() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]float32, len(c.samples))
	copy(cp, c.samples)
	return cp
}

// Format returns the format of the recorded signal.
func (c *Capture) Format() signalpath.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.format
	f.FrameLen = len(c.samples) / maxInt(f.NumChannels, 1)
	return f
}

// Duration returns the recorded duration.
func (c *Capture) Duration() time.Duration {
	f := c.Format()
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(f.FrameLen) / float64(f.SampleRate) * float64(time.Second))
}

// Energy returns the sum of squared recorded samples. An all-zero capture
// has zero energy.
func (c *Capture) Energy() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var e float64
	for _, s := range c.samples {
		e += float64(s) * float64(s)
	}
	return e
}

// Reset drops the recording.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = c.samples[:0]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
