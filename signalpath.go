package signalpath

import (
	"github.com/rs/xid"
)

// Format describes one block of interleaved float32 audio.
// It is passed by pointer through every mutating stage call: a stage may
// shrink FrameLen to signal that fewer frames are valid than the buffer
// holds, and Downmix rewrites NumChannels. FrameLen == 0 means "no valid
// data" and must be honored as such.
type Format struct {
	NumChannels int
	SampleRate  int
	FrameLen    int
}

// Samples returns the number of valid interleaved samples in a block of
// this format.
func (f Format) Samples() int {
	return f.FrameLen * f.NumChannels
}

// Stage is the common lifecycle of a pipeline stage.
// States are Uninitialized -> Initialized -> Disposed; Init is called once
// before the first processing call, Dispose once after the stage has been
// removed from every snapshot that referenced it.
type Stage interface {
	Init(f Format) error
	Dispose()
}

// Mutator is a stage that rewrites the live buffer in place, synchronously
// on the audio thread. Process must be RT-safe: no blocking, no allocation.
// It may shrink f.FrameLen but never grow it.
type Mutator interface {
	Stage
	Process(buf []float32, f *Format) error
}

// Observer is a stage that never touches the live buffer. The pipeline
// enqueues a copy of each valid block onto the observer's private ring and
// a background worker calls Observe. Observe runs off the audio thread and
// may block, allocate or do I/O.
type Observer interface {
	Stage
	Observe(block []float32, f Format)
}

// Blueprint couples a stable stage key with a factory. Application code
// registers blueprints rather than stage instances so that every pipeline
// gets its own fresh stage and no mutable state leaks across sessions.
type Blueprint struct {
	Key   string
	Build func() Stage
}

// NewUID returns new unique id value.
func NewUID() string {
	return xid.New().String()
}
