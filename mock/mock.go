// Package mock provides a manually driven device backend so the signal
// path can be exercised without audio hardware. Tests call Capture and
// Playback to stand in for the native callback periods.
package mock

import (
	"errors"
	"sync"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/device"
)

// Backend is an in-memory device.Backend. Callbacks registered through
// OpenCapture and OpenPlayback fire only when the test drives them.
type Backend struct {
	mu          sync.Mutex
	initialized bool
	captureCb   func(in []float32)
	playbackCb  func(out []float32)
	capture     *Stream
	playback    *Stream

	// FailInitialize makes Initialize return an error.
	FailInitialize bool
}

// Stream records lifecycle calls for assertions.
type Stream struct {
	mu      sync.Mutex
	started bool
	closed  bool
}

// ErrInitialize is returned when the backend is configured to fail.
var ErrInitialize = errors.New("mock backend initialize failure")

// New returns an idle mock backend.
func New() *Backend {
	return &Backend{}
}

// Initialize implements device.Backend.
func (b *Backend) Initialize() error {
	if b.FailInitialize {
		return ErrInitialize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

// Terminate implements device.Backend.
func (b *Backend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = false
	return nil
}

// OpenCapture implements device.Backend.
func (b *Backend) OpenCapture(_ signalpath.Format, cb func(in []float32)) (device.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.captureCb = cb
	b.capture = &Stream{}
	return b.capture, nil
}

// OpenPlayback implements device.Backend.
func (b *Backend) OpenPlayback(_ signalpath.Format, cb func(out []float32)) (device.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playbackCb = cb
	b.playback = &Stream{}
	return b.playback, nil
}

// Capture delivers one block of input frames, as the native capture
// callback would.
func (b *Backend) Capture(in []float32) {
	b.mu.Lock()
	cb := b.captureCb
	b.mu.Unlock()
	if cb != nil {
		cb(in)
	}
}

// Playback asks the context to render one block of output frames and
// returns it.
func (b *Backend) Playback(frames, channels int) []float32 {
	b.mu.Lock()
	cb := b.playbackCb
	b.mu.Unlock()
	out := make([]float32, frames*channels)
	if cb != nil {
		cb(out)
	}
	return out
}

// Initialized reports whether the backend is between Initialize and
// Terminate.
func (b *Backend) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Start implements device.Stream.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Stop implements device.Stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Close implements device.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Started reports whether the stream is running.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
