// Package device provides the explicit audio context that owns the
// native backend, the capture pipeline and the root mixer node. It
// replaces ambient global audio state: the context is created at startup
// and injected into everything that needs the signal path.
package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/log"
	"github.com/signalpath/signalpath/mixer"
	"github.com/signalpath/signalpath/pipeline"
	"github.com/signalpath/signalpath/stage"
)

// Backend abstracts the native audio layer: the thing that opens a
// hardware device and invokes a callback with interleaved frames at a
// period of its choosing. Implementations live outside the core
// (portaudio, mocks). The callback closes over its owning context, so
// no global registry is needed to route a native callback back to Go
// state.
type Backend interface {
	Initialize() error
	Terminate() error
	// OpenCapture opens an input stream delivering interleaved frames
	// to the callback.
	OpenCapture(f signalpath.Format, cb func(in []float32)) (Stream, error)
	// OpenPlayback opens an output stream asking the callback to fill
	// interleaved frames.
	OpenPlayback(f signalpath.Format, cb func(out []float32)) (Stream, error)
}

// Stream is a started-stopped native stream handle.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Context lifecycle states.
const (
	stateIdle int32 = iota
	stateRunning
	stateClosed
)

// ErrClosed is returned when a closed context is started.
var ErrClosed = errors.New("device context is closed")

// ErrRunning is returned when a running context is started again.
var ErrRunning = errors.New("device context is already running")

// Context is the audio system entry point. On capture the native
// callback pushes each block through the capture pipeline; on playback
// it renders the root mixer node and runs a final safety limiter before
// handing the buffer back to the native layer.
type Context struct {
	backend Backend
	format  signalpath.Format

	capture *pipeline.Pipeline
	root    *mixer.Node
	limiter *stage.Limiter

	state    atomic.Int32
	mu       sync.Mutex // guards stream open/close, not the hot path
	inStream Stream
	out      Stream
	logger   *logrus.Logger
}

// New creates an idle context for the given stream format.
func New(backend Backend, f signalpath.Format) (*Context, error) {
	if err := backend.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize backend: %w", err)
	}
	c := &Context{
		backend: backend,
		format:  f,
		capture: pipeline.New(),
		root:    mixer.New(f.NumChannels, f.SampleRate),
		limiter: stage.NewLimiter(),
		logger:  log.GetLogger(),
	}
	if err := c.capture.Init(f); err != nil {
		_ = backend.Terminate()
		return nil, err
	}
	if err := c.limiter.Init(f); err != nil {
		_ = backend.Terminate()
		return nil, err
	}
	return c, nil
}

// Pipeline returns the capture pipeline.
func (c *Context) Pipeline() *pipeline.Pipeline { return c.capture }

// Mixer returns the root mixer node.
func (c *Context) Mixer() *mixer.Node { return c.root }

// Limiter returns the output safety limiter.
func (c *Context) Limiter() *stage.Limiter { return c.limiter }

// Format returns the stream format the context was created with.
func (c *Context) Format() signalpath.Format { return c.format }

// Start opens and starts the capture and playback streams. Idle -> Running.
func (c *Context) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state.Load() {
	case stateClosed:
		return ErrClosed
	case stateRunning:
		return ErrRunning
	}

	in, err := c.backend.OpenCapture(c.format, c.onCapture)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	out, err := c.backend.OpenPlayback(c.format, c.onPlayback)
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("open playback: %w", err)
	}
	if err = in.Start(); err != nil {
		_ = in.Close()
		_ = out.Close()
		return fmt.Errorf("start capture: %w", err)
	}
	if err = out.Start(); err != nil {
		_ = in.Stop()
		_ = in.Close()
		_ = out.Close()
		return fmt.Errorf("start playback: %w", err)
	}
	c.inStream, c.out = in, out
	c.state.Store(stateRunning)
	c.logger.Infof("audio context running: %d ch, %d Hz", c.format.NumChannels, c.format.SampleRate)
	return nil
}

// Stop stops and closes the streams. Running -> Idle.
func (c *Context) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Load() != stateRunning {
		return nil
	}
	var errs []error
	for _, s := range []Stream{c.inStream, c.out} {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.inStream, c.out = nil, nil
	c.state.Store(stateIdle)
	return errors.Join(errs...)
}

// Close stops the streams, disposes the graph and terminates the
// backend. The context cannot be restarted.
func (c *Context) Close() error {
	err := c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Load() == stateClosed {
		return err
	}
	c.state.Store(stateClosed)
	c.capture.Dispose()
	c.root.Dispose()
	if terr := c.backend.Terminate(); terr != nil {
		err = errors.Join(err, terr)
	}
	return err
}

// onCapture runs on the capture callback thread. RT-safe: one pipeline
// pass over the block, no allocation, no locks.
func (c *Context) onCapture(in []float32) {
	f := c.format
	f.FrameLen = len(in) / f.NumChannels
	c.capture.Process(in, &f)
}

// onPlayback runs on the playback callback thread. It renders the mixer
// tree additively into the zeroed output block and bounds the sum with
// the safety limiter.
func (c *Context) onPlayback(out []float32) {
	for i := range out {
		out[i] = 0
	}
	f := c.format
	f.FrameLen = len(out) / f.NumChannels
	c.root.Render(out, f.NumChannels, f.SampleRate)
	if err := c.limiter.Process(out[:f.Samples()], &f); err != nil {
		c.logger.Warn("limiter error: ", err)
	}
}
