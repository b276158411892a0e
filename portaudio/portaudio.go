//go:build cgo

// Package portaudio implements the device backend on top of portaudio
// default devices.
package portaudio

import (
	"github.com/gordonklaus/portaudio"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/device"
)

// Backend opens portaudio default input and output streams. The
// portaudio callback invokes our closure directly on the audio thread,
// which keeps the context recovery O(1) and lock-free.
type Backend struct{}

// New returns a portaudio backend.
func New() *Backend {
	return &Backend{}
}

// Initialize implements device.Backend.
func (b *Backend) Initialize() error {
	return portaudio.Initialize()
}

// Terminate implements device.Backend.
func (b *Backend) Terminate() error {
	return portaudio.Terminate()
}

// OpenCapture opens the default input device.
func (b *Backend) OpenCapture(f signalpath.Format, cb func(in []float32)) (device.Stream, error) {
	s, err := portaudio.OpenDefaultStream(
		f.NumChannels, 0,
		float64(f.SampleRate), f.FrameLen,
		func(in []float32) { cb(in) },
	)
	if err != nil {
		return nil, err
	}
	return &stream{s: s}, nil
}

// OpenPlayback opens the default output device.
func (b *Backend) OpenPlayback(f signalpath.Format, cb func(out []float32)) (device.Stream, error) {
	s, err := portaudio.OpenDefaultStream(
		0, f.NumChannels,
		float64(f.SampleRate), f.FrameLen,
		func(out []float32) { cb(out) },
	)
	if err != nil {
		return nil, err
	}
	return &stream{s: s}, nil
}

type stream struct {
	s *portaudio.Stream
}

func (s *stream) Start() error { return s.s.Start() }
func (s *stream) Stop() error  { return s.s.Stop() }
func (s *stream) Close() error { return s.s.Close() }
