// Package source provides a queue-backed playback source that feeds
// interleaved samples into the mixing graph, resampling and remapping
// channels when the source and sink formats differ.
package source

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/buffer"
)

// TotalUnknown marks a source with no known length.
const TotalUnknown = int64(-1)

// lookback is how many frames behind the interpolation cursor the cache
// keeps for the 4-point kernel.
const lookback = 1

// Source is a playback leaf. Any thread enqueues interleaved samples into
// its ring; the render thread drains them, resampling with 4-point
// Catmull-Rom interpolation and remapping channels when the sink format
// differs, and adds the result into the caller's buffer.
type Source struct {
	uid        string
	channels   int
	sampleRate int
	ring       *buffer.Ring

	gain atomic.Uint64 // linear, float64 bits
	mute atomic.Bool
	solo atomic.Bool

	played atomic.Int64
	total  atomic.Int64

	// render thread state
	phase       float64
	cache       []float32 // raw source-domain frames, interleaved
	cacheFrames int
	scratch     []float32
}

// New returns a source for the given raw format with room for
// bufferFrames queued frames.
func New(channels, sampleRate, bufferFrames int) *Source {
	s := &Source{
		uid:        signalpath.NewUID(),
		channels:   channels,
		sampleRate: sampleRate,
		ring:       buffer.New(channels * bufferFrames),
	}
	s.gain.Store(math.Float64bits(1))
	s.total.Store(TotalUnknown)
	return s
}

// UID returns the source id.
func (s *Source) UID() string { return s.uid }

// Channels returns the raw channel count.
func (s *Source) Channels() int { return s.channels }

// SampleRate returns the raw sample rate.
func (s *Source) SampleRate() int { return s.sampleRate }

// Enqueue appends interleaved source-domain samples and returns how many
// were accepted; the excess beyond ring capacity is dropped. Safe to call
// from any single producing thread.
func (s *Source) Enqueue(samples []float32) int {
	return s.ring.Write(samples)
}

// SetGain sets the linear playback gain.
func (s *Source) SetGain(gain float64) {
	s.gain.Store(math.Float64bits(gain))
}

// SetMute silences the source without draining it.
func (s *Source) SetMute(mute bool) { s.mute.Store(mute) }

// Muted reports the mute flag.
func (s *Source) Muted() bool { return s.mute.Load() }

// SetSolo marks the source solo. Solo is resolved tree-wide by the mixer:
// one solo source silences every non-solo sibling in the whole graph.
func (s *Source) SetSolo(solo bool) { s.solo.Store(solo) }

// Solo reports the solo flag.
func (s *Source) Solo() bool { return s.solo.Load() }

// SetTotal declares the total number of source frames this source will
// play, enabling Progress.
func (s *Source) SetTotal(frames int64) { s.total.Store(frames) }

// Played returns the number of source frames consumed by rendering.
// It only ever advances on the render thread.
func (s *Source) Played() int64 { return s.played.Load() }

// Progress returns playback progress in [0, 1], or -1 when the total is
// unknown.
func (s *Source) Progress() float64 {
	total := s.total.Load()
	if total <= 0 {
		return -1
	}
	p := float64(s.played.Load()) / float64(total)
	if p > 1 {
		p = 1
	}
	return p
}

// Buffered returns the duration of queued audio not yet rendered.
func (s *Source) Buffered() time.Duration {
	frames := s.ring.Readable()/s.channels + s.cacheFrames
	return time.Duration(float64(frames) / float64(s.sampleRate) * float64(time.Second))
}

// Dispose drops queued audio. The source must already be removed from any
// mixer node that referenced it.
func (s *Source) Dispose() {
	s.ring.Clear()
	s.cacheFrames = 0
	s.phase = 0
}

// Render adds up to len(dst) samples of playback into dst, which holds
// interleaved sysChannels frames at sysRate. When the raw and sink
// formats match exactly the queue is drained straight into dst; otherwise
// the source interpolates through its frame cache. Underrun adds nothing
// for the missing tail. Render is for the single render thread only.
func (s *Source) Render(dst []float32, sysChannels, sysRate int) {
	if s.mute.Load() || len(dst) == 0 || sysChannels == 0 {
		return
	}
	gain := float32(math.Float64frombits(s.gain.Load()))
	if s.channels == sysChannels && s.sampleRate == sysRate {
		s.renderDirect(dst, gain)
		return
	}
	s.renderResampled(dst, sysChannels, sysRate, gain)
}

func (s *Source) renderDirect(dst []float32, gain float32) {
	if cap(s.scratch) < len(dst) {
		s.scratch = grow(s.scratch, len(dst))
	}
	s.scratch = s.scratch[:len(dst)]
	n := s.ring.Read(s.scratch)
	for i := 0; i < n; i++ {
		dst[i] += s.scratch[i] * gain
	}
	s.played.Add(int64(n / s.channels))
}

func (s *Source) renderResampled(dst []float32, sysChannels, sysRate int, gain float32) {
	frames := len(dst) / sysChannels
	step := float64(s.sampleRate) / float64(sysRate)

	// top up the cache with enough raw frames for the whole block plus
	// the kernel tail
	need := int(s.phase+step*float64(frames)) + 3
	s.fill(need)

	for i := 0; i < frames; i++ {
		idx := int(s.phase)
		// the kernel needs idx-1 .. idx+2; stop on underrun, keeping
		// phase where it is so playback resumes seamlessly
		if idx+2 >= s.cacheFrames {
			break
		}
		frac := float32(s.phase - float64(idx))
		s.interpolate(dst[i*sysChannels:(i+1)*sysChannels], idx, frac, sysChannels, gain)
		s.phase += step
	}

	// drop frames the kernel can no longer reach and re-base the phase by
	// the exact integer dropped, so fractional continuity is preserved
	// across calls
	drop := int(s.phase) - lookback
	if drop > 0 {
		if drop > s.cacheFrames {
			drop = s.cacheFrames
		}
		copy(s.cache, s.cache[drop*s.channels:s.cacheFrames*s.channels])
		s.cacheFrames -= drop
		s.phase -= float64(drop)
		s.played.Add(int64(drop))
	}
}

// fill drains the ring into the cache until it holds need frames or the
// ring runs dry.
func (s *Source) fill(need int) {
	if need <= s.cacheFrames {
		return
	}
	want := (need - s.cacheFrames) * s.channels
	if cap(s.cache) < need*s.channels {
		s.cache = grow(s.cache, need*s.channels)
	}
	s.cache = s.cache[:need*s.channels]
	n := s.ring.Read(s.cache[s.cacheFrames*s.channels : s.cacheFrames*s.channels+want])
	s.cacheFrames += n / s.channels
	s.cache = s.cache[:s.cacheFrames*s.channels]
}

// interpolate writes one output frame from four cached source frames.
func (s *Source) interpolate(out []float32, idx int, frac float32, sysChannels int, gain float32) {
	i0 := idx - 1
	if i0 < 0 {
		i0 = 0
	}
	switch {
	case s.channels == sysChannels:
		for c := 0; c < sysChannels; c++ {
			out[c] += gain * catmullRom(
				s.cache[i0*s.channels+c],
				s.cache[idx*s.channels+c],
				s.cache[(idx+1)*s.channels+c],
				s.cache[(idx+2)*s.channels+c],
				frac,
			)
		}
	case s.channels == 1:
		// mono duplicates into every output channel
		v := gain * catmullRom(s.cache[i0], s.cache[idx], s.cache[idx+1], s.cache[idx+2], frac)
		for c := 0; c < sysChannels; c++ {
			out[c] += v
		}
	default:
		// N source channels average and broadcast to M output channels
		v := gain * catmullRom(
			s.frameAvg(i0),
			s.frameAvg(idx),
			s.frameAvg(idx+1),
			s.frameAvg(idx+2),
			frac,
		)
		for c := 0; c < sysChannels; c++ {
			out[c] += v
		}
	}
}

func (s *Source) frameAvg(idx int) float32 {
	var sum float32
	for c := 0; c < s.channels; c++ {
		sum += s.cache[idx*s.channels+c]
	}
	return sum / float32(s.channels)
}

// catmullRom evaluates the Catmull-Rom spline through y0..y3 at
// fractional position x between y1 and y2.
func catmullRom(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1
	return a0*x*x*x + a1*x*x + a2*x + a3
}

// grow doubles the slice capacity until it fits n, preserving content.
// Buffers grow and never shrink, so steady-state rendering stays
// allocation-free.
func grow(buf []float32, n int) []float32 {
	c := cap(buf)
	if c == 0 {
		c = 1
	}
	for c < n {
		c *= 2
	}
	next := make([]float32, len(buf), c)
	copy(next, buf)
	return next
}
