package stage

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/signalpath/signalpath"
)

// GateState enumerates the gate state machine.
type GateState int32

const (
	// GateClosed fully attenuates below-threshold audio.
	GateClosed GateState = iota
	// GateAttacking ramps the gain open after the threshold is crossed.
	GateAttacking
	// GateOpen passes audio unattenuated.
	GateOpen
	// GateHolding keeps the gate open for the hold time after the signal
	// falls below threshold.
	GateHolding
	// GateReleasing ramps the gain closed after the hold time expired.
	GateReleasing
)

// Gate is a noise gate driven by a peak envelope follower with
// independent attack, hold and release time constants and a lookahead
// window: the detector sees each frame before the gain is applied to it,
// so transients open the gate before their first sample is attenuated.
//
// Threshold, attack, hold and release are live-adjustable from any thread;
// the audio thread reads them as single-word atomics once per block.
type Gate struct {
	threshold atomic.Uint64 // dBFS, float64 bits
	attack    atomic.Uint64 // seconds, float64 bits
	hold      atomic.Uint64 // seconds, float64 bits
	release   atomic.Uint64 // seconds, float64 bits
	state     atomic.Int32

	// Lookahead is the detector lead time. It takes effect at Init.
	Lookahead time.Duration

	// audio thread state
	env        float64
	gain       float64
	held       float64
	envDecay   float64
	look       []float32
	lookFrames int
	lookPos    int
	channels   int
	sampleRate int
}

// envDecayTime is the fixed decay constant of the peak follower.
const envDecayTime = 0.050

// NewGate returns a gate with the given threshold and sensible envelope
// defaults: 2ms attack, 150ms hold, 80ms release, 5ms lookahead.
func NewGate(thresholdDB float64) *Gate {
	g := &Gate{Lookahead: 5 * time.Millisecond}
	g.SetThreshold(thresholdDB)
	g.SetAttack(2 * time.Millisecond)
	g.SetHold(150 * time.Millisecond)
	g.SetRelease(80 * time.Millisecond)
	return g
}

// SetThreshold sets the open threshold in dBFS.
func (g *Gate) SetThreshold(db float64) {
	g.threshold.Store(math.Float64bits(db))
}

// SetAttack sets the gain ramp-up time.
func (g *Gate) SetAttack(d time.Duration) {
	g.attack.Store(math.Float64bits(d.Seconds()))
}

// SetHold sets how long the gate stays open after the signal falls below
// threshold.
func (g *Gate) SetHold(d time.Duration) {
	g.hold.Store(math.Float64bits(d.Seconds()))
}

// SetRelease sets the gain ramp-down time.
func (g *Gate) SetRelease(d time.Duration) {
	g.release.Store(math.Float64bits(d.Seconds()))
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	return GateState(g.state.Load())
}

// Init sizes the lookahead delay line for the stream format.
func (g *Gate) Init(f signalpath.Format) error {
	g.channels = f.NumChannels
	g.sampleRate = f.SampleRate
	g.lookFrames = int(g.Lookahead.Seconds() * float64(f.SampleRate))
	if g.lookFrames > 0 {
		g.look = make([]float32, g.lookFrames*f.NumChannels)
	}
	g.envDecay = math.Exp(-1 / (envDecayTime * float64(f.SampleRate)))
	g.gain = 0
	g.state.Store(int32(GateClosed))
	return nil
}

// Dispose implements signalpath.Stage.
func (g *Gate) Dispose() {}

// Process gates one block in place. Frames leave the stage delayed by the
// lookahead window while the detector runs on the undelayed signal.
func (g *Gate) Process(buf []float32, f *signalpath.Format) error {
	ch := f.NumChannels
	if ch == 0 || f.FrameLen == 0 {
		return nil
	}
	if ch != g.channels {
		// channel layout changed upstream, restart the delay line
		g.channels = ch
		if g.lookFrames > 0 {
			g.look = make([]float32, g.lookFrames*ch)
		}
		g.lookPos = 0
	}

	thLin := dbToLinear(math.Float64frombits(g.threshold.Load()))
	attackStep := stepPerFrame(math.Float64frombits(g.attack.Load()), g.sampleRate)
	releaseStep := stepPerFrame(math.Float64frombits(g.release.Load()), g.sampleRate)
	holdTime := math.Float64frombits(g.hold.Load())
	dt := 1 / float64(g.sampleRate)

	frames := f.FrameLen
	if frames*ch > len(buf) {
		frames = len(buf) / ch
	}
	for i := 0; i < frames; i++ {
		frame := buf[i*ch : i*ch+ch]

		// detector runs on the incoming frame
		var level float64
		for _, s := range frame {
			if v := math.Abs(float64(s)); v > level {
				level = v
			}
		}
		if level > g.env {
			g.env = level
		} else {
			g.env *= g.envDecay
		}
		g.advance(g.env >= thLin, attackStep, releaseStep, holdTime, dt)

		// gain applies to the delayed frame
		if g.lookFrames > 0 {
			off := g.lookPos * ch
			for c := 0; c < ch; c++ {
				delayed := g.look[off+c]
				g.look[off+c] = frame[c]
				frame[c] = delayed
			}
			g.lookPos++
			if g.lookPos == g.lookFrames {
				g.lookPos = 0
			}
		}
		gain := float32(g.gain)
		for c := 0; c < ch; c++ {
			frame[c] *= gain
		}
	}
	return nil
}

// advance moves the state machine by one frame.
func (g *Gate) advance(open bool, attackStep, releaseStep, holdTime, dt float64) {
	switch GateState(g.state.Load()) {
	case GateClosed:
		g.gain = 0
		if open {
			g.state.Store(int32(GateAttacking))
		}
	case GateAttacking:
		g.gain += attackStep
		if g.gain >= 1 {
			g.gain = 1
			g.state.Store(int32(GateOpen))
		} else if !open {
			g.state.Store(int32(GateReleasing))
		}
	case GateOpen:
		g.gain = 1
		if !open {
			g.held = holdTime
			g.state.Store(int32(GateHolding))
		}
	case GateHolding:
		g.gain = 1
		if open {
			g.state.Store(int32(GateOpen))
			return
		}
		g.held -= dt
		if g.held <= 0 {
			g.state.Store(int32(GateReleasing))
		}
	case GateReleasing:
		if open {
			g.state.Store(int32(GateAttacking))
			return
		}
		g.gain -= releaseStep
		if g.gain <= 0 {
			g.gain = 0
			g.state.Store(int32(GateClosed))
		}
	}
}

// stepPerFrame converts a ramp time in seconds to a per-frame gain step.
func stepPerFrame(seconds float64, sampleRate int) float64 {
	samples := seconds * float64(sampleRate)
	if samples < 1 {
		return 1
	}
	return 1 / samples
}
