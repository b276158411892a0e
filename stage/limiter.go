package stage

import (
	"math"
	"sync/atomic"

	"github.com/signalpath/signalpath"
)

// Limiter bounds peak amplitude near a configurable ceiling with an
// optional makeup gain. It is a soft limiter: a tanh transfer curve is
// transparent for small signals and saturates smoothly at the ceiling, so
// additive mixing sums can never clip the output. It is meant to be the
// last stage before samples are handed back to the native layer.
//
// Both parameters are single-word atomics and can be adjusted from any
// thread while the stage runs.
type Limiter struct {
	ceiling atomic.Uint64 // dBFS, float64 bits
	makeup  atomic.Uint64 // linear factor, float64 bits
}

// DefaultCeilingDB keeps the output just below full scale.
const DefaultCeilingDB = -0.1

// NewLimiter returns a limiter with the default ceiling and unity makeup
// gain.
func NewLimiter() *Limiter {
	l := &Limiter{}
	l.SetCeiling(DefaultCeilingDB)
	l.SetMakeup(1)
	return l
}

// SetCeiling sets the output ceiling in dBFS.
func (l *Limiter) SetCeiling(db float64) {
	l.ceiling.Store(math.Float64bits(db))
}

// SetMakeup sets the linear gain applied before limiting.
func (l *Limiter) SetMakeup(gain float64) {
	l.makeup.Store(math.Float64bits(gain))
}

// Init implements signalpath.Stage.
func (l *Limiter) Init(signalpath.Format) error { return nil }

// Dispose implements signalpath.Stage.
func (l *Limiter) Dispose() {}

// Process limits the valid samples in place.
func (l *Limiter) Process(buf []float32, _ *signalpath.Format) error {
	ceil := dbToLinear(math.Float64frombits(l.ceiling.Load()))
	makeup := math.Float64frombits(l.makeup.Load())
	for i, s := range buf {
		buf[i] = float32(ceil * math.Tanh(float64(s)*makeup/ceil))
	}
	return nil
}
