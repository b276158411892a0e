package stage

import (
	"github.com/signalpath/signalpath"
)

// Downmix averages all channels of a block into a single mono channel in
// place and rewrites the format to one channel. Blocks that are already
// mono or channel-less pass through untouched.
type Downmix struct{}

// NewDownmix returns a downmix stage.
func NewDownmix() *Downmix {
	return &Downmix{}
}

// Init implements signalpath.Stage.
func (d *Downmix) Init(signalpath.Format) error { return nil }

// Dispose implements signalpath.Stage.
func (d *Downmix) Dispose() {}

// Process folds the interleaved channels frame by frame. The mono result
// occupies the first FrameLen samples of the buffer.
func (d *Downmix) Process(buf []float32, f *signalpath.Format) error {
	ch := f.NumChannels
	if ch <= 1 {
		return nil
	}
	frames := f.FrameLen
	if frames*ch > len(buf) {
		frames = len(buf) / ch
	}
	inv := 1 / float32(ch)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += buf[i*ch+c]
		}
		buf[i] = sum * inv
	}
	f.NumChannels = 1
	f.FrameLen = frames
	return nil
}
