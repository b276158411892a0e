package stage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/stage"
)

func TestDownmix(t *testing.T) {
	tests := []struct {
		description string
		channels    int
		buf         []float32
		expected    []float32
		expectedCh  int
	}{
		{
			description: "stereo averages to mono",
			channels:    2,
			buf:         []float32{0.2, 0.4, 1, 0, -0.5, 0.5},
			expected:    []float32{0.3, 0.5, 0},
			expectedCh:  1,
		},
		{
			description: "four channels average to mono",
			channels:    4,
			buf:         []float32{1, 1, 1, 1, 0.4, 0, 0, 0},
			expected:    []float32{1, 0.1},
			expectedCh:  1,
		},
		{
			description: "mono is a no-op",
			channels:    1,
			buf:         []float32{0.1, 0.2, 0.3},
			expected:    []float32{0.1, 0.2, 0.3},
			expectedCh:  1,
		},
	}
	for _, test := range tests {
		t.Log(test.description)
		d := stage.NewDownmix()
		f := signalpath.Format{
			NumChannels: test.channels,
			SampleRate:  44100,
			FrameLen:    len(test.buf) / test.channels,
		}
		assert.NoError(t, d.Init(f))
		assert.NoError(t, d.Process(test.buf, &f))
		assert.Equal(t, test.expectedCh, f.NumChannels)
		for i := 0; i < f.FrameLen; i++ {
			assert.InDelta(t, test.expected[i], test.buf[i], 1e-6)
		}
	}
}
