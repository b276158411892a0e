package signalpath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signalpath/signalpath"
)

func TestFormatSamples(t *testing.T) {
	tests := []struct {
		description string
		format      signalpath.Format
		expected    int
	}{
		{"stereo block", signalpath.Format{NumChannels: 2, SampleRate: 48000, FrameLen: 480}, 960},
		{"mono block", signalpath.Format{NumChannels: 1, SampleRate: 44100, FrameLen: 512}, 512},
		{"empty block", signalpath.Format{NumChannels: 2, SampleRate: 48000, FrameLen: 0}, 0},
	}
	for _, test := range tests {
		t.Log(test.description)
		assert.Equal(t, test.expected, test.format.Samples())
	}
}

func TestNewUID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := signalpath.NewUID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate uid")
		seen[id] = true
	}
}
