// Package mp3 loads mp3 files into interleaved float32 signal for
// playback sources.
package mp3

import (
	"fmt"
	"io"
	"math"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/signalpath/signalpath"
)

// Load decodes the whole mp3 file into interleaved float32 samples
// normalized to [-1, 1]. The decoder always produces 16-bit stereo at
// the file's sample rate.
func Load(path string) ([]float32, signalpath.Format, error) {
	var f signalpath.Format
	file, err := os.Open(path)
	if err != nil {
		return nil, f, err
	}
	defer file.Close()

	decoder, err := gomp3.NewDecoder(file)
	if err != nil {
		return nil, f, fmt.Errorf("decode %v: %w", path, err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, f, fmt.Errorf("read %v: %w", path, err)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		samples[i] = float32(v) / float32(math.MaxInt16)
	}

	f.NumChannels = 2
	f.SampleRate = decoder.SampleRate()
	f.FrameLen = len(samples) / 2
	return samples, f, nil
}
