// Package wav loads wav files into interleaved float32 signal and saves
// captured signal back to wav.
package wav

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/signalpath/signalpath"
)

// ErrNotValid is returned when the file is not a readable wav.
var ErrNotValid = errors.New("wav is not valid")

// bitDepth of saved files.
const bitDepth = 16

// Load decodes the whole wav file into interleaved float32 samples
// normalized to [-1, 1]. The returned format carries the file's channel
// count, sample rate and frame count.
func Load(path string) ([]float32, signalpath.Format, error) {
	var f signalpath.Format
	file, err := os.Open(path)
	if err != nil {
		return nil, f, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, f, fmt.Errorf("%w: %v", ErrNotValid, path)
	}
	ib, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, f, fmt.Errorf("decode %v: %w", path, err)
	}

	f.NumChannels = ib.Format.NumChannels
	f.SampleRate = ib.Format.SampleRate
	f.FrameLen = len(ib.Data) / ib.Format.NumChannels

	divider := float32(int(1) << (decoder.BitDepth - 1))
	samples := make([]float32, len(ib.Data))
	for i, v := range ib.Data {
		samples[i] = float32(v) / divider
	}
	return samples, f, nil
}

// Save writes interleaved float32 samples to a 16-bit wav file.
func Save(path string, samples []float32, f signalpath.Format) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	encoder := wav.NewEncoder(file, f.SampleRate, bitDepth, f.NumChannels, 1)

	ib := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: f.NumChannels,
			SampleRate:  f.SampleRate,
		},
		SourceBitDepth: bitDepth,
		Data:           make([]int, len(samples)),
	}
	multiplier := float64(math.MaxInt16 - 1)
	for i, s := range samples {
		ib.Data[i] = int(float64(s) * multiplier)
	}
	if err = encoder.Write(ib); err != nil {
		_ = file.Close()
		return fmt.Errorf("encode %v: %w", path, err)
	}
	if err = encoder.Close(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
