//go:build cgo

// Package example shows how the pieces of the signal path compose.
package example

import (
	"time"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/device"
	"github.com/signalpath/signalpath/mp3"
	"github.com/signalpath/signalpath/natspub"
	"github.com/signalpath/signalpath/portaudio"
	"github.com/signalpath/signalpath/source"
	"github.com/signalpath/signalpath/stage"
	"github.com/signalpath/signalpath/wav"
)

// Record captures gated microphone input for the given duration and
// saves it to a wav file.
func Record(path string, d time.Duration) error {
	ctx, err := device.New(portaudio.New(), signalpath.Format{
		NumChannels: 1,
		SampleRate:  48000,
		FrameLen:    480,
	})
	if err != nil {
		return err
	}
	defer ctx.Close()

	tap := stage.NewCapture()
	if err = ctx.Pipeline().AddBlueprint(signalpath.Blueprint{
		Key:   "gate",
		Build: func() signalpath.Stage { return stage.NewGate(-40) },
	}); err != nil {
		return err
	}
	if err = ctx.Pipeline().Add("capture", tap); err != nil {
		return err
	}

	if err = ctx.Start(); err != nil {
		return err
	}
	time.Sleep(d)
	if err = ctx.Stop(); err != nil {
		return err
	}
	return wav.Save(path, tap.Samples(), tap.Format())
}

// Play mixes a wav and an mp3 file into the default output device,
// resampling each to the device rate.
func Play(wavPath, mp3Path string) error {
	ctx, err := device.New(portaudio.New(), signalpath.Format{
		NumChannels: 2,
		SampleRate:  48000,
		FrameLen:    512,
	})
	if err != nil {
		return err
	}
	defer ctx.Close()

	var sources []*source.Source
	for _, load := range []func() ([]float32, signalpath.Format, error){
		func() ([]float32, signalpath.Format, error) { return wav.Load(wavPath) },
		func() ([]float32, signalpath.Format, error) { return mp3.Load(mp3Path) },
	} {
		samples, f, err := load()
		if err != nil {
			return err
		}
		src := source.New(f.NumChannels, f.SampleRate, len(samples)/f.NumChannels)
		src.SetTotal(int64(f.FrameLen))
		src.Enqueue(samples)
		ctx.Mixer().AddSource(src)
		sources = append(sources, src)
	}

	if err = ctx.Start(); err != nil {
		return err
	}
	defer ctx.Stop()

	// let the queues drain
	for {
		time.Sleep(100 * time.Millisecond)
		done := true
		for _, src := range sources {
			if src.Progress() < 1 {
				done = false
			}
		}
		if done {
			return nil
		}
	}
}

// Monitor publishes downmixed capture blocks to a NATS subject for
// remote metering.
func Monitor(natsURL, subject string, d time.Duration) error {
	ctx, err := device.New(portaudio.New(), signalpath.Format{
		NumChannels: 2,
		SampleRate:  48000,
		FrameLen:    480,
	})
	if err != nil {
		return err
	}
	defer ctx.Close()

	tap, conn, err := natspub.Connect(natsURL, subject)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err = ctx.Pipeline().Add("downmix", stage.NewDownmix()); err != nil {
		return err
	}
	if err = ctx.Pipeline().Add("publish", tap); err != nil {
		return err
	}

	if err = ctx.Start(); err != nil {
		return err
	}
	time.Sleep(d)
	return ctx.Stop()
}
