package device_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/device"
	"github.com/signalpath/signalpath/mock"
	"github.com/signalpath/signalpath/source"
	"github.com/signalpath/signalpath/stage"
)

func monoFormat() signalpath.Format {
	return signalpath.Format{NumChannels: 1, SampleRate: 48000, FrameLen: 480}
}

func TestContextLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := mock.New()
	ctx, err := device.New(backend, monoFormat())
	require.NoError(t, err)

	require.NoError(t, ctx.Start())
	assert.True(t, backend.Initialized())
	assert.ErrorIs(t, ctx.Start(), device.ErrRunning)

	require.NoError(t, ctx.Stop())
	require.NoError(t, ctx.Start())

	require.NoError(t, ctx.Close())
	assert.ErrorIs(t, ctx.Start(), device.ErrClosed)
	assert.False(t, backend.Initialized())
}

func TestContextInitializeFailure(t *testing.T) {
	backend := mock.New()
	backend.FailInitialize = true
	_, err := device.New(backend, monoFormat())
	assert.ErrorIs(t, err, mock.ErrInitialize)
}

// TestCaptureGateSilence pushes all-zero capture blocks through a gate
// into a capture tap: no energy may come out.
func TestCaptureGateSilence(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := mock.New()
	ctx, err := device.New(backend, monoFormat())
	require.NoError(t, err)
	require.NoError(t, ctx.Start())
	defer func() {
		require.NoError(t, ctx.Close())
	}()

	gate := stage.NewGate(-20)
	gate.Lookahead = 0
	tap := stage.NewCapture()
	require.NoError(t, ctx.Pipeline().Add("gate", gate))
	require.NoError(t, ctx.Pipeline().Add("capture", tap))

	// wait for the tap to catch up after each block, so the observer ring
	// never overflows into its drop policy
	block := make([]float32, 480)
	for i := 0; i < 10; i++ {
		backend.Capture(block)
		want := (i + 1) * 480
		require.Eventually(t, func() bool {
			return tap.Format().FrameLen == want
		}, time.Second, time.Millisecond)
	}
	assert.Zero(t, tap.Energy())
}

// TestCaptureGatePassesTone drives a full-scale 1kHz tone through the
// gate: once the gate is fully open the tone passes unattenuated.
func TestCaptureGatePassesTone(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := mock.New()
	ctx, err := device.New(backend, monoFormat())
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	gate := stage.NewGate(-20)
	gate.Lookahead = 0
	gate.SetAttack(time.Millisecond)
	tap := stage.NewCapture()
	require.NoError(t, ctx.Pipeline().Add("gate", gate))
	require.NoError(t, ctx.Pipeline().Add("capture", tap))

	tone := make([]float32, 480)
	for i := range tone {
		tone[i] = float32(math.Sin(2 * math.Pi * 1000 * float64(i) / 48000))
	}

	const blocks = 5
	for i := 0; i < blocks; i++ {
		block := make([]float32, len(tone))
		copy(block, tone)
		backend.Capture(block)
	}

	require.Eventually(t, func() bool {
		return tap.Format().FrameLen == blocks*480
	}, time.Second, time.Millisecond)
	require.Equal(t, stage.GateOpen, gate.State())

	// the last captured block went through a fully open gate
	got := tap.Samples()
	last := got[len(got)-480:]
	for i := range last {
		assert.InDeltaf(t, tone[i], last[i], 1e-6, "sample %d attenuated", i)
	}

	require.NoError(t, ctx.Close())
}

// TestPlaybackRendersMix wires a source into the mixer and pulls a block
// through the playback callback.
func TestPlaybackRendersMix(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := mock.New()
	ctx, err := device.New(backend, monoFormat())
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	src := source.New(1, 48000, 4096)
	buf := make([]float32, 960)
	for i := range buf {
		buf[i] = 0.25
	}
	src.Enqueue(buf)
	ctx.Mixer().AddSource(src)

	out := backend.Playback(480, 1)
	for i, v := range out {
		// the limiter's tanh curve is near-identity at this level
		assert.InDeltaf(t, 0.25, v, 0.01, "sample %d", i)
	}
	assert.Equal(t, int64(480), src.Played())

	require.NoError(t, ctx.Close())
}

// TestPlaybackLimiterBoundsSum overdrives the mix with several hot
// sources and verifies the limiter keeps the output under full scale.
func TestPlaybackLimiterBoundsSum(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := mock.New()
	ctx, err := device.New(backend, monoFormat())
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	for i := 0; i < 4; i++ {
		src := source.New(1, 48000, 4096)
		buf := make([]float32, 960)
		for j := range buf {
			buf[j] = 0.9
		}
		src.Enqueue(buf)
		ctx.Mixer().AddSource(src)
	}

	out := backend.Playback(480, 1)
	ceiling := float32(math.Pow(10, stage.DefaultCeilingDB/20))
	for i, v := range out {
		assert.LessOrEqualf(t, v, ceiling, "sample %d clipped", i)
		assert.Greater(t, v, float32(0.9), "limited sum should stay hot")
	}

	require.NoError(t, ctx.Close())
}
