package mixer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/mixer"
	"github.com/signalpath/signalpath/source"
)

const (
	sysChannels = 2
	sysRate     = 48000
	frames      = 16
)

// newConstSource returns a source queued with enough constant-value
// frames in the system format for several render calls.
func newConstSource(value float32) *source.Source {
	s := source.New(sysChannels, sysRate, 4096)
	buf := make([]float32, 1024*sysChannels)
	for i := range buf {
		buf[i] = value
	}
	s.Enqueue(buf)
	return s
}

func render(n *mixer.Node) []float32 {
	dst := make([]float32, frames*sysChannels)
	n.Render(dst, sysChannels, sysRate)
	return dst
}

func assertAll(t *testing.T, buf []float32, expected float32) {
	t.Helper()
	for i, v := range buf {
		assert.InDeltaf(t, expected, v, 1e-5, "sample %d", i)
	}
}

func TestMixerAdditive(t *testing.T) {
	root := mixer.New(sysChannels, sysRate)
	defer root.Dispose()
	a := newConstSource(0.2)
	b := newConstSource(0.2)
	root.AddSource(a)
	root.AddSource(b)

	// two sources at V sum to 2V
	assertAll(t, render(root), 0.4)
}

func TestMixerMuteSource(t *testing.T) {
	root := mixer.New(sysChannels, sysRate)
	defer root.Dispose()
	a := newConstSource(0.2)
	b := newConstSource(0.3)
	root.AddSource(a)
	root.AddSource(b)

	a.SetMute(true)
	assertAll(t, render(root), 0.3)
}

func TestMixerMuteShortCircuitsSubtree(t *testing.T) {
	root := mixer.New(sysChannels, sysRate)
	child := mixer.New(sysChannels, sysRate)
	defer root.Dispose()
	defer child.Dispose()
	root.AddChild(child)
	child.AddSource(newConstSource(0.5))
	root.AddSource(newConstSource(0.1))

	child.SetMute(true)
	assertAll(t, render(root), 0.1)
}

func TestMixerMasterVolume(t *testing.T) {
	root := mixer.New(sysChannels, sysRate)
	defer root.Dispose()
	root.AddSource(newConstSource(0.4))
	root.SetVolume(0.5)

	assertAll(t, render(root), 0.2)
}

func TestMixerSoloSilencesSiblingsTreeWide(t *testing.T) {
	// root
	//  ├─ left  ── soloed source (0.2), plain source (0.3)
	//  └─ right ── plain source (0.5)
	root := mixer.New(sysChannels, sysRate)
	left := mixer.New(sysChannels, sysRate)
	right := mixer.New(sysChannels, sysRate)
	defer root.Dispose()
	defer left.Dispose()
	defer right.Dispose()
	root.AddChild(left)
	root.AddChild(right)

	soloed := newConstSource(0.2)
	left.AddSource(soloed)
	left.AddSource(newConstSource(0.3))
	right.AddSource(newConstSource(0.5))

	soloed.SetSolo(true)

	// only the solo source plays, even across subtrees
	assertAll(t, render(root), 0.2)

	soloed.SetSolo(false)
	assertAll(t, render(root), 1.0)
}

func TestMixerSoloNodePlaysWholeSubtree(t *testing.T) {
	root := mixer.New(sysChannels, sysRate)
	left := mixer.New(sysChannels, sysRate)
	right := mixer.New(sysChannels, sysRate)
	defer root.Dispose()
	defer left.Dispose()
	defer right.Dispose()
	root.AddChild(left)
	root.AddChild(right)

	left.AddSource(newConstSource(0.2))
	left.AddSource(newConstSource(0.3))
	right.AddSource(newConstSource(0.5))

	left.SetSolo(true)

	// everything under the solo node plays, the sibling subtree is silent
	assertAll(t, render(root), 0.5)
}

func TestMixerRemove(t *testing.T) {
	root := mixer.New(sysChannels, sysRate)
	child := mixer.New(sysChannels, sysRate)
	defer root.Dispose()
	defer child.Dispose()
	src := newConstSource(0.2)
	root.AddSource(src)
	root.AddChild(child)
	child.AddSource(newConstSource(0.3))

	root.RemoveSource(src)
	assertAll(t, render(root), 0.3)

	root.RemoveChild(child)
	assertAll(t, render(root), 0)
}

// halver is a post stage cutting the local mix in half.
type halver struct{}

func (halver) Init(signalpath.Format) error { return nil }
func (halver) Dispose()                     {}
func (halver) Process(buf []float32, _ *signalpath.Format) error {
	for i := range buf {
		buf[i] /= 2
	}
	return nil
}

func TestMixerPostPipeline(t *testing.T) {
	root := mixer.New(sysChannels, sysRate)
	child := mixer.New(sysChannels, sysRate)
	defer root.Dispose()
	defer child.Dispose()
	root.AddChild(child)
	child.AddSource(newConstSource(0.8))

	require.NoError(t, child.Post().Add("half", halver{}))

	// the post stage applies to the child's local mix before it is added
	// into the root
	assertAll(t, render(root), 0.4)
}
