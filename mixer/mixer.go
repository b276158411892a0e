// Package mixer provides a hierarchical additive mixing graph. Each node
// sums its children and sources into a persistent local buffer, applies
// gain and mute/solo policy plus an optional post pipeline, then adds the
// result into its parent.
package mixer

import (
	"math"
	"sync/atomic"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/pipeline"
	"github.com/signalpath/signalpath/source"
)

// Node is one mixer in the tree. Children and sources are referenced, not
// owned: membership changes swap copy-on-write slices so the render
// thread never blocks and never sees a torn list. Rendering is recursive,
// depth-first and allocation-free in steady state.
type Node struct {
	uid        string
	channels   int
	sampleRate int

	volume atomic.Uint64 // linear, float64 bits
	mute   atomic.Bool
	solo   atomic.Bool

	children atomic.Pointer[[]*Node]
	sources  atomic.Pointer[[]*source.Source]

	post  *pipeline.Pipeline
	accum []float32
}

// New returns an initialized node mixing the given output format.
func New(channels, sampleRate int) *Node {
	n := &Node{
		uid:        signalpath.NewUID(),
		channels:   channels,
		sampleRate: sampleRate,
		post:       pipeline.New(),
	}
	n.volume.Store(math.Float64bits(1))
	n.children.Store(&[]*Node{})
	n.sources.Store(&[]*source.Source{})
	// FrameLen is nominal here; Render rewrites it per block.
	_ = n.post.Init(signalpath.Format{NumChannels: channels, SampleRate: sampleRate})
	return n
}

// UID returns the node id.
func (n *Node) UID() string { return n.uid }

// Post returns the pipeline run on this node's local mix before it is
// added into the parent.
func (n *Node) Post() *pipeline.Pipeline { return n.post }

// SetVolume sets the master volume applied to the local mix.
func (n *Node) SetVolume(v float64) { n.volume.Store(math.Float64bits(v)) }

// Volume returns the master volume.
func (n *Node) Volume() float64 { return math.Float64frombits(n.volume.Load()) }

// SetMute silences this node's whole subtree.
func (n *Node) SetMute(mute bool) { n.mute.Store(mute) }

// Muted reports the mute flag.
func (n *Node) Muted() bool { return n.mute.Load() }

// SetSolo marks the node solo. Solo is tree-wide: while any node or
// source in the tree is solo, everything that is neither solo nor on a
// path to or from a solo member is silenced.
func (n *Node) SetSolo(solo bool) { n.solo.Store(solo) }

// Solo reports the solo flag.
func (n *Node) Solo() bool { return n.solo.Load() }

// AddChild links a child node. Adding a child twice is a no-op.
func (n *Node) AddChild(child *Node) {
	for {
		cur := n.children.Load()
		for _, c := range *cur {
			if c == child {
				return
			}
		}
		next := make([]*Node, len(*cur), len(*cur)+1)
		copy(next, *cur)
		next = append(next, child)
		if n.children.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// RemoveChild unlinks a child node.
func (n *Node) RemoveChild(child *Node) {
	for {
		cur := n.children.Load()
		i := -1
		for j, c := range *cur {
			if c == child {
				i = j
				break
			}
		}
		if i < 0 {
			return
		}
		next := make([]*Node, 0, len(*cur)-1)
		next = append(next, (*cur)[:i]...)
		next = append(next, (*cur)[i+1:]...)
		if n.children.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// AddSource links a playback source leaf. Adding a source twice is a
// no-op.
func (n *Node) AddSource(src *source.Source) {
	for {
		cur := n.sources.Load()
		for _, s := range *cur {
			if s == src {
				return
			}
		}
		next := make([]*source.Source, len(*cur), len(*cur)+1)
		copy(next, *cur)
		next = append(next, src)
		if n.sources.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// RemoveSource unlinks a source.
func (n *Node) RemoveSource(src *source.Source) {
	for {
		cur := n.sources.Load()
		i := -1
		for j, s := range *cur {
			if s == src {
				i = j
				break
			}
		}
		if i < 0 {
			return
		}
		next := make([]*source.Source, 0, len(*cur)-1)
		next = append(next, (*cur)[:i]...)
		next = append(next, (*cur)[i+1:]...)
		if n.sources.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Dispose disposes the post pipeline. Children and sources belong to the
// caller and are left alone.
func (n *Node) Dispose() {
	n.post.Dispose()
}

// Render adds up to len(dst) interleaved samples of this subtree's mix
// into dst. Called from the render thread on the root node; solo state is
// resolved tree-wide before the pass.
func (n *Node) Render(dst []float32, sysChannels, sysRate int) {
	n.render(dst, sysChannels, sysRate, n.anySolo(), false)
}

// render is one recursive pass. soloActive is the tree-wide flag,
// soloPath is true when an ancestor is solo (everything under a solo node
// plays).
func (n *Node) render(dst []float32, sysChannels, sysRate int, soloActive, soloPath bool) {
	if n.mute.Load() {
		return
	}
	onPath := soloPath || n.solo.Load()
	if soloActive && !onPath && !n.anySolo() {
		// neither solo, nor under a solo ancestor, nor above a solo
		// descendant: silent for this pass
		return
	}

	if cap(n.accum) < len(dst) {
		n.accum = growAccum(n.accum, len(dst))
	}
	local := n.accum[:len(dst)]
	for i := range local {
		local[i] = 0
	}

	for _, child := range *n.children.Load() {
		child.render(local, sysChannels, sysRate, soloActive, onPath)
	}
	for _, src := range *n.sources.Load() {
		if soloActive && !onPath && !src.Solo() {
			continue
		}
		src.Render(local, sysChannels, sysRate)
	}

	if v := float32(n.Volume()); v != 1 {
		for i := range local {
			local[i] *= v
		}
	}

	f := signalpath.Format{
		NumChannels: sysChannels,
		SampleRate:  sysRate,
		FrameLen:    len(dst) / sysChannels,
	}
	n.post.Process(local, &f)

	// add, never overwrite: siblings mix additively into the same parent
	// buffer
	valid := f.Samples()
	if valid > len(dst) {
		valid = len(dst)
	}
	for i := 0; i < valid; i++ {
		dst[i] += local[i]
	}
}

// anySolo reports whether this subtree contains a solo node or source.
func (n *Node) anySolo() bool {
	if n.solo.Load() {
		return true
	}
	for _, src := range *n.sources.Load() {
		if src.Solo() {
			return true
		}
	}
	for _, child := range *n.children.Load() {
		if child.anySolo() {
			return true
		}
	}
	return false
}

// growAccum doubles the accumulation buffer until it fits n samples. The
// buffer grows and never shrinks.
func growAccum(buf []float32, n int) []float32 {
	c := cap(buf)
	if c == 0 {
		c = 1
	}
	for c < n {
		c *= 2
	}
	return make([]float32, n, c)
}
