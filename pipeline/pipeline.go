// Package pipeline provides an ordered, mutable-at-runtime collection of
// processing stages with lock-free membership changes.
package pipeline

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/log"
)

// ErrDisposed is returned when a disposed pipeline is mutated.
var ErrDisposed = errors.New("pipeline is disposed")

// ErrUninitialized is returned when a stage is added before Init.
var ErrUninitialized = errors.New("pipeline is not initialized")

type kind uint8

const (
	mutating kind = iota
	observing
)

// entry is one stage in a snapshot, tagged by capability at Add time so
// the hot path dispatches on a cached kind instead of type inspection.
type entry struct {
	key      string
	kind     kind
	mutator  signalpath.Mutator
	observer *observerWorker
}

// snapshot is an immutable ordered stage sequence. The pipeline owns the
// current snapshot; mutation builds a new one and swaps the pointer.
type snapshot struct {
	entries []*entry
}

func (s *snapshot) index(key string) int {
	for i, e := range s.entries {
		if e.key == key {
			return i
		}
	}
	return -1
}

// Pipeline executes mutating stages serially in-line and dispatches
// observing stages off the hot path via their private rings.
//
// Process is called from the audio thread and is RT-safe: it loads the
// current snapshot, walks it once and never blocks, allocates or
// participates in the mutation CAS loop.
type Pipeline struct {
	current  atomic.Pointer[snapshot]
	format   signalpath.Format
	ready    atomic.Bool
	disposed atomic.Bool
	inflight atomic.Int64
	logger   *logrus.Logger
}

// New returns an empty pipeline. Init must be called before stages are
// added.
func New() *Pipeline {
	p := &Pipeline{
		logger: log.GetLogger(),
	}
	p.current.Store(&snapshot{})
	return p
}

// Init stores the stream format used to size observer rings and
// initialize stages added later.
func (p *Pipeline) Init(f signalpath.Format) error {
	if p.disposed.Load() {
		return ErrDisposed
	}
	p.format = f
	p.ready.Store(true)
	return nil
}

// Add inserts a stage at the end of the pipeline. It is idempotent: adding
// a key that is already present is a no-op. The mutation never blocks the
// audio thread; it builds a copy of the current snapshot with the stage
// appended and retries the pointer swap until it lands.
func (p *Pipeline) Add(key string, s signalpath.Stage) error {
	if p.disposed.Load() {
		return ErrDisposed
	}
	if !p.ready.Load() {
		return ErrUninitialized
	}
	e, err := p.newEntry(key, s)
	if err != nil {
		return err
	}
	for {
		if p.disposed.Load() {
			p.teardown(e)
			return ErrDisposed
		}
		cur := p.current.Load()
		if cur.index(key) >= 0 {
			// duplicate add: tear down the entry built for this call
			p.teardown(e)
			return nil
		}
		next := &snapshot{entries: make([]*entry, len(cur.entries), len(cur.entries)+1)}
		copy(next.entries, cur.entries)
		next.entries = append(next.entries, e)
		if p.current.CompareAndSwap(cur, next) {
			if p.disposed.Load() {
				// Dispose swapped its empty snapshot between our disposed
				// check and the CAS, so it never saw this entry; undo it
				p.Remove(key)
				return ErrDisposed
			}
			return nil
		}
	}
}

// AddBlueprint instantiates the blueprint and adds the fresh stage under
// the blueprint key.
func (p *Pipeline) AddBlueprint(b signalpath.Blueprint) error {
	return p.Add(b.Key, b.Build())
}

// Remove takes the stage out of the pipeline and disposes it. Removal is
// ordered before disposal: the snapshot swap happens first, then the call
// waits for in-flight Process calls to drain, so the audio thread can
// never touch a disposed stage.
func (p *Pipeline) Remove(key string) {
	var removed *entry
	for {
		cur := p.current.Load()
		i := cur.index(key)
		if i < 0 {
			return
		}
		removed = cur.entries[i]
		next := &snapshot{entries: make([]*entry, 0, len(cur.entries)-1)}
		next.entries = append(next.entries, cur.entries[:i]...)
		next.entries = append(next.entries, cur.entries[i+1:]...)
		if p.current.CompareAndSwap(cur, next) {
			break
		}
	}
	p.quiesce()
	p.teardown(removed)
}

// Contains reports whether a stage with the key is currently present.
func (p *Pipeline) Contains(key string) bool {
	return p.current.Load().index(key) >= 0
}

// Len returns the number of stages in the current snapshot.
func (p *Pipeline) Len() int {
	return len(p.current.Load().entries)
}

// Process runs one block through the current snapshot, in insertion order.
// Before each stage the valid sub-slice is recomputed from the current
// FrameLen: a prior stage may have shrunk it, including to 0 meaning "no
// valid data", which is honored rather than falling back to the full
// buffer. A stage that faults is logged and skipped for this call only.
func (p *Pipeline) Process(buf []float32, f *signalpath.Format) {
	p.inflight.Add(1)
	defer p.inflight.Add(-1)
	snap := p.current.Load()
	for _, e := range snap.entries {
		n := f.Samples()
		if n > len(buf) {
			n = len(buf)
		}
		valid := buf[:n]
		switch e.kind {
		case mutating:
			p.runMutator(e, valid, f)
		case observing:
			if n > 0 {
				e.observer.enqueue(valid, *f)
			}
		}
	}
}

// runMutator isolates a single stage call: a panic or error degrades to a
// skipped stage, never to a halted audio thread.
func (p *Pipeline) runMutator(e *entry, valid []float32, f *signalpath.Format) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warnf("stage %v fault: %v", e.key, r)
		}
	}()
	if err := e.mutator.Process(valid, f); err != nil {
		p.logger.Warnf("stage %v error: %v", e.key, err)
	}
}

// Dispose removes and disposes every stage and marks the pipeline
// unusable. Observer workers are joined before their stages are disposed.
func (p *Pipeline) Dispose() {
	if !p.disposed.CompareAndSwap(false, true) {
		return
	}
	var last *snapshot
	for {
		last = p.current.Load()
		if p.current.CompareAndSwap(last, &snapshot{}) {
			break
		}
	}
	p.quiesce()
	for _, e := range last.entries {
		p.teardown(e)
	}
}

// quiesce waits until no Process call started against an older snapshot
// is still running. The audio thread stays wait-free; the control thread
// spins briefly.
func (p *Pipeline) quiesce() {
	for p.inflight.Load() != 0 {
		runtime.Gosched()
	}
}

func (p *Pipeline) newEntry(key string, s signalpath.Stage) (*entry, error) {
	if err := s.Init(p.format); err != nil {
		return nil, err
	}
	switch st := s.(type) {
	case signalpath.Mutator:
		return &entry{key: key, kind: mutating, mutator: st}, nil
	case signalpath.Observer:
		return &entry{
			key:      key,
			kind:     observing,
			observer: newObserverWorker(key, st, p.format, p.logger),
		}, nil
	default:
		return nil, errors.New("stage implements neither Mutator nor Observer")
	}
}

func (p *Pipeline) teardown(e *entry) {
	if e.kind == observing {
		e.observer.stop()
		e.observer.stage.Dispose()
		return
	}
	e.mutator.Dispose()
}
