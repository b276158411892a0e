package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/buffer"
)

// headerLen is the number of samples used to frame one block in an
// observer ring: FrameLen, NumChannels, SampleRate. A block's header and
// payload are published with a single ring write, so the consumer never
// sees a header without its payload.
const headerLen = 3

// ringBlocks is how many nominal blocks an observer ring holds before the
// producer starts dropping.
const ringBlocks = 8

// observerWorker decouples an observing stage from the audio thread. The
// enqueue side runs on the audio callback and only stages a copy and does
// a non-blocking ring write plus a non-blocking wake; the worker goroutine
// drains the ring and calls Observe, where unbounded work is allowed.
type observerWorker struct {
	key     string
	stage   signalpath.Observer
	ring    *buffer.Ring
	staging []float32 // producer side, audio thread only
	block   []float32 // consumer side, worker only
	wake    chan struct{}
	done    chan struct{}
	joined  chan struct{}
	dropped int64
	logger  *logrus.Logger
}

func newObserverWorker(key string, stage signalpath.Observer, f signalpath.Format, logger *logrus.Logger) *observerWorker {
	nominal := headerLen + f.Samples()
	w := &observerWorker{
		key:     key,
		stage:   stage,
		ring:    buffer.New(nominal * ringBlocks),
		staging: make([]float32, nominal*2),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		joined:  make(chan struct{}),
		logger:  logger,
	}
	go w.run()
	return w
}

// enqueue copies the valid block behind a small header and publishes both
// with one write. A block that does not fit entirely is dropped whole;
// partial blocks would desynchronize the framing.
func (w *observerWorker) enqueue(valid []float32, f signalpath.Format) {
	need := headerLen + len(valid)
	if need > len(w.staging) || need > w.ring.Writable() {
		w.dropped++
		return
	}
	w.staging[0] = float32(f.FrameLen)
	w.staging[1] = float32(f.NumChannels)
	w.staging[2] = float32(f.SampleRate)
	copy(w.staging[headerLen:], valid)
	w.ring.Write(w.staging[:need])
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *observerWorker) run() {
	defer close(w.joined)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *observerWorker) drain() {
	var hdr [headerLen]float32
	for w.ring.Readable() >= headerLen {
		w.ring.Read(hdr[:])
		f := signalpath.Format{
			FrameLen:    int(hdr[0]),
			NumChannels: int(hdr[1]),
			SampleRate:  int(hdr[2]),
		}
		n := f.Samples()
		if cap(w.block) < n {
			w.block = make([]float32, n)
		}
		w.block = w.block[:n]
		w.ring.Read(w.block)
		w.observe(w.block, f)
	}
}

// observe isolates the stage the same way the mutating path does: a fault
// kills one block, not the worker.
func (w *observerWorker) observe(block []float32, f signalpath.Format) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warnf("observer %v fault: %v", w.key, r)
		}
	}()
	w.stage.Observe(block, f)
}

// stop signals the worker, lets it drain what is queued and waits for it
// to exit.
func (w *observerWorker) stop() {
	close(w.done)
	<-w.joined
}
