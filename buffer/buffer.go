// Package buffer provides a single-producer/single-consumer ring buffer
// for handing interleaved float32 samples across thread boundaries.
package buffer

import (
	"sync/atomic"
)

// Ring is a fixed-capacity circular buffer of float32 samples.
//
// Exactly one goroutine may call Write and exactly one may call Read;
// concurrent writers or concurrent readers are outside the contract.
// Within that contract no lock is needed: both cursors are free-running
// uint64 counters, only masked when indexing the backing array. The
// producer publishes the write cursor after the payload is stored, the
// consumer publishes the read cursor after the payload is consumed, so
// neither side can observe half-written data.
type Ring struct {
	data  []float32
	mask  uint64
	write atomic.Uint64
	read  atomic.Uint64
}

// New returns a ring with at least the requested sample capacity.
// Capacity is rounded up to a power of 2 so indexing is a single mask.
func New(capacity int) *Ring {
	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}
	return &Ring{
		data: make([]float32, size),
		mask: size - 1,
	}
}

// Cap returns the total sample capacity.
func (r *Ring) Cap() int {
	return len(r.data)
}

// Readable returns the number of samples available to Read.
func (r *Ring) Readable() int {
	return int(r.write.Load() - r.read.Load())
}

// Writable returns the number of samples Write can accept.
func (r *Ring) Writable() int {
	return r.Cap() - r.Readable()
}

// Write copies samples from src into the ring and returns how many were
// accepted. It never blocks and never overwrites unread data: when free
// space runs out the excess is truncated and the short count returned.
// A zero-length write is a no-op returning 0.
func (r *Ring) Write(src []float32) int {
	if len(src) == 0 {
		return 0
	}
	w := r.write.Load()
	free := uint64(len(r.data)) - (w - r.read.Load())
	n := len(src)
	if uint64(n) > free {
		n = int(free)
	}
	if n == 0 {
		return 0
	}
	idx := int(w & r.mask)
	first := len(r.data) - idx
	if first > n {
		first = n
	}
	copy(r.data[idx:], src[:first])
	copy(r.data, src[first:n])
	// Publish after the payload is stored.
	r.write.Store(w + uint64(n))
	return n
}

// Read copies samples into dst and returns how many were available.
// It never blocks: when fewer samples than len(dst) have been written
// the short count is returned. A zero-length read is a no-op returning 0.
func (r *Ring) Read(dst []float32) int {
	if len(dst) == 0 {
		return 0
	}
	rd := r.read.Load()
	avail := r.write.Load() - rd
	n := len(dst)
	if uint64(n) > avail {
		n = int(avail)
	}
	if n == 0 {
		return 0
	}
	idx := int(rd & r.mask)
	first := len(r.data) - idx
	if first > n {
		first = n
	}
	copy(dst[:first], r.data[idx:idx+first])
	copy(dst[first:n], r.data)
	// Publish after the payload is consumed.
	r.read.Store(rd + uint64(n))
	return n
}

// Clear drops all readable samples. It belongs to the consumer side of
// the contract and must not race with Read.
func (r *Ring) Clear() {
	r.read.Store(r.write.Load())
}
