// Package ring implements the in-process Event Ring (spec component C2):
// a bounded, lock-free, single-producer/single-consumer queue of
// event.Event values. There is exactly one writer (the Dispatcher) and at
// most one reader (the embedding process's poll loop); using it from more
// than one goroutine on either side is undefined.
//
// The synchronization pattern mirrors the classic SPSC ring: the write
// index is published with a release store only after the slot has been
// fully written, and the read index is published with a release store
// only after the slot has been fully consumed. Reads of the counterpart
// index use an acquire load. On amd64 and arm64 (the platforms this
// engine targets) atomic loads/stores of a uint32 already have
// acquire/release semantics; we still route through sync/atomic so the
// intent is explicit and the code stays correct under the race detector
// and on other architectures.
package ring

import (
	"sync/atomic"

	"github.com/GriffinCanCode/retrigger/event"
)

// cacheLinePad separates the hot producer and consumer counters so they
// don't false-share a cache line under contention.
type cacheLinePad [64 - 4]byte

// Ring is a fixed-capacity SPSC queue of event.Event.
type Ring struct {
	capacity uint32
	mask     uint32

	writeIdx atomic.Uint32
	_        cacheLinePad
	readIdx  atomic.Uint32
	_        cacheLinePad

	slots []slot
}

type slot struct {
	event event.Event
}

// New creates a Ring with the given capacity, which must be a power of
// two. It panics if capacity is zero or not a power of two, since that
// would silently break the index-masking arithmetic on every push/pop.
func New(capacity uint32) *Ring {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &Ring{
		capacity: capacity,
		mask:     capacity - 1,
		slots:    make([]slot, capacity),
	}
}

// Push appends an event, returning false if the ring is full. The caller
// must treat false as a drop and increment its own dropped-events
// counter; Push never blocks and never overwrites.
func (r *Ring) Push(e event.Event) bool {
	write := r.writeIdx.Load()
	read := r.readIdx.Load()
	if write-read >= r.capacity {
		return false
	}
	r.slots[write&r.mask].event = e
	r.writeIdx.Store(write + 1)
	return true
}

// Pop removes and returns the oldest event, reporting false when the ring
// is empty.
func (r *Ring) Pop() (event.Event, bool) {
	read := r.readIdx.Load()
	write := r.writeIdx.Load()
	if read == write {
		return event.Event{}, false
	}
	e := r.slots[read&r.mask].event
	r.slots[read&r.mask].event = event.Event{}
	r.readIdx.Store(read + 1)
	return e, true
}

// Len returns a point-in-time occupancy snapshot; it may be stale by one
// slot relative to a concurrent push or pop.
func (r *Ring) Len() int {
	return int(r.writeIdx.Load() - r.readIdx.Load())
}

// Capacity returns the fixed slot count.
func (r *Ring) Capacity() int { return int(r.capacity) }
