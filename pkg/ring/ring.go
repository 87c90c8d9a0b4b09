// Package ring implements a lock-free single-producer/single-consumer ring
// buffer of fixed-size, cache-line-aligned slots, used to carry frames
// between a producer (platform, kernel fast path) and a consumer (frame
// codec) without heap allocation on the hot path.
package ring

import (
	"errors"
	"sync/atomic"
)

// cacheLineSize matches common x86/arm64 cache line sizes; head and tail
// are padded onto separate lines so producer and consumer writes never
// cause false-sharing invalidation traffic on the other side's cursor.
const cacheLineSize = 64

// ErrFull is returned by Reserve when the ring has no free slot.
var ErrFull = errors.New("ring: full")

// ErrEmpty is returned by Peek when the ring has no committed slot.
var ErrEmpty = errors.New("ring: empty")

// paddedCounter is a 32-bit atomic counter padded to its own cache line.
type paddedCounter struct {
	v   atomic.Uint32
	_   [cacheLineSize - 4]byte
}

// Ring is a fixed-capacity SPSC ring buffer. numSlots must be a power of
// two. Each slot is a []byte of slotSize bytes, backed by one contiguous,
// 64-byte-aligned allocation so individual slots remain independently
// addressable (e.g. for DMA use by a platform backend).
type Ring struct {
	head paddedCounter // producer cursor, advanced by Commit
	tail paddedCounter // consumer cursor, advanced by Release

	mask     uint32
	slotSize int
	backing  []byte
	slots    [][]byte
}

// New constructs a Ring with numSlots slots of slotSize bytes each.
// numSlots must be a power of two and at least 2.
func New(numSlots int, slotSize int) (*Ring, error) {
	if numSlots < 2 || numSlots&(numSlots-1) != 0 {
		return nil, errors.New("ring: numSlots must be a power of two >= 2")
	}
	if slotSize <= 0 {
		return nil, errors.New("ring: slotSize must be positive")
	}

	r := &Ring{
		mask:     uint32(numSlots - 1),
		slotSize: slotSize,
	}

	// Over-allocate by one cache line so we can hand back a 64-byte-aligned
	// window regardless of the allocator's own alignment guarantees.
	r.backing = make([]byte, numSlots*slotSize+cacheLineSize)
	base := alignUp(uintptrOf(r.backing), cacheLineSize) - uintptrOf(r.backing)
	r.slots = make([][]byte, numSlots)
	for i := 0; i < numSlots; i++ {
		off := int(base) + i*slotSize
		r.slots[i] = r.backing[off : off+slotSize]
	}
	return r, nil
}

// Capacity returns the number of slots in the ring.
func (r *Ring) Capacity() int { return int(r.mask) + 1 }

// SlotSize returns the fixed size of each slot.
func (r *Ring) SlotSize() int { return r.slotSize }

// Len returns the current occupancy: committed-but-not-yet-released slots.
// Safe to call from either side; the result may be stale by the time the
// caller acts on it, which is inherent to a concurrent queue.
func (r *Ring) Len() int {
	head := r.head.v.Load()
	tail := r.tail.v.Load()
	return int(head - tail) // unsigned wraparound is correct, per spec.md §4.2
}

// Reserve returns the producer-owned slot at the current head, or ErrFull
// if the ring has no free slot. It never suspends. The caller must write
// into the returned slice and then call Commit exactly once before
// reserving again.
func (r *Ring) Reserve() ([]byte, error) {
	head := r.head.v.Load()
	tail := r.tail.v.Load() // acquire: must observe consumer's latest release
	if head-tail >= uint32(r.Capacity()) {
		return nil, ErrFull
	}
	return r.slots[head&r.mask], nil
}

// Commit publishes the slot most recently returned by Reserve to the
// consumer via a release store of head+1.
func (r *Ring) Commit() {
	r.head.v.Store(r.head.v.Load() + 1)
}

// Peek returns the consumer-owned slot at the current tail, or ErrEmpty if
// no slot has been committed. It never suspends. The caller must read out
// of the returned slice and then call Release exactly once before peeking
// again.
func (r *Ring) Peek() ([]byte, error) {
	tail := r.tail.v.Load()
	head := r.head.v.Load() // acquire: must observe producer's latest commit
	if head == tail {
		return nil, ErrEmpty
	}
	return r.slots[tail&r.mask], nil
}

// Release returns the slot most recently returned by Peek to the producer
// via a release store of tail+1.
func (r *Ring) Release() {
	r.tail.v.Store(r.tail.v.Load() + 1)
}
