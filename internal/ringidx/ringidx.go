// Package ringidx provides index arithmetic for fixed-capacity rings.
package ringidx

import "math/bits"

// IsPowerOfTwo states whether the value is a power of two.
func IsPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// RoundToPowerOf2 rounds the value up to the next power of two.
func RoundToPowerOf2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}

	return 1 << bits.Len32(v-1)
}

// Indexer maps monotonically increasing 64 bit counters
// onto positions of a ring with a fixed capacity.
// It uses a bitmask when the capacity is a power of two,
// otherwise it falls back to the modulo operation.
type Indexer struct {
	capacity uint64
	capMask  uint64
	isPow2   bool
}

// NewIndexer returns a new indexer for the given capacity.
func NewIndexer(capacity uint32) Indexer {
	return Indexer{
		capacity: uint64(capacity),
		capMask:  uint64(capacity) - 1,
		isPow2:   IsPowerOfTwo(capacity),
	}
}

// Capacity returns the capacity of the ring.
func (ix Indexer) Capacity() uint64 {
	return ix.capacity
}

// Index returns the ring position for the given counter.
func (ix Indexer) Index(counter uint64) uint64 {
	if ix.isPow2 {
		return counter & ix.capMask
	}

	return counter % ix.capacity
}
