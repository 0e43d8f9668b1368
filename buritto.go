// Package buritto provides lossless single-producer/single-consumer queues
// for telemetry paths where the producer must never be blocked by a slow or
// absent consumer.
//
// The flagship queue is BuRiTTO (Buffer Ring To Trustily Overrun): instead
// of rejecting a push on a full ring, it evicts the oldest buffered value
// and hands it back to the producer. No value is ever silently dropped:
// every pushed value is either popped by the consumer or returned to the
// producer exactly once.
package buritto

import (
	"sync/atomic"

	"github.com/FerroO2000/buritto/internal/ringidx"
	"golang.org/x/sys/cpu"
)

// taSource states which side created a transaction record.
type taSource uint8

const (
	taSourcePop taSource = iota
	taSourcePush
)

// transaction is one record of the exchange triad.
// It carries a value evicted by the producer (or a stale copy read by the
// consumer) together with the read counter it belongs to.
type transaction[T any] struct {
	value   T
	counter uint64
	source  taSource
}

// BuRiTTO is a lossless SPSC ring buffer that overruns on the producer side.
// Push is wait-free and pop is performed in a bounded number of steps.
//
// T must be trivially copyable: values are moved by plain assignment and a
// copy may race with a concurrent overwrite before being discarded, so T
// must not contain pointers, slices, maps or other indirections.
//
// Exactly one goroutine may call Push and exactly one goroutine may call Pop.
type BuRiTTO[T any] struct {
	indexer ringidx.Indexer

	data []T

	_ cpu.CacheLinePad

	// writeCounter is only written by the producer.
	writeCounter atomic.Uint64

	// readCounterPush is the producer private shadow of the highest read
	// counter the producer has observed or enacted.
	readCounterPush uint64

	// taPush is the index of the triad record owned by the producer.
	taPush uint8

	_ cpu.CacheLinePad

	// readCounterPop is only written by the consumer.
	readCounterPop atomic.Uint64

	// taPop is the index of the triad record owned by the consumer.
	taPop uint8

	_ cpu.CacheLinePad

	// ta is the transaction triad. At any instant one record is owned by the
	// producer, one by the consumer and one is referenced by taPending.
	ta [3]transaction[T]

	// taPending is the only cross-thread mutable reference of the triad.
	// Exchanging it transfers ownership of a whole record between the sides.
	taPending atomic.Uint32
}

// New returns a new BuRiTTO with the given capacity.
// It panics if the capacity is zero.
func New[T any](capacity uint32) *BuRiTTO[T] {
	if capacity == 0 {
		panic("buritto: capacity must be greater than zero")
	}

	b := &BuRiTTO[T]{
		indexer: ringidx.NewIndexer(capacity),

		data: make([]T, capacity),

		taPush: 1,
	}

	b.taPending.Store(2)

	return b
}

// Capacity returns the capacity of the ring.
func (b *BuRiTTO[T]) Capacity() uint64 {
	return b.indexer.Capacity()
}

// Push appends a value to the queue. It never blocks and never fails.
// When the ring is full, the oldest buffered value is evicted and returned
// with overrun set to true. One eviction can travel through the pending
// triad record, so the overrun report may lag one push behind the eviction.
//
// Must only be called by the producer goroutine.
func (b *BuRiTTO[T]) Push(in T) (evicted T, overrun bool) {
	readCounter := b.readCounterPush
	writeCounter := b.writeCounter.Load()

	if writeCounter-readCounter >= b.indexer.Capacity() {
		// The ring is full from the producer's view, begin an eviction
		// transaction on the producer owned triad record.
		ta := &b.ta[b.taPush]

		oldPendingCounter := ta.counter
		ta.source = taSourcePush
		ta.value = b.data[b.indexer.Index(readCounter)]
		readCounter++
		ta.counter = readCounter

		// Hand the eviction over and take ownership of the record that was
		// pending before.
		b.taPush = uint8(b.taPending.Swap(uint32(b.taPush)))

		ta = &b.ta[b.taPush]
		if ta.source == taSourcePush && ta.counter > oldPendingCounter {
			// A previous eviction was never picked up by the consumer, it
			// is handed back to the caller now.
			overrun = true
			evicted = ta.value
		} else if ta.counter > readCounter {
			// The consumer advanced past the value the producer was about
			// to evict, no data was lost.
			readCounter = ta.counter
		}

		b.readCounterPush = readCounter
	}

	b.data[b.indexer.Index(writeCounter)] = in
	b.writeCounter.Store(writeCounter + 1)

	return evicted, overrun
}

// Pop removes and returns the oldest buffered value.
// It reports false if the queue is empty.
//
// Must only be called by the consumer goroutine.
func (b *BuRiTTO[T]) Pop() (T, bool) {
	var out T

	readCounter := b.readCounterPop.Load()
	writeCounter := b.writeCounter.Load()

	if readCounter == writeCounter {
		// Queue is empty
		return out, false
	}

	out = b.data[b.indexer.Index(readCounter)]

	ta := &b.ta[b.taPop]
	ta.source = taSourcePop
	readCounter++
	ta.counter = readCounter

	b.taPop = uint8(b.taPending.Swap(uint32(b.taPop)))

	// The comparison needs to be >= because the producer might already have
	// overwritten the slot that was copied into out.
	ta = &b.ta[b.taPop]
	if ta.counter >= readCounter {
		out = ta.value
		readCounter = ta.counter
	}

	b.readCounterPop.Store(readCounter)

	return out, true
}

// Empty states whether the queue is empty.
// It can be called from either side.
func (b *BuRiTTO[T]) Empty() bool {
	// Checking readCounterPush is not needed: it can only be greater than
	// readCounterPop while the queue is not empty.
	return b.readCounterPop.Load() == b.writeCounter.Load()
}
