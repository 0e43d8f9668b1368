// Package roquet implements RoQueT (Robust Queue Transfer), a prototype
// SPSC ring whose coordination state lives on the slots themselves instead
// of in monotonic counters.
//
// Per-slot tags make the queue crash-resilience friendly: a crashed agent
// leaves the ring in a state that is fully describable by inspecting the
// slots, which is the building block for a zero-copy IPC where either
// endpoint may be restarted. Crash recovery itself is not implemented here,
// only the state layout that would enable it.
//
// Like BuRiTTO, the queue overruns on the producer side when full: the
// oldest buffered value is evicted and handed back to the producer.
package roquet

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var (
	// ErrProducerClaimed is returned when the producer handle was already issued.
	ErrProducerClaimed = errors.New("roquet: producer handle already claimed")
	// ErrConsumerClaimed is returned when the consumer handle was already issued.
	ErrConsumerClaimed = errors.New("roquet: consumer handle already claimed")
	// ErrCorruptState is returned when an operation cannot re-establish the
	// queue invariants. It is terminal for the queue instance.
	ErrCorruptState = errors.New("roquet: queue state is corrupt")
)

// maxPopAttempts bounds the consumer loop. A pop never needs anywhere near
// this many attempts on an intact queue, exceeding the budget is reported
// as a corrupt state.
const maxPopAttempts = 10_000

// Queue is an SPSC ring with per-slot state tags. The ring is two slots
// larger than the requested capacity: one slot is the end marker separating
// the consumer side from the producer side and one is the consumer's empty
// head slot. When the producer wraps onto the head slot, that slot becomes
// the end marker, so capacity+1 values fit before the first overrun.
//
// T must be trivially copyable: the data copy may race with a state update
// and stays sound only because the state flags gate reader acceptance.
//
// The two endpoints are driven through the Producer and Consumer handles,
// issued at most once each.
type Queue[T any] struct {
	// state holds the per-slot tags. The tags are 8 bit values, they are
	// kept in 32 bit atomics because the runtime provides no smaller ones.
	state []atomic.Uint32

	data []T

	internalCapacity uint32

	_ cpu.CacheLinePad

	producerClaimed atomic.Bool
	consumerClaimed atomic.Bool
}

// New returns a new RoQueT with the given capacity.
// It panics if the capacity is zero.
func New[T any](capacity uint32) *Queue[T] {
	if capacity == 0 {
		panic("roquet: capacity must be greater than zero")
	}

	internalCapacity := capacity + 2

	q := &Queue[T]{
		state: make([]atomic.Uint32, internalCapacity),
		data:  make([]T, internalCapacity),

		internalCapacity: internalCapacity,
	}

	for idx := range q.state {
		q.state[idx].Store(uint32(StateEmpty))
	}
	q.state[1].Store(uint32(StateEnd))

	return q
}

// Producer issues the producer handle.
// The second call returns ErrProducerClaimed.
func (q *Queue[T]) Producer() (*Producer[T], error) {
	if !q.producerClaimed.CompareAndSwap(false, true) {
		return nil, ErrProducerClaimed
	}

	return &Producer[T]{
		queue: q,
		tail:  1,
	}, nil
}

// Consumer issues the consumer handle.
// The second call returns ErrConsumerClaimed.
func (q *Queue[T]) Consumer() (*Consumer[T], error) {
	if !q.consumerClaimed.CompareAndSwap(false, true) {
		return nil, ErrConsumerClaimed
	}

	return &Consumer[T]{
		queue: q,
		head:  0,
	}, nil
}

func (q *Queue[T]) loadState(position uint32) State {
	return State(q.state[position].Load())
}

func (q *Queue[T]) casState(position uint32, expected, newState State) bool {
	return q.state[position].CompareAndSwap(uint32(expected), uint32(newState))
}

// Producer is the push endpoint of the queue.
// It must only be used by a single goroutine.
type Producer[T any] struct {
	queue *Queue[T]

	// tail is the producer private position, it wraps over the internal capacity.
	tail uint32
}

// Push appends a value to the queue. On overrun the evicted value is
// returned with overrun set to true.
//
// ErrCorruptState is returned when the end marker cannot be re-established,
// in that case the value is not enqueued and no eviction is reported.
func (p *Producer[T]) Push(in T) (evicted T, overrun bool, err error) {
	q := p.queue

	currentPosition := p.tail
	nextPosition := currentPosition + 1
	if nextPosition >= q.internalCapacity {
		nextPosition = 0
	}

	newState := StateEnd | StateOverflow
	expectedState := StateData

	for {
		if q.casState(nextPosition, expectedState, newState) {
			if expectedState.Has(StateData) {
				// The end marker landed on unread data, evict it
				evicted = q.data[nextPosition]
				overrun = true
			}
			break
		}

		// The consumer may have set the inspected flag concurrently,
		// re-choose the target based on the freshly observed flags.
		expectedState = q.loadState(nextPosition)
		if expectedState.Has(StateData) {
			newState = StateEnd | StateOverflow
		} else {
			newState = StateEnd
		}
	}

	if !q.loadState(nextPosition).Has(StateEnd) {
		// At this point the next tail position must carry the end marker
		var zero T
		return zero, false, ErrCorruptState
	}

	q.data[currentPosition] = in
	// Publishing data also clears a pending inspected flag on the slot
	q.state[currentPosition].Store(uint32(StateData))

	p.tail = nextPosition

	return evicted, overrun, nil
}

// Empty states whether the queue looks empty from the producer side.
// It is a best-effort observation.
func (p *Producer[T]) Empty() bool {
	precedingPosition := p.tail
	if precedingPosition == 0 {
		precedingPosition = p.queue.internalCapacity
	}
	precedingPosition--

	return !p.queue.loadState(precedingPosition).Has(StateData)
}

// Consumer is the pop endpoint of the queue.
// It must only be used by a single goroutine.
type Consumer[T any] struct {
	queue *Queue[T]

	// head is the consumer private position, it wraps over the internal capacity.
	head uint32
}

// Pop removes and returns the oldest buffered value. It reports ok == false
// with a nil error when the queue is empty.
//
// ErrCorruptState is returned when the attempt budget is exhausted, which
// cannot happen on an intact queue.
func (c *Consumer[T]) Pop() (val T, ok bool, err error) {
	q := c.queue

	currentPosition := c.head
	nextPosition := currentPosition + 1

	for range maxPopAttempts {
		if nextPosition >= q.internalCapacity {
			nextPosition = 0
		}

		stateNextPosition := q.loadState(nextPosition)
		stateCurrentPosition := q.loadState(currentPosition)

		if stateCurrentPosition.Has(StateEmpty) && stateNextPosition.Has(StateEnd|StatePending) {
			// Queue is empty
			var zero T
			return zero, false, nil
		}

		// Set the inspected flag to prevent the ABA problem on a
		// wrap-around. Only the consumer sets it, the producer resets it
		// when new data is published.
		if !stateNextPosition.Has(StateInspected) {
			if !q.casState(nextPosition, stateNextPosition, stateNextPosition|StateInspected) {
				continue
			}

			stateNextPosition |= StateInspected
		}

		val = q.data[nextPosition]

		stateCurrentPosition = q.loadState(currentPosition)

		switch {
		case stateCurrentPosition.Has(StateEnd) && stateCurrentPosition.Has(StateOverflow):
			// The overflow already shifted the queue, absorb it without
			// advancing the head. The loop continues so the new effective
			// head is found.
			q.casState(currentPosition, stateCurrentPosition, stateCurrentPosition&^StateOverflow)

		case stateCurrentPosition.Has(StateEmpty|StateEnd) && stateNextPosition.Has(StateData):
			if q.casState(nextPosition, stateNextPosition, StateEmpty) {
				c.head = nextPosition
				return val, true, nil
			}

			// The producer just overtook, find the new end marker
			currentPosition = nextPosition
			nextPosition++

		default:
			// A concurrent overflow relocated the effective head,
			// walk forward until the new end marker is found
			currentPosition = nextPosition
			nextPosition++
		}
	}

	// A pop must not be unsuccessful with so many attempts
	var zero T
	return zero, false, ErrCorruptState
}

// Empty states whether the queue looks empty from the consumer side.
// It is a best-effort observation.
func (c *Consumer[T]) Empty() bool {
	currentPosition := c.head

	nextPosition := currentPosition + 1
	if nextPosition == c.queue.internalCapacity {
		nextPosition = 0
	}

	isCurrentEmpty := c.queue.loadState(currentPosition).Has(StateEmpty)
	isNextEndOrPending := c.queue.loadState(nextPosition).Has(StateEnd | StatePending)

	return isCurrentEmpty && isNextEndOrPending
}
