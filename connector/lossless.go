package connector

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/FerroO2000/buritto"
)

var maxSpins = runtime.NumCPU() * 32

// OverrunHandler receives the values a lossless connector evicted on overrun.
// It is called on the producer goroutine.
type OverrunHandler[T any] func(evicted T)

var _ Connector[int] = (*Lossless[int])(nil)

// Lossless is a connector backed by a BuRiTTO ring.
// Write never blocks: when the ring is full the oldest buffered value is
// evicted and handed to the overrun handler instead of being dropped.
// Read spins briefly and then parks until a value arrives.
//
// Exactly one goroutine may call Write and exactly one goroutine may call Read.
type Lossless[T any] struct {
	queue *buritto.BuRiTTO[T]

	onOverrun OverrunHandler[T]

	// overruns counts the values handed to the overrun handler.
	overruns atomic.Uint64

	// isClosed states whether the connector is closed.
	isClosed atomic.Bool

	// isEmpty states whether the reader is parked on an empty ring.
	isEmpty atomic.Bool

	notEmpty *sync.Cond
	mux      *sync.Mutex
}

// NewLossless returns a new lossless connector with the given capacity.
// The overrun handler may be nil, evicted values are then only counted.
func NewLossless[T any](capacity uint32, onOverrun OverrunHandler[T]) *Lossless[T] {
	mux := &sync.Mutex{}

	return &Lossless[T]{
		queue: buritto.New[T](capacity),

		onOverrun: onOverrun,

		notEmpty: sync.NewCond(mux),
		mux:      mux,
	}
}

// Write appends a value. It never blocks and never fails while the
// connector is open: a full ring evicts its oldest value instead.
func (l *Lossless[T]) Write(item T) error {
	// Check if the connector is closed
	if l.isClosed.Load() {
		return ErrClosed
	}

	evicted, overrun := l.queue.Push(item)
	if overrun {
		l.overruns.Add(1)

		if l.onOverrun != nil {
			l.onOverrun(evicted)
		}
	}

	// Check if the reader is parked on an empty ring,
	// if so, signal that the ring is not empty anymore
	if l.isEmpty.CompareAndSwap(true, false) {
		l.mux.Lock()
		l.notEmpty.Broadcast()
		l.mux.Unlock()
	}

	return nil
}

// Read returns the next value. It blocks until a value is available, the
// context is done or the connector is closed and drained.
func (l *Lossless[T]) Read(ctx context.Context) (T, error) {
	var item T
	var popOk bool

	for range maxSpins {
		// Try to pop an item
		item, popOk = l.queue.Pop()
		if popOk {
			return item, nil
		}

		// The ring is empty, yield to other goroutines
		runtime.Gosched()
	}

	for {
		item, popOk = l.queue.Pop()
		if popOk {
			return item, nil
		}

		// Ring is empty, prepare to wait for data
		l.mux.Lock()

		l.isEmpty.Store(true)

		// Retry once more, a write may have slipped in before the empty
		// flag became visible to the writer
		if item, popOk = l.queue.Pop(); popOk {
			l.isEmpty.Store(false)
			l.mux.Unlock()
			return item, nil
		}

		// Check if the connector is closed
		if l.isClosed.Load() {
			l.mux.Unlock()
			return item, ErrClosed
		}

		// Wait for data, return an error if the context is done
		if err := l.wait(ctx); err != nil {
			l.mux.Unlock()
			return item, err
		}

		// Someone signaled the ring as not empty
		l.mux.Unlock()
	}
}

func (l *Lossless[T]) wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		defer close(done)
		l.notEmpty.Wait()
	}()

	select {
	case <-done:
		return nil

	case <-ctx.Done():
		// Wake up the waiting goroutine
		l.notEmpty.Broadcast()
		<-done
		return ctx.Err()
	}
}

// Overruns returns the number of values evicted so far.
func (l *Lossless[T]) Overruns() uint64 {
	return l.overruns.Load()
}

// Close closes the connector. Buffered values can still be read,
// afterwards Read returns ErrClosed.
func (l *Lossless[T]) Close() {
	if !l.isClosed.CompareAndSwap(false, true) {
		return
	}

	l.mux.Lock()
	l.notEmpty.Broadcast()
	l.mux.Unlock()
}
