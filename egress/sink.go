package egress

import (
	"context"
	"sync/atomic"

	"github.com/FerroO2000/buritto/internal/telemetry"
)

var _ Writer[int] = (*SinkWriter[int])(nil)

// SinkWriter is a writer that simply counts and discards all values.
// It is intended for testing purposes.
type SinkWriter[T any] struct {
	// OnValue is called for every drained value. It may be nil.
	OnValue func(val T)

	valueCount atomic.Int64
}

// NewSinkWriter returns a new sink writer.
func NewSinkWriter[T any](onValue func(val T)) *SinkWriter[T] {
	return &SinkWriter[T]{
		OnValue: onValue,
	}
}

// Init initializes the sink writer.
func (sw *SinkWriter[T]) Init(_ context.Context, _ *telemetry.Telemetry) error {
	return nil
}

// WriteValue counts the value and hands it to the callback.
func (sw *SinkWriter[T]) WriteValue(_ context.Context, val T) error {
	sw.valueCount.Add(1)

	if sw.OnValue != nil {
		sw.OnValue(val)
	}

	return nil
}

// Flush does nothing.
func (sw *SinkWriter[T]) Flush(_ context.Context) error {
	return nil
}

// Close does nothing.
func (sw *SinkWriter[T]) Close() error {
	return nil
}

// ValueCount returns the number of values written so far.
func (sw *SinkWriter[T]) ValueCount() int64 {
	return sw.valueCount.Load()
}
