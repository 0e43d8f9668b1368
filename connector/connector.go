// Package connector contains the connectors moving values between the
// producer side and the consumer side of a telemetry path.
package connector

import (
	"context"
	"errors"
)

// ErrClosed is returned when the connector is closed.
var ErrClosed = errors.New("connector: connector is closed")

// Connector represents the interface for a generic connector
// to be used for connecting a producer to a consumer.
type Connector[T any] interface {
	// Write appends a value. It must never block the producer.
	Write(item T) error
	// Read returns the next value, blocking until one is available,
	// the context is done or the connector is closed.
	Read(ctx context.Context) (T, error)
	// Close closes (forever) the connector.
	Close()
}
