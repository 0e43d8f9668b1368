// Package egress contains the drains consuming the values of a telemetry path.
package egress

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/buritto/connector"
	"github.com/FerroO2000/buritto/internal/config"
	"github.com/FerroO2000/buritto/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the drain configuration.
const (
	DefaultDrainConfigFlushInterval = time.Second
)

// DrainConfig contains the configuration common to all drains.
type DrainConfig struct {
	// FlushInterval is the maximum time between two flushes of the writer
	// while no values arrive.
	//
	// Default: 1s
	FlushInterval time.Duration
}

// NewDrainConfig returns the default drain configuration.
func NewDrainConfig() *DrainConfig {
	return &DrainConfig{
		FlushInterval: DefaultDrainConfigFlushInterval,
	}
}

// Validate checks the configuration.
func (c *DrainConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "FlushInterval", &c.FlushInterval, DefaultDrainConfigFlushInterval)
	config.CheckNotZero(ac, "FlushInterval", &c.FlushInterval, DefaultDrainConfigFlushInterval)
}

//////////////
//  WRITER  //
//////////////

// Writer delivers drained values to their destination.
type Writer[T any] interface {
	// Init initializes the writer.
	Init(ctx context.Context, tel *telemetry.Telemetry) error
	// WriteValue hands one value to the writer.
	WriteValue(ctx context.Context, val T) error
	// Flush forces buffered values out.
	Flush(ctx context.Context) error
	// Close closes the writer.
	Close() error
}

/////////////
//  DRAIN  //
/////////////

// Drain is the consumer endpoint of a telemetry path. It runs a single
// goroutine reading the input connector and handing every value to the
// writer, honoring the single-consumer contract of the connector.
type Drain[T any] struct {
	name string

	tel *telemetry.Telemetry

	cfg *DrainConfig

	inputConnector connector.Connector[T]

	writer Writer[T]

	drainedValues atomic.Int64
	writeErrors   atomic.Int64

	doneCh chan struct{}
}

// NewDrain returns a new drain with the given name, reading from the input
// connector and delivering to the writer.
func NewDrain[T any](name string, inputConnector connector.Connector[T], writer Writer[T], cfg *DrainConfig) *Drain[T] {
	return &Drain[T]{
		name: name,

		tel: telemetry.NewTelemetry(name),

		cfg: cfg,

		inputConnector: inputConnector,

		writer: writer,

		doneCh: make(chan struct{}),
	}
}

// Init initializes the drain.
func (d *Drain[T]) Init(ctx context.Context) error {
	config.NewValidator(d.tel).Validate(d.cfg)

	if err := d.writer.Init(ctx, d.tel); err != nil {
		return err
	}

	d.tel.NewCounter("drained_values", func() int64 { return d.drainedValues.Load() })
	d.tel.NewCounter("write_errors", func() int64 { return d.writeErrors.Load() })

	return nil
}

// Run runs the drain. It returns when the input connector is closed and
// drained or the context is done.
func (d *Drain[T]) Run(ctx context.Context) {
	defer close(d.doneCh)

	for {
		select {
		case <-ctx.Done():
			d.flush(context.Background())
			return
		default:
		}

		readCtx, cancelReadCtx := context.WithTimeout(ctx, d.cfg.FlushInterval)
		val, err := d.inputConnector.Read(readCtx)
		cancelReadCtx()

		if err != nil {
			// Check if the input connector is closed, if so stop
			if errors.Is(err, connector.ErrClosed) {
				d.tel.LogInfo("input connector is closed, stopping")
				d.flush(context.Background())
				return
			}

			// No value arrived within the flush interval,
			// push buffered ones out
			if errors.Is(err, context.DeadlineExceeded) {
				d.flush(ctx)
			}

			continue
		}

		if err := d.writer.WriteValue(ctx, val); err != nil {
			d.writeErrors.Add(1)
			d.tel.LogError("failed to write value", err)
			continue
		}

		d.drainedValues.Add(1)
	}
}

// Close closes the drain. It blocks until the run loop has stopped,
// then closes the writer.
func (d *Drain[T]) Close() {
	<-d.doneCh

	if err := d.writer.Close(); err != nil {
		d.tel.LogError("failed to close writer", err)
	}
}

func (d *Drain[T]) flush(ctx context.Context) {
	if err := d.writer.Flush(ctx); err != nil {
		d.writeErrors.Add(1)
		d.tel.LogError("failed to flush writer", err)
	}
}
