// Package ingress contains the feeders producing the values of a telemetry path.
package ingress

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

// Default values for the ticker feeder configuration.
const (
	DefaultTickerConfigInterval = 100 * time.Millisecond
)

// TickerConfig contains the configuration for the ticker feeder.
type TickerConfig struct {
	// Interval is the duration between ticks.
	//
	// Default: 100ms
	Interval time.Duration
}

// NewTickerConfig returns the default configuration for the ticker feeder.
func NewTickerConfig() *TickerConfig {
	return &TickerConfig{
		Interval: DefaultTickerConfigInterval,
	}
}

// Validate checks the configuration.
func (c *TickerConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "Interval", &c.Interval, DefaultTickerConfigInterval)
	config.CheckNotZero(ac, "Interval", &c.Interval, DefaultTickerConfigInterval)
}

//////////////
//  FEEDER  //
//////////////

// TickerFeeder writes a generated value into the output connector at a
// fixed interval. It is the single producer of the connector.
type TickerFeeder[T any] struct {
	tel *telemetry.Telemetry

	cfg *TickerConfig

	outputConnector connector.Connector[T]

	// generate produces the value for the given tick number.
	generate func(tick uint64) T

	tickCount    uint64
	pushedValues atomic.Int64
}

// NewTickerFeeder returns a new ticker feeder producing values with the
// given generate function.
func NewTickerFeeder[T any](outputConnector connector.Connector[T], generate func(tick uint64) T, cfg *TickerConfig) *TickerFeeder[T] {
	return &TickerFeeder[T]{
		tel: telemetry.NewTelemetry("ticker"),

		cfg: cfg,

		outputConnector: outputConnector,

		generate: generate,
	}
}

// Init initializes the feeder.
func (tf *TickerFeeder[T]) Init(_ context.Context) error {
	if tf.generate == nil {
		return errors.New("ingress: ticker feeder needs a generate function")
	}

	config.NewValidator(tf.tel).Validate(tf.cfg)

	tf.tel.NewCounter("pushed_values", func() int64 { return tf.pushedValues.Load() })

	return nil
}

// Run runs the feeder. It returns when the context is done or the output
// connector is closed.
func (tf *TickerFeeder[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(tf.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			val := tf.generate(tf.tickCount)
			tf.tickCount++

			if err := tf.outputConnector.Write(val); err != nil {
				// Check if the output connector is closed, if so stop
				if errors.Is(err, connector.ErrClosed) {
					tf.tel.LogInfo("output connector is closed, stopping")
					return
				}

				tf.tel.LogError("failed to write value", err)
				continue
			}

			tf.pushedValues.Add(1)
		}
	}
}

// Close closes the output connector.
func (tf *TickerFeeder[T]) Close() {
	tf.outputConnector.Close()
}
