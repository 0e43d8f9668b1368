package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/FerroO2000/buritto/connector"
	"github.com/stretchr/testify/assert"
)

func Test_TickerFeeder(t *testing.T) {
	assert := assert.New(t)

	const valueCount = 10

	conn := connector.NewLossless[uint64](64, nil)

	cfg := NewTickerConfig()
	cfg.Interval = time.Millisecond

	feeder := NewTickerFeeder(conn, func(tick uint64) uint64 { return tick }, cfg)
	assert.NoError(feeder.Init(t.Context()))

	ctx, cancelCtx := context.WithCancel(t.Context())
	defer cancelCtx()

	go feeder.Run(ctx)

	// The ticks must arrive in order
	for val := range uint64(valueCount) {
		item, err := conn.Read(t.Context())
		assert.NoError(err)
		assert.Equal(val, item)
	}

	cancelCtx()
	feeder.Close()

	// Drain the values produced before the stop, then the connector
	// must report closed
	for {
		_, err := conn.Read(t.Context())
		if err != nil {
			assert.ErrorIs(err, connector.ErrClosed)
			break
		}
	}
}

func Test_TickerFeeder_NeedsGenerate(t *testing.T) {
	assert := assert.New(t)

	conn := connector.NewLossless[uint64](8, nil)

	feeder := NewTickerFeeder[uint64](conn, nil, NewTickerConfig())
	assert.Error(feeder.Init(t.Context()))
}
