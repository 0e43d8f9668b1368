package egress

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/FerroO2000/buritto/connector"
	"github.com/stretchr/testify/assert"
)

func Test_Drain_Sink(t *testing.T) {
	assert := assert.New(t)

	const valueCount = 32

	conn := connector.NewLossless[uint64](valueCount, nil)

	stopCh := make(chan struct{})

	var drained atomic.Int64
	sink := NewSinkWriter(func(_ uint64) {
		if drained.Add(1) == valueCount {
			close(stopCh)
		}
	})

	for val := range uint64(valueCount) {
		assert.NoError(conn.Write(val))
	}

	drain := NewDrain[uint64]("sink", conn, sink, NewDrainConfig())
	assert.NoError(drain.Init(t.Context()))

	go drain.Run(t.Context())

	select {
	case <-stopCh:
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not deliver all values")
	}

	conn.Close()
	drain.Close()

	assert.Equal(int64(valueCount), sink.ValueCount())
}

func Test_Drain_StopsOnClosedConnector(t *testing.T) {
	assert := assert.New(t)

	conn := connector.NewLossless[uint64](8, nil)
	sink := NewSinkWriter[uint64](nil)

	drain := NewDrain[uint64]("sink", conn, sink, NewDrainConfig())
	assert.NoError(drain.Init(t.Context()))

	doneCh := make(chan struct{})
	go func() {
		drain.Run(t.Context())
		close(doneCh)
	}()

	assert.NoError(conn.Write(1))
	conn.Close()

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not stop on closed connector")
	}

	drain.Close()

	// The buffered value was drained before stopping
	assert.Equal(int64(1), sink.ValueCount())
}
