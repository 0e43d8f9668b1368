package roquet

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestQueue(t *testing.T, capacity uint32) (*Producer[uint64], *Consumer[uint64]) {
	t.Helper()

	q := New[uint64](capacity)

	producer, err := q.Producer()
	assert.NoError(t, err)

	consumer, err := q.Consumer()
	assert.NoError(t, err)

	return producer, consumer
}

func Test_Queue_HandleIssuance(t *testing.T) {
	assert := assert.New(t)

	q := New[uint64](10)

	producer, err := q.Producer()
	assert.NoError(err)
	assert.NotNil(producer)

	consumer, err := q.Consumer()
	assert.NoError(err)
	assert.NotNil(consumer)

	// The handles are one-shot
	secondProducer, err := q.Producer()
	assert.ErrorIs(err, ErrProducerClaimed)
	assert.Nil(secondProducer)

	secondConsumer, err := q.Consumer()
	assert.ErrorIs(err, ErrConsumerClaimed)
	assert.Nil(secondConsumer)
}

func Test_Queue_Fresh(t *testing.T) {
	assert := assert.New(t)

	producer, consumer := newTestQueue(t, 10)

	assert.True(producer.Empty())
	assert.True(consumer.Empty())

	val, ok, err := consumer.Pop()
	assert.NoError(err)
	assert.False(ok)
	assert.Zero(val)

	// Empty must be idempotent
	assert.True(producer.Empty())
	assert.True(consumer.Empty())
}

func Test_Queue_PushPop(t *testing.T) {
	assert := assert.New(t)

	producer, consumer := newTestQueue(t, 10)

	evicted, overrun, err := producer.Push(42)
	assert.NoError(err)
	assert.False(overrun)
	assert.Zero(evicted)

	assert.False(producer.Empty())
	assert.False(consumer.Empty())

	val, ok, err := consumer.Pop()
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(uint64(42), val)

	assert.True(producer.Empty())
	assert.True(consumer.Empty())
}

func Test_Queue_FillWithoutOverrun(t *testing.T) {
	assert := assert.New(t)

	const capacity = 10

	producer, consumer := newTestQueue(t, capacity)

	// The internal ring is two slots larger than the capacity, one for the
	// end marker and one for the consumer's empty head slot. The last push
	// moves the end marker onto the head slot, so capacity+1 values fit.
	for val := range uint64(capacity + 1) {
		evicted, overrun, err := producer.Push(val)
		assert.NoError(err)
		assert.False(overrun)
		assert.Zero(evicted)

		assert.False(producer.Empty())
		assert.False(consumer.Empty())
	}
}

func Test_Queue_Overrun(t *testing.T) {
	assert := assert.New(t)

	const capacity = 10

	producer, consumer := newTestQueue(t, capacity)

	for val := range uint64(capacity + 1) {
		_, overrun, err := producer.Push(val)
		assert.NoError(err)
		assert.False(overrun)
	}

	// The next push must evict the oldest value
	evicted, overrun, err := producer.Push(capacity + 1)
	assert.NoError(err)
	assert.True(overrun)
	assert.Equal(uint64(0), evicted)

	// The evicted value must not be popped again
	for expected := uint64(1); expected <= capacity+1; expected++ {
		assert.False(producer.Empty())
		assert.False(consumer.Empty())

		val, ok, err := consumer.Pop()
		assert.NoError(err)
		assert.True(ok)
		assert.Equal(expected, val)
	}

	assert.True(producer.Empty())
	assert.True(consumer.Empty())

	val, ok, err := consumer.Pop()
	assert.NoError(err)
	assert.False(ok)
	assert.Zero(val)
}

func Test_Queue_WrapAround(t *testing.T) {
	assert := assert.New(t)

	const capacity = 10

	producer, consumer := newTestQueue(t, capacity)

	// Push/pop pairs way past the internal ring size to exercise the
	// end marker travelling across the wrap multiple times.
	for val := range uint64(capacity * 10) {
		_, overrun, err := producer.Push(val)
		assert.NoError(err)
		assert.False(overrun)

		popVal, ok, err := consumer.Pop()
		assert.NoError(err)
		assert.True(ok)
		assert.Equal(val, popVal)
	}

	assert.True(producer.Empty())
	assert.True(consumer.Empty())
}

func Test_Queue_Stress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	assert := assert.New(t)

	const (
		capacity  = 10
		pushCount = 1_000_000
	)

	producer, consumer := newTestQueue(t, capacity)

	var pushFinished atomic.Bool

	overruns := make([]uint64, 0, pushCount)
	popped := make([]uint64, 0, pushCount)

	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)

		for !pushFinished.Load() || !consumer.Empty() {
			val, ok, err := consumer.Pop()
			if err != nil {
				t.Error(err)
				return
			}

			if !ok {
				runtime.Gosched()
				continue
			}

			popped = append(popped, val)
		}
	}()

	for val := range uint64(pushCount) {
		evicted, overrun, err := producer.Push(val)
		if err != nil {
			t.Fatal(err)
		}

		if overrun {
			overruns = append(overruns, evicted)
		}
	}

	pushFinished.Store(true)

	<-doneCh

	// Conservation: every pushed value is either popped or handed back
	assert.Equal(pushCount, len(overruns)+len(popped))

	// Both streams are increasing in push order and interleave to recover
	// the original sequence without gaps.
	overrunIdx := 0
	popIdx := 0
	for val := range uint64(pushCount) {
		switch {
		case overrunIdx < len(overruns) && overruns[overrunIdx] == val:
			overrunIdx++
		case popIdx < len(popped) && popped[popIdx] == val:
			popIdx++
		default:
			t.Fatalf("data loss detected at value %d", val)
		}
	}
}
