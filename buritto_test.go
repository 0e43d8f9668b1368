package buritto

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_BuRiTTO_Fresh(t *testing.T) {
	assert := assert.New(t)

	b := New[uint64](10)

	assert.True(b.Empty())
	// Empty must be idempotent
	assert.True(b.Empty())

	val, ok := b.Pop()
	assert.False(ok)
	assert.Zero(val)
	assert.True(b.Empty())
}

func Test_BuRiTTO_FillWithoutOverrun(t *testing.T) {
	assert := assert.New(t)

	const capacity = 10

	b := New[uint64](capacity)

	// One eviction can sit in the pending transaction record, so
	// capacity+1 values fit before the first overrun is reported.
	for val := range uint64(capacity + 1) {
		evicted, overrun := b.Push(val)
		assert.False(overrun)
		assert.Zero(evicted)
		assert.False(b.Empty())
	}
}

func Test_BuRiTTO_Overrun(t *testing.T) {
	assert := assert.New(t)

	const capacity = 10

	b := New[uint64](capacity)

	for val := range uint64(capacity + 1) {
		_, overrun := b.Push(val)
		assert.False(overrun)
	}

	// The next push must hand back the oldest value
	evicted, overrun := b.Push(capacity + 1)
	assert.True(overrun)
	assert.Equal(uint64(0), evicted)
	assert.False(b.Empty())

	// The evicted value must not be popped again
	for expected := uint64(1); expected <= capacity+1; expected++ {
		assert.False(b.Empty())

		val, ok := b.Pop()
		assert.True(ok)
		assert.Equal(expected, val)
	}

	assert.True(b.Empty())

	val, ok := b.Pop()
	assert.False(ok)
	assert.Zero(val)
}

func Test_BuRiTTO_ContinuousOverrun(t *testing.T) {
	assert := assert.New(t)

	const (
		capacity  = 10
		pushCount = 30
	)

	b := New[uint64](capacity)

	overruns := []uint64{}
	for val := range uint64(pushCount) {
		if evicted, overrun := b.Push(val); overrun {
			overruns = append(overruns, evicted)
		}
	}

	popped := []uint64{}
	for {
		val, ok := b.Pop()
		if !ok {
			break
		}

		popped = append(popped, val)
	}

	assert.True(b.Empty())
	assert.Len(overruns, pushCount-capacity-1)
	assert.Len(popped, capacity+1)

	// The overruns must be a prefix of the push order and the popped values
	// the matching suffix, together they recover every pushed value.
	for idx, val := range overruns {
		assert.Equal(uint64(idx), val)
	}

	for idx, val := range popped {
		assert.Equal(uint64(len(overruns)+idx), val)
	}
}

func Test_BuRiTTO_RoundtripFIFO(t *testing.T) {
	assert := assert.New(t)

	const capacity = 16

	b := New[uint64](capacity)

	// Without overrun the popped sequence equals the pushed sequence
	for round := range uint64(8) {
		for val := range uint64(capacity / 2) {
			_, overrun := b.Push(round*100 + val)
			assert.False(overrun)
		}

		for val := range uint64(capacity / 2) {
			popVal, ok := b.Pop()
			assert.True(ok)
			assert.Equal(round*100+val, popVal)
		}

		assert.True(b.Empty())
	}
}

func Test_BuRiTTO_Stress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	assert := assert.New(t)

	const (
		capacity  = 10
		pushCount = 1_000_000
	)

	b := New[uint64](capacity)

	var pushFinished atomic.Bool

	overruns := make([]uint64, 0, pushCount)
	popped := make([]uint64, 0, pushCount)

	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)

		for !pushFinished.Load() || !b.Empty() {
			val, ok := b.Pop()
			if !ok {
				runtime.Gosched()
				continue
			}

			popped = append(popped, val)
		}
	}()

	for val := range uint64(pushCount) {
		if evicted, overrun := b.Push(val); overrun {
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
