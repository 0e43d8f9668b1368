package ringidx

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_IsPowerOfTwo(t *testing.T) {
	assert := assert.New(t)

	assert.False(IsPowerOfTwo(0))
	assert.True(IsPowerOfTwo(1))
	assert.True(IsPowerOfTwo(2))
	assert.False(IsPowerOfTwo(3))
	assert.True(IsPowerOfTwo(1 << 16))
	assert.False(IsPowerOfTwo(1<<16 + 1))
}

func Test_RoundToPowerOf2(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint32(1), RoundToPowerOf2(0))
	assert.Equal(uint32(1), RoundToPowerOf2(1))
	assert.Equal(uint32(2), RoundToPowerOf2(2))
	assert.Equal(uint32(4), RoundToPowerOf2(3))
	assert.Equal(uint32(1024), RoundToPowerOf2(1000))
	assert.Equal(uint32(1024), RoundToPowerOf2(1024))
}

func Test_Indexer(t *testing.T) {
	suite := []struct {
		capacity uint32
	}{
		{capacity: 8},
		{capacity: 10},
		{capacity: 1},
		{capacity: 1 << 12},
	}

	for _, tCase := range suite {
		tName := fmt.Sprintf("capacity-%d", tCase.capacity)

		t.Run(tName, func(t *testing.T) {
			assert := assert.New(t)

			ix := NewIndexer(tCase.capacity)
			assert.Equal(uint64(tCase.capacity), ix.Capacity())

			// The index must follow the counter modulo the capacity,
			// also across the wrap-around.
			for counter := range uint64(tCase.capacity) * 3 {
				assert.Equal(counter%uint64(tCase.capacity), ix.Index(counter))
			}
		})
	}
}
