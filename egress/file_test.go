package egress

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func marshalUint64(val uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, val)
}

func Test_FileWriter(t *testing.T) {
	assert := assert.New(t)

	const valueCount = 100

	path := filepath.Join(t.TempDir(), "values.bin")

	writer := NewFileWriter(DefaultFileConfig(path), marshalUint64)
	assert.NoError(writer.Init(t.Context(), testTelemetry(t)))

	for val := range uint64(valueCount) {
		assert.NoError(writer.WriteValue(t.Context(), val))
	}

	assert.NoError(writer.Close())

	buf, err := os.ReadFile(path)
	assert.NoError(err)
	assert.Len(buf, valueCount*8)

	for idx := range uint64(valueCount) {
		val := binary.LittleEndian.Uint64(buf[idx*8:])
		assert.Equal(idx, val)
	}
}

func Test_FileWriter_FlushThreshold(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "values.bin")

	cfg := DefaultFileConfig(path)
	cfg.BufferSize = 64
	cfg.FlushThresholdPercentage = 0.5

	writer := NewFileWriter(cfg, marshalUint64)
	assert.NoError(writer.Init(t.Context(), testTelemetry(t)))

	// Crossing the threshold must flush without an explicit call
	for val := range uint64(8) {
		assert.NoError(writer.WriteValue(t.Context(), val))
	}

	info, err := os.Stat(path)
	assert.NoError(err)
	assert.NotZero(info.Size())

	assert.NoError(writer.Close())
}
