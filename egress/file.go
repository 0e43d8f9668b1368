package egress

import (
	"bufio"
	"context"
	"errors"
	"os"
	"sync/atomic"

	"github.com/FerroO2000/buritto/internal/config"
	"github.com/FerroO2000/buritto/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the file writer configuration.
const (
	DefaultFileConfigBufferSize               = 4096
	DefaultFileConfigFlushThresholdPercentage = 0.75
)

// FileConfig contains the configuration for the file writer.
type FileConfig struct {
	// Path is the path to the file.
	Path string

	// BufferSize is the size of the buffer used to write records to the file.
	//
	// Default: 4096
	BufferSize int

	// FlushThresholdPercentage is the percentage of the buffer size that
	// triggers a flush.
	//
	// Default: 0.75
	FlushThresholdPercentage float64
}

// DefaultFileConfig returns the default configuration for the file writer.
func DefaultFileConfig(path string) *FileConfig {
	return &FileConfig{
		Path:                     path,
		BufferSize:               DefaultFileConfigBufferSize,
		FlushThresholdPercentage: DefaultFileConfigFlushThresholdPercentage,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "BufferSize", &c.BufferSize, DefaultFileConfigBufferSize)
	config.CheckNotZero(ac, "BufferSize", &c.BufferSize, DefaultFileConfigBufferSize)
	config.CheckInUnitInterval(ac, "FlushThresholdPercentage", &c.FlushThresholdPercentage, DefaultFileConfigFlushThresholdPercentage)
}

//////////////
//  WRITER  //
//////////////

var _ Writer[int] = (*FileWriter[int])(nil)

// FileWriter appends drained values to a file as fixed-width binary records.
type FileWriter[T any] struct {
	cfg *FileConfig

	// marshal encodes one value into its record. It must not be nil.
	marshal func(val T) []byte

	file   *os.File
	writer *bufio.Writer

	flushThreshold int

	writtenBytes atomic.Int64
	flushErrors  atomic.Int64
}

// NewFileWriter returns a new file writer encoding values with the given
// marshal function.
func NewFileWriter[T any](cfg *FileConfig, marshal func(val T) []byte) *FileWriter[T] {
	return &FileWriter[T]{
		cfg: cfg,

		marshal: marshal,
	}
}

// Init opens the file and initializes the metrics.
func (fw *FileWriter[T]) Init(_ context.Context, tel *telemetry.Telemetry) error {
	if fw.marshal == nil {
		return errors.New("egress: file writer needs a marshal function")
	}

	config.NewValidator(tel).Validate(fw.cfg)

	file, err := os.OpenFile(fw.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	fw.file = file
	fw.writer = bufio.NewWriterSize(file, fw.cfg.BufferSize)
	fw.flushThreshold = int(float64(fw.cfg.BufferSize) * fw.cfg.FlushThresholdPercentage)

	tel.NewCounter("written_bytes", func() int64 { return fw.writtenBytes.Load() })
	tel.NewCounter("flush_errors", func() int64 { return fw.flushErrors.Load() })

	return nil
}

// WriteValue appends the record of the value to the buffer,
// flushing when the buffer fullness crosses the threshold.
func (fw *FileWriter[T]) WriteValue(ctx context.Context, val T) error {
	amount, err := fw.writer.Write(fw.marshal(val))
	if err != nil {
		return err
	}

	fw.writtenBytes.Add(int64(amount))

	if fw.writer.Buffered() >= fw.flushThreshold {
		return fw.Flush(ctx)
	}

	return nil
}

// Flush forces buffered records out to the file.
func (fw *FileWriter[T]) Flush(_ context.Context) error {
	if err := fw.writer.Flush(); err != nil {
		fw.flushErrors.Add(1)
		return err
	}

	return nil
}

// Close flushes and closes the file.
func (fw *FileWriter[T]) Close() error {
	flushErr := fw.writer.Flush()

	if err := fw.file.Close(); err != nil {
		return err
	}

	return flushErr
}
