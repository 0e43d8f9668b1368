package ingress

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/FerroO2000/buritto/connector"
	"github.com/FerroO2000/buritto/internal/config"
	"github.com/FerroO2000/buritto/internal/telemetry"
	"github.com/fsnotify/fsnotify"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the file feeder configuration.
const (
	DefaultFileConfigRecordSize = 8
)

// FileConfig contains the configuration for the file feeder.
type FileConfig struct {
	// Path is the path to the file to tail.
	Path string

	// RecordSize is the fixed width of one binary record in bytes.
	//
	// Default: 8
	RecordSize int
}

// DefaultFileConfig returns the default configuration for the file feeder.
func DefaultFileConfig(path string) *FileConfig {
	return &FileConfig{
		Path:       path,
		RecordSize: DefaultFileConfigRecordSize,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "RecordSize", &c.RecordSize, DefaultFileConfigRecordSize)
	config.CheckNotZero(ac, "RecordSize", &c.RecordSize, DefaultFileConfigRecordSize)
}

//////////////
//  FEEDER  //
//////////////

// FileFeeder tails a file of fixed-width binary records, pushing every
// record into the output connector. Records appended to the file while the
// feeder is running are picked up through the filesystem watcher.
// It is the single producer of the connector.
type FileFeeder[T any] struct {
	tel *telemetry.Telemetry

	cfg *FileConfig

	outputConnector connector.Connector[T]

	// decode turns one record into a value. The buffer is only valid for
	// the duration of the call.
	decode func(record []byte) T

	file    *os.File
	watcher *fsnotify.Watcher

	// remainder buffers a partial record between reads.
	remainder []byte

	readBytes    atomic.Int64
	pushedValues atomic.Int64
}

// NewFileFeeder returns a new file feeder decoding records with the given
// decode function.
func NewFileFeeder[T any](outputConnector connector.Connector[T], decode func(record []byte) T, cfg *FileConfig) *FileFeeder[T] {
	return &FileFeeder[T]{
		tel: telemetry.NewTelemetry("file"),

		cfg: cfg,

		outputConnector: outputConnector,

		decode: decode,
	}
}

// Init opens the file and sets up the filesystem watcher.
func (ff *FileFeeder[T]) Init(_ context.Context) error {
	if ff.decode == nil {
		return errors.New("ingress: file feeder needs a decode function")
	}

	config.NewValidator(ff.tel).Validate(ff.cfg)

	file, err := os.Open(ff.cfg.Path)
	if err != nil {
		return err
	}
	ff.file = file

	// Watch the directory instead of the file itself, the watch would be
	// lost when the file is renamed or recreated
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(ff.cfg.Path)); err != nil {
		return err
	}

	ff.watcher = watcher

	ff.remainder = make([]byte, 0, ff.cfg.RecordSize)

	ff.tel.NewCounter("read_bytes", func() int64 { return ff.readBytes.Load() })
	ff.tel.NewCounter("pushed_values", func() int64 { return ff.pushedValues.Load() })

	return nil
}

// Run runs the feeder. It returns when the context is done or the output
// connector is closed.
func (ff *FileFeeder[T]) Run(ctx context.Context) {
	// The watcher does not fire events for records already in the file
	if err := ff.readAvailable(); err != nil {
		if errors.Is(err, connector.ErrClosed) {
			ff.tel.LogInfo("output connector is closed, stopping")
			return
		}

		ff.tel.LogError("failed to read records", err)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-ff.watcher.Events:
			if !ok {
				return
			}

			if err := ff.handleEvent(event); err != nil {
				if errors.Is(err, connector.ErrClosed) {
					ff.tel.LogInfo("output connector is closed, stopping")
					return
				}

				ff.tel.LogError("failed to read records", err)
			}

		case err, ok := <-ff.watcher.Errors:
			if !ok {
				return
			}

			ff.tel.LogError("watcher error", err)
		}
	}
}

// Close closes the watcher, the file and the output connector.
func (ff *FileFeeder[T]) Close() {
	if err := ff.watcher.Close(); err != nil {
		ff.tel.LogError("failed to close watcher", err)
	}

	if err := ff.file.Close(); err != nil {
		ff.tel.LogError("failed to close file", err)
	}

	ff.outputConnector.Close()
}

func (ff *FileFeeder[T]) handleEvent(event fsnotify.Event) error {
	if event.Name != ff.cfg.Path {
		return nil
	}

	if event.Op&fsnotify.Write == fsnotify.Write {
		return ff.readAvailable()
	}

	return nil
}

// readAvailable reads records up to the current end of the file and pushes
// them into the output connector. A trailing partial record is kept for the
// next read.
func (ff *FileFeeder[T]) readAvailable() error {
	buf := make([]byte, 4096)

	for {
		amount, err := ff.file.Read(buf)

		if amount > 0 {
			ff.readBytes.Add(int64(amount))

			if pushErr := ff.pushRecords(buf[:amount]); pushErr != nil {
				return pushErr
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}
	}
}

func (ff *FileFeeder[T]) pushRecords(data []byte) error {
	recordSize := ff.cfg.RecordSize

	ff.remainder = append(ff.remainder, data...)

	fullRecords := len(ff.remainder) / recordSize
	for idx := range fullRecords {
		record := ff.remainder[idx*recordSize : (idx+1)*recordSize]

		if err := ff.outputConnector.Write(ff.decode(record)); err != nil {
			return err
		}

		ff.pushedValues.Add(1)
	}

	ff.remainder = append(ff.remainder[:0], ff.remainder[fullRecords*recordSize:]...)

	return nil
}
