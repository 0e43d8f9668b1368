package egress

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/buritto/internal/config"
	"github.com/FerroO2000/buritto/internal/telemetry"
	qdb "github.com/questdb/go-questdb-client/v3"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the QuestDB writer configuration.
const (
	DefaultQuestDBConfigAddress       = "localhost:9000"
	DefaultQuestDBConfigAutoFlushRows = 75_000
	DefaultQuestDBConfigRetryTimeout  = time.Second
)

// QuestDBConfig contains the configuration for the QuestDB writer.
type QuestDBConfig struct {
	// Address of the QuestDB server.
	//
	// Default: "localhost:9000"
	Address string

	// Table is the table the rows are inserted into.
	Table string

	// AutoFlushRows is the number of buffered rows that triggers an
	// automatic flush of the sender.
	//
	// Default: 75000
	AutoFlushRows int

	// RetryTimeout is the time the sender keeps retrying failed requests.
	//
	// Default: 1s
	RetryTimeout time.Duration
}

// DefaultQuestDBConfig returns the default configuration for the QuestDB writer.
func DefaultQuestDBConfig(table string) *QuestDBConfig {
	return &QuestDBConfig{
		Address: DefaultQuestDBConfigAddress,
		Table:   table,

		AutoFlushRows: DefaultQuestDBConfigAutoFlushRows,
		RetryTimeout:  DefaultQuestDBConfigRetryTimeout,
	}
}

// Validate checks the configuration.
func (c *QuestDBConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Address", &c.Address, DefaultQuestDBConfigAddress)

	config.CheckNotNegative(ac, "AutoFlushRows", &c.AutoFlushRows, DefaultQuestDBConfigAutoFlushRows)
	config.CheckNotZero(ac, "AutoFlushRows", &c.AutoFlushRows, DefaultQuestDBConfigAutoFlushRows)

	config.CheckNotNegative(ac, "RetryTimeout", &c.RetryTimeout, DefaultQuestDBConfigRetryTimeout)
}

//////////////
//  WRITER  //
//////////////

var _ Writer[int] = (*QuestDBWriter[int])(nil)

// QuestDBWriter inserts drained values into a QuestDB table.
type QuestDBWriter[T any] struct {
	cfg *QuestDBConfig

	// columns appends the columns of one value to the row under
	// construction. It must not be nil.
	columns func(query qdb.LineSender, val T) qdb.LineSender

	sender qdb.LineSender

	insertedRows atomic.Int64
}

// NewQuestDBWriter returns a new QuestDB writer mapping values to rows with
// the given columns function.
func NewQuestDBWriter[T any](cfg *QuestDBConfig, columns func(query qdb.LineSender, val T) qdb.LineSender) *QuestDBWriter[T] {
	return &QuestDBWriter[T]{
		cfg: cfg,

		columns: columns,
	}
}

// Init creates the line sender and initializes the metrics.
func (qw *QuestDBWriter[T]) Init(ctx context.Context, tel *telemetry.Telemetry) error {
	if qw.columns == nil {
		return errors.New("egress: questdb writer needs a columns function")
	}

	config.NewValidator(tel).Validate(qw.cfg)

	sender, err := qdb.NewLineSender(ctx,
		qdb.WithAddress(qw.cfg.Address),
		qdb.WithHttp(),
		qdb.WithAutoFlushRows(qw.cfg.AutoFlushRows),
		qdb.WithRetryTimeout(qw.cfg.RetryTimeout),
	)
	if err != nil {
		return err
	}
	qw.sender = sender

	tel.NewCounter("inserted_rows", func() int64 { return qw.insertedRows.Load() })

	return nil
}

// WriteValue inserts the row of the value.
func (qw *QuestDBWriter[T]) WriteValue(ctx context.Context, val T) error {
	query := qw.sender.Table(qw.cfg.Table)
	query = qw.columns(query, val)

	if err := query.At(ctx, time.Now()); err != nil {
		return err
	}

	qw.insertedRows.Add(1)

	return nil
}

// Flush forces buffered rows out to the server.
func (qw *QuestDBWriter[T]) Flush(ctx context.Context) error {
	return qw.sender.Flush(ctx)
}

// Close closes the line sender.
func (qw *QuestDBWriter[T]) Close() error {
	return qw.sender.Close(context.Background())
}
