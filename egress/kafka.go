package egress

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/buritto/internal/config"
	"github.com/FerroO2000/buritto/internal/telemetry"
	"github.com/segmentio/kafka-go"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the Kafka writer configuration.
const (
	DefaultKafkaConfigMaxAttempts  = 10
	DefaultKafkaConfigBatchSize    = 100
	DefaultKafkaConfigBatchTimeout = time.Second
	DefaultKafkaConfigReadTimeout  = 10 * time.Second
	DefaultKafkaConfigWriteTimeout = 10 * time.Second
)

// KafkaConfig contains the configuration for the Kafka writer.
type KafkaConfig struct {
	// A list of Kafka brokers to connect to.
	//
	// Default: localhost:9092
	Brokers []string

	// Topic is the topic the records are published to.
	Topic string

	// The balancer used to distribute messages across partitions.
	//
	// Default: RoundRobin.
	Balancer kafka.Balancer

	// Limit on how many attempts will be made to deliver a message.
	//
	// Default: 10.
	MaxAttempts int

	// Limit on how many messages will be buffered before being sent to a
	// partition.
	//
	// Default: 100.
	BatchSize int

	// Time limit on how often incomplete message batches will be flushed to
	// kafka.
	//
	// Default: 1s.
	BatchTimeout time.Duration

	// Timeout for read operations performed by the Writer.
	//
	// Default: 10s.
	ReadTimeout time.Duration

	// Timeout for write operation performed by the Writer.
	//
	// Default: 10s.
	WriteTimeout time.Duration

	// Number of acknowledges from partition replicas required before receiving
	// a response to a produce request.
	//
	// Default: RequireNone.
	RequiredAcks kafka.RequiredAcks
}

// DefaultKafkaConfig returns the default configuration for the Kafka writer.
func DefaultKafkaConfig(topic string) *KafkaConfig {
	return &KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   topic,

		Balancer: &kafka.RoundRobin{},

		MaxAttempts: DefaultKafkaConfigMaxAttempts,

		BatchSize:    DefaultKafkaConfigBatchSize,
		BatchTimeout: DefaultKafkaConfigBatchTimeout,

		ReadTimeout:  DefaultKafkaConfigReadTimeout,
		WriteTimeout: DefaultKafkaConfigWriteTimeout,

		RequiredAcks: kafka.RequireNone,
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "Brokers", &c.Brokers, []string{"localhost:9092"})

	config.CheckNotNegative(ac, "MaxAttempts", &c.MaxAttempts, DefaultKafkaConfigMaxAttempts)
	config.CheckNotZero(ac, "MaxAttempts", &c.MaxAttempts, DefaultKafkaConfigMaxAttempts)

	config.CheckNotNegative(ac, "BatchSize", &c.BatchSize, DefaultKafkaConfigBatchSize)
	config.CheckNotZero(ac, "BatchSize", &c.BatchSize, DefaultKafkaConfigBatchSize)

	config.CheckNotNegative(ac, "BatchTimeout", &c.BatchTimeout, DefaultKafkaConfigBatchTimeout)
	config.CheckNotNegative(ac, "ReadTimeout", &c.ReadTimeout, DefaultKafkaConfigReadTimeout)
	config.CheckNotNegative(ac, "WriteTimeout", &c.WriteTimeout, DefaultKafkaConfigWriteTimeout)
}

//////////////
//  WRITER  //
//////////////

var _ Writer[int] = (*KafkaWriter[int])(nil)

// KafkaWriter publishes drained values to a Kafka topic.
type KafkaWriter[T any] struct {
	cfg *KafkaConfig

	// marshal encodes one value into the record payload. It must not be nil.
	marshal func(val T) []byte

	writer *kafka.Writer

	batch []kafka.Message

	deliveredMessages atomic.Int64
}

// NewKafkaWriter returns a new Kafka writer encoding values with the given
// marshal function.
func NewKafkaWriter[T any](cfg *KafkaConfig, marshal func(val T) []byte) *KafkaWriter[T] {
	return &KafkaWriter[T]{
		cfg: cfg,

		marshal: marshal,
	}
}

// Init creates the underlying Kafka writer and initializes the metrics.
func (kw *KafkaWriter[T]) Init(_ context.Context, tel *telemetry.Telemetry) error {
	if kw.marshal == nil {
		return errors.New("egress: kafka writer needs a marshal function")
	}

	config.NewValidator(tel).Validate(kw.cfg)

	kw.writer = &kafka.Writer{
		Addr:  kafka.TCP(kw.cfg.Brokers...),
		Topic: kw.cfg.Topic,

		Balancer: kw.cfg.Balancer,

		MaxAttempts: kw.cfg.MaxAttempts,

		BatchSize:    kw.cfg.BatchSize,
		BatchTimeout: kw.cfg.BatchTimeout,

		ReadTimeout:  kw.cfg.ReadTimeout,
		WriteTimeout: kw.cfg.WriteTimeout,

		RequiredAcks: kw.cfg.RequiredAcks,
	}

	kw.batch = make([]kafka.Message, 0, kw.cfg.BatchSize)

	tel.NewCounter("delivered_messages", func() int64 { return kw.deliveredMessages.Load() })

	return nil
}

// WriteValue buffers the record of the value,
// publishing the batch when it is full.
func (kw *KafkaWriter[T]) WriteValue(ctx context.Context, val T) error {
	kw.batch = append(kw.batch, kafka.Message{
		Value: kw.marshal(val),
	})

	if len(kw.batch) >= kw.cfg.BatchSize {
		return kw.Flush(ctx)
	}

	return nil
}

// Flush publishes the buffered records.
func (kw *KafkaWriter[T]) Flush(ctx context.Context) error {
	if len(kw.batch) == 0 {
		return nil
	}

	if err := kw.writer.WriteMessages(ctx, kw.batch...); err != nil {
		return err
	}

	kw.deliveredMessages.Add(int64(len(kw.batch)))
	kw.batch = kw.batch[:0]

	return nil
}

// Close closes the underlying Kafka writer.
func (kw *KafkaWriter[T]) Close() error {
	return kw.writer.Close()
}
