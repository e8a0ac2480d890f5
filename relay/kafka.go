package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/events"
)

// KafkaConfig holds Kafka relay configuration
type KafkaConfig struct {
	// Enabled controls whether the Kafka relay is constructed at all
	Enabled bool `yaml:"enabled"`

	// Brokers is the list of Kafka broker addresses
	Brokers []string `yaml:"brokers"`

	// Topic is the topic all events are written to
	Topic string `yaml:"topic"`

	// BatchSize is the maximum number of messages per batch
	BatchSize int `yaml:"batch_size"`

	// BatchTimeout is how long to wait before flushing a partial batch
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// RequiredAcks: 0 = none, 1 = leader, anything else = all replicas
	RequiredAcks int `yaml:"required_acks"`

	// Compression is the codec name: gzip, snappy, lz4, zstd or empty
	Compression string `yaml:"compression"`

	// WriteTimeout bounds each write call
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SetDefaults fills in zero-valued fields with sensible defaults
func (c *KafkaConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 100 * time.Millisecond
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Validate checks the configuration for correctness
func (c *KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: no Kafka brokers configured", ErrInvalidConfig)
	}
	if c.Topic == "" {
		return fmt.Errorf("%w: no Kafka topic configured", ErrInvalidConfig)
	}
	switch c.Compression {
	case "", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("%w: unknown compression codec %q", ErrInvalidConfig, c.Compression)
	}
	return nil
}

// KafkaRelay forwards bus events to a Kafka topic, keyed by originating
// transaction so logs of one transaction keep relative order
type KafkaRelay struct {
	writer *kafka.Writer
	bus    *events.EventBus
	config KafkaConfig
	logger *zap.Logger

	connected atomic.Bool

	stats struct {
		written atomic.Uint64
		bytes   atomic.Uint64
		errors  atomic.Uint64
	}
}

// NewKafkaRelay creates a Kafka relay. The writer connects lazily on
// first write, so construction never blocks on broker availability.
func NewKafkaRelay(cfg KafkaConfig, bus *events.EventBus, logger *zap.Logger) (*KafkaRelay, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}

	switch cfg.RequiredAcks {
	case 0:
		writer.RequiredAcks = kafka.RequireNone
	case 1:
		writer.RequiredAcks = kafka.RequireOne
	default:
		writer.RequiredAcks = kafka.RequireAll
	}

	switch cfg.Compression {
	case "gzip":
		writer.Compression = kafka.Compression(compress.Gzip)
	case "snappy":
		writer.Compression = kafka.Compression(compress.Snappy)
	case "lz4":
		writer.Compression = kafka.Compression(compress.Lz4)
	case "zstd":
		writer.Compression = kafka.Compression(compress.Zstd)
	}

	k := &KafkaRelay{
		writer: writer,
		bus:    bus,
		config: cfg,
		logger: logger.Named("kafka-relay"),
	}
	k.connected.Store(true)

	k.logger.Info("Kafka writer configured",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("compression", cfg.Compression),
	)

	return k, nil
}

// Run subscribes to the bus and forwards events until ctx is canceled
// or the bus shuts down. It blocks and should be called in a goroutine.
func (k *KafkaRelay) Run(ctx context.Context) error {
	sub := k.bus.Subscribe("kafka-relay", allEventTypes(), nil, subscriptionBuffer)
	if sub == nil {
		return errors.New("failed to subscribe kafka relay to event bus")
	}
	defer k.bus.Unsubscribe(sub.ID)

	drainLoop(ctx.Done(), sub, func(event events.Event) {
		k.forward(ctx, event)
	}, k.logger)

	return ctx.Err()
}

// forward writes one event to the configured topic
func (k *KafkaRelay) forward(ctx context.Context, event events.Event) {
	data, err := encodeEvent(event)
	if err != nil {
		k.stats.errors.Add(1)
		k.logger.Error("failed to encode event",
			zap.String("kind", string(event.Kind())),
			zap.Error(err),
		)
		return
	}

	msg := kafka.Message{
		Key:   []byte(partitionKey(event)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type())},
			{Key: "event_kind", Value: []byte(event.Kind())},
			{Key: "timestamp", Value: []byte(event.Timestamp().Format(time.RFC3339Nano))},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, k.config.WriteTimeout)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, msg); err != nil {
		k.stats.errors.Add(1)
		k.logger.Error("failed to write to Kafka",
			zap.String("topic", k.config.Topic),
			zap.Error(err),
		)
		return
	}

	k.stats.written.Add(1)
	k.stats.bytes.Add(uint64(len(data)))
}

// Stats returns write counters
func (k *KafkaRelay) Stats() (written, bytes, errs uint64) {
	return k.stats.written.Load(), k.stats.bytes.Load(), k.stats.errors.Load()
}

// Close flushes and releases the Kafka writer
func (k *KafkaRelay) Close() error {
	if !k.connected.Load() {
		return nil
	}
	k.connected.Store(false)
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	k.logger.Info("Kafka writer closed")
	return nil
}
