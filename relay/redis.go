package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/events"
)

var (
	// ErrInvalidConfig is returned when a relay configuration is invalid
	ErrInvalidConfig = errors.New("invalid relay configuration")

	// ErrNotConnected is returned when an operation requires a live connection
	ErrNotConnected = errors.New("relay not connected")
)

// RedisConfig holds Redis relay configuration
type RedisConfig struct {
	// Enabled controls whether the Redis relay is constructed at all
	Enabled bool `yaml:"enabled"`

	// Address is the Redis server address (host:port)
	Address string `yaml:"address"`

	// Password is the Redis password (empty for no auth)
	Password string `yaml:"password"`

	// DB is the Redis database number
	DB int `yaml:"db"`

	// ChannelPrefix is prepended to the topic category to form the
	// Pub/Sub channel name: prefix:eventType
	ChannelPrefix string `yaml:"channel_prefix"`

	// DialTimeout is the timeout for establishing connections
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// WriteTimeout bounds each publish call
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PoolSize is the connection pool size
	PoolSize int `yaml:"pool_size"`
}

// SetDefaults fills in zero-valued fields with sensible defaults
func (c *RedisConfig) SetDefaults() {
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = "tokenlytics"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
}

// Validate checks the configuration for correctness
func (c *RedisConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Address == "" {
		return fmt.Errorf("%w: no Redis address configured", ErrInvalidConfig)
	}
	return nil
}

// RedisRelay forwards bus events to Redis Pub/Sub channels, one channel
// per topic category
type RedisRelay struct {
	client *redis.Client
	bus    *events.EventBus
	config RedisConfig
	logger *zap.Logger

	connected atomic.Bool

	stats struct {
		published atomic.Uint64
		errors    atomic.Uint64
	}
}

// NewRedisRelay creates a Redis relay. The connection is verified with
// a ping before the relay is returned.
func NewRedisRelay(ctx context.Context, cfg RedisConfig, bus *events.EventBus, logger *zap.Logger) (*RedisRelay, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	r := &RedisRelay{
		client: client,
		bus:    bus,
		config: cfg,
		logger: logger.Named("redis-relay"),
	}
	r.connected.Store(true)

	r.logger.Info("connected to Redis",
		zap.String("address", cfg.Address),
		zap.String("channel_prefix", cfg.ChannelPrefix),
	)

	return r, nil
}

// Run subscribes to the bus and forwards events until ctx is canceled
// or the bus shuts down. It blocks and should be called in a goroutine.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.bus.Subscribe("redis-relay", allEventTypes(), nil, subscriptionBuffer)
	if sub == nil {
		return errors.New("failed to subscribe redis relay to event bus")
	}
	defer r.bus.Unsubscribe(sub.ID)

	drainLoop(ctx.Done(), sub, func(event events.Event) {
		r.forward(ctx, event)
	}, r.logger)

	return ctx.Err()
}

// forward publishes one event to its topic channel
func (r *RedisRelay) forward(ctx context.Context, event events.Event) {
	data, err := encodeEvent(event)
	if err != nil {
		r.stats.errors.Add(1)
		r.logger.Error("failed to encode event",
			zap.String("kind", string(event.Kind())),
			zap.Error(err),
		)
		return
	}

	channel := fmt.Sprintf("%s:%s", r.config.ChannelPrefix, event.Type())

	pubCtx, cancel := context.WithTimeout(ctx, r.config.WriteTimeout)
	defer cancel()

	if err := r.client.Publish(pubCtx, channel, data).Err(); err != nil {
		r.stats.errors.Add(1)
		r.logger.Error("failed to publish to Redis",
			zap.String("channel", channel),
			zap.Error(err),
		)
		return
	}

	r.stats.published.Add(1)
}

// Healthy pings Redis with a short deadline
func (r *RedisRelay) Healthy(ctx context.Context) bool {
	if !r.connected.Load() {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return r.client.Ping(pingCtx).Err() == nil
}

// Stats returns publish counters
func (r *RedisRelay) Stats() (published, errs uint64) {
	return r.stats.published.Load(), r.stats.errors.Load()
}

// Close releases the Redis connection
func (r *RedisRelay) Close() error {
	if !r.connected.Load() {
		return nil
	}
	r.connected.Store(false)
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	r.logger.Info("disconnected from Redis")
	return nil
}
