package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/tokenlytics/engine-go/api"
	"github.com/tokenlytics/engine-go/engine"
	"github.com/tokenlytics/engine-go/relay"
	"github.com/tokenlytics/engine-go/storage"
)

// Config holds all configuration for the analytics engine
type Config struct {
	Chain    ChainConfig       `yaml:"chain"`
	Database DatabaseConfig    `yaml:"database"`
	Log      LogConfig         `yaml:"log"`
	Engine   EngineConfig      `yaml:"engine"`
	EventBus EventBusConfig    `yaml:"eventbus"`
	API      api.Config        `yaml:"api"`
	Redis    relay.RedisConfig `yaml:"redis"`
	Kafka    relay.KafkaConfig `yaml:"kafka"`
}

// ChainConfig holds chain RPC and contract configuration
type ChainConfig struct {
	// Endpoint is the HTTP(S) JSON-RPC endpoint URL
	Endpoint string `yaml:"endpoint"`
	// Timeout is the dial timeout for the RPC connection
	Timeout time.Duration `yaml:"timeout"`
	// TokenContract is the token contract address whose logs are indexed
	TokenContract string `yaml:"token_contract"`
	// GovernanceContract is the optional governance contract address
	GovernanceContract string `yaml:"governance_contract"`
}

// DatabaseConfig holds Pebble storage configuration
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"readonly"`
	// CacheMB is the block cache size in MB
	CacheMB int `yaml:"cache_mb"`
	// WriteBufferMB is the memtable size in MB
	WriteBufferMB int `yaml:"write_buffer_mb"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig holds indexing loop configuration
type EngineConfig struct {
	StartBlock       uint64        `yaml:"start_block"`
	BatchSize        uint64        `yaml:"batch_size"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxReorgDepth    uint64        `yaml:"max_reorg_depth"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	DecodeWorkers    int           `yaml:"decode_workers"`
}

// EventBusConfig holds in-process event bus configuration
type EventBusConfig struct {
	// PublishBufferSize is the size of the publish channel
	PublishBufferSize int `yaml:"publish_buffer_size"`
	// SubscribeBufferSize is the per-subscriber channel size
	SubscribeBufferSize int `yaml:"subscribe_buffer_size"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.Chain.Timeout == 0 {
		c.Chain.Timeout = 10 * time.Second
	}

	if c.Database.CacheMB == 0 {
		c.Database.CacheMB = 128
	}
	if c.Database.WriteBufferMB == 0 {
		c.Database.WriteBufferMB = 64
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Engine.BatchSize == 0 {
		c.Engine.BatchSize = 500
	}
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = 3 * time.Second
	}
	if c.Engine.MaxRetries == 0 {
		c.Engine.MaxRetries = 5
	}
	if c.Engine.RetryDelay == 0 {
		c.Engine.RetryDelay = 500 * time.Millisecond
	}
	if c.Engine.MaxReorgDepth == 0 {
		c.Engine.MaxReorgDepth = 64
	}
	if c.Engine.SnapshotInterval == 0 {
		c.Engine.SnapshotInterval = 30 * time.Second
	}
	if c.Engine.DecodeWorkers == 0 {
		c.Engine.DecodeWorkers = 4
	}

	if c.EventBus.PublishBufferSize == 0 {
		c.EventBus.PublishBufferSize = 1000
	}
	if c.EventBus.SubscribeBufferSize == 0 {
		c.EventBus.SubscribeBufferSize = 256
	}

	c.API.SetDefaults()
	c.Redis.SetDefaults()
	c.Kafka.SetDefaults()
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over file configuration.
func (c *Config) LoadFromEnv() error {
	if endpoint := os.Getenv("ENGINE_RPC_ENDPOINT"); endpoint != "" {
		c.Chain.Endpoint = endpoint
	}
	if timeout := os.Getenv("ENGINE_RPC_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_RPC_TIMEOUT: %w", err)
		}
		c.Chain.Timeout = duration
	}
	if addr := os.Getenv("ENGINE_TOKEN_CONTRACT"); addr != "" {
		c.Chain.TokenContract = addr
	}
	if addr := os.Getenv("ENGINE_GOVERNANCE_CONTRACT"); addr != "" {
		c.Chain.GovernanceContract = addr
	}

	if path := os.Getenv("ENGINE_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if readonly := os.Getenv("ENGINE_DB_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_DB_READONLY: %w", err)
		}
		c.Database.ReadOnly = val
	}

	if level := os.Getenv("ENGINE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("ENGINE_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	if startBlock := os.Getenv("ENGINE_START_BLOCK"); startBlock != "" {
		val, err := strconv.ParseUint(startBlock, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_START_BLOCK: %w", err)
		}
		c.Engine.StartBlock = val
	}
	if batchSize := os.Getenv("ENGINE_BATCH_SIZE"); batchSize != "" {
		val, err := strconv.ParseUint(batchSize, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_BATCH_SIZE: %w", err)
		}
		c.Engine.BatchSize = val
	}
	if pollInterval := os.Getenv("ENGINE_POLL_INTERVAL"); pollInterval != "" {
		duration, err := time.ParseDuration(pollInterval)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_POLL_INTERVAL: %w", err)
		}
		c.Engine.PollInterval = duration
	}
	if snapshotInterval := os.Getenv("ENGINE_SNAPSHOT_INTERVAL"); snapshotInterval != "" {
		duration, err := time.ParseDuration(snapshotInterval)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_SNAPSHOT_INTERVAL: %w", err)
		}
		c.Engine.SnapshotInterval = duration
	}

	if host := os.Getenv("ENGINE_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("ENGINE_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_API_PORT: %w", err)
		}
		c.API.Port = val
	}
	if enableGraphQL := os.Getenv("ENGINE_API_GRAPHQL"); enableGraphQL != "" {
		val, err := strconv.ParseBool(enableGraphQL)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_API_GRAPHQL: %w", err)
		}
		c.API.EnableGraphQL = val
	}
	if enableWebSocket := os.Getenv("ENGINE_API_WEBSOCKET"); enableWebSocket != "" {
		val, err := strconv.ParseBool(enableWebSocket)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_API_WEBSOCKET: %w", err)
		}
		c.API.EnableWebSocket = val
	}
	if enableCORS := os.Getenv("ENGINE_API_CORS_ENABLED"); enableCORS != "" {
		val, err := strconv.ParseBool(enableCORS)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_API_CORS_ENABLED: %w", err)
		}
		c.API.EnableCORS = val
	}
	if allowedOrigins := os.Getenv("ENGINE_API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(allowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c.API.AllowedOrigins = origins
	}

	if redisEnabled := os.Getenv("ENGINE_REDIS_ENABLED"); redisEnabled != "" {
		val, err := strconv.ParseBool(redisEnabled)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_REDIS_ENABLED: %w", err)
		}
		c.Redis.Enabled = val
	}
	if redisAddr := os.Getenv("ENGINE_REDIS_ADDRESS"); redisAddr != "" {
		c.Redis.Address = redisAddr
	}
	if redisPassword := os.Getenv("ENGINE_REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}
	if redisDB := os.Getenv("ENGINE_REDIS_DB"); redisDB != "" {
		val, err := strconv.Atoi(redisDB)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_REDIS_DB: %w", err)
		}
		c.Redis.DB = val
	}

	if kafkaEnabled := os.Getenv("ENGINE_KAFKA_ENABLED"); kafkaEnabled != "" {
		val, err := strconv.ParseBool(kafkaEnabled)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_KAFKA_ENABLED: %w", err)
		}
		c.Kafka.Enabled = val
	}
	if kafkaBrokers := os.Getenv("ENGINE_KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := make([]string, 0)
		for _, broker := range strings.Split(kafkaBrokers, ",") {
			broker = strings.TrimSpace(broker)
			if broker != "" {
				brokers = append(brokers, broker)
			}
		}
		c.Kafka.Brokers = brokers
	}
	if kafkaTopic := os.Getenv("ENGINE_KAFKA_TOPIC"); kafkaTopic != "" {
		c.Kafka.Topic = kafkaTopic
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.Chain.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.Chain.TokenContract == "" {
		return fmt.Errorf("token contract is required")
	}
	if !common.IsHexAddress(c.Chain.TokenContract) {
		return fmt.Errorf("invalid token contract address %q", c.Chain.TokenContract)
	}
	if c.Chain.GovernanceContract != "" && !common.IsHexAddress(c.Chain.GovernanceContract) {
		return fmt.Errorf("invalid governance contract address %q", c.Chain.GovernanceContract)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}

	if c.EventBus.PublishBufferSize <= 0 {
		return fmt.Errorf("eventbus publish buffer size must be positive")
	}
	if c.EventBus.SubscribeBufferSize <= 0 {
		return fmt.Errorf("eventbus subscribe buffer size must be positive")
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("invalid API configuration: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid Redis configuration: %w", err)
	}
	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("invalid Kafka configuration: %w", err)
	}

	return nil
}

// EngineConfig converts the YAML-facing engine section into the
// engine package's config
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		TokenContract:      common.HexToAddress(c.Chain.TokenContract),
		GovernanceContract: common.HexToAddress(c.Chain.GovernanceContract),
		StartBlock:         c.Engine.StartBlock,
		BatchSize:          c.Engine.BatchSize,
		PollInterval:       c.Engine.PollInterval,
		MaxRetries:         c.Engine.MaxRetries,
		RetryDelay:         c.Engine.RetryDelay,
		MaxReorgDepth:      c.Engine.MaxReorgDepth,
		SnapshotInterval:   c.Engine.SnapshotInterval,
		DecodeWorkers:      c.Engine.DecodeWorkers,
	}
}

// StorageConfig converts the database section into the storage
// package's config
func (c *Config) StorageConfig() *storage.Config {
	cfg := storage.DefaultConfig(c.Database.Path)
	cfg.ReadOnly = c.Database.ReadOnly
	cfg.Cache = c.Database.CacheMB
	cfg.WriteBuffer = c.Database.WriteBufferMB
	return cfg
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Set defaults for missing values
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
