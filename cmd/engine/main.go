package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/api"
	"github.com/tokenlytics/engine-go/client"
	"github.com/tokenlytics/engine-go/engine"
	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/internal/config"
	"github.com/tokenlytics/engine-go/internal/logger"
	"github.com/tokenlytics/engine-go/relay"
	"github.com/tokenlytics/engine-go/storage"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile    = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion   = flag.Bool("version", false, "Show version information and exit")
		rpcEndpoint   = flag.String("rpc", "", "Chain RPC endpoint URL")
		dbPath        = flag.String("db", "", "Database path")
		tokenContract = flag.String("token", "", "Token contract address")
		govContract   = flag.String("governance", "", "Governance contract address")
		startBlock    = flag.Uint64("start-block", 0, "Block height to start indexing from")
		batchSize     = flag.Uint64("batch-size", 0, "Number of blocks per backfill batch")
		logLevel      = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat     = flag.String("log-format", "", "Log format (json, console)")

		apiHost = flag.String("api-host", "", "API server host")
		apiPort = flag.Int("api-port", 0, "API server port")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("tokenlytics-engine version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile, func(c *config.Config) {
		if *rpcEndpoint != "" {
			c.Chain.Endpoint = *rpcEndpoint
		}
		if *dbPath != "" {
			c.Database.Path = *dbPath
		}
		if *tokenContract != "" {
			c.Chain.TokenContract = *tokenContract
		}
		if *govContract != "" {
			c.Chain.GovernanceContract = *govContract
		}
		if *startBlock > 0 {
			c.Engine.StartBlock = *startBlock
		}
		if *batchSize > 0 {
			c.Engine.BatchSize = *batchSize
		}
		if *logLevel != "" {
			c.Log.Level = *logLevel
		}
		if *logFormat != "" {
			c.Log.Format = *logFormat
		}
		if *apiHost != "" {
			c.API.Host = *apiHost
		}
		if *apiPort > 0 {
			c.API.Port = *apiPort
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting analytics engine",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.Chain.Endpoint),
		zap.String("db_path", cfg.Database.Path),
		zap.String("token_contract", cfg.Chain.TokenContract),
		zap.Uint64("start_block", cfg.Engine.StartBlock),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Feed client
	feed, err := client.NewClient(&client.Config{
		Endpoint: cfg.Chain.Endpoint,
		Timeout:  cfg.Chain.Timeout,
		Logger:   logger.WithComponent(log, "client"),
	})
	if err != nil {
		log.Fatal("Failed to create feed client", zap.Error(err))
	}
	defer feed.Close()

	// Storage
	store, err := storage.NewPebbleStorage(cfg.StorageConfig())
	if err != nil {
		log.Fatal("Failed to create storage", zap.Error(err))
	}
	store.SetLogger(logger.WithComponent(log, "storage"))
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	log.Info("Storage initialized", zap.String("path", cfg.Database.Path))

	cursor, err := store.GetCursor(ctx)
	switch {
	case err == nil:
		log.Info("Resuming from cursor", zap.Uint64("height", cursor.BlockNumber))
	case errors.Is(err, storage.ErrNotFound):
		log.Info("Fresh store, starting from configured block",
			zap.Uint64("start_block", cfg.Engine.StartBlock))
	default:
		log.Fatal("Failed to read cursor", zap.Error(err))
	}

	// Event bus
	eventBus := events.NewEventBus(cfg.EventBus.PublishBufferSize, cfg.EventBus.SubscribeBufferSize)
	eventBus.SetMetrics(events.NewMetrics("tokenlytics", "eventbus"))
	go eventBus.Run()
	defer eventBus.Stop()

	// Engine
	engineMetrics := engine.NewMetrics("tokenlytics")
	eng, err := engine.NewEngine(store, feed, eventBus, cfg.EngineConfig(),
		logger.WithComponent(log, "engine"), engineMetrics)
	if err != nil {
		log.Fatal("Failed to create engine", zap.Error(err))
	}

	// Optional external relays
	var redisRelay *relay.RedisRelay
	if cfg.Redis.Enabled {
		redisRelay, err = relay.NewRedisRelay(ctx, cfg.Redis, eventBus, logger.WithComponent(log, "redis-relay"))
		if err != nil {
			log.Fatal("Failed to create Redis relay", zap.Error(err))
		}
		go func() {
			if err := redisRelay.Run(ctx); err != nil {
				log.Error("Redis relay stopped", zap.Error(err))
			}
		}()
		defer redisRelay.Close()
	}

	var kafkaRelay *relay.KafkaRelay
	if cfg.Kafka.Enabled {
		kafkaRelay, err = relay.NewKafkaRelay(cfg.Kafka, eventBus, logger.WithComponent(log, "kafka-relay"))
		if err != nil {
			log.Fatal("Failed to create Kafka relay", zap.Error(err))
		}
		go func() {
			if err := kafkaRelay.Run(ctx); err != nil {
				log.Error("Kafka relay stopped", zap.Error(err))
			}
		}()
		defer kafkaRelay.Close()
	}

	// API server
	apiServer, err := api.NewServer(&cfg.API, logger.WithComponent(log, "api"), store)
	if err != nil {
		log.Fatal("Failed to create API server", zap.Error(err))
	}
	apiServer.SetEventBus(eventBus)
	apiServer.SetStatusProvider(eng)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error("API server failed", zap.Error(err))
		}
	}()

	log.Info("API server started",
		zap.String("address", cfg.API.Address()),
		zap.Bool("graphql", cfg.API.EnableGraphQL),
		zap.Bool("websocket", cfg.API.EnableWebSocket),
	)

	// Run the indexing loop
	errChan := make(chan error, 1)
	go func() {
		errChan <- eng.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Engine stopped with error", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Engine stopped with error", zap.Error(err))
		}
	}

	log.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server gracefully", zap.Error(err))
	}

	if final, err := store.GetCursor(context.Background()); err == nil {
		log.Info("Final cursor", zap.Uint64("height", final.BlockNumber))
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Warn("Failed to read final cursor", zap.Error(err))
	}

	log.Info("Engine stopped")
}

// loadConfig loads configuration from .env, file and environment, then
// applies command-line overrides before validation
func loadConfig(configFile string, applyFlags func(*config.Config)) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &config.Config{}
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	applyFlags(cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}
