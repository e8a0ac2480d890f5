package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testTokenContract = "0x1000000000000000000000000000000000000001"

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Chain.Endpoint = "http://localhost:8545"
	cfg.Chain.TokenContract = testTokenContract
	cfg.Database.Path = "/tmp/engine-test"
	return cfg
}

// TestNewConfig tests creating a config with defaults
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	if cfg == nil {
		t.Fatal("NewConfig() returned nil")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected default log format 'json', got %q", cfg.Log.Format)
	}
	if cfg.Engine.BatchSize != 500 {
		t.Errorf("Expected default batch size 500, got %d", cfg.Engine.BatchSize)
	}
	if cfg.Engine.PollInterval != 3*time.Second {
		t.Errorf("Expected default poll interval 3s, got %v", cfg.Engine.PollInterval)
	}
	if cfg.Engine.MaxReorgDepth != 64 {
		t.Errorf("Expected default max reorg depth 64, got %d", cfg.Engine.MaxReorgDepth)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.EventBus.PublishBufferSize != 1000 {
		t.Errorf("Expected default publish buffer 1000, got %d", cfg.EventBus.PublishBufferSize)
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing RPC endpoint",
			mutate:  func(c *Config) { c.Chain.Endpoint = "" },
			wantErr: true,
		},
		{
			name:    "missing token contract",
			mutate:  func(c *Config) { c.Chain.TokenContract = "" },
			wantErr: true,
		},
		{
			name:    "malformed token contract",
			mutate:  func(c *Config) { c.Chain.TokenContract = "not-an-address" },
			wantErr: true,
		},
		{
			name:    "malformed governance contract",
			mutate:  func(c *Config) { c.Chain.GovernanceContract = "0x12" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "invalid API port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "redis enabled without address",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" },
			wantErr: true,
		},
		{
			name:    "kafka enabled without brokers",
			mutate:  func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoadFromFile tests loading configuration from a YAML file
func TestLoadFromFile(t *testing.T) {
	content := `
chain:
  endpoint: http://localhost:8545
  token_contract: "` + testTokenContract + `"
database:
  path: /tmp/engine-test
log:
  level: debug
  format: console
engine:
  start_block: 100
  batch_size: 250
api:
  port: 9090
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := &Config{}
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Chain.Endpoint != "http://localhost:8545" {
		t.Errorf("unexpected endpoint %q", cfg.Chain.Endpoint)
	}
	if cfg.Engine.StartBlock != 100 {
		t.Errorf("expected start block 100, got %d", cfg.Engine.StartBlock)
	}
	if cfg.Engine.BatchSize != 250 {
		t.Errorf("expected batch size 250, got %d", cfg.Engine.BatchSize)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("expected API port 9090, got %d", cfg.API.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
}

// TestLoadFromFileMissing tests loading a nonexistent file
func TestLoadFromFileMissing(t *testing.T) {
	cfg := &Config{}
	if err := cfg.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

// TestLoadFromEnv tests environment variable overrides
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENGINE_RPC_ENDPOINT", "http://envhost:8545")
	t.Setenv("ENGINE_TOKEN_CONTRACT", testTokenContract)
	t.Setenv("ENGINE_DB_PATH", "/tmp/engine-env")
	t.Setenv("ENGINE_START_BLOCK", "42")
	t.Setenv("ENGINE_POLL_INTERVAL", "5s")
	t.Setenv("ENGINE_API_PORT", "9191")
	t.Setenv("ENGINE_REDIS_ENABLED", "true")
	t.Setenv("ENGINE_REDIS_ADDRESS", "localhost:6379")

	cfg := &Config{}
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Chain.Endpoint != "http://envhost:8545" {
		t.Errorf("unexpected endpoint %q", cfg.Chain.Endpoint)
	}
	if cfg.Engine.StartBlock != 42 {
		t.Errorf("expected start block 42, got %d", cfg.Engine.StartBlock)
	}
	if cfg.Engine.PollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", cfg.Engine.PollInterval)
	}
	if cfg.API.Port != 9191 {
		t.Errorf("expected API port 9191, got %d", cfg.API.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Address != "localhost:6379" {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
}

// TestLoadFromEnvInvalid tests invalid environment values
func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("ENGINE_START_BLOCK", "not-a-number")

	cfg := &Config{}
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for invalid ENGINE_START_BLOCK")
	}
}

// TestLoad tests the full load path with precedence
func TestLoad(t *testing.T) {
	content := `
chain:
  endpoint: http://filehost:8545
  token_contract: "` + testTokenContract + `"
database:
  path: /tmp/engine-test
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Environment overrides file
	t.Setenv("ENGINE_RPC_ENDPOINT", "http://envhost:8545")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Chain.Endpoint != "http://envhost:8545" {
		t.Errorf("expected env to override file, got %q", cfg.Chain.Endpoint)
	}
	// Defaults filled in
	if cfg.Engine.BatchSize != 500 {
		t.Errorf("expected default batch size 500, got %d", cfg.Engine.BatchSize)
	}
}

// TestEngineConfigConversion tests conversion to the engine package config
func TestEngineConfigConversion(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.StartBlock = 7
	cfg.Engine.BatchSize = 123

	ec := cfg.EngineConfig()
	if ec.StartBlock != 7 {
		t.Errorf("expected start block 7, got %d", ec.StartBlock)
	}
	if ec.BatchSize != 123 {
		t.Errorf("expected batch size 123, got %d", ec.BatchSize)
	}
	if ec.TokenContract.Hex() == "0x0000000000000000000000000000000000000000" {
		t.Error("token contract not converted")
	}
}

// TestStorageConfigConversion tests conversion to the storage package config
func TestStorageConfigConversion(t *testing.T) {
	cfg := validConfig()
	cfg.Database.ReadOnly = true
	cfg.Database.CacheMB = 256

	sc := cfg.StorageConfig()
	if sc.Path != "/tmp/engine-test" {
		t.Errorf("unexpected path %q", sc.Path)
	}
	if !sc.ReadOnly {
		t.Error("expected readonly storage config")
	}
	if sc.Cache != 256 {
		t.Errorf("expected cache 256, got %d", sc.Cache)
	}
}
