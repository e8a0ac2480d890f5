package api

import (
	"errors"
	"fmt"
	"time"
)

// Config holds API server configuration
type Config struct {
	// Host is the server host (default: localhost)
	Host string `yaml:"host"`

	// Port is the server port (default: 8080)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// EnableCORS enables CORS middleware
	EnableCORS bool `yaml:"enable_cors"`

	// AllowedOrigins is a list of allowed CORS origins
	AllowedOrigins []string `yaml:"allowed_origins"`

	// EnableGraphQL enables the GraphQL query endpoint
	EnableGraphQL bool `yaml:"enable_graphql"`

	// EnableWebSocket enables the WebSocket subscription server
	EnableWebSocket bool `yaml:"enable_websocket"`

	// GraphQLPath is the GraphQL endpoint path (default: /graphql)
	GraphQLPath string `yaml:"graphql_path"`

	// GraphQLPlaygroundPath is the GraphQL playground path (default: /playground)
	GraphQLPlaygroundPath string `yaml:"graphql_playground_path"`

	// WebSocketPath is the WebSocket endpoint path (default: /ws)
	WebSocketPath string `yaml:"websocket_path"`

	// ShutdownTimeout is the graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// EnableRateLimit enables per-IP rate limiting middleware
	EnableRateLimit bool `yaml:"enable_rate_limit"`

	// RateLimitPerSecond is the number of requests allowed per second per IP
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`

	// RateLimitBurst is the maximum burst size
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// MaxPageSize caps the limit parameter on list endpoints
	MaxPageSize int `yaml:"max_page_size"`
}

// DefaultConfig returns a default API server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:                  "localhost",
		Port:                  8080,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		MaxHeaderBytes:        1 << 20,
		EnableCORS:            true,
		AllowedOrigins:        []string{"*"},
		EnableGraphQL:         true,
		EnableWebSocket:       true,
		GraphQLPath:           "/graphql",
		GraphQLPlaygroundPath: "/playground",
		WebSocketPath:         "/ws",
		ShutdownTimeout:       30 * time.Second,
		EnableRateLimit:       false,
		RateLimitPerSecond:    1000,
		RateLimitBurst:        2000,
		MaxPageSize:           1000,
	}
}

// SetDefaults fills in default values for unset fields
func (c *Config) SetDefaults() {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = def.MaxHeaderBytes
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = def.AllowedOrigins
	}
	if c.GraphQLPath == "" {
		c.GraphQLPath = def.GraphQLPath
	}
	if c.GraphQLPlaygroundPath == "" {
		c.GraphQLPlaygroundPath = def.GraphQLPlaygroundPath
	}
	if c.WebSocketPath == "" {
		c.WebSocketPath = def.WebSocketPath
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = def.RateLimitPerSecond
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = def.RateLimitBurst
	}
	if c.MaxPageSize == 0 {
		c.MaxPageSize = def.MaxPageSize
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("max header bytes must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.MaxPageSize <= 0 {
		return errors.New("max page size must be positive")
	}
	if c.EnableRateLimit {
		if c.RateLimitPerSecond <= 0 {
			return errors.New("rate limit per second must be positive")
		}
		if c.RateLimitBurst <= 0 {
			return errors.New("rate limit burst must be positive")
		}
	}
	return nil
}

// Address returns the server address in host:port format
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
