package engine

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds engine configuration
type Config struct {
	// TokenContract is the token contract whose events are indexed
	TokenContract common.Address

	// GovernanceContract is the governance contract; proposal timing is
	// side-read from it
	GovernanceContract common.Address

	// StartBlock is the block to start indexing from on a fresh store
	StartBlock uint64

	// BatchSize is the number of blocks fetched per backfill request
	BatchSize uint64

	// PollInterval is the delay between head polls while following
	PollInterval time.Duration

	// MaxRetries is the maximum number of retry attempts for feed and
	// persistence operations
	MaxRetries int

	// RetryDelay is the base delay between retry attempts; backoff is
	// exponential
	RetryDelay time.Duration

	// MaxReorgDepth is how many blocks below the cursor a divergence
	// search may walk before the engine halts
	MaxReorgDepth uint64

	// SnapshotInterval is how often the metrics snapshotter runs
	SnapshotInterval time.Duration

	// DecodeWorkers is the number of goroutines decoding a fetched log
	// batch. Application stays single-threaded regardless.
	DecodeWorkers int
}

// SetDefaults fills in default values for unset fields
func (c *Config) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 500
	}
	if c.PollInterval == 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MaxReorgDepth == 0 {
		c.MaxReorgDepth = 64
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = 30 * time.Second
	}
	if c.DecodeWorkers == 0 {
		c.DecodeWorkers = 4
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.TokenContract == (common.Address{}) {
		return fmt.Errorf("token contract cannot be empty")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive")
	}
	if c.MaxReorgDepth == 0 {
		return fmt.Errorf("max reorg depth must be positive")
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot interval must be positive")
	}
	return nil
}
