package storage

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only storage
	ErrReadOnly = errors.New("storage is read-only")
)

// Reader provides read-only access to derived state
// Following Interface Segregation Principle - clients depend only on read methods
type Reader interface {
	// GetCursor returns the highest fully applied block, or ErrNotFound
	// before the first block is applied
	GetCursor(ctx context.Context) (*Cursor, error)

	// GetBlockHash returns the recorded hash of an applied block
	GetBlockHash(ctx context.Context, height uint64) (common.Hash, error)

	// GetRollbackWatermark returns the in-progress rollback marker, or
	// ErrNotFound when no rollback is pending
	GetRollbackWatermark(ctx context.Context) (*RollbackWatermark, error)

	// GetTransaction returns a derived transaction record by identity
	GetTransaction(ctx context.Context, txHash common.Hash, logIndex uint) (*Transaction, error)

	// GetTransactions returns derived transactions matching the filter,
	// newest first
	GetTransactions(ctx context.Context, filter *TransactionFilter) ([]*Transaction, error)

	// GetTransactionsByAddress returns transactions touching an address
	// in chain order with pagination
	GetTransactionsByAddress(ctx context.Context, addr common.Address, limit, offset int) ([]*Transaction, error)

	// GetUserAnalytics returns the activity aggregate for an address
	GetUserAnalytics(ctx context.Context, addr common.Address) (*UserAnalytics, error)

	// GetProposal returns a governance proposal by id
	GetProposal(ctx context.Context, id uint64) (*Proposal, error)

	// GetProposals returns proposals, newest first. Empty status means all.
	GetProposals(ctx context.Context, status ProposalStatus, limit, offset int) ([]*Proposal, error)

	// GetVote returns the vote by (proposal, voter) identity
	GetVote(ctx context.Context, proposalID uint64, voter common.Address) (*Vote, error)

	// GetVotes returns all recorded votes for a proposal
	GetVotes(ctx context.Context, proposalID uint64) ([]*Vote, error)

	// GetLatestSnapshot returns the most recent metrics snapshot
	GetLatestSnapshot(ctx context.Context) (*TokenMetricsSnapshot, error)

	// GetSnapshots returns snapshots taken within [from, to], oldest first
	GetSnapshots(ctx context.Context, from, to time.Time, limit int) ([]*TokenMetricsSnapshot, error)

	// GetAppliedEvent returns the applied-event record by log identity
	GetAppliedEvent(ctx context.Context, txHash common.Hash, logIndex uint) (*AppliedEvent, error)

	// HasAppliedEvent checks whether a log entry has already been applied
	HasAppliedEvent(ctx context.Context, txHash common.Hash, logIndex uint) (bool, error)

	// GetAppliedEventsInRange returns applied events for blocks
	// fromBlock..toBlock inclusive, in ascending (block, logIndex) order
	GetAppliedEventsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]*AppliedEvent, error)

	// GetBalance returns the materialized token balance of an address.
	// Unknown addresses have zero balance.
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	// CountHolders returns the number of addresses with a positive balance
	CountHolders(ctx context.Context) (uint64, error)

	// GetTopHolders returns the highest balances in descending order
	GetTopHolders(ctx context.Context, limit int) ([]*Holder, error)

	// GetSupplyTotals returns cumulative minted and burned amounts
	GetSupplyTotals(ctx context.Context) (*SupplyTotals, error)

	// GetWindowStats aggregates transfer count and volume since the
	// given time
	GetWindowStats(ctx context.Context, since time.Time) (*WindowStats, error)
}

// Writer provides write access to derived state
// Following Interface Segregation Principle - separate write interface
type Writer interface {
	// SetCursor updates the applied-block cursor
	SetCursor(ctx context.Context, cursor *Cursor) error

	// SetBlockHash records the hash of an applied block
	SetBlockHash(ctx context.Context, height uint64, hash common.Hash) error

	// DeleteBlockHash removes a recorded block hash (rollback)
	DeleteBlockHash(ctx context.Context, height uint64) error

	// SetRollbackWatermark persists the in-progress rollback marker
	SetRollbackWatermark(ctx context.Context, w *RollbackWatermark) error

	// ClearRollbackWatermark removes the rollback marker
	ClearRollbackWatermark(ctx context.Context) error

	// SetTransaction stores a derived transaction with its time and
	// address index entries
	SetTransaction(ctx context.Context, tx *Transaction) error

	// DeleteTransaction removes a derived transaction and its index
	// entries (rollback)
	DeleteTransaction(ctx context.Context, tx *Transaction) error

	// SetUserAnalytics stores a per-address activity aggregate
	SetUserAnalytics(ctx context.Context, ua *UserAnalytics) error

	// DeleteUserAnalytics removes a per-address aggregate (rollback of
	// the address's first transaction)
	DeleteUserAnalytics(ctx context.Context, addr common.Address) error

	// SetProposal stores a governance proposal
	SetProposal(ctx context.Context, p *Proposal) error

	// DeleteProposal removes a proposal (rollback)
	DeleteProposal(ctx context.Context, id uint64) error

	// SetVote stores a recorded vote
	SetVote(ctx context.Context, v *Vote) error

	// DeleteVote removes a recorded vote (rollback)
	DeleteVote(ctx context.Context, proposalID uint64, voter common.Address) error

	// SetSnapshot appends a metrics snapshot
	SetSnapshot(ctx context.Context, s *TokenMetricsSnapshot) error

	// SetAppliedEvent records a log entry as applied
	SetAppliedEvent(ctx context.Context, ae *AppliedEvent) error

	// DeleteAppliedEvent removes an applied-event record (rollback)
	DeleteAppliedEvent(ctx context.Context, ae *AppliedEvent) error

	// SetBalance updates the materialized balance of an address
	SetBalance(ctx context.Context, addr common.Address, balance *big.Int) error

	// SetSupplyTotals updates cumulative supply totals
	SetSupplyTotals(ctx context.Context, s *SupplyTotals) error
}

// Storage combines Reader and Writer interfaces
// Follows Dependency Inversion Principle - depend on abstraction
type Storage interface {
	Reader
	Writer

	// Close closes the storage and releases resources
	Close() error

	// NewBatch creates a new batch for atomic writes
	NewBatch() Batch

	// Compact triggers manual compaction (optional optimization)
	Compact(ctx context.Context, start, end []byte) error
}

// Batch provides atomic batch write operations. One block's event
// mutations, applied-event records and cursor advance commit together.
type Batch interface {
	Writer

	// Commit writes all batched operations atomically
	Commit() error

	// Reset clears all operations in the batch
	Reset()

	// Count returns the number of operations in the batch
	Count() int

	// Close releases batch resources without committing
	Close() error
}

// Config holds storage configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 128)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 1000)
	MaxOpenFiles int

	// WriteBuffer size in MB (default: 64)
	WriteBuffer int

	// DisableWAL disables write-ahead log (not recommended)
	DisableWAL bool

	// ReadOnly opens the database in read-only mode
	ReadOnly bool

	// CompactionConcurrency for background compaction (default: 1)
	CompactionConcurrency int
}

// DefaultConfig returns a default configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:                  path,
		Cache:                 128, // 128 MB
		MaxOpenFiles:          1000,
		WriteBuffer:           64, // 64 MB
		DisableWAL:            false,
		ReadOnly:              false,
		CompactionConcurrency: 1,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	if c.WriteBuffer < 0 {
		return errors.New("write buffer size cannot be negative")
	}
	if c.CompactionConcurrency < 1 {
		return errors.New("compaction concurrency must be at least 1")
	}
	return nil
}
