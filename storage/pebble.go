package storage

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PebbleStorage implements Storage interface using PebbleDB
type PebbleStorage struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool
}

// NewPebbleStorage creates a new PebbleDB storage
func NewPebbleStorage(cfg *Config) (*PebbleStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Configure PebbleDB options
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(cfg.Cache) << 20), // Convert MB to bytes
		MaxOpenFiles:             cfg.MaxOpenFiles,
		MemTableSize:             uint64(cfg.WriteBuffer) << 20,
		DisableWAL:               cfg.DisableWAL,
		MaxConcurrentCompactions: func() int { return cfg.CompactionConcurrency },
		ErrorIfExists:            false,
		ErrorIfNotExists:         false,
	}

	if cfg.ReadOnly {
		opts.ReadOnly = true
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStorage{
		db:     db,
		config: cfg,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for the storage
func (s *PebbleStorage) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// ensureNotClosed checks if storage is closed
func (s *PebbleStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ensureWritable checks closed and read-only state before a write
func (s *PebbleStorage) ensureWritable() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Close closes the storage and releases resources
func (s *PebbleStorage) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewBatch creates a new batch for atomic writes
func (s *PebbleStorage) NewBatch() Batch {
	return &pebbleBatch{
		storage: s,
		batch:   s.db.NewBatch(),
	}
}

// Compact triggers manual compaction
func (s *PebbleStorage) Compact(ctx context.Context, start, end []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}

	return s.db.Compact(start, end, true)
}

// get reads a raw value, translating pebble.ErrNotFound
func (s *PebbleStorage) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// Copy: the value is only valid until the closer is released
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// ============================================================================
// Reader
// ============================================================================

// GetCursor returns the highest fully applied block
func (s *PebbleStorage) GetCursor(ctx context.Context) (*Cursor, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(CursorKey())
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return DecodeCursor(value)
}

// GetBlockHash returns the recorded hash of an applied block
func (s *PebbleStorage) GetBlockHash(ctx context.Context, height uint64) (common.Hash, error) {
	if err := s.ensureNotClosed(); err != nil {
		return common.Hash{}, err
	}

	value, err := s.get(BlockHashKey(height))
	if err != nil {
		if err == ErrNotFound {
			return common.Hash{}, ErrNotFound
		}
		return common.Hash{}, fmt.Errorf("failed to get block hash: %w", err)
	}

	return common.BytesToHash(value), nil
}

// GetRollbackWatermark returns the in-progress rollback marker
func (s *PebbleStorage) GetRollbackWatermark(ctx context.Context) (*RollbackWatermark, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(RollbackWatermarkKey())
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rollback watermark: %w", err)
	}

	return DecodeRollbackWatermark(value)
}

// GetTransaction returns a derived transaction record by identity
func (s *PebbleStorage) GetTransaction(ctx context.Context, txHash common.Hash, logIndex uint) (*Transaction, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(TransactionKey(txHash, logIndex))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return DecodeTransaction(value)
}

// GetTransactions returns derived transactions matching the filter,
// newest first. The scan walks the time index backwards so pagination
// follows recency.
func (s *PebbleStorage) GetTransactions(ctx context.Context, filter *TransactionFilter) ([]*Transaction, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &TransactionFilter{}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	lower := []byte(TransactionTimeIndexPrefix())
	upper := PrefixUpperBound(TransactionTimeIndexPrefix())
	if !filter.StartTime.IsZero() || !filter.EndTime.IsZero() {
		from := int64(0)
		to := int64(1<<62) - 1
		if !filter.StartTime.IsZero() {
			from = filter.StartTime.Unix()
		}
		if !filter.EndTime.IsZero() {
			to = filter.EndTime.Unix()
		}
		lower, upper = TransactionTimeIndexRange(from, to)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var txs []*Transaction
	skipped := 0

	for ok := iter.Last(); ok; ok = iter.Prev() {
		txHash, logIndex, err := parseTimeIndexKey(iter.Key())
		if err != nil {
			return nil, err
		}

		tx, err := s.GetTransaction(ctx, txHash, logIndex)
		if err != nil {
			return nil, fmt.Errorf("dangling time index entry %s: %w", string(iter.Key()), err)
		}
		if !matchTransaction(tx, filter) {
			continue
		}

		if skipped < filter.Offset {
			skipped++
			continue
		}
		txs = append(txs, tx)
		if len(txs) >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return txs, nil
}

func matchTransaction(tx *Transaction, filter *TransactionFilter) bool {
	if filter.Type != "" && tx.Type != filter.Type {
		return false
	}
	if filter.From != nil && tx.From != *filter.From {
		return false
	}
	if filter.To != nil && tx.To != *filter.To {
		return false
	}
	return true
}

// parseTimeIndexKey extracts (txHash, logIndex) from a time index key
// Format: /index/txtime/{unix}/{txhash}/{logindex}
func parseTimeIndexKey(key []byte) (common.Hash, uint, error) {
	rest := strings.TrimPrefix(string(key), prefixTxTime)
	segments := strings.Split(rest, "/")
	if len(segments) != 3 {
		return common.Hash{}, 0, fmt.Errorf("%w: time index key %q", ErrInvalidData, string(key))
	}

	logIndex, err := strconv.ParseUint(segments[2], 10, 32)
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("%w: time index log index: %v", ErrInvalidData, err)
	}

	return common.HexToHash(segments[1]), uint(logIndex), nil
}

// GetTransactionsByAddress returns transactions touching an address in
// chain order with pagination
func (s *PebbleStorage) GetTransactionsByAddress(ctx context.Context, addr common.Address, limit, offset int) ([]*Transaction, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	prefix := AddressTransactionKeyPrefix(addr)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var txs []*Transaction
	count := 0

	for iter.First(); iter.Valid(); iter.Next() {
		if count < offset {
			count++
			continue
		}
		if len(txs) >= limit {
			break
		}

		// The index value is the data key of the transaction record
		value, err := s.get(append([]byte(nil), iter.Value()...))
		if err != nil {
			return nil, fmt.Errorf("dangling address index entry %s: %w", string(iter.Key()), err)
		}
		tx, err := DecodeTransaction(value)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		count++
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return txs, nil
}

// GetUserAnalytics returns the activity aggregate for an address
func (s *PebbleStorage) GetUserAnalytics(ctx context.Context, addr common.Address) (*UserAnalytics, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(UserAnalyticsKey(addr))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analytics: %w", err)
	}

	return DecodeUserAnalytics(value)
}

// GetProposal returns a governance proposal by id with its status
// resolved against the current time
func (s *PebbleStorage) GetProposal(ctx context.Context, id uint64) (*Proposal, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(ProposalKey(id))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	p, err := DecodeProposal(value)
	if err != nil {
		return nil, err
	}
	p.Status = p.ResolveStatus(time.Now())
	return p, nil
}

// GetProposals returns proposals, newest first. Status filters on the
// resolved status; empty status means all.
func (s *PebbleStorage) GetProposals(ctx context.Context, status ProposalStatus, limit, offset int) ([]*Proposal, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	prefix := ProposalKeyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	now := time.Now()
	var proposals []*Proposal
	skipped := 0

	for ok := iter.Last(); ok; ok = iter.Prev() {
		p, err := DecodeProposal(iter.Value())
		if err != nil {
			return nil, err
		}
		p.Status = p.ResolveStatus(now)

		if status != "" && p.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		proposals = append(proposals, p)
		if len(proposals) >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return proposals, nil
}

// GetVote returns the vote by (proposal, voter) identity
func (s *PebbleStorage) GetVote(ctx context.Context, proposalID uint64, voter common.Address) (*Vote, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(VoteKey(proposalID, voter))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}

	return DecodeVote(value)
}

// GetVotes returns all recorded votes for a proposal
func (s *PebbleStorage) GetVotes(ctx context.Context, proposalID uint64) ([]*Vote, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := VoteKeyPrefix(proposalID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var votes []*Vote
	for iter.First(); iter.Valid(); iter.Next() {
		v, err := DecodeVote(iter.Value())
		if err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return votes, nil
}

// GetLatestSnapshot returns the most recent metrics snapshot
func (s *PebbleStorage) GetLatestSnapshot(ctx context.Context) (*TokenMetricsSnapshot, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := SnapshotKeyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, fmt.Errorf("iterator error: %w", err)
		}
		return nil, ErrNotFound
	}

	return DecodeSnapshot(iter.Value())
}

// GetSnapshots returns snapshots taken within [from, to], oldest first
func (s *PebbleStorage) GetSnapshots(ctx context.Context, from, to time.Time, limit int) ([]*TokenMetricsSnapshot, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	lower := SnapshotKey(from.Unix())
	upper := SnapshotKey(to.Unix() + 1)

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var snapshots []*TokenMetricsSnapshot
	for iter.First(); iter.Valid(); iter.Next() {
		snap, err := DecodeSnapshot(iter.Value())
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
		if len(snapshots) >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return snapshots, nil
}

// GetAppliedEvent returns the applied-event record by log identity
func (s *PebbleStorage) GetAppliedEvent(ctx context.Context, txHash common.Hash, logIndex uint) (*AppliedEvent, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(AppliedEventKey(txHash, logIndex))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get applied event: %w", err)
	}

	return DecodeAppliedEvent(value)
}

// HasAppliedEvent checks whether a log entry has already been applied
func (s *PebbleStorage) HasAppliedEvent(ctx context.Context, txHash common.Hash, logIndex uint) (bool, error) {
	if err := s.ensureNotClosed(); err != nil {
		return false, err
	}

	_, closer, err := s.db.Get(AppliedEventKey(txHash, logIndex))
	if err != nil {
		if err == pebble.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check applied event: %w", err)
	}
	closer.Close()
	return true, nil
}

// GetAppliedEventsInRange returns applied events for blocks
// fromBlock..toBlock inclusive, in ascending (block, logIndex) order
func (s *PebbleStorage) GetAppliedEventsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]*AppliedEvent, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	lower, upper := AppliedBlockIndexRange(fromBlock, toBlock)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var applied []*AppliedEvent
	for iter.First(); iter.Valid(); iter.Next() {
		// The index value is the data key of the applied-event record
		value, err := s.get(append([]byte(nil), iter.Value()...))
		if err != nil {
			return nil, fmt.Errorf("dangling applied index entry %s: %w", string(iter.Key()), err)
		}
		ae, err := DecodeAppliedEvent(value)
		if err != nil {
			return nil, err
		}
		applied = append(applied, ae)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return applied, nil
}

// GetBalance returns the materialized token balance of an address
func (s *PebbleStorage) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(BalanceKey(addr))
	if err != nil {
		if err == ErrNotFound {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return DecodeBigInt(value), nil
}

// CountHolders returns the number of addresses with a positive balance
func (s *PebbleStorage) CountHolders(ctx context.Context) (uint64, error) {
	if err := s.ensureNotClosed(); err != nil {
		return 0, err
	}

	prefix := BalanceKeyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var holders uint64
	for iter.First(); iter.Valid(); iter.Next() {
		if DecodeBigInt(iter.Value()).Sign() > 0 {
			holders++
		}
	}

	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iterator error: %w", err)
	}

	return holders, nil
}

// GetTopHolders returns the highest balances in descending order
func (s *PebbleStorage) GetTopHolders(ctx context.Context, limit int) ([]*Holder, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	prefix := BalanceKeyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var holders []*Holder
	for iter.First(); iter.Valid(); iter.Next() {
		balance := DecodeBigInt(iter.Value())
		if balance.Sign() <= 0 {
			continue
		}
		addrHex := strings.TrimPrefix(string(iter.Key()), prefixBalance)
		holders = append(holders, &Holder{
			Address: common.HexToAddress(addrHex),
			Balance: balance,
		})
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Balance.Cmp(holders[j].Balance) > 0
	})
	if len(holders) > limit {
		holders = holders[:limit]
	}
	return holders, nil
}

// GetSupplyTotals returns cumulative minted and burned amounts
func (s *PebbleStorage) GetSupplyTotals(ctx context.Context) (*SupplyTotals, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, err := s.get(SupplyTotalsKey())
	if err != nil {
		if err == ErrNotFound {
			return NewSupplyTotals(), nil
		}
		return nil, fmt.Errorf("failed to get supply totals: %w", err)
	}

	return DecodeSupplyTotals(value)
}

// GetWindowStats aggregates transfer count and volume since the given
// time using the time index. Index values carry the type tag and amount
// so the scan avoids record lookups.
func (s *PebbleStorage) GetWindowStats(ctx context.Context, since time.Time) (*WindowStats, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	lower := []byte(fmt.Sprintf("%s%020d/", prefixTxTime, since.Unix()))
	upper := PrefixUpperBound(TransactionTimeIndexPrefix())

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	stats := &WindowStats{Volume: new(big.Int)}
	for iter.First(); iter.Valid(); iter.Next() {
		txType, amount := decodeTimeIndexValue(iter.Value())
		if txType != TxTypeTransfer {
			continue
		}
		stats.Transfers++
		stats.Volume.Add(stats.Volume, amount)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return stats, nil
}

// encodeTimeIndexValue packs the transaction type tag and amount into a
// time index value
func encodeTimeIndexValue(tx *Transaction) []byte {
	var tag byte
	switch tx.Type {
	case TxTypeTransfer:
		tag = 'T'
	case TxTypeMint:
		tag = 'M'
	case TxTypeBurn:
		tag = 'B'
	}
	amount := tx.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return append([]byte{tag}, amount.Bytes()...)
}

func decodeTimeIndexValue(value []byte) (TransactionType, *big.Int) {
	if len(value) == 0 {
		return "", new(big.Int)
	}
	var txType TransactionType
	switch value[0] {
	case 'T':
		txType = TxTypeTransfer
	case 'M':
		txType = TxTypeMint
	case 'B':
		txType = TxTypeBurn
	}
	return txType, new(big.Int).SetBytes(value[1:])
}

// ============================================================================
// Writer
//
// Mutations are expressed once against pebbleWriter so the direct write
// path and the batch path share the same key and index handling.
// ============================================================================

// pebbleWriter is satisfied by both *pebble.DB and *pebble.Batch
type pebbleWriter interface {
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
}

func putCursor(w pebbleWriter, cursor *Cursor, opts *pebble.WriteOptions) error {
	encoded, err := EncodeCursor(cursor)
	if err != nil {
		return err
	}
	return w.Set(CursorKey(), encoded, opts)
}

func putBlockHash(w pebbleWriter, height uint64, hash common.Hash, opts *pebble.WriteOptions) error {
	return w.Set(BlockHashKey(height), hash.Bytes(), opts)
}

func deleteBlockHash(w pebbleWriter, height uint64, opts *pebble.WriteOptions) error {
	return w.Delete(BlockHashKey(height), opts)
}

func putRollbackWatermark(w pebbleWriter, wm *RollbackWatermark, opts *pebble.WriteOptions) error {
	encoded, err := EncodeRollbackWatermark(wm)
	if err != nil {
		return err
	}
	return w.Set(RollbackWatermarkKey(), encoded, opts)
}

func clearRollbackWatermark(w pebbleWriter, opts *pebble.WriteOptions) error {
	return w.Delete(RollbackWatermarkKey(), opts)
}

// putTransaction writes the record plus its time and address index
// entries. Transfers index both sides; mints and burns only their single
// participant.
func putTransaction(w pebbleWriter, tx *Transaction, opts *pebble.WriteOptions) error {
	encoded, err := EncodeTransaction(tx)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}

	dataKey := TransactionKey(tx.Hash, tx.LogIndex)
	if err := w.Set(dataKey, encoded, opts); err != nil {
		return err
	}

	timeKey := TransactionTimeIndexKey(tx.Timestamp.Unix(), tx.Hash, tx.LogIndex)
	if err := w.Set(timeKey, encodeTimeIndexValue(tx), opts); err != nil {
		return err
	}

	for _, addr := range txParticipants(tx) {
		addrKey := AddressTransactionKey(addr, tx.BlockNumber, tx.LogIndex)
		if err := w.Set(addrKey, dataKey, opts); err != nil {
			return err
		}
	}
	return nil
}

func deleteTransaction(w pebbleWriter, tx *Transaction, opts *pebble.WriteOptions) error {
	if err := w.Delete(TransactionKey(tx.Hash, tx.LogIndex), opts); err != nil {
		return err
	}
	if err := w.Delete(TransactionTimeIndexKey(tx.Timestamp.Unix(), tx.Hash, tx.LogIndex), opts); err != nil {
		return err
	}
	for _, addr := range txParticipants(tx) {
		if err := w.Delete(AddressTransactionKey(addr, tx.BlockNumber, tx.LogIndex), opts); err != nil {
			return err
		}
	}
	return nil
}

// txParticipants returns the addresses a record is indexed under.
// The zero address is a sentinel, never a participant.
func txParticipants(tx *Transaction) []common.Address {
	var addrs []common.Address
	zero := common.Address{}
	if tx.From != zero {
		addrs = append(addrs, tx.From)
	}
	if tx.To != zero && tx.To != tx.From {
		addrs = append(addrs, tx.To)
	}
	return addrs
}

func putUserAnalytics(w pebbleWriter, ua *UserAnalytics, opts *pebble.WriteOptions) error {
	encoded, err := EncodeUserAnalytics(ua)
	if err != nil {
		return err
	}
	return w.Set(UserAnalyticsKey(ua.Address), encoded, opts)
}

func deleteUserAnalytics(w pebbleWriter, addr common.Address, opts *pebble.WriteOptions) error {
	return w.Delete(UserAnalyticsKey(addr), opts)
}

func putProposal(w pebbleWriter, p *Proposal, opts *pebble.WriteOptions) error {
	encoded, err := EncodeProposal(p)
	if err != nil {
		return err
	}
	return w.Set(ProposalKey(p.ID), encoded, opts)
}

func deleteProposal(w pebbleWriter, id uint64, opts *pebble.WriteOptions) error {
	return w.Delete(ProposalKey(id), opts)
}

func putVote(w pebbleWriter, v *Vote, opts *pebble.WriteOptions) error {
	encoded, err := EncodeVote(v)
	if err != nil {
		return err
	}
	return w.Set(VoteKey(v.ProposalID, v.Voter), encoded, opts)
}

func deleteVote(w pebbleWriter, proposalID uint64, voter common.Address, opts *pebble.WriteOptions) error {
	return w.Delete(VoteKey(proposalID, voter), opts)
}

func putSnapshot(w pebbleWriter, snap *TokenMetricsSnapshot, opts *pebble.WriteOptions) error {
	encoded, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return w.Set(SnapshotKey(snap.Timestamp.Unix()), encoded, opts)
}

func putAppliedEvent(w pebbleWriter, ae *AppliedEvent, opts *pebble.WriteOptions) error {
	encoded, err := EncodeAppliedEvent(ae)
	if err != nil {
		return err
	}

	dataKey := AppliedEventKey(ae.TxHash, ae.LogIndex)
	if err := w.Set(dataKey, encoded, opts); err != nil {
		return err
	}
	return w.Set(AppliedBlockIndexKey(ae.BlockNumber, ae.LogIndex), dataKey, opts)
}

func deleteAppliedEvent(w pebbleWriter, ae *AppliedEvent, opts *pebble.WriteOptions) error {
	if err := w.Delete(AppliedEventKey(ae.TxHash, ae.LogIndex), opts); err != nil {
		return err
	}
	return w.Delete(AppliedBlockIndexKey(ae.BlockNumber, ae.LogIndex), opts)
}

func putBalance(w pebbleWriter, addr common.Address, balance *big.Int, opts *pebble.WriteOptions) error {
	return w.Set(BalanceKey(addr), EncodeBigInt(balance), opts)
}

func putSupplyTotals(w pebbleWriter, totals *SupplyTotals, opts *pebble.WriteOptions) error {
	encoded, err := EncodeSupplyTotals(totals)
	if err != nil {
		return err
	}
	return w.Set(SupplyTotalsKey(), encoded, opts)
}

// SetCursor updates the applied-block cursor
func (s *PebbleStorage) SetCursor(ctx context.Context, cursor *Cursor) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putCursor(s.db, cursor, pebble.Sync)
}

// SetBlockHash records the hash of an applied block
func (s *PebbleStorage) SetBlockHash(ctx context.Context, height uint64, hash common.Hash) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putBlockHash(s.db, height, hash, pebble.Sync)
}

// DeleteBlockHash removes a recorded block hash
func (s *PebbleStorage) DeleteBlockHash(ctx context.Context, height uint64) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return deleteBlockHash(s.db, height, pebble.Sync)
}

// SetRollbackWatermark persists the in-progress rollback marker
func (s *PebbleStorage) SetRollbackWatermark(ctx context.Context, w *RollbackWatermark) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putRollbackWatermark(s.db, w, pebble.Sync)
}

// ClearRollbackWatermark removes the rollback marker
func (s *PebbleStorage) ClearRollbackWatermark(ctx context.Context) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return clearRollbackWatermark(s.db, pebble.Sync)
}

// SetTransaction stores a derived transaction with its index entries
func (s *PebbleStorage) SetTransaction(ctx context.Context, tx *Transaction) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putTransaction(s.db, tx, pebble.Sync)
}

// DeleteTransaction removes a derived transaction and its index entries
func (s *PebbleStorage) DeleteTransaction(ctx context.Context, tx *Transaction) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return deleteTransaction(s.db, tx, pebble.Sync)
}

// SetUserAnalytics stores a per-address activity aggregate
func (s *PebbleStorage) SetUserAnalytics(ctx context.Context, ua *UserAnalytics) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putUserAnalytics(s.db, ua, pebble.Sync)
}

// DeleteUserAnalytics removes a per-address aggregate
func (s *PebbleStorage) DeleteUserAnalytics(ctx context.Context, addr common.Address) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return deleteUserAnalytics(s.db, addr, pebble.Sync)
}

// SetProposal stores a governance proposal
func (s *PebbleStorage) SetProposal(ctx context.Context, p *Proposal) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putProposal(s.db, p, pebble.Sync)
}

// DeleteProposal removes a proposal
func (s *PebbleStorage) DeleteProposal(ctx context.Context, id uint64) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return deleteProposal(s.db, id, pebble.Sync)
}

// SetVote stores a recorded vote
func (s *PebbleStorage) SetVote(ctx context.Context, v *Vote) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putVote(s.db, v, pebble.Sync)
}

// DeleteVote removes a recorded vote
func (s *PebbleStorage) DeleteVote(ctx context.Context, proposalID uint64, voter common.Address) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return deleteVote(s.db, proposalID, voter, pebble.Sync)
}

// SetSnapshot appends a metrics snapshot
func (s *PebbleStorage) SetSnapshot(ctx context.Context, snap *TokenMetricsSnapshot) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putSnapshot(s.db, snap, pebble.Sync)
}

// SetAppliedEvent records a log entry as applied
func (s *PebbleStorage) SetAppliedEvent(ctx context.Context, ae *AppliedEvent) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putAppliedEvent(s.db, ae, pebble.Sync)
}

// DeleteAppliedEvent removes an applied-event record
func (s *PebbleStorage) DeleteAppliedEvent(ctx context.Context, ae *AppliedEvent) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return deleteAppliedEvent(s.db, ae, pebble.Sync)
}

// SetBalance updates the materialized balance of an address
func (s *PebbleStorage) SetBalance(ctx context.Context, addr common.Address, balance *big.Int) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putBalance(s.db, addr, balance, pebble.Sync)
}

// SetSupplyTotals updates cumulative supply totals
func (s *PebbleStorage) SetSupplyTotals(ctx context.Context, totals *SupplyTotals) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return putSupplyTotals(s.db, totals, pebble.Sync)
}

// ============================================================================
// Batch
// ============================================================================

// pebbleBatch implements Batch interface
type pebbleBatch struct {
	storage *PebbleStorage
	batch   *pebble.Batch
	count   int
	closed  bool
	mu      sync.Mutex
}

// do runs a mutation against the underlying pebble batch
func (b *pebbleBatch) do(op func(w pebbleWriter) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.storage.config.ReadOnly {
		return ErrReadOnly
	}

	if err := op(b.batch); err != nil {
		return err
	}
	b.count++
	return nil
}

func (b *pebbleBatch) SetCursor(ctx context.Context, cursor *Cursor) error {
	return b.do(func(w pebbleWriter) error { return putCursor(w, cursor, nil) })
}

func (b *pebbleBatch) SetBlockHash(ctx context.Context, height uint64, hash common.Hash) error {
	return b.do(func(w pebbleWriter) error { return putBlockHash(w, height, hash, nil) })
}

func (b *pebbleBatch) DeleteBlockHash(ctx context.Context, height uint64) error {
	return b.do(func(w pebbleWriter) error { return deleteBlockHash(w, height, nil) })
}

func (b *pebbleBatch) SetRollbackWatermark(ctx context.Context, wm *RollbackWatermark) error {
	return b.do(func(w pebbleWriter) error { return putRollbackWatermark(w, wm, nil) })
}

func (b *pebbleBatch) ClearRollbackWatermark(ctx context.Context) error {
	return b.do(func(w pebbleWriter) error { return clearRollbackWatermark(w, nil) })
}

func (b *pebbleBatch) SetTransaction(ctx context.Context, tx *Transaction) error {
	return b.do(func(w pebbleWriter) error { return putTransaction(w, tx, nil) })
}

func (b *pebbleBatch) DeleteTransaction(ctx context.Context, tx *Transaction) error {
	return b.do(func(w pebbleWriter) error { return deleteTransaction(w, tx, nil) })
}

func (b *pebbleBatch) SetUserAnalytics(ctx context.Context, ua *UserAnalytics) error {
	return b.do(func(w pebbleWriter) error { return putUserAnalytics(w, ua, nil) })
}

func (b *pebbleBatch) DeleteUserAnalytics(ctx context.Context, addr common.Address) error {
	return b.do(func(w pebbleWriter) error { return deleteUserAnalytics(w, addr, nil) })
}

func (b *pebbleBatch) SetProposal(ctx context.Context, p *Proposal) error {
	return b.do(func(w pebbleWriter) error { return putProposal(w, p, nil) })
}

func (b *pebbleBatch) DeleteProposal(ctx context.Context, id uint64) error {
	return b.do(func(w pebbleWriter) error { return deleteProposal(w, id, nil) })
}

func (b *pebbleBatch) SetVote(ctx context.Context, v *Vote) error {
	return b.do(func(w pebbleWriter) error { return putVote(w, v, nil) })
}

func (b *pebbleBatch) DeleteVote(ctx context.Context, proposalID uint64, voter common.Address) error {
	return b.do(func(w pebbleWriter) error { return deleteVote(w, proposalID, voter, nil) })
}

func (b *pebbleBatch) SetSnapshot(ctx context.Context, snap *TokenMetricsSnapshot) error {
	return b.do(func(w pebbleWriter) error { return putSnapshot(w, snap, nil) })
}

func (b *pebbleBatch) SetAppliedEvent(ctx context.Context, ae *AppliedEvent) error {
	return b.do(func(w pebbleWriter) error { return putAppliedEvent(w, ae, nil) })
}

func (b *pebbleBatch) DeleteAppliedEvent(ctx context.Context, ae *AppliedEvent) error {
	return b.do(func(w pebbleWriter) error { return deleteAppliedEvent(w, ae, nil) })
}

func (b *pebbleBatch) SetBalance(ctx context.Context, addr common.Address, balance *big.Int) error {
	return b.do(func(w pebbleWriter) error { return putBalance(w, addr, balance, nil) })
}

func (b *pebbleBatch) SetSupplyTotals(ctx context.Context, totals *SupplyTotals) error {
	return b.do(func(w pebbleWriter) error { return putSupplyTotals(w, totals, nil) })
}

// Commit writes all batched operations atomically
func (b *pebbleBatch) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	return b.batch.Commit(pebble.Sync)
}

// Reset clears all operations in the batch
func (b *pebbleBatch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.batch.Reset()
	b.count = 0
}

// Count returns the number of operations in the batch
func (b *pebbleBatch) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Close releases batch resources without committing
func (b *pebbleBatch) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.batch.Close()
}
