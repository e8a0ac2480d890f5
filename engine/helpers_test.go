package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tokenlytics/engine-go/client"
	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/internal/testutil"
	"github.com/tokenlytics/engine-go/storage"
)

// fakeFeed is an in-memory Feed with a swappable canonical chain, so
// tests can reorganize it mid-run
type fakeFeed struct {
	mu            sync.Mutex
	head          uint64
	hashes        map[uint64]common.Hash
	logs          []types.Log
	meta          map[uint64]*client.ProposalMetadata
	headerBatches [][]uint64
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		hashes: make(map[uint64]common.Hash),
		meta:   make(map[uint64]*client.ProposalMetadata),
	}
}

func (f *fakeFeed) setHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
	for h := uint64(0); h <= head; h++ {
		if _, ok := f.hashes[h]; !ok {
			f.hashes[h] = testutil.BlockHash(h)
		}
	}
}

// fork replaces the canonical hashes from the given height upward
func (f *fakeFeed) fork(from uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h := from; h <= f.head; h++ {
		f.hashes[h] = testutil.BlockHash(h + 1_000_000)
	}
}

func (f *fakeFeed) LatestBlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeFeed) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, ok := f.hashes[number]
	if !ok {
		return common.Hash{}, fmt.Errorf("no block at height %d", number)
	}
	return hash, nil
}

func (f *fakeFeed) BlockTime(ctx context.Context, hash common.Hash) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for number, h := range f.hashes {
		if h == hash {
			return testutil.BlockTime(number), nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown block hash %s", hash.Hex())
}

func (f *fakeFeed) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

// BatchHeaders records the prefetch request; the engine only calls it
// for its cache-warming side effect and ignores the returned headers
func (f *fakeFeed) BatchHeaders(ctx context.Context, numbers []uint64) ([]*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]uint64, len(numbers))
	copy(batch, numbers)
	f.headerBatches = append(f.headerBatches, batch)
	return make([]*types.Header, len(numbers)), nil
}

func (f *fakeFeed) ProposalMetadata(ctx context.Context, contract common.Address, proposalID *big.Int) (*client.ProposalMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.meta[proposalID.Uint64()]
	if !ok {
		return nil, fmt.Errorf("no metadata for proposal %s", proposalID)
	}
	return meta, nil
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testConfig() *Config {
	cfg := &Config{
		TokenContract: testutil.Addr(0xCC),
	}
	cfg.SetDefaults()
	return cfg
}

func ref(block uint64, logIndex uint, tx byte) events.LogRef {
	return events.LogRef{
		TxHash:      testutil.TxHash(tx),
		LogIndex:    logIndex,
		BlockNumber: block,
		BlockHash:   testutil.BlockHash(block),
		BlockTime:   testutil.BlockTime(block),
	}
}

// applyEvents applies one block's events in a single committed batch,
// recording the block hash and cursor the way the engine loop does
func applyEvents(t *testing.T, store storage.Storage, a *Applier, evs ...events.ChainEvent) []ApplyResult {
	t.Helper()
	ctx := context.Background()

	batch := store.NewBatch()
	defer batch.Close()
	sess := a.newSession(batch)

	results := make([]ApplyResult, 0, len(evs))
	for _, ev := range evs {
		result, err := a.Apply(ctx, sess, ev)
		if err != nil {
			t.Fatalf("Apply(%s) error = %v", ev.Kind(), err)
		}
		results = append(results, result)
	}

	blockRef := evs[len(evs)-1].Ref()
	if err := batch.SetBlockHash(ctx, blockRef.BlockNumber, blockRef.BlockHash); err != nil {
		t.Fatalf("SetBlockHash() error = %v", err)
	}
	if err := batch.SetCursor(ctx, &storage.Cursor{
		BlockNumber: blockRef.BlockNumber,
		BlockHash:   blockRef.BlockHash,
	}); err != nil {
		t.Fatalf("SetCursor() error = %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return results
}

func checkBalance(t *testing.T, store storage.Storage, addr common.Address, want int64) {
	t.Helper()
	balance, err := store.GetBalance(context.Background(), addr)
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance.Cmp(big.NewInt(want)) != 0 {
		t.Errorf("balance of %s = %s, want %d", addr.Hex(), balance, want)
	}
}
