package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tokenlytics/engine-go/client"
)

// Feed defines the chain-log feed the engine consumes.
// *client.Client satisfies it; tests use an in-memory fake.
type Feed interface {
	// LatestBlockNumber returns the feed head
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// BlockHash returns the canonical hash at the given height
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)

	// BlockTime returns the timestamp of the block with the given hash
	BlockTime(ctx context.Context, hash common.Hash) (time.Time, error)

	// FilterLogs returns logs for [fromBlock, toBlock] in
	// (blockNumber, logIndex) order
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error)

	// ProposalMetadata side-reads proposal timing from the governance
	// contract
	ProposalMetadata(ctx context.Context, contract common.Address, proposalID *big.Int) (*client.ProposalMetadata, error)
}

// headerBatcher is satisfied by feeds that can fetch a range's headers
// in one round trip. The engine uses it to warm the feed's block time
// cache before decoding, so per-log BlockTime lookups stay local.
type headerBatcher interface {
	BatchHeaders(ctx context.Context, numbers []uint64) ([]*types.Header, error)
}
