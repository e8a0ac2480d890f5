package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key prefixes for different data types
const (
	prefixTxs       = "/data/txs/"
	prefixProposals = "/data/proposals/"
	prefixVotes     = "/data/votes/"
	prefixSnapshots = "/data/snapshots/"
	prefixApplied   = "/data/applied/"
	prefixAnalytics = "/data/analytics/"
	prefixAppliedIx = "/index/applied/"
	prefixTxTime    = "/index/txtime/"
	prefixTxAddr    = "/index/txaddr/"
	prefixBalance   = "/index/balance/"
	prefixBlockHash = "/index/blockh/"
)

// Metadata keys
const (
	keyCursor   = "/meta/cursor"
	keyRollback = "/meta/rollback"
	keySupply   = "/meta/supply"
)

// CursorKey returns the key for the applied-block cursor
func CursorKey() []byte {
	return []byte(keyCursor)
}

// RollbackWatermarkKey returns the key for the in-progress rollback marker
func RollbackWatermarkKey() []byte {
	return []byte(keyRollback)
}

// SupplyTotalsKey returns the key for cumulative supply totals
func SupplyTotalsKey() []byte {
	return []byte(keySupply)
}

// TransactionKey returns the key for a derived transaction record
// Format: /data/txs/{txhash}/{logindex}
// Uses zero-padded fixed-width format for proper lexicographic sorting
func TransactionKey(txHash common.Hash, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", prefixTxs, txHash.Hex(), logIndex))
}

// UserAnalyticsKey returns the key for a per-address analytics record
// Format: /data/analytics/{address}
func UserAnalyticsKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAnalytics, addr.Hex()))
}

// ProposalKey returns the key for a governance proposal
// Format: /data/proposals/{id}
func ProposalKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixProposals, id))
}

// ProposalKeyPrefix returns the prefix for iterating all proposals
func ProposalKeyPrefix() []byte {
	return []byte(prefixProposals)
}

// VoteKey returns the key for a recorded vote
// Format: /data/votes/{proposalId}/{voter}
func VoteKey(proposalID uint64, voter common.Address) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefixVotes, proposalID, voter.Hex()))
}

// VoteKeyPrefix returns the prefix for iterating a proposal's votes
func VoteKeyPrefix(proposalID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", prefixVotes, proposalID))
}

// SnapshotKey returns the key for a metrics snapshot
// Format: /data/snapshots/{unix}
// Uses zero-padded fixed-width format so iteration is time-ordered
func SnapshotKey(unix int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixSnapshots, unix))
}

// SnapshotKeyPrefix returns the prefix for iterating all snapshots
func SnapshotKeyPrefix() []byte {
	return []byte(prefixSnapshots)
}

// AppliedEventKey returns the key for an applied-event record
// Format: /data/applied/{txhash}/{logindex}
func AppliedEventKey(txHash common.Hash, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", prefixApplied, txHash.Hex(), logIndex))
}

// AppliedBlockIndexKey returns the key for the applied-event block index,
// ordered by (block, logIndex) so a range scan yields chain order
// Format: /index/applied/{block}/{logindex}
func AppliedBlockIndexKey(block uint64, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%020d/%010d", prefixAppliedIx, block, logIndex))
}

// AppliedBlockIndexPrefix returns the prefix for all applied-event index keys
func AppliedBlockIndexPrefix() []byte {
	return []byte(prefixAppliedIx)
}

// AppliedBlockIndexRange returns [start, end) covering applied-event index
// entries for blocks fromBlock..toBlock inclusive
func AppliedBlockIndexRange(fromBlock, toBlock uint64) ([]byte, []byte) {
	start := []byte(fmt.Sprintf("%s%020d/", prefixAppliedIx, fromBlock))
	end := []byte(fmt.Sprintf("%s%020d/", prefixAppliedIx, toBlock+1))
	return start, end
}

// TransactionTimeIndexKey returns the key for the time-ordered transaction
// index
// Format: /index/txtime/{unix}/{txhash}/{logindex}
func TransactionTimeIndexKey(unix int64, txHash common.Hash, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s/%010d", prefixTxTime, unix, txHash.Hex(), logIndex))
}

// TransactionTimeIndexPrefix returns the prefix for all time index keys
func TransactionTimeIndexPrefix() []byte {
	return []byte(prefixTxTime)
}

// TransactionTimeIndexRange returns [start, end) covering time index
// entries with fromUnix <= timestamp <= toUnix
func TransactionTimeIndexRange(fromUnix, toUnix int64) ([]byte, []byte) {
	start := []byte(fmt.Sprintf("%s%020d/", prefixTxTime, fromUnix))
	end := []byte(fmt.Sprintf("%s%020d/", prefixTxTime, toUnix+1))
	return start, end
}

// AddressTransactionKey returns the key for the per-address transaction
// index, ordered by chain position so it is deterministic under rollback
// Format: /index/txaddr/{address}/{block}/{logindex}
func AddressTransactionKey(addr common.Address, block uint64, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%010d", prefixTxAddr, addr.Hex(), block, logIndex))
}

// AddressTransactionKeyPrefix returns the key prefix for an address
// Used for iterating all transactions touching an address
func AddressTransactionKeyPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s/", prefixTxAddr, addr.Hex()))
}

// BalanceKey returns the key for the materialized balance of an address
// Format: /index/balance/{address}
func BalanceKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixBalance, addr.Hex()))
}

// BalanceKeyPrefix returns the prefix for iterating all balances
func BalanceKeyPrefix() []byte {
	return []byte(prefixBalance)
}

// BlockHashKey returns the key recording the hash of an applied block,
// used by the reorg watcher to find the divergence point
// Format: /index/blockh/{height}
func BlockHashKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixBlockHash, height))
}

// PrefixUpperBound returns the exclusive upper bound for iterating all keys
// with the given prefix
func PrefixUpperBound(prefix []byte) []byte {
	// Copy to avoid modifying the prefix slice
	upper := make([]byte, len(prefix), len(prefix)+1)
	copy(upper, prefix)
	return append(upper, 0xff)
}
