// Package testutil provides shared helpers for building chain fixtures
// in tests: raw log entries matching the engine's event schemas, plus
// deterministic addresses and hashes.
package testutil

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Event signatures mirrored from the decode schema table. Kept as
// literals so a schema drift shows up as a test failure, not a silent
// fixture fix.
var (
	TransferTopic        = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	MintTopic            = crypto.Keccak256Hash([]byte("Mint(address,uint256)"))
	BurnTopic            = crypto.Keccak256Hash([]byte("Burn(address,uint256)"))
	FeeCollectedTopic    = crypto.Keccak256Hash([]byte("FeeCollected(address,address,uint256,uint256)"))
	UserActivityTopic    = crypto.Keccak256Hash([]byte("UserActivity(address,string,uint256,uint256)"))
	ProposalCreatedTopic = crypto.Keccak256Hash([]byte("ProposalCreated(uint256,address,string)"))
	VoteCastTopic        = crypto.Keccak256Hash([]byte("VoteCast(uint256,address,bool,uint256)"))
)

// NewTestLogger creates a test logger that doesn't output to console
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

// Addr returns a deterministic test address
func Addr(n byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = n
	}
	return a
}

// BlockHash returns a deterministic hash for a block height
func BlockHash(number uint64) common.Hash {
	return crypto.Keccak256Hash(new(big.Int).SetUint64(number).Bytes())
}

// TxHash returns a deterministic transaction hash
func TxHash(n byte) common.Hash {
	var h common.Hash
	for i := range h {
		h[i] = n
	}
	return h
}

// BlockTime returns a deterministic timestamp for a block height
func BlockTime(number uint64) time.Time {
	return time.Unix(1_700_000_000+int64(number)*12, 0).UTC()
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func uintTopic(v *big.Int) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(v.Bytes(), 32))
}

func uintWord(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func boolWord(v bool) []byte {
	word := make([]byte, 32)
	if v {
		word[31] = 1
	}
	return word
}

// stringWords encodes a dynamic string parameter: an offset word at the
// head position followed by length and padded body at the tail
func stringWords(head int, s string) (offset []byte, tail []byte) {
	offset = uintWord(big.NewInt(int64(head * 32)))
	body := []byte(s)
	padded := len(body)
	if rem := padded % 32; rem != 0 {
		padded += 32 - rem
	}
	tail = make([]byte, 32+padded)
	copy(tail, uintWord(big.NewInt(int64(len(body)))))
	copy(tail[32:], body)
	return offset, tail
}

func baseLog(contract common.Address, block uint64, logIndex uint, txHash common.Hash) types.Log {
	return types.Log{
		Address:     contract,
		BlockNumber: block,
		BlockHash:   BlockHash(block),
		TxHash:      txHash,
		Index:       logIndex,
	}
}

// TransferLog builds a Transfer(from, to, value) log entry
func TransferLog(contract common.Address, block uint64, logIndex uint, txHash common.Hash, from, to common.Address, value int64) types.Log {
	log := baseLog(contract, block, logIndex, txHash)
	log.Topics = []common.Hash{TransferTopic, addressTopic(from), addressTopic(to)}
	log.Data = uintWord(big.NewInt(value))
	return log
}

// MintLog builds a Mint(to, amount) log entry
func MintLog(contract common.Address, block uint64, logIndex uint, txHash common.Hash, to common.Address, amount int64) types.Log {
	log := baseLog(contract, block, logIndex, txHash)
	log.Topics = []common.Hash{MintTopic, addressTopic(to)}
	log.Data = uintWord(big.NewInt(amount))
	return log
}

// BurnLog builds a Burn(from, amount) log entry
func BurnLog(contract common.Address, block uint64, logIndex uint, txHash common.Hash, from common.Address, amount int64) types.Log {
	log := baseLog(contract, block, logIndex, txHash)
	log.Topics = []common.Hash{BurnTopic, addressTopic(from)}
	log.Data = uintWord(big.NewInt(amount))
	return log
}

// FeeCollectedLog builds a FeeCollected(from, to, amount, fee) log entry
func FeeCollectedLog(contract common.Address, block uint64, logIndex uint, txHash common.Hash, from, to common.Address, amount, fee int64) types.Log {
	log := baseLog(contract, block, logIndex, txHash)
	log.Topics = []common.Hash{FeeCollectedTopic, addressTopic(from), addressTopic(to)}
	log.Data = append(uintWord(big.NewInt(amount)), uintWord(big.NewInt(fee))...)
	return log
}

// UserActivityLog builds a UserActivity(user, action, value, timestamp) log entry
func UserActivityLog(contract common.Address, block uint64, logIndex uint, txHash common.Hash, user common.Address, action string, value int64, ts time.Time) types.Log {
	log := baseLog(contract, block, logIndex, txHash)
	log.Topics = []common.Hash{UserActivityTopic, addressTopic(user)}

	// Head: string offset, value, timestamp. Tail: string length + body.
	offset, tail := stringWords(3, action)
	data := make([]byte, 0, 3*32+len(tail))
	data = append(data, offset...)
	data = append(data, uintWord(big.NewInt(value))...)
	data = append(data, uintWord(big.NewInt(ts.Unix()))...)
	data = append(data, tail...)
	log.Data = data
	return log
}

// ProposalCreatedLog builds a ProposalCreated(proposalId, proposer, description) log entry
func ProposalCreatedLog(contract common.Address, block uint64, logIndex uint, txHash common.Hash, proposalID int64, proposer common.Address, description string) types.Log {
	log := baseLog(contract, block, logIndex, txHash)
	log.Topics = []common.Hash{ProposalCreatedTopic, uintTopic(big.NewInt(proposalID)), addressTopic(proposer)}

	offset, tail := stringWords(1, description)
	log.Data = append(offset, tail...)
	return log
}

// VoteCastLog builds a VoteCast(proposalId, voter, support, weight) log entry
func VoteCastLog(contract common.Address, block uint64, logIndex uint, txHash common.Hash, proposalID int64, voter common.Address, support bool, weight int64) types.Log {
	log := baseLog(contract, block, logIndex, txHash)
	log.Topics = []common.Hash{VoteCastTopic, uintTopic(big.NewInt(proposalID)), addressTopic(voter)}
	log.Data = append(boolWord(support), uintWord(big.NewInt(weight))...)
	return log
}
