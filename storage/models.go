package storage

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tokenlytics/engine-go/events"
)

// TransactionType classifies a derived transaction record
type TransactionType string

const (
	TxTypeTransfer TransactionType = "TRANSFER"
	TxTypeMint     TransactionType = "MINT"
	TxTypeBurn     TransactionType = "BURN"
)

// TransactionStatus is the confirmation status of a derived transaction.
// Everything applied from the feed is confirmed; the constant exists so
// the API shape matches downstream consumers.
type TransactionStatus string

const (
	TxStatusConfirmed TransactionStatus = "CONFIRMED"
)

// ProposalStatus is the lifecycle state of a governance proposal
type ProposalStatus string

const (
	ProposalStatusActive   ProposalStatus = "ACTIVE"
	ProposalStatusPassed   ProposalStatus = "PASSED"
	ProposalStatusFailed   ProposalStatus = "FAILED"
	ProposalStatusExecuted ProposalStatus = "EXECUTED"
)

// Transaction is a derived transaction record built from a single
// Transfer, Mint or Burn log entry. Identity is (Hash, LogIndex) - one
// chain transaction can emit several transfer logs.
type Transaction struct {
	Hash        common.Hash       `json:"hash"`
	LogIndex    uint              `json:"logIndex"`
	From        common.Address    `json:"from"`
	To          common.Address    `json:"to"`
	Amount      *big.Int          `json:"amount"`
	Fee         *big.Int          `json:"fee,omitempty"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	BlockNumber uint64            `json:"blockNumber"`
	Timestamp   time.Time         `json:"timestamp"`
}

// TransactionFilter selects derived transactions for queries.
// Zero values mean "any".
type TransactionFilter struct {
	Type      TransactionType
	From      *common.Address
	To        *common.Address
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// UserAnalytics is the per-address activity aggregate. Volume counts
// outbound amounts only (sender attribution); mints attribute to the
// recipient, burns to the burner.
type UserAnalytics struct {
	Address           common.Address `json:"address"`
	TotalTransactions uint64         `json:"totalTransactions"`
	TotalVolume       *big.Int       `json:"totalVolume"`
	FirstTransaction  time.Time      `json:"firstTransaction"`
	LastTransaction   time.Time      `json:"lastTransaction"`
}

// NewUserAnalytics returns an empty aggregate for an address
func NewUserAnalytics(addr common.Address) *UserAnalytics {
	return &UserAnalytics{
		Address:     addr,
		TotalVolume: new(big.Int),
	}
}

// Proposal is a governance proposal with its running tally.
// TotalVotes is always VotesFor + VotesAgainst.
type Proposal struct {
	ID           uint64         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Proposer     common.Address `json:"proposer"`
	Status       ProposalStatus `json:"status"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      time.Time      `json:"endTime"`
	VotesFor     *big.Int       `json:"votesFor"`
	VotesAgainst *big.Int       `json:"votesAgainst"`
	TotalVotes   *big.Int       `json:"totalVotes"`
	BlockNumber  uint64         `json:"blockNumber"`
}

// ResolveStatus returns the proposal status as of now: an ACTIVE proposal
// past its end time resolves to PASSED or FAILED by simple majority.
// EXECUTED is terminal and never re-resolved.
func (p *Proposal) ResolveStatus(now time.Time) ProposalStatus {
	if p.Status != ProposalStatusActive {
		return p.Status
	}
	if p.EndTime.IsZero() || now.Before(p.EndTime) {
		return ProposalStatusActive
	}
	if p.VotesFor.Cmp(p.VotesAgainst) > 0 {
		return ProposalStatusPassed
	}
	return ProposalStatusFailed
}

// Vote is a single recorded vote. At most one exists per
// (ProposalID, Voter); later votes from the same voter are rejected.
type Vote struct {
	ProposalID  uint64         `json:"proposalId"`
	Voter       common.Address `json:"voter"`
	Support     bool           `json:"support"`
	Weight      *big.Int       `json:"weight"`
	BlockNumber uint64         `json:"blockNumber"`
	Timestamp   time.Time      `json:"timestamp"`
}

// TokenMetricsSnapshot is one point-in-time metrics record. Snapshots are
// append-only; history is never rewritten.
type TokenMetricsSnapshot struct {
	TotalSupply       *big.Int  `json:"totalSupply"`
	CirculatingSupply *big.Int  `json:"circulatingSupply"`
	BurnedTokens      *big.Int  `json:"burnedTokens"`
	Holders           uint64    `json:"holders"`
	Transfers24h      uint64    `json:"transfers24h"`
	Volume24h         *big.Int  `json:"volume24h"`
	Timestamp         time.Time `json:"timestamp"`
}

// AppliedEvent records that one log entry has been applied. Payload keeps
// the full decoded event so a rollback can subtract exactly what was
// added.
type AppliedEvent struct {
	TxHash      common.Hash `json:"txHash"`
	LogIndex    uint        `json:"logIndex"`
	BlockNumber uint64      `json:"blockNumber"`
	BlockHash   common.Hash `json:"blockHash"`
	Kind        events.Kind `json:"kind"`
	AppliedAt   time.Time   `json:"appliedAt"`
	Payload     []byte      `json:"payload"`
}

// Cursor marks the highest fully applied block
type Cursor struct {
	BlockNumber uint64      `json:"blockNumber"`
	BlockHash   common.Hash `json:"blockHash"`
}

// RollbackWatermark is persisted before a rollback starts so an interrupted
// rollback resumes instead of leaving half-reverted state behind
type RollbackWatermark struct {
	// FromBlock is the highest applied block when the reorg was detected
	FromBlock uint64 `json:"fromBlock"`

	// ToBlock is the common ancestor; blocks above it are reverted
	ToBlock uint64 `json:"toBlock"`

	StartedAt time.Time `json:"startedAt"`
}

// SupplyTotals tracks cumulative minted and burned amounts.
// TotalSupply = Minted - Burned.
type SupplyTotals struct {
	Minted *big.Int `json:"minted"`
	Burned *big.Int `json:"burned"`
}

// TotalSupply returns minted minus burned
func (s *SupplyTotals) TotalSupply() *big.Int {
	return new(big.Int).Sub(s.Minted, s.Burned)
}

// NewSupplyTotals returns zeroed supply totals
func NewSupplyTotals() *SupplyTotals {
	return &SupplyTotals{Minted: new(big.Int), Burned: new(big.Int)}
}

// Holder is one entry of the top-holders ranking
type Holder struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}

// WindowStats aggregates derived transactions over a time window
type WindowStats struct {
	Transfers uint64   `json:"transfers"`
	Volume    *big.Int `json:"volume"`
}
