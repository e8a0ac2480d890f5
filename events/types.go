package events

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType is the broadcast topic category an event belongs to
type EventType string

const (
	// EventTypeTransaction covers Transfer, Mint, Burn, FeeCollected and
	// UserActivity events
	EventTypeTransaction EventType = "transactions"

	// EventTypeGovernance covers ProposalCreated and VoteCast events
	EventTypeGovernance EventType = "governance"

	// EventTypeMetrics covers periodic token metrics snapshots
	EventTypeMetrics EventType = "metrics"
)

// Kind identifies the concrete event variant
type Kind string

const (
	KindTransfer        Kind = "Transfer"
	KindMint            Kind = "Mint"
	KindBurn            Kind = "Burn"
	KindFeeCollected    Kind = "FeeCollected"
	KindUserActivity    Kind = "UserActivity"
	KindProposalCreated Kind = "ProposalCreated"
	KindVoteCast        Kind = "VoteCast"
	KindSnapshot        Kind = "Snapshot"
)

// LogRef is the stable identity and chain position of a decoded log entry.
// (TxHash, LogIndex) is unique per entry regardless of feed redelivery.
type LogRef struct {
	TxHash      common.Hash `json:"txHash"`
	LogIndex    uint        `json:"logIndex"`
	BlockNumber uint64      `json:"blockNumber"`
	BlockHash   common.Hash `json:"blockHash"`
	BlockTime   time.Time   `json:"blockTime"`
}

// Event is the base interface for all engine events
type Event interface {
	// Type returns the broadcast topic category
	Type() EventType

	// Kind returns the concrete event variant
	Kind() Kind

	// Timestamp returns when the event occurred on chain (or, for
	// snapshots, when the snapshot was taken)
	Timestamp() time.Time
}

// ChainEvent is implemented by events decoded from a chain log entry
type ChainEvent interface {
	Event

	// Ref returns the originating log identity and position
	Ref() LogRef

	// Touches reports whether the event involves the given address,
	// used for per-address subscription filtering
	Touches(addr common.Address) bool
}

// TransferEvent is a token transfer between two addresses
type TransferEvent struct {
	LogRef
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

func (e *TransferEvent) Type() EventType      { return EventTypeTransaction }
func (e *TransferEvent) Kind() Kind           { return KindTransfer }
func (e *TransferEvent) Timestamp() time.Time { return e.BlockTime }
func (e *TransferEvent) Ref() LogRef          { return e.LogRef }
func (e *TransferEvent) Touches(addr common.Address) bool {
	return e.From == addr || e.To == addr
}

// MintEvent is new supply minted to an address
type MintEvent struct {
	LogRef
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (e *MintEvent) Type() EventType                  { return EventTypeTransaction }
func (e *MintEvent) Kind() Kind                       { return KindMint }
func (e *MintEvent) Timestamp() time.Time             { return e.BlockTime }
func (e *MintEvent) Ref() LogRef                      { return e.LogRef }
func (e *MintEvent) Touches(addr common.Address) bool { return e.To == addr }

// BurnEvent is supply destroyed from an address
type BurnEvent struct {
	LogRef
	From   common.Address `json:"from"`
	Amount *big.Int       `json:"amount"`
}

func (e *BurnEvent) Type() EventType                  { return EventTypeTransaction }
func (e *BurnEvent) Kind() Kind                       { return KindBurn }
func (e *BurnEvent) Timestamp() time.Time             { return e.BlockTime }
func (e *BurnEvent) Ref() LogRef                      { return e.LogRef }
func (e *BurnEvent) Touches(addr common.Address) bool { return e.From == addr }

// FeeCollectedEvent is a transfer fee taken by the fee recipient
type FeeCollectedEvent struct {
	LogRef
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
	Fee    *big.Int       `json:"fee"`
}

func (e *FeeCollectedEvent) Type() EventType      { return EventTypeTransaction }
func (e *FeeCollectedEvent) Kind() Kind           { return KindFeeCollected }
func (e *FeeCollectedEvent) Timestamp() time.Time { return e.BlockTime }
func (e *FeeCollectedEvent) Ref() LogRef          { return e.LogRef }
func (e *FeeCollectedEvent) Touches(addr common.Address) bool {
	return e.From == addr || e.To == addr
}

// UserActivityEvent is an on-chain activity marker emitted by the contract
type UserActivityEvent struct {
	LogRef
	User         common.Address `json:"user"`
	Action       string         `json:"action"`
	Value        *big.Int       `json:"value"`
	ActivityTime time.Time      `json:"activityTime"`
}

func (e *UserActivityEvent) Type() EventType                  { return EventTypeTransaction }
func (e *UserActivityEvent) Kind() Kind                       { return KindUserActivity }
func (e *UserActivityEvent) Timestamp() time.Time             { return e.BlockTime }
func (e *UserActivityEvent) Ref() LogRef                      { return e.LogRef }
func (e *UserActivityEvent) Touches(addr common.Address) bool { return e.User == addr }

// ProposalCreatedEvent is a new governance proposal
type ProposalCreatedEvent struct {
	LogRef
	ProposalID  *big.Int       `json:"proposalId"`
	Proposer    common.Address `json:"proposer"`
	Description string         `json:"description"`
}

func (e *ProposalCreatedEvent) Type() EventType                  { return EventTypeGovernance }
func (e *ProposalCreatedEvent) Kind() Kind                       { return KindProposalCreated }
func (e *ProposalCreatedEvent) Timestamp() time.Time             { return e.BlockTime }
func (e *ProposalCreatedEvent) Ref() LogRef                      { return e.LogRef }
func (e *ProposalCreatedEvent) Touches(addr common.Address) bool { return e.Proposer == addr }

// VoteCastEvent is a vote on a governance proposal
type VoteCastEvent struct {
	LogRef
	ProposalID *big.Int       `json:"proposalId"`
	Voter      common.Address `json:"voter"`
	Support    bool           `json:"support"`
	Weight     *big.Int       `json:"weight"`
}

func (e *VoteCastEvent) Type() EventType                  { return EventTypeGovernance }
func (e *VoteCastEvent) Kind() Kind                       { return KindVoteCast }
func (e *VoteCastEvent) Timestamp() time.Time             { return e.BlockTime }
func (e *VoteCastEvent) Ref() LogRef                      { return e.LogRef }
func (e *VoteCastEvent) Touches(addr common.Address) bool { return e.Voter == addr }

// SnapshotEvent carries a freshly written token metrics snapshot.
// Data is kept opaque here to avoid a dependency on the storage package.
type SnapshotEvent struct {
	TakenAt time.Time   `json:"takenAt"`
	Data    interface{} `json:"data"`
}

func (e *SnapshotEvent) Type() EventType      { return EventTypeMetrics }
func (e *SnapshotEvent) Kind() Kind           { return KindSnapshot }
func (e *SnapshotEvent) Timestamp() time.Time { return e.TakenAt }
