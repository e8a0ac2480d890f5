package abi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tokenlytics/engine-go/events"
)

// EventSchema describes one named event this engine decodes: its canonical
// signature, the resulting topic0 hash and the decode function mapping a
// raw log entry to a typed event. The table is closed - logs whose topic0
// is not listed here are reported as unknown and skipped.
type EventSchema struct {
	Kind      events.Kind
	Signature string
	Topic0    common.Hash

	// decode maps the raw log to the typed event. ref carries the log
	// identity and block position already extracted by the decoder.
	decode func(log *types.Log, ref events.LogRef) (events.ChainEvent, error)
}

// schemaTable maps topic0 hashes to event schemas
var schemaTable = map[common.Hash]*EventSchema{}

func register(kind events.Kind, signature string, decode func(*types.Log, events.LogRef) (events.ChainEvent, error)) {
	topic0 := crypto.Keccak256Hash([]byte(signature))
	schemaTable[topic0] = &EventSchema{
		Kind:      kind,
		Signature: signature,
		Topic0:    topic0,
		decode:    decode,
	}
}

func init() {
	// Transfer(address indexed from, address indexed to, uint256 value)
	register(events.KindTransfer, "Transfer(address,address,uint256)",
		func(log *types.Log, ref events.LogRef) (events.ChainEvent, error) {
			from, err := topicAddress(log, 1)
			if err != nil {
				return nil, err
			}
			to, err := topicAddress(log, 2)
			if err != nil {
				return nil, err
			}
			value, err := dataUint(log, 0)
			if err != nil {
				return nil, err
			}
			return &events.TransferEvent{LogRef: ref, From: from, To: to, Value: value}, nil
		})

	// Mint(address indexed to, uint256 amount)
	register(events.KindMint, "Mint(address,uint256)",
		func(log *types.Log, ref events.LogRef) (events.ChainEvent, error) {
			to, err := topicAddress(log, 1)
			if err != nil {
				return nil, err
			}
			amount, err := dataUint(log, 0)
			if err != nil {
				return nil, err
			}
			return &events.MintEvent{LogRef: ref, To: to, Amount: amount}, nil
		})

	// Burn(address indexed from, uint256 amount)
	register(events.KindBurn, "Burn(address,uint256)",
		func(log *types.Log, ref events.LogRef) (events.ChainEvent, error) {
			from, err := topicAddress(log, 1)
			if err != nil {
				return nil, err
			}
			amount, err := dataUint(log, 0)
			if err != nil {
				return nil, err
			}
			return &events.BurnEvent{LogRef: ref, From: from, Amount: amount}, nil
		})

	// FeeCollected(address indexed from, address indexed to, uint256 amount, uint256 fee)
	register(events.KindFeeCollected, "FeeCollected(address,address,uint256,uint256)",
		func(log *types.Log, ref events.LogRef) (events.ChainEvent, error) {
			from, err := topicAddress(log, 1)
			if err != nil {
				return nil, err
			}
			to, err := topicAddress(log, 2)
			if err != nil {
				return nil, err
			}
			amount, err := dataUint(log, 0)
			if err != nil {
				return nil, err
			}
			fee, err := dataUint(log, 1)
			if err != nil {
				return nil, err
			}
			return &events.FeeCollectedEvent{LogRef: ref, From: from, To: to, Amount: amount, Fee: fee}, nil
		})

	// UserActivity(address indexed user, string action, uint256 value, uint256 timestamp)
	register(events.KindUserActivity, "UserActivity(address,string,uint256,uint256)",
		func(log *types.Log, ref events.LogRef) (events.ChainEvent, error) {
			user, err := topicAddress(log, 1)
			if err != nil {
				return nil, err
			}
			action, err := dataString(log, 0)
			if err != nil {
				return nil, err
			}
			value, err := dataUint(log, 1)
			if err != nil {
				return nil, err
			}
			ts, err := dataUint(log, 2)
			if err != nil {
				return nil, err
			}
			activityTime, err := unixTime(ts)
			if err != nil {
				return nil, err
			}
			return &events.UserActivityEvent{
				LogRef:       ref,
				User:         user,
				Action:       action,
				Value:        value,
				ActivityTime: activityTime,
			}, nil
		})

	// ProposalCreated(uint256 indexed proposalId, address indexed proposer, string description)
	register(events.KindProposalCreated, "ProposalCreated(uint256,address,string)",
		func(log *types.Log, ref events.LogRef) (events.ChainEvent, error) {
			proposalID, err := topicUint(log, 1)
			if err != nil {
				return nil, err
			}
			proposer, err := topicAddress(log, 2)
			if err != nil {
				return nil, err
			}
			description, err := dataString(log, 0)
			if err != nil {
				return nil, err
			}
			return &events.ProposalCreatedEvent{
				LogRef:      ref,
				ProposalID:  proposalID,
				Proposer:    proposer,
				Description: description,
			}, nil
		})

	// VoteCast(uint256 indexed proposalId, address indexed voter, bool support, uint256 weight)
	register(events.KindVoteCast, "VoteCast(uint256,address,bool,uint256)",
		func(log *types.Log, ref events.LogRef) (events.ChainEvent, error) {
			proposalID, err := topicUint(log, 1)
			if err != nil {
				return nil, err
			}
			voter, err := topicAddress(log, 2)
			if err != nil {
				return nil, err
			}
			support, err := dataBool(log, 0)
			if err != nil {
				return nil, err
			}
			weight, err := dataUint(log, 1)
			if err != nil {
				return nil, err
			}
			return &events.VoteCastEvent{
				LogRef:     ref,
				ProposalID: proposalID,
				Voter:      voter,
				Support:    support,
				Weight:     weight,
			}, nil
		})
}

// SchemaByTopic returns the event schema for a topic0 hash
func SchemaByTopic(topic0 common.Hash) (*EventSchema, bool) {
	schema, ok := schemaTable[topic0]
	return schema, ok
}

// SchemaByKind returns the event schema for an event kind
func SchemaByKind(kind events.Kind) (*EventSchema, bool) {
	for _, schema := range schemaTable {
		if schema.Kind == kind {
			return schema, true
		}
	}
	return nil, false
}

// Topics returns all topic0 hashes this engine decodes, for use as a
// log subscription filter
func Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(schemaTable))
	for topic0 := range schemaTable {
		topics = append(topics, topic0)
	}
	return topics
}
