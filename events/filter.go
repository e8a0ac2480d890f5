package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Filter defines subscription filter conditions
type Filter struct {
	// Addresses filters chain events by participant - any event that
	// touches one of these addresses passes. Empty means no address
	// filtering. Snapshot events always pass (they have no addresses).
	Addresses []common.Address

	// Kinds filters by concrete event variant.
	// Empty means no kind filtering.
	Kinds []Kind

	// MinValue filters value-carrying events by minimum amount (inclusive).
	// Nil means no minimum value filtering.
	MinValue *big.Int

	// FromBlock filters chain events from this block number (inclusive).
	// 0 means no minimum block filtering.
	FromBlock uint64

	// ToBlock filters chain events up to this block number (inclusive).
	// 0 means no maximum block filtering.
	ToBlock uint64
}

// NewFilter creates a new empty filter
func NewFilter() *Filter {
	return &Filter{
		Addresses: make([]common.Address, 0),
		Kinds:     make([]Kind, 0),
	}
}

// Validate checks if the filter configuration is valid
func (f *Filter) Validate() error {
	if f.FromBlock > 0 && f.ToBlock > 0 && f.FromBlock > f.ToBlock {
		return fmt.Errorf("fromBlock (%d) cannot be greater than toBlock (%d)",
			f.FromBlock, f.ToBlock)
	}
	if f.MinValue != nil && f.MinValue.Sign() < 0 {
		return fmt.Errorf("minValue cannot be negative")
	}
	return nil
}

// Match checks if an event matches this filter
func (f *Filter) Match(event Event) bool {
	if len(f.Kinds) > 0 {
		matched := false
		for _, k := range f.Kinds {
			if event.Kind() == k {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	ce, isChain := event.(ChainEvent)
	if !isChain {
		// Snapshot events carry no chain position or addresses
		return true
	}

	ref := ce.Ref()
	if f.FromBlock > 0 && ref.BlockNumber < f.FromBlock {
		return false
	}
	if f.ToBlock > 0 && ref.BlockNumber > f.ToBlock {
		return false
	}

	if len(f.Addresses) > 0 {
		matched := false
		for _, addr := range f.Addresses {
			if ce.Touches(addr) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.MinValue != nil {
		if v := eventValue(ce); v != nil && v.Cmp(f.MinValue) < 0 {
			return false
		}
	}

	return true
}

// eventValue returns the primary amount of a chain event, or nil for
// events without one
func eventValue(e ChainEvent) *big.Int {
	switch ev := e.(type) {
	case *TransferEvent:
		return ev.Value
	case *MintEvent:
		return ev.Amount
	case *BurnEvent:
		return ev.Amount
	case *FeeCollectedEvent:
		return ev.Amount
	case *VoteCastEvent:
		return ev.Weight
	default:
		return nil
	}
}

// IsEmpty returns true if the filter has no conditions set
func (f *Filter) IsEmpty() bool {
	return len(f.Addresses) == 0 &&
		len(f.Kinds) == 0 &&
		f.MinValue == nil &&
		f.FromBlock == 0 &&
		f.ToBlock == 0
}

// Clone creates a deep copy of the filter
func (f *Filter) Clone() *Filter {
	clone := &Filter{
		Addresses: make([]common.Address, len(f.Addresses)),
		Kinds:     make([]Kind, len(f.Kinds)),
		FromBlock: f.FromBlock,
		ToBlock:   f.ToBlock,
	}

	copy(clone.Addresses, f.Addresses)
	copy(clone.Kinds, f.Kinds)

	if f.MinValue != nil {
		clone.MinValue = new(big.Int).Set(f.MinValue)
	}

	return clone
}
