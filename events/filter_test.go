package events

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func transferAt(block uint64, from, to common.Address, value int64) *TransferEvent {
	return &TransferEvent{
		LogRef: LogRef{
			TxHash:      common.HexToHash("0x01"),
			LogIndex:    0,
			BlockNumber: block,
			BlockTime:   time.Unix(1_700_000_000+int64(block)*12, 0),
		},
		From:  from,
		To:    to,
		Value: big.NewInt(value),
	}
}

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  *Filter
		wantErr bool
	}{
		{"empty", NewFilter(), false},
		{"block range", &Filter{FromBlock: 10, ToBlock: 20}, false},
		{"inverted block range", &Filter{FromBlock: 20, ToBlock: 10}, true},
		{"open upper bound", &Filter{FromBlock: 20}, false},
		{"negative min value", &Filter{MinValue: big.NewInt(-1)}, true},
		{"zero min value", &Filter{MinValue: new(big.Int)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFilterMatch(t *testing.T) {
	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb0")
	carol := common.HexToAddress("0xc0")

	ev := transferAt(100, alice, bob, 500)

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"empty matches", NewFilter(), true},
		{"kind match", &Filter{Kinds: []Kind{KindTransfer}}, true},
		{"kind mismatch", &Filter{Kinds: []Kind{KindBurn, KindMint}}, false},
		{"sender address", &Filter{Addresses: []common.Address{alice}}, true},
		{"recipient address", &Filter{Addresses: []common.Address{bob}}, true},
		{"uninvolved address", &Filter{Addresses: []common.Address{carol}}, false},
		{"block range inside", &Filter{FromBlock: 50, ToBlock: 150}, true},
		{"block below range", &Filter{FromBlock: 101}, false},
		{"block above range", &Filter{ToBlock: 99}, false},
		{"min value met", &Filter{MinValue: big.NewInt(500)}, true},
		{"min value not met", &Filter{MinValue: big.NewInt(501)}, false},
		{"combined", &Filter{Kinds: []Kind{KindTransfer}, Addresses: []common.Address{alice}, MinValue: big.NewInt(100)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(ev); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterMatchSnapshotEvent(t *testing.T) {
	snap := &SnapshotEvent{TakenAt: time.Now()}

	// Chain-position conditions never exclude snapshot events
	f := &Filter{Addresses: []common.Address{common.HexToAddress("0xa1")}, FromBlock: 10}
	if !f.Match(snap) {
		t.Error("address/block filter excluded a snapshot event")
	}

	f = &Filter{Kinds: []Kind{KindTransfer}}
	if f.Match(snap) {
		t.Error("kind filter failed to exclude a snapshot event")
	}
}

func TestFilterMatchValuelessEvent(t *testing.T) {
	ev := &ProposalCreatedEvent{
		LogRef:     LogRef{BlockNumber: 10},
		ProposalID: big.NewInt(1),
		Proposer:   common.HexToAddress("0xa1"),
	}

	f := &Filter{MinValue: big.NewInt(1_000_000)}
	if !f.Match(ev) {
		t.Error("min value filter excluded an event without an amount")
	}
}

func TestFilterClone(t *testing.T) {
	orig := &Filter{
		Addresses: []common.Address{common.HexToAddress("0xa1")},
		Kinds:     []Kind{KindTransfer},
		MinValue:  big.NewInt(100),
		FromBlock: 5,
		ToBlock:   10,
	}

	clone := orig.Clone()
	clone.Addresses[0] = common.HexToAddress("0xff")
	clone.MinValue.SetInt64(999)

	if orig.Addresses[0] != common.HexToAddress("0xa1") {
		t.Error("clone shares the address slice")
	}
	if orig.MinValue.Int64() != 100 {
		t.Error("clone shares the min value")
	}
}

func TestFilterIsEmpty(t *testing.T) {
	if !NewFilter().IsEmpty() {
		t.Error("NewFilter() is not empty")
	}
	if (&Filter{FromBlock: 1}).IsEmpty() {
		t.Error("filter with FromBlock reported empty")
	}
}
