package abi_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tokenlytics/engine-go/abi"
	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/internal/testutil"
)

var testContract = testutil.Addr(0xCC)

func TestDecodeTransfer(t *testing.T) {
	from := testutil.Addr(0x0A)
	to := testutil.Addr(0x0B)
	log := testutil.TransferLog(testContract, 10, 3, testutil.TxHash(0x01), from, to, 1234)

	ev, err := abi.Decode(&log, testutil.BlockTime(10))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	transfer, ok := ev.(*events.TransferEvent)
	if !ok {
		t.Fatalf("Decode() = %T, want *events.TransferEvent", ev)
	}
	if transfer.From != from || transfer.To != to {
		t.Errorf("parties = %s -> %s, want %s -> %s", transfer.From, transfer.To, from, to)
	}
	if transfer.Value.Int64() != 1234 {
		t.Errorf("value = %s, want 1234", transfer.Value)
	}

	ref := transfer.Ref()
	if ref.TxHash != testutil.TxHash(0x01) || ref.LogIndex != 3 || ref.BlockNumber != 10 {
		t.Errorf("ref = %+v", ref)
	}
	if !ref.BlockTime.Equal(testutil.BlockTime(10)) {
		t.Errorf("block time = %v, want %v", ref.BlockTime, testutil.BlockTime(10))
	}
}

func TestDecodeMintAndBurn(t *testing.T) {
	holder := testutil.Addr(0x0A)

	mintLog := testutil.MintLog(testContract, 5, 0, testutil.TxHash(0x02), holder, 500)
	mint, err := abi.Decode(&mintLog, testutil.BlockTime(5))
	if err != nil {
		t.Fatalf("Decode(mint) error = %v", err)
	}
	m := mint.(*events.MintEvent)
	if m.To != holder || m.Amount.Int64() != 500 {
		t.Errorf("mint = %+v", m)
	}

	burnLog := testutil.BurnLog(testContract, 6, 0, testutil.TxHash(0x03), holder, 200)
	burn, err := abi.Decode(&burnLog, testutil.BlockTime(6))
	if err != nil {
		t.Fatalf("Decode(burn) error = %v", err)
	}
	b := burn.(*events.BurnEvent)
	if b.From != holder || b.Amount.Int64() != 200 {
		t.Errorf("burn = %+v", b)
	}
}

func TestDecodeFeeCollected(t *testing.T) {
	log := testutil.FeeCollectedLog(testContract, 7, 1, testutil.TxHash(0x04),
		testutil.Addr(0x0A), testutil.Addr(0x0B), 1000, 25)

	ev, err := abi.Decode(&log, testutil.BlockTime(7))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	fee := ev.(*events.FeeCollectedEvent)
	if fee.Amount.Int64() != 1000 || fee.Fee.Int64() != 25 {
		t.Errorf("amount/fee = %s/%s, want 1000/25", fee.Amount, fee.Fee)
	}
}

func TestDecodeProposalAndVote(t *testing.T) {
	proposer := testutil.Addr(0x10)
	log := testutil.ProposalCreatedLog(testContract, 8, 0, testutil.TxHash(0x05),
		42, proposer, "Raise transfer fee\nDetails follow")

	ev, err := abi.Decode(&log, testutil.BlockTime(8))
	if err != nil {
		t.Fatalf("Decode(proposal) error = %v", err)
	}
	p := ev.(*events.ProposalCreatedEvent)
	if p.ProposalID.Int64() != 42 || p.Proposer != proposer {
		t.Errorf("proposal = %+v", p)
	}
	if p.Description != "Raise transfer fee\nDetails follow" {
		t.Errorf("description = %q", p.Description)
	}

	voter := testutil.Addr(0x11)
	voteLog := testutil.VoteCastLog(testContract, 9, 0, testutil.TxHash(0x06), 42, voter, true, 7)

	ev, err = abi.Decode(&voteLog, testutil.BlockTime(9))
	if err != nil {
		t.Fatalf("Decode(vote) error = %v", err)
	}
	v := ev.(*events.VoteCastEvent)
	if v.ProposalID.Int64() != 42 || v.Voter != voter || !v.Support || v.Weight.Int64() != 7 {
		t.Errorf("vote = %+v", v)
	}
}

func TestDecodeUserActivity(t *testing.T) {
	user := testutil.Addr(0x12)
	log := testutil.UserActivityLog(testContract, 11, 0, testutil.TxHash(0x07),
		user, "stake", 900, testutil.BlockTime(11))

	ev, err := abi.Decode(&log, testutil.BlockTime(11))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	ua := ev.(*events.UserActivityEvent)
	if ua.User != user || ua.Action != "stake" || ua.Value.Int64() != 900 {
		t.Errorf("activity = %+v", ua)
	}
	if !ua.ActivityTime.Equal(testutil.BlockTime(11)) {
		t.Errorf("activity time = %v", ua.ActivityTime)
	}
}

func TestDecodeUnknownSchema(t *testing.T) {
	log := testutil.TransferLog(testContract, 10, 0, testutil.TxHash(0x01),
		testutil.Addr(0x0A), testutil.Addr(0x0B), 1)
	log.Topics[0] = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))

	_, err := abi.Decode(&log, testutil.BlockTime(10))
	if !errors.Is(err, abi.ErrUnknownSchema) {
		t.Fatalf("Decode() err = %v, want ErrUnknownSchema", err)
	}

	var decodeErr *abi.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatal("error is not a *DecodeError")
	}
	if decodeErr.TxHash != testutil.TxHash(0x01) || decodeErr.BlockNumber != 10 {
		t.Errorf("decode error identity = %+v", decodeErr)
	}
}

func TestDecodeMalformed(t *testing.T) {
	from := testutil.Addr(0x0A)
	to := testutil.Addr(0x0B)

	tests := []struct {
		name string
		log  types.Log
	}{
		{
			name: "no topics",
			log:  types.Log{BlockNumber: 10},
		},
		{
			name: "missing indexed topic",
			log: func() types.Log {
				l := testutil.TransferLog(testContract, 10, 0, testutil.TxHash(0x01), from, to, 1)
				l.Topics = l.Topics[:2]
				return l
			}(),
		},
		{
			name: "short data",
			log: func() types.Log {
				l := testutil.TransferLog(testContract, 10, 0, testutil.TxHash(0x01), from, to, 1)
				l.Data = l.Data[:16]
				return l
			}(),
		},
		{
			name: "non-address topic",
			log: func() types.Log {
				l := testutil.TransferLog(testContract, 10, 0, testutil.TxHash(0x01), from, to, 1)
				l.Topics[1][0] = 0xFF
				return l
			}(),
		},
		{
			name: "invalid bool word",
			log: func() types.Log {
				l := testutil.VoteCastLog(testContract, 10, 0, testutil.TxHash(0x01), 1, from, true, 1)
				l.Data[31] = 0x02
				return l
			}(),
		},
		{
			name: "string offset out of range",
			log: func() types.Log {
				l := testutil.ProposalCreatedLog(testContract, 10, 0, testutil.TxHash(0x01), 1, from, "desc")
				l.Data[31] = 0xFF
				return l
			}(),
		},
		{
			name: "string body truncated",
			log: func() types.Log {
				l := testutil.ProposalCreatedLog(testContract, 10, 0, testutil.TxHash(0x01), 1, from, "a longer description")
				l.Data = l.Data[:len(l.Data)-28]
				return l
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := abi.Decode(&tt.log, testutil.BlockTime(10))
			if !errors.Is(err, abi.ErrMalformed) {
				t.Errorf("Decode() err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	log := testutil.TransferLog(testContract, 10, 0, testutil.TxHash(0x01),
		testutil.Addr(0x0A), testutil.Addr(0x0B), 77)

	first, err := abi.Decode(&log, testutil.BlockTime(10))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	second, err := abi.Decode(&log, testutil.BlockTime(10))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	a := first.(*events.TransferEvent)
	b := second.(*events.TransferEvent)
	if a.Value.Cmp(b.Value) != 0 || a.Ref() != b.Ref() {
		t.Error("repeated decode of the same entry diverged")
	}
}

func TestSchemaLookups(t *testing.T) {
	if len(abi.Topics()) != 7 {
		t.Errorf("Topics() returned %d entries, want 7", len(abi.Topics()))
	}

	schema, ok := abi.SchemaByTopic(testutil.TransferTopic)
	if !ok || schema.Kind != events.KindTransfer {
		t.Errorf("SchemaByTopic(TransferTopic) = %+v, %v", schema, ok)
	}

	schema, ok = abi.SchemaByKind(events.KindVoteCast)
	if !ok || schema.Topic0 != testutil.VoteCastTopic {
		t.Errorf("SchemaByKind(KindVoteCast) = %+v, %v", schema, ok)
	}

	if _, ok := abi.SchemaByTopic(common.HexToHash("0xdead")); ok {
		t.Error("SchemaByTopic matched an arbitrary hash")
	}
}
