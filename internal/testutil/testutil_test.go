package testutil_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/tokenlytics/engine-go/abi"
	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/internal/testutil"
)

// The builders must produce logs the decoder accepts; a drift between
// the fixture encoding and the schema table fails here first.

func TestTransferLogDecodes(t *testing.T) {
	contract := testutil.Addr(0xCC)
	from := testutil.Addr(0x01)
	to := testutil.Addr(0x02)

	log := testutil.TransferLog(contract, 10, 0, testutil.TxHash(0xAA), from, to, 1234)

	event, err := abi.Decode(&log, testutil.BlockTime(10))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	transfer, ok := event.(*events.TransferEvent)
	if !ok {
		t.Fatalf("expected TransferEvent, got %T", event)
	}
	if transfer.From != from || transfer.To != to {
		t.Errorf("unexpected parties: from %s to %s", transfer.From, transfer.To)
	}
	if transfer.Value.Cmp(big.NewInt(1234)) != 0 {
		t.Errorf("expected value 1234, got %s", transfer.Value)
	}
	if transfer.Ref().BlockNumber != 10 {
		t.Errorf("expected block 10, got %d", transfer.Ref().BlockNumber)
	}
}

func TestUserActivityLogDecodes(t *testing.T) {
	contract := testutil.Addr(0xCC)
	user := testutil.Addr(0x03)
	ts := time.Unix(1_700_000_500, 0).UTC()

	log := testutil.UserActivityLog(contract, 11, 2, testutil.TxHash(0xAB), user, "stake", 50, ts)

	event, err := abi.Decode(&log, testutil.BlockTime(11))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	activity, ok := event.(*events.UserActivityEvent)
	if !ok {
		t.Fatalf("expected UserActivityEvent, got %T", event)
	}
	if activity.Action != "stake" {
		t.Errorf("expected action stake, got %q", activity.Action)
	}
	if !activity.ActivityTime.Equal(ts) {
		t.Errorf("expected activity time %v, got %v", ts, activity.ActivityTime)
	}
}

func TestVoteCastLogDecodes(t *testing.T) {
	contract := testutil.Addr(0xCC)
	voter := testutil.Addr(0x04)

	log := testutil.VoteCastLog(contract, 12, 1, testutil.TxHash(0xAC), 9, voter, true, 77)

	event, err := abi.Decode(&log, testutil.BlockTime(12))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	vote, ok := event.(*events.VoteCastEvent)
	if !ok {
		t.Fatalf("expected VoteCastEvent, got %T", event)
	}
	if vote.ProposalID.Cmp(big.NewInt(9)) != 0 {
		t.Errorf("expected proposal 9, got %s", vote.ProposalID)
	}
	if !vote.Support {
		t.Error("expected support vote")
	}
	if vote.Weight.Cmp(big.NewInt(77)) != 0 {
		t.Errorf("expected weight 77, got %s", vote.Weight)
	}
}
