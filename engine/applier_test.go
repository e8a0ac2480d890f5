package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/tokenlytics/engine-go/client"
	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/internal/testutil"
	"github.com/tokenlytics/engine-go/storage"
)

func newTestApplier(t *testing.T) (storage.Storage, *Applier, *fakeFeed) {
	t.Helper()
	store := newTestStore(t)
	feed := newFakeFeed()
	return store, NewApplier(store, feed, testConfig(), testutil.NewTestLogger(t)), feed
}

func TestApplyMintAndTransfer(t *testing.T) {
	store, applier, _ := newTestApplier(t)
	ctx := context.Background()

	userA := testutil.Addr(0x0A)
	userB := testutil.Addr(0x0B)

	results := applyEvents(t, store, applier,
		&events.MintEvent{LogRef: ref(5, 0, 0x01), To: userA, Amount: big.NewInt(1000)},
		&events.TransferEvent{LogRef: ref(5, 1, 0x01), From: userA, To: userB, Value: big.NewInt(400)},
	)
	for i, result := range results {
		if result != Applied {
			t.Fatalf("event %d: result = %v, want Applied", i, result)
		}
	}

	checkBalance(t, store, userA, 600)
	checkBalance(t, store, userB, 400)

	supply, err := store.GetSupplyTotals(ctx)
	if err != nil {
		t.Fatalf("GetSupplyTotals() error = %v", err)
	}
	if supply.Minted.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("minted = %s, want 1000", supply.Minted)
	}
	if supply.TotalSupply().Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("total supply = %s, want 1000", supply.TotalSupply())
	}

	// The mint credits A's count but not volume; the transfer adds
	// sender volume only
	ua, err := store.GetUserAnalytics(ctx, userA)
	if err != nil {
		t.Fatalf("GetUserAnalytics(A) error = %v", err)
	}
	if ua.TotalTransactions != 2 {
		t.Errorf("A transactions = %d, want 2", ua.TotalTransactions)
	}
	if ua.TotalVolume.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("A volume = %s, want 400", ua.TotalVolume)
	}

	ub, err := store.GetUserAnalytics(ctx, userB)
	if err != nil {
		t.Fatalf("GetUserAnalytics(B) error = %v", err)
	}
	if ub.TotalTransactions != 1 {
		t.Errorf("B transactions = %d, want 1", ub.TotalTransactions)
	}
	if ub.TotalVolume.Sign() != 0 {
		t.Errorf("B volume = %s, want 0", ub.TotalVolume)
	}

	// The zero address is a sentinel, never a tracked user
	if _, err := store.GetUserAnalytics(ctx, zeroAddress); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("zero address analytics err = %v, want ErrNotFound", err)
	}

	// Derived transactions are queryable
	tx, err := store.GetTransaction(ctx, testutil.TxHash(0x01), 1)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if tx.Type != storage.TxTypeTransfer {
		t.Errorf("tx type = %s, want TRANSFER", tx.Type)
	}
	if tx.Amount.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("tx amount = %s, want 400", tx.Amount)
	}
}

func TestApplyBurn(t *testing.T) {
	store, applier, _ := newTestApplier(t)
	ctx := context.Background()

	userA := testutil.Addr(0x0A)
	applyEvents(t, store, applier,
		&events.MintEvent{LogRef: ref(5, 0, 0x01), To: userA, Amount: big.NewInt(1000)},
	)
	applyEvents(t, store, applier,
		&events.BurnEvent{LogRef: ref(6, 0, 0x02), From: userA, Amount: big.NewInt(300)},
	)

	checkBalance(t, store, userA, 700)

	supply, err := store.GetSupplyTotals(ctx)
	if err != nil {
		t.Fatalf("GetSupplyTotals() error = %v", err)
	}
	if supply.Burned.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("burned = %s, want 300", supply.Burned)
	}
	if supply.TotalSupply().Cmp(big.NewInt(700)) != 0 {
		t.Errorf("total supply = %s, want 700", supply.TotalSupply())
	}

	// Burn counts toward the burner's volume
	ua, err := store.GetUserAnalytics(ctx, userA)
	if err != nil {
		t.Fatalf("GetUserAnalytics() error = %v", err)
	}
	if ua.TotalVolume.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("A volume = %s, want 300", ua.TotalVolume)
	}
}

func TestApplyAtMostOnce(t *testing.T) {
	store, applier, _ := newTestApplier(t)

	userA := testutil.Addr(0x0A)
	mint := &events.MintEvent{LogRef: ref(5, 0, 0x01), To: userA, Amount: big.NewInt(1000)}

	applyEvents(t, store, applier, mint)

	// Redelivery of the same (txHash, logIndex) identity has no effect
	results := applyEvents(t, store, applier, mint)
	if results[0] != AlreadyApplied {
		t.Fatalf("result = %v, want AlreadyApplied", results[0])
	}

	checkBalance(t, store, userA, 1000)

	supply, err := store.GetSupplyTotals(context.Background())
	if err != nil {
		t.Fatalf("GetSupplyTotals() error = %v", err)
	}
	if supply.Minted.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("minted = %s after redelivery, want 1000", supply.Minted)
	}
}

func TestApplyAtMostOnceWithinBatch(t *testing.T) {
	store, applier, _ := newTestApplier(t)
	ctx := context.Background()

	userA := testutil.Addr(0x0A)
	userB := testutil.Addr(0x0B)

	// The same (txHash, logIndex) identity delivered twice in one
	// batch must only count once, even though the first record is not
	// yet committed when the second arrives
	results := applyEvents(t, store, applier,
		&events.MintEvent{LogRef: ref(5, 0, 0x01), To: userA, Amount: big.NewInt(1000)},
		&events.TransferEvent{LogRef: ref(5, 1, 0x01), From: userA, To: userB, Value: big.NewInt(100)},
		&events.TransferEvent{LogRef: ref(5, 1, 0x01), From: userA, To: userB, Value: big.NewInt(100)},
	)
	if results[1] != Applied {
		t.Fatalf("first delivery result = %v, want Applied", results[1])
	}
	if results[2] != AlreadyApplied {
		t.Fatalf("second delivery result = %v, want AlreadyApplied", results[2])
	}

	checkBalance(t, store, userA, 900)
	checkBalance(t, store, userB, 100)

	ua, err := store.GetUserAnalytics(ctx, userA)
	if err != nil {
		t.Fatalf("GetUserAnalytics(A) error = %v", err)
	}
	if ua.TotalTransactions != 2 {
		t.Errorf("A transactions = %d, want 2 (mint + one transfer)", ua.TotalTransactions)
	}
	if ua.TotalVolume.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("A volume = %s, want 100", ua.TotalVolume)
	}

	ub, err := store.GetUserAnalytics(ctx, userB)
	if err != nil {
		t.Fatalf("GetUserAnalytics(B) error = %v", err)
	}
	if ub.TotalTransactions != 1 {
		t.Errorf("B transactions = %d, want 1", ub.TotalTransactions)
	}
}

func TestApplyFeeAndActivityEvents(t *testing.T) {
	store, applier, _ := newTestApplier(t)
	ctx := context.Background()

	userA := testutil.Addr(0x0A)
	results := applyEvents(t, store, applier,
		&events.FeeCollectedEvent{LogRef: ref(5, 0, 0x01), From: userA, To: testutil.Addr(0x0B), Amount: big.NewInt(100), Fee: big.NewInt(2)},
		&events.UserActivityEvent{LogRef: ref(5, 1, 0x01), User: userA, Action: "stake", Value: big.NewInt(10), ActivityTime: testutil.BlockTime(5)},
	)
	for i, result := range results {
		if result != Applied {
			t.Fatalf("event %d: result = %v, want Applied", i, result)
		}
	}

	// Recorded for idempotency, but no aggregates move
	seen, err := store.HasAppliedEvent(ctx, testutil.TxHash(0x01), 0)
	if err != nil || !seen {
		t.Errorf("HasAppliedEvent() = %v, %v, want true", seen, err)
	}
	checkBalance(t, store, userA, 0)
	if _, err := store.GetUserAnalytics(ctx, userA); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("analytics err = %v, want ErrNotFound", err)
	}
}

func TestApplyProposalAndVotes(t *testing.T) {
	store, applier, feed := newTestApplier(t)
	ctx := context.Background()

	applier.config.GovernanceContract = testutil.Addr(0xDD)
	feed.meta[7] = &client.ProposalMetadata{
		StartTime: testutil.BlockTime(8),
		EndTime:   testutil.BlockTime(100),
	}

	proposer := testutil.Addr(0x10)
	voterA := testutil.Addr(0x11)
	voterB := testutil.Addr(0x12)

	applyEvents(t, store, applier,
		&events.ProposalCreatedEvent{
			LogRef:      ref(8, 0, 0x03),
			ProposalID:  big.NewInt(7),
			Proposer:    proposer,
			Description: "Raise transfer fee\nLong rationale.",
		},
		&events.VoteCastEvent{LogRef: ref(8, 1, 0x03), ProposalID: big.NewInt(7), Voter: voterA, Support: true, Weight: big.NewInt(10)},
		&events.VoteCastEvent{LogRef: ref(8, 2, 0x03), ProposalID: big.NewInt(7), Voter: voterB, Support: false, Weight: big.NewInt(3)},
	)

	p, err := store.GetProposal(ctx, 7)
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.Title != "Raise transfer fee" {
		t.Errorf("title = %q, want first description line", p.Title)
	}
	if p.VotesFor.Cmp(big.NewInt(10)) != 0 || p.VotesAgainst.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("tally = %s for / %s against, want 10/3", p.VotesFor, p.VotesAgainst)
	}
	if p.TotalVotes.Cmp(big.NewInt(13)) != 0 {
		t.Errorf("total votes = %s, want 13", p.TotalVotes)
	}
	if p.StartTime.IsZero() || p.EndTime.IsZero() {
		t.Error("proposal timing not side-read from governance contract")
	}

	// A second vote by the same voter never re-counts
	results := applyEvents(t, store, applier,
		&events.VoteCastEvent{LogRef: ref(9, 0, 0x04), ProposalID: big.NewInt(7), Voter: voterA, Support: false, Weight: big.NewInt(99)},
	)
	if results[0] != Rejected {
		t.Fatalf("duplicate vote result = %v, want Rejected", results[0])
	}

	p, err = store.GetProposal(ctx, 7)
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.TotalVotes.Cmp(big.NewInt(13)) != 0 {
		t.Errorf("total votes after duplicate = %s, want 13", p.TotalVotes)
	}

	// A rejected event writes no applied record, so redelivery rejects
	// deterministically
	seen, err := store.HasAppliedEvent(ctx, testutil.TxHash(0x04), 0)
	if err != nil {
		t.Fatalf("HasAppliedEvent() error = %v", err)
	}
	if seen {
		t.Error("rejected vote should not be recorded as applied")
	}
}

func TestApplyVoteOnUnknownProposal(t *testing.T) {
	store, applier, _ := newTestApplier(t)

	results := applyEvents(t, store, applier,
		&events.VoteCastEvent{LogRef: ref(5, 0, 0x01), ProposalID: big.NewInt(99), Voter: testutil.Addr(0x11), Support: true, Weight: big.NewInt(1)},
	)
	if results[0] != Rejected {
		t.Fatalf("result = %v, want Rejected", results[0])
	}
}

func TestApplyProposalWithoutGovernanceContract(t *testing.T) {
	store, applier, _ := newTestApplier(t)
	ctx := context.Background()

	// No governance contract configured: the proposal lands with zero
	// timing instead of failing
	applyEvents(t, store, applier,
		&events.ProposalCreatedEvent{
			LogRef:      ref(8, 0, 0x03),
			ProposalID:  big.NewInt(1),
			Proposer:    testutil.Addr(0x10),
			Description: "",
		},
	)

	p, err := store.GetProposal(ctx, 1)
	if err != nil {
		t.Fatalf("GetProposal() error = %v", err)
	}
	if p.Title != "Untitled Proposal" {
		t.Errorf("title = %q, want Untitled Proposal", p.Title)
	}
	if !p.StartTime.IsZero() {
		t.Errorf("start time = %v, want zero", p.StartTime)
	}
}

func TestApplyOrderWithinBlock(t *testing.T) {
	store, applier, _ := newTestApplier(t)

	userA := testutil.Addr(0x0A)
	userB := testutil.Addr(0x0B)

	// Transfer after mint within the same batch sees the minted balance
	applyEvents(t, store, applier,
		&events.MintEvent{LogRef: ref(5, 0, 0x01), To: userA, Amount: big.NewInt(500)},
		&events.TransferEvent{LogRef: ref(5, 1, 0x01), From: userA, To: userB, Value: big.NewInt(500)},
		&events.TransferEvent{LogRef: ref(5, 2, 0x01), From: userB, To: userA, Value: big.NewInt(200)},
	)

	checkBalance(t, store, userA, 200)
	checkBalance(t, store, userB, 300)
}
