package storage_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/internal/testutil"
	"github.com/tokenlytics/engine-go/storage"
)

var baseTime = time.Unix(1_700_000_000, 0).UTC()

func newStore(t *testing.T) *storage.PebbleStorage {
	t.Helper()
	store, err := storage.NewPebbleStorage(storage.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func makeTx(tx byte, logIndex uint, txType storage.TransactionType, amount int64, ts time.Time) *storage.Transaction {
	return &storage.Transaction{
		Hash:        testutil.TxHash(tx),
		LogIndex:    logIndex,
		From:        testutil.Addr(0x0A),
		To:          testutil.Addr(0x0B),
		Amount:      big.NewInt(amount),
		Fee:         new(big.Int),
		Type:        txType,
		Status:      storage.TxStatusConfirmed,
		BlockNumber: uint64(tx),
		Timestamp:   ts,
	}
}

func TestCursorRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.GetCursor(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetCursor() on empty store err = %v, want ErrNotFound", err)
	}

	want := &storage.Cursor{BlockNumber: 42, BlockHash: testutil.BlockHash(42)}
	if err := store.SetCursor(ctx, want); err != nil {
		t.Fatalf("SetCursor() error = %v", err)
	}

	got, err := store.GetCursor(ctx)
	if err != nil {
		t.Fatalf("GetCursor() error = %v", err)
	}
	if got.BlockNumber != want.BlockNumber || got.BlockHash != want.BlockHash {
		t.Errorf("cursor = %+v, want %+v", got, want)
	}
}

func TestBlockHashRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	hash := testutil.BlockHash(7)
	if err := store.SetBlockHash(ctx, 7, hash); err != nil {
		t.Fatalf("SetBlockHash() error = %v", err)
	}

	got, err := store.GetBlockHash(ctx, 7)
	if err != nil {
		t.Fatalf("GetBlockHash() error = %v", err)
	}
	if got != hash {
		t.Errorf("hash = %s, want %s", got, hash)
	}

	if err := store.DeleteBlockHash(ctx, 7); err != nil {
		t.Fatalf("DeleteBlockHash() error = %v", err)
	}
	if _, err := store.GetBlockHash(ctx, 7); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetBlockHash() after delete err = %v, want ErrNotFound", err)
	}
}

func TestRollbackWatermarkRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.GetRollbackWatermark(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetRollbackWatermark() on empty store err = %v, want ErrNotFound", err)
	}

	wm := &storage.RollbackWatermark{FromBlock: 20, ToBlock: 15, StartedAt: baseTime}
	if err := store.SetRollbackWatermark(ctx, wm); err != nil {
		t.Fatalf("SetRollbackWatermark() error = %v", err)
	}

	got, err := store.GetRollbackWatermark(ctx)
	if err != nil {
		t.Fatalf("GetRollbackWatermark() error = %v", err)
	}
	if got.FromBlock != 20 || got.ToBlock != 15 || !got.StartedAt.Equal(baseTime) {
		t.Errorf("watermark = %+v", got)
	}

	if err := store.ClearRollbackWatermark(ctx); err != nil {
		t.Fatalf("ClearRollbackWatermark() error = %v", err)
	}
	if _, err := store.GetRollbackWatermark(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetRollbackWatermark() after clear err = %v, want ErrNotFound", err)
	}
}

func TestTransactionQueries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	// Three transfers and one burn, one minute apart
	for i, txType := range []storage.TransactionType{
		storage.TxTypeTransfer, storage.TxTypeTransfer, storage.TxTypeTransfer, storage.TxTypeBurn,
	} {
		tx := makeTx(byte(i+1), 0, txType, int64(100*(i+1)), baseTime.Add(time.Duration(i)*time.Minute))
		if err := store.SetTransaction(ctx, tx); err != nil {
			t.Fatalf("SetTransaction() error = %v", err)
		}
	}

	t.Run("by identity", func(t *testing.T) {
		tx, err := store.GetTransaction(ctx, testutil.TxHash(0x01), 0)
		if err != nil {
			t.Fatalf("GetTransaction() error = %v", err)
		}
		if tx.Amount.Int64() != 100 || tx.Type != storage.TxTypeTransfer {
			t.Errorf("tx = %+v", tx)
		}

		if _, err := store.GetTransaction(ctx, testutil.TxHash(0x99), 0); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("unknown identity err = %v, want ErrNotFound", err)
		}
	})

	t.Run("newest first", func(t *testing.T) {
		txs, err := store.GetTransactions(ctx, nil)
		if err != nil {
			t.Fatalf("GetTransactions() error = %v", err)
		}
		if len(txs) != 4 {
			t.Fatalf("len = %d, want 4", len(txs))
		}
		for i := 1; i < len(txs); i++ {
			if txs[i].Timestamp.After(txs[i-1].Timestamp) {
				t.Fatal("results are not newest first")
			}
		}
	})

	t.Run("type filter", func(t *testing.T) {
		txs, err := store.GetTransactions(ctx, &storage.TransactionFilter{Type: storage.TxTypeBurn})
		if err != nil {
			t.Fatalf("GetTransactions() error = %v", err)
		}
		if len(txs) != 1 || txs[0].Type != storage.TxTypeBurn {
			t.Errorf("burn filter returned %d results", len(txs))
		}
	})

	t.Run("time range", func(t *testing.T) {
		txs, err := store.GetTransactions(ctx, &storage.TransactionFilter{
			StartTime: baseTime.Add(30 * time.Second),
			EndTime:   baseTime.Add(90 * time.Second),
		})
		if err != nil {
			t.Fatalf("GetTransactions() error = %v", err)
		}
		if len(txs) != 1 || txs[0].Hash != testutil.TxHash(0x02) {
			t.Errorf("time range returned %d results", len(txs))
		}
	})

	t.Run("limit", func(t *testing.T) {
		txs, err := store.GetTransactions(ctx, &storage.TransactionFilter{Limit: 2})
		if err != nil {
			t.Fatalf("GetTransactions() error = %v", err)
		}
		if len(txs) != 2 {
			t.Errorf("len = %d, want 2", len(txs))
		}
	})

	t.Run("by address with pagination", func(t *testing.T) {
		all, err := store.GetTransactionsByAddress(ctx, testutil.Addr(0x0A), 10, 0)
		if err != nil {
			t.Fatalf("GetTransactionsByAddress() error = %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("len = %d, want 4", len(all))
		}

		page, err := store.GetTransactionsByAddress(ctx, testutil.Addr(0x0A), 2, 2)
		if err != nil {
			t.Fatalf("GetTransactionsByAddress() error = %v", err)
		}
		if len(page) != 2 {
			t.Fatalf("page len = %d, want 2", len(page))
		}
		if page[0].Hash != all[2].Hash {
			t.Error("pagination did not continue from the offset")
		}

		none, err := store.GetTransactionsByAddress(ctx, testutil.Addr(0x77), 10, 0)
		if err != nil {
			t.Fatalf("GetTransactionsByAddress() error = %v", err)
		}
		if len(none) != 0 {
			t.Errorf("uninvolved address returned %d results", len(none))
		}
	})

	t.Run("delete removes indexes", func(t *testing.T) {
		tx := makeTx(0x01, 0, storage.TxTypeTransfer, 100, baseTime)
		if err := store.DeleteTransaction(ctx, tx); err != nil {
			t.Fatalf("DeleteTransaction() error = %v", err)
		}
		if _, err := store.GetTransaction(ctx, testutil.TxHash(0x01), 0); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("record still present after delete")
		}
		byAddr, err := store.GetTransactionsByAddress(ctx, testutil.Addr(0x0A), 10, 0)
		if err != nil {
			t.Fatalf("GetTransactionsByAddress() error = %v", err)
		}
		if len(byAddr) != 3 {
			t.Errorf("address index has %d entries after delete, want 3", len(byAddr))
		}
	})
}

func TestUserAnalyticsRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	addr := testutil.Addr(0x0A)
	if _, err := store.GetUserAnalytics(ctx, addr); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetUserAnalytics() on empty store err = %v, want ErrNotFound", err)
	}

	ua := &storage.UserAnalytics{
		Address:           addr,
		TotalTransactions: 5,
		TotalVolume:       big.NewInt(12345),
		FirstTransaction:  baseTime,
		LastTransaction:   baseTime.Add(time.Hour),
	}
	if err := store.SetUserAnalytics(ctx, ua); err != nil {
		t.Fatalf("SetUserAnalytics() error = %v", err)
	}

	got, err := store.GetUserAnalytics(ctx, addr)
	if err != nil {
		t.Fatalf("GetUserAnalytics() error = %v", err)
	}
	if got.TotalTransactions != 5 || got.TotalVolume.Int64() != 12345 {
		t.Errorf("analytics = %+v", got)
	}
	if !got.FirstTransaction.Equal(baseTime) || !got.LastTransaction.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("timestamps = %v / %v", got.FirstTransaction, got.LastTransaction)
	}

	if err := store.DeleteUserAnalytics(ctx, addr); err != nil {
		t.Fatalf("DeleteUserAnalytics() error = %v", err)
	}
	if _, err := store.GetUserAnalytics(ctx, addr); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("aggregate still present after delete")
	}
}

func TestProposalStatusResolution(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	seed := []*storage.Proposal{
		{
			ID: 1, Title: "Open", Status: storage.ProposalStatusActive,
			EndTime:  time.Now().Add(time.Hour),
			VotesFor: big.NewInt(1), VotesAgainst: new(big.Int), TotalVotes: big.NewInt(1),
		},
		{
			ID: 2, Title: "Ended winning", Status: storage.ProposalStatusActive,
			EndTime:  time.Now().Add(-time.Hour),
			VotesFor: big.NewInt(10), VotesAgainst: big.NewInt(3), TotalVotes: big.NewInt(13),
		},
		{
			ID: 3, Title: "Ended losing", Status: storage.ProposalStatusActive,
			EndTime:  time.Now().Add(-time.Hour),
			VotesFor: big.NewInt(2), VotesAgainst: big.NewInt(2), TotalVotes: big.NewInt(4),
		},
		{
			ID: 4, Title: "Executed", Status: storage.ProposalStatusExecuted,
			EndTime:  time.Now().Add(-time.Hour),
			VotesFor: new(big.Int), VotesAgainst: new(big.Int), TotalVotes: new(big.Int),
		},
	}
	for _, p := range seed {
		if err := store.SetProposal(ctx, p); err != nil {
			t.Fatalf("SetProposal() error = %v", err)
		}
	}

	wantStatus := map[uint64]storage.ProposalStatus{
		1: storage.ProposalStatusActive,
		2: storage.ProposalStatusPassed,
		3: storage.ProposalStatusFailed,
		4: storage.ProposalStatusExecuted,
	}
	for id, want := range wantStatus {
		p, err := store.GetProposal(ctx, id)
		if err != nil {
			t.Fatalf("GetProposal(%d) error = %v", id, err)
		}
		if p.Status != want {
			t.Errorf("proposal %d status = %s, want %s", id, p.Status, want)
		}
	}

	all, err := store.GetProposals(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("GetProposals() error = %v", err)
	}
	if len(all) != 4 || all[0].ID != 4 {
		t.Errorf("GetProposals() returned %d proposals, first id %d; want 4 newest first", len(all), all[0].ID)
	}

	passed, err := store.GetProposals(ctx, storage.ProposalStatusPassed, 10, 0)
	if err != nil {
		t.Fatalf("GetProposals(PASSED) error = %v", err)
	}
	if len(passed) != 1 || passed[0].ID != 2 {
		t.Errorf("PASSED filter returned %d proposals", len(passed))
	}

	if err := store.DeleteProposal(ctx, 1); err != nil {
		t.Fatalf("DeleteProposal() error = %v", err)
	}
	if _, err := store.GetProposal(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("proposal still present after delete")
	}
}

func TestVoteRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	voterA := testutil.Addr(0x11)
	voterB := testutil.Addr(0x12)

	for _, v := range []*storage.Vote{
		{ProposalID: 5, Voter: voterA, Support: true, Weight: big.NewInt(10), BlockNumber: 20, Timestamp: baseTime},
		{ProposalID: 5, Voter: voterB, Support: false, Weight: big.NewInt(3), BlockNumber: 21, Timestamp: baseTime},
		{ProposalID: 6, Voter: voterA, Support: true, Weight: big.NewInt(1), BlockNumber: 22, Timestamp: baseTime},
	} {
		if err := store.SetVote(ctx, v); err != nil {
			t.Fatalf("SetVote() error = %v", err)
		}
	}

	got, err := store.GetVote(ctx, 5, voterA)
	if err != nil {
		t.Fatalf("GetVote() error = %v", err)
	}
	if !got.Support || got.Weight.Int64() != 10 {
		t.Errorf("vote = %+v", got)
	}

	votes, err := store.GetVotes(ctx, 5)
	if err != nil {
		t.Fatalf("GetVotes() error = %v", err)
	}
	if len(votes) != 2 {
		t.Errorf("proposal 5 has %d votes, want 2", len(votes))
	}

	if err := store.DeleteVote(ctx, 5, voterA); err != nil {
		t.Fatalf("DeleteVote() error = %v", err)
	}
	if _, err := store.GetVote(ctx, 5, voterA); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("vote still present after delete")
	}
}

func TestSnapshotHistory(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.GetLatestSnapshot(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetLatestSnapshot() on empty store err = %v, want ErrNotFound", err)
	}

	for i := 0; i < 4; i++ {
		snap := &storage.TokenMetricsSnapshot{
			TotalSupply:       big.NewInt(int64(1000 + i)),
			CirculatingSupply: big.NewInt(int64(1000 + i)),
			BurnedTokens:      new(big.Int),
			Holders:           uint64(i),
			Volume24h:         new(big.Int),
			Timestamp:         baseTime.Add(time.Duration(i) * time.Hour),
		}
		if err := store.SetSnapshot(ctx, snap); err != nil {
			t.Fatalf("SetSnapshot() error = %v", err)
		}
	}

	latest, err := store.GetLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetLatestSnapshot() error = %v", err)
	}
	if latest.TotalSupply.Int64() != 1003 {
		t.Errorf("latest supply = %s, want 1003", latest.TotalSupply)
	}

	window, err := store.GetSnapshots(ctx, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour), 0)
	if err != nil {
		t.Fatalf("GetSnapshots() error = %v", err)
	}
	if len(window) != 2 || window[0].Holders != 1 {
		t.Errorf("range query returned %d snapshots, first holders %d; want 2 oldest first", len(window), window[0].Holders)
	}

	limited, err := store.GetSnapshots(ctx, baseTime, baseTime.Add(4*time.Hour), 3)
	if err != nil {
		t.Fatalf("GetSnapshots() error = %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("limited query returned %d snapshots, want 3", len(limited))
	}
}

func TestAppliedEventLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	// Interleave writes across blocks to verify read order
	records := []*storage.AppliedEvent{
		{TxHash: testutil.TxHash(0x02), LogIndex: 1, BlockNumber: 11, Kind: events.KindMint, AppliedAt: baseTime, Payload: []byte(`{}`)},
		{TxHash: testutil.TxHash(0x01), LogIndex: 0, BlockNumber: 10, Kind: events.KindTransfer, AppliedAt: baseTime, Payload: []byte(`{}`)},
		{TxHash: testutil.TxHash(0x02), LogIndex: 0, BlockNumber: 11, Kind: events.KindBurn, AppliedAt: baseTime, Payload: []byte(`{}`)},
		{TxHash: testutil.TxHash(0x03), LogIndex: 0, BlockNumber: 12, Kind: events.KindVoteCast, AppliedAt: baseTime, Payload: []byte(`{}`)},
	}
	for _, ae := range records {
		if err := store.SetAppliedEvent(ctx, ae); err != nil {
			t.Fatalf("SetAppliedEvent() error = %v", err)
		}
	}

	seen, err := store.HasAppliedEvent(ctx, testutil.TxHash(0x01), 0)
	if err != nil {
		t.Fatalf("HasAppliedEvent() error = %v", err)
	}
	if !seen {
		t.Error("HasAppliedEvent() = false for a recorded event")
	}
	seen, err = store.HasAppliedEvent(ctx, testutil.TxHash(0x01), 9)
	if err != nil {
		t.Fatalf("HasAppliedEvent() error = %v", err)
	}
	if seen {
		t.Error("HasAppliedEvent() = true for an unknown log index")
	}

	got, err := store.GetAppliedEvent(ctx, testutil.TxHash(0x02), 1)
	if err != nil {
		t.Fatalf("GetAppliedEvent() error = %v", err)
	}
	if got.Kind != events.KindMint || got.BlockNumber != 11 {
		t.Errorf("applied event = %+v", got)
	}

	inRange, err := store.GetAppliedEventsInRange(ctx, 11, 12)
	if err != nil {
		t.Fatalf("GetAppliedEventsInRange() error = %v", err)
	}
	if len(inRange) != 3 {
		t.Fatalf("range returned %d events, want 3", len(inRange))
	}
	wantOrder := []events.Kind{events.KindBurn, events.KindMint, events.KindVoteCast}
	for i, kind := range wantOrder {
		if inRange[i].Kind != kind {
			t.Fatalf("range[%d].Kind = %s, want %s (ascending block, log index)", i, inRange[i].Kind, kind)
		}
	}

	if err := store.DeleteAppliedEvent(ctx, records[0]); err != nil {
		t.Fatalf("DeleteAppliedEvent() error = %v", err)
	}
	inRange, err = store.GetAppliedEventsInRange(ctx, 10, 12)
	if err != nil {
		t.Fatalf("GetAppliedEventsInRange() error = %v", err)
	}
	if len(inRange) != 3 {
		t.Errorf("range returned %d events after delete, want 3", len(inRange))
	}
}

func TestBalancesAndHolders(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	unknown, err := store.GetBalance(ctx, testutil.Addr(0x77))
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if unknown.Sign() != 0 {
		t.Errorf("unknown address balance = %s, want 0", unknown)
	}

	balances := map[byte]int64{0x0A: 500, 0x0B: 900, 0x0C: 100, 0x0D: 0}
	for n, bal := range balances {
		if err := store.SetBalance(ctx, testutil.Addr(n), big.NewInt(bal)); err != nil {
			t.Fatalf("SetBalance() error = %v", err)
		}
	}

	holders, err := store.CountHolders(ctx)
	if err != nil {
		t.Fatalf("CountHolders() error = %v", err)
	}
	if holders != 3 {
		t.Errorf("holders = %d, want 3 (zero balances excluded)", holders)
	}

	top, err := store.GetTopHolders(ctx, 2)
	if err != nil {
		t.Fatalf("GetTopHolders() error = %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("top holders len = %d, want 2", len(top))
	}
	if top[0].Address != testutil.Addr(0x0B) || top[0].Balance.Int64() != 900 {
		t.Errorf("top holder = %+v, want 0x0B with 900", top[0])
	}
	if top[1].Balance.Int64() != 500 {
		t.Errorf("second holder balance = %s, want 500", top[1].Balance)
	}
}

func TestSupplyTotalsRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	totals, err := store.GetSupplyTotals(ctx)
	if err != nil {
		t.Fatalf("GetSupplyTotals() on empty store error = %v", err)
	}
	if totals.Minted.Sign() != 0 || totals.Burned.Sign() != 0 {
		t.Errorf("empty store totals = %+v, want zeroes", totals)
	}

	if err := store.SetSupplyTotals(ctx, &storage.SupplyTotals{
		Minted: big.NewInt(2000),
		Burned: big.NewInt(500),
	}); err != nil {
		t.Fatalf("SetSupplyTotals() error = %v", err)
	}

	totals, err = store.GetSupplyTotals(ctx)
	if err != nil {
		t.Fatalf("GetSupplyTotals() error = %v", err)
	}
	if totals.TotalSupply().Int64() != 1500 {
		t.Errorf("total supply = %s, want 1500", totals.TotalSupply())
	}
}

func TestBatchAtomicity(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	batch := store.NewBatch()
	defer batch.Close()

	if err := batch.SetCursor(ctx, &storage.Cursor{BlockNumber: 9, BlockHash: testutil.BlockHash(9)}); err != nil {
		t.Fatalf("batch SetCursor() error = %v", err)
	}
	if err := batch.SetBalance(ctx, testutil.Addr(0x0A), big.NewInt(321)); err != nil {
		t.Fatalf("batch SetBalance() error = %v", err)
	}
	if batch.Count() == 0 {
		t.Error("batch reports zero operations")
	}

	// Nothing is visible before commit
	if _, err := store.GetCursor(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cursor visible before commit: %v", err)
	}

	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	cursor, err := store.GetCursor(ctx)
	if err != nil {
		t.Fatalf("GetCursor() after commit error = %v", err)
	}
	if cursor.BlockNumber != 9 {
		t.Errorf("cursor = %d, want 9", cursor.BlockNumber)
	}
	balance, err := store.GetBalance(ctx, testutil.Addr(0x0A))
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance.Int64() != 321 {
		t.Errorf("balance = %s, want 321", balance)
	}
}

func TestBatchReset(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	batch := store.NewBatch()
	defer batch.Close()

	if err := batch.SetBalance(ctx, testutil.Addr(0x0A), big.NewInt(1)); err != nil {
		t.Fatalf("batch SetBalance() error = %v", err)
	}
	batch.Reset()
	if batch.Count() != 0 {
		t.Errorf("Count() after reset = %d, want 0", batch.Count())
	}

	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	balance, err := store.GetBalance(ctx, testutil.Addr(0x0A))
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance.Sign() != 0 {
		t.Error("reset batch still wrote data")
	}
}

func TestReadOnlyMode(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	rw, err := storage.NewPebbleStorage(storage.DefaultConfig(dir))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	if err := rw.SetBalance(ctx, testutil.Addr(0x0A), big.NewInt(42)); err != nil {
		t.Fatalf("SetBalance() error = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	cfg := storage.DefaultConfig(dir)
	cfg.ReadOnly = true
	ro, err := storage.NewPebbleStorage(cfg)
	if err != nil {
		t.Fatalf("failed to reopen read-only: %v", err)
	}
	defer ro.Close()

	balance, err := ro.GetBalance(ctx, testutil.Addr(0x0A))
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance.Int64() != 42 {
		t.Errorf("balance = %s, want 42", balance)
	}

	err = ro.SetBalance(ctx, testutil.Addr(0x0A), big.NewInt(1))
	if !errors.Is(err, storage.ErrReadOnly) {
		t.Errorf("SetBalance() on read-only err = %v, want ErrReadOnly", err)
	}
}

func TestClosedStore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Idempotent
	if err := store.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := store.GetCursor(ctx); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("GetCursor() on closed store err = %v, want ErrClosed", err)
	}
	if err := store.SetBalance(ctx, testutil.Addr(0x0A), big.NewInt(1)); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("SetBalance() on closed store err = %v, want ErrClosed", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := storage.NewPebbleStorage(nil); err == nil {
		t.Error("NewPebbleStorage(nil) did not fail")
	}

	cfg := storage.DefaultConfig("")
	if _, err := storage.NewPebbleStorage(cfg); err == nil {
		t.Error("empty path did not fail validation")
	}

	cfg = storage.DefaultConfig(t.TempDir())
	cfg.CompactionConcurrency = 0
	if _, err := storage.NewPebbleStorage(cfg); err == nil {
		t.Error("zero compaction concurrency did not fail validation")
	}
}
