package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/storage"
)

// Invert reverses the effect of one applied event using its stored
// payload, so exactly what was added is subtracted. Called in strict
// reverse (blockNumber, logIndex) order during rollback.
func (a *Applier) Invert(ctx context.Context, sess *session, record *storage.AppliedEvent) error {
	ev, err := decodeAppliedPayload(record)
	if err != nil {
		return err
	}

	switch e := ev.(type) {
	case *events.TransferEvent:
		err = a.invertTransfer(ctx, sess, e)
	case *events.MintEvent:
		err = a.invertMint(ctx, sess, e)
	case *events.BurnEvent:
		err = a.invertBurn(ctx, sess, e)
	case *events.FeeCollectedEvent, *events.UserActivityEvent:
		// Nothing beyond the applied-event record to undo
	case *events.ProposalCreatedEvent:
		err = a.invertProposalCreated(ctx, sess, e)
	case *events.VoteCastEvent:
		err = a.invertVoteCast(ctx, sess, e)
	default:
		return fmt.Errorf("unhandled event kind %s", record.Kind)
	}
	if err != nil {
		return err
	}

	return sess.batch.DeleteAppliedEvent(ctx, record)
}

// decodeAppliedPayload restores the typed event from an applied-event
// record's stored payload
func decodeAppliedPayload(record *storage.AppliedEvent) (events.ChainEvent, error) {
	var ev events.ChainEvent
	switch record.Kind {
	case events.KindTransfer:
		ev = &events.TransferEvent{}
	case events.KindMint:
		ev = &events.MintEvent{}
	case events.KindBurn:
		ev = &events.BurnEvent{}
	case events.KindFeeCollected:
		ev = &events.FeeCollectedEvent{}
	case events.KindUserActivity:
		ev = &events.UserActivityEvent{}
	case events.KindProposalCreated:
		ev = &events.ProposalCreatedEvent{}
	case events.KindVoteCast:
		ev = &events.VoteCastEvent{}
	default:
		return nil, fmt.Errorf("unknown applied event kind %q", record.Kind)
	}

	if err := json.Unmarshal(record.Payload, ev); err != nil {
		return nil, fmt.Errorf("failed to decode applied payload %s[%d]: %w",
			record.TxHash.Hex(), record.LogIndex, err)
	}
	return ev, nil
}

func (a *Applier) invertTransfer(ctx context.Context, sess *session, e *events.TransferEvent) error {
	tx := &storage.Transaction{
		Hash:        e.TxHash,
		LogIndex:    e.LogIndex,
		From:        e.From,
		To:          e.To,
		Type:        storage.TxTypeTransfer,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.BlockTime,
	}
	if err := sess.batch.DeleteTransaction(ctx, tx); err != nil {
		return err
	}

	if err := a.debitAnalytics(ctx, sess, e.From, e.Value); err != nil {
		return err
	}
	if err := a.debitAnalytics(ctx, sess, e.To, nil); err != nil {
		return err
	}
	return a.moveBalance(ctx, sess, e.To, e.From, e.Value)
}

func (a *Applier) invertMint(ctx context.Context, sess *session, e *events.MintEvent) error {
	tx := &storage.Transaction{
		Hash:        e.TxHash,
		LogIndex:    e.LogIndex,
		From:        zeroAddress,
		To:          e.To,
		Type:        storage.TxTypeMint,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.BlockTime,
	}
	if err := sess.batch.DeleteTransaction(ctx, tx); err != nil {
		return err
	}

	if err := a.debitAnalytics(ctx, sess, e.To, nil); err != nil {
		return err
	}
	if err := a.moveBalance(ctx, sess, e.To, zeroAddress, e.Amount); err != nil {
		return err
	}

	supply, err := sess.getSupply(ctx, a.store)
	if err != nil {
		return err
	}
	return sess.putSupply(ctx, &storage.SupplyTotals{
		Minted: new(big.Int).Sub(supply.Minted, e.Amount),
		Burned: supply.Burned,
	})
}

func (a *Applier) invertBurn(ctx context.Context, sess *session, e *events.BurnEvent) error {
	tx := &storage.Transaction{
		Hash:        e.TxHash,
		LogIndex:    e.LogIndex,
		From:        e.From,
		To:          zeroAddress,
		Type:        storage.TxTypeBurn,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.BlockTime,
	}
	if err := sess.batch.DeleteTransaction(ctx, tx); err != nil {
		return err
	}

	if err := a.debitAnalytics(ctx, sess, e.From, e.Amount); err != nil {
		return err
	}
	if err := a.moveBalance(ctx, sess, zeroAddress, e.From, e.Amount); err != nil {
		return err
	}

	supply, err := sess.getSupply(ctx, a.store)
	if err != nil {
		return err
	}
	return sess.putSupply(ctx, &storage.SupplyTotals{
		Minted: supply.Minted,
		Burned: new(big.Int).Sub(supply.Burned, e.Amount),
	})
}

// debitAnalytics reverses one creditAnalytics call. An aggregate whose
// transaction count reaches zero is removed entirely.
func (a *Applier) debitAnalytics(ctx context.Context, sess *session, addr common.Address, volume *big.Int) error {
	if addr == zeroAddress {
		return nil
	}

	ua, err := sess.getAnalytics(ctx, a.store, addr)
	if err != nil {
		return err
	}
	if ua == nil || ua.TotalTransactions == 0 {
		return fmt.Errorf("cannot invert analytics for %s: no applied transactions", addr.Hex())
	}

	if ua.TotalTransactions == 1 {
		sess.analytics[addr] = nil
		return sess.batch.DeleteUserAnalytics(ctx, addr)
	}

	updated := &storage.UserAnalytics{
		Address:           addr,
		TotalTransactions: ua.TotalTransactions - 1,
		TotalVolume:       new(big.Int).Set(ua.TotalVolume),
		FirstTransaction:  ua.FirstTransaction,
		LastTransaction:   ua.LastTransaction,
	}
	if volume != nil {
		updated.TotalVolume.Sub(updated.TotalVolume, volume)
	}
	return sess.putAnalytics(ctx, updated)
}

func (a *Applier) invertProposalCreated(ctx context.Context, sess *session, e *events.ProposalCreatedEvent) error {
	if !e.ProposalID.IsUint64() {
		return fmt.Errorf("proposal id %s out of range", e.ProposalID)
	}
	id := e.ProposalID.Uint64()

	sess.proposals[id] = nil
	return sess.batch.DeleteProposal(ctx, id)
}

func (a *Applier) invertVoteCast(ctx context.Context, sess *session, e *events.VoteCastEvent) error {
	if !e.ProposalID.IsUint64() {
		return fmt.Errorf("proposal id %s out of range", e.ProposalID)
	}
	id := e.ProposalID.Uint64()

	vote, err := sess.getVote(ctx, a.store, id, e.Voter)
	if err != nil {
		return err
	}
	if vote == nil {
		return fmt.Errorf("cannot invert missing vote %d/%s", id, e.Voter.Hex())
	}

	sess.votes[voteCacheKey(id, e.Voter)] = nil
	if err := sess.batch.DeleteVote(ctx, id, e.Voter); err != nil {
		return err
	}

	p, err := sess.getProposal(ctx, a.store, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("cannot invert vote on missing proposal %d", id)
	}

	updated := &storage.Proposal{}
	*updated = *p
	updated.VotesFor = new(big.Int).Set(p.VotesFor)
	updated.VotesAgainst = new(big.Int).Set(p.VotesAgainst)
	if e.Support {
		updated.VotesFor.Sub(updated.VotesFor, e.Weight)
	} else {
		updated.VotesAgainst.Sub(updated.VotesAgainst, e.Weight)
	}
	updated.TotalVotes = new(big.Int).Add(updated.VotesFor, updated.VotesAgainst)

	return sess.putProposal(ctx, updated)
}
