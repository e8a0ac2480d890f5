package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/storage"
)

// ApplyResult is the outcome of applying one decoded event
type ApplyResult int

const (
	// Applied means derived state was mutated
	Applied ApplyResult = iota

	// AlreadyApplied means the event's identity was seen before; no
	// side effects
	AlreadyApplied

	// Rejected means the event was refused by a domain rule (duplicate
	// vote, vote on unknown proposal); no side effects. Rejection is
	// deterministic given prior state, so no applied-event record is
	// written and redelivery rejects again.
	Rejected
)

var zeroAddress = common.Address{}

// Applier applies decoded events to derived state at most once per
// (txHash, logIndex) identity
type Applier struct {
	store  storage.Storage
	feed   Feed
	config *Config
	logger *zap.Logger
}

// NewApplier creates an applier
func NewApplier(store storage.Storage, feed Feed, config *Config, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		store:  store,
		feed:   feed,
		config: config,
		logger: logger,
	}
}

// session buffers one block's mutations. Reads hit the pending buffer
// before the committed store so that two events in the same batch see
// each other's effects; everything lands in one atomic batch.
type session struct {
	batch     storage.Batch
	applied   map[eventIdentity]bool
	analytics map[common.Address]*storage.UserAnalytics
	balances  map[common.Address]*big.Int
	proposals map[uint64]*storage.Proposal
	votes     map[string]*storage.Vote
	supply    *storage.SupplyTotals
}

// eventIdentity keys the session's applied set; the committed store is
// checked by (txHash, logIndex) as well
type eventIdentity struct {
	txHash   common.Hash
	logIndex uint
}

// newSession starts an apply session on top of the given batch
func (a *Applier) newSession(batch storage.Batch) *session {
	return &session{
		batch:     batch,
		applied:   make(map[eventIdentity]bool),
		analytics: make(map[common.Address]*storage.UserAnalytics),
		balances:  make(map[common.Address]*big.Int),
		proposals: make(map[uint64]*storage.Proposal),
		votes:     make(map[string]*storage.Vote),
	}
}

func voteCacheKey(proposalID uint64, voter common.Address) string {
	return fmt.Sprintf("%d/%s", proposalID, voter.Hex())
}

func (s *session) getAnalytics(ctx context.Context, store storage.Reader, addr common.Address) (*storage.UserAnalytics, error) {
	if ua, ok := s.analytics[addr]; ok {
		return ua, nil
	}
	ua, err := store.GetUserAnalytics(ctx, addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ua, nil
}

func (s *session) putAnalytics(ctx context.Context, ua *storage.UserAnalytics) error {
	s.analytics[ua.Address] = ua
	return s.batch.SetUserAnalytics(ctx, ua)
}

func (s *session) getBalance(ctx context.Context, store storage.Reader, addr common.Address) (*big.Int, error) {
	if b, ok := s.balances[addr]; ok {
		return b, nil
	}
	return store.GetBalance(ctx, addr)
}

func (s *session) putBalance(ctx context.Context, addr common.Address, balance *big.Int) error {
	s.balances[addr] = balance
	return s.batch.SetBalance(ctx, addr, balance)
}

func (s *session) getProposal(ctx context.Context, store storage.Reader, id uint64) (*storage.Proposal, error) {
	if p, ok := s.proposals[id]; ok {
		return p, nil
	}
	p, err := store.GetProposal(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *session) putProposal(ctx context.Context, p *storage.Proposal) error {
	s.proposals[p.ID] = p
	return s.batch.SetProposal(ctx, p)
}

func (s *session) getVote(ctx context.Context, store storage.Reader, proposalID uint64, voter common.Address) (*storage.Vote, error) {
	if v, ok := s.votes[voteCacheKey(proposalID, voter)]; ok {
		return v, nil
	}
	v, err := store.GetVote(ctx, proposalID, voter)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (s *session) putVote(ctx context.Context, v *storage.Vote) error {
	s.votes[voteCacheKey(v.ProposalID, v.Voter)] = v
	return s.batch.SetVote(ctx, v)
}

func (s *session) getSupply(ctx context.Context, store storage.Reader) (*storage.SupplyTotals, error) {
	if s.supply != nil {
		return s.supply, nil
	}
	return store.GetSupplyTotals(ctx)
}

func (s *session) putSupply(ctx context.Context, totals *storage.SupplyTotals) error {
	s.supply = totals
	return s.batch.SetSupplyTotals(ctx, totals)
}

// Apply applies one decoded event within the session. The applied-event
// record is written alongside the mutations so both commit atomically.
func (a *Applier) Apply(ctx context.Context, sess *session, ev events.ChainEvent) (ApplyResult, error) {
	ref := ev.Ref()
	identity := eventIdentity{txHash: ref.TxHash, logIndex: ref.LogIndex}

	// The store only sees committed records; the session set covers
	// identities pending in the current batch
	if sess.applied[identity] {
		return AlreadyApplied, nil
	}
	seen, err := a.store.HasAppliedEvent(ctx, ref.TxHash, ref.LogIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to check applied event: %w", err)
	}
	if seen {
		return AlreadyApplied, nil
	}

	var result ApplyResult
	switch e := ev.(type) {
	case *events.TransferEvent:
		result, err = a.applyTransfer(ctx, sess, e)
	case *events.MintEvent:
		result, err = a.applyMint(ctx, sess, e)
	case *events.BurnEvent:
		result, err = a.applyBurn(ctx, sess, e)
	case *events.FeeCollectedEvent, *events.UserActivityEvent:
		// Recorded and published; no derived aggregates change
		result = Applied
	case *events.ProposalCreatedEvent:
		result, err = a.applyProposalCreated(ctx, sess, e)
	case *events.VoteCastEvent:
		result, err = a.applyVoteCast(ctx, sess, e)
	default:
		return 0, fmt.Errorf("unhandled event kind %s", ev.Kind())
	}
	if err != nil {
		return 0, err
	}
	if result == Rejected {
		return Rejected, nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("failed to encode event payload: %w", err)
	}
	record := &storage.AppliedEvent{
		TxHash:      ref.TxHash,
		LogIndex:    ref.LogIndex,
		BlockNumber: ref.BlockNumber,
		BlockHash:   ref.BlockHash,
		Kind:        ev.Kind(),
		AppliedAt:   time.Now().UTC(),
		Payload:     payload,
	}
	if err := sess.batch.SetAppliedEvent(ctx, record); err != nil {
		return 0, fmt.Errorf("failed to record applied event: %w", err)
	}
	sess.applied[identity] = true

	return result, nil
}

func (a *Applier) applyTransfer(ctx context.Context, sess *session, e *events.TransferEvent) (ApplyResult, error) {
	tx := &storage.Transaction{
		Hash:        e.TxHash,
		LogIndex:    e.LogIndex,
		From:        e.From,
		To:          e.To,
		Amount:      e.Value,
		Type:        storage.TxTypeTransfer,
		Status:      storage.TxStatusConfirmed,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.BlockTime,
	}
	if err := sess.batch.SetTransaction(ctx, tx); err != nil {
		return 0, err
	}

	if err := a.creditAnalytics(ctx, sess, e.From, e.Value, e.BlockTime); err != nil {
		return 0, err
	}
	if err := a.creditAnalytics(ctx, sess, e.To, nil, e.BlockTime); err != nil {
		return 0, err
	}

	if err := a.moveBalance(ctx, sess, e.From, e.To, e.Value); err != nil {
		return 0, err
	}
	return Applied, nil
}

func (a *Applier) applyMint(ctx context.Context, sess *session, e *events.MintEvent) (ApplyResult, error) {
	tx := &storage.Transaction{
		Hash:        e.TxHash,
		LogIndex:    e.LogIndex,
		From:        zeroAddress,
		To:          e.To,
		Amount:      e.Amount,
		Type:        storage.TxTypeMint,
		Status:      storage.TxStatusConfirmed,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.BlockTime,
	}
	if err := sess.batch.SetTransaction(ctx, tx); err != nil {
		return 0, err
	}

	// Supply enters circulation; the recipient's volume is unchanged
	if err := a.creditAnalytics(ctx, sess, e.To, nil, e.BlockTime); err != nil {
		return 0, err
	}
	if err := a.moveBalance(ctx, sess, zeroAddress, e.To, e.Amount); err != nil {
		return 0, err
	}

	supply, err := sess.getSupply(ctx, a.store)
	if err != nil {
		return 0, err
	}
	supply = &storage.SupplyTotals{
		Minted: new(big.Int).Add(supply.Minted, e.Amount),
		Burned: supply.Burned,
	}
	if err := sess.putSupply(ctx, supply); err != nil {
		return 0, err
	}
	return Applied, nil
}

func (a *Applier) applyBurn(ctx context.Context, sess *session, e *events.BurnEvent) (ApplyResult, error) {
	tx := &storage.Transaction{
		Hash:        e.TxHash,
		LogIndex:    e.LogIndex,
		From:        e.From,
		To:          zeroAddress,
		Amount:      e.Amount,
		Type:        storage.TxTypeBurn,
		Status:      storage.TxStatusConfirmed,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.BlockTime,
	}
	if err := sess.batch.SetTransaction(ctx, tx); err != nil {
		return 0, err
	}

	if err := a.creditAnalytics(ctx, sess, e.From, e.Amount, e.BlockTime); err != nil {
		return 0, err
	}
	if err := a.moveBalance(ctx, sess, e.From, zeroAddress, e.Amount); err != nil {
		return 0, err
	}

	supply, err := sess.getSupply(ctx, a.store)
	if err != nil {
		return 0, err
	}
	supply = &storage.SupplyTotals{
		Minted: supply.Minted,
		Burned: new(big.Int).Add(supply.Burned, e.Amount),
	}
	if err := sess.putSupply(ctx, supply); err != nil {
		return 0, err
	}
	return Applied, nil
}

// creditAnalytics upserts the per-address aggregate: the transaction
// count always increments, volume only when a non-nil amount is given.
// The zero address is a sentinel, never a user.
func (a *Applier) creditAnalytics(ctx context.Context, sess *session, addr common.Address, volume *big.Int, at time.Time) error {
	if addr == zeroAddress {
		return nil
	}

	ua, err := sess.getAnalytics(ctx, a.store, addr)
	if err != nil {
		return err
	}
	if ua == nil {
		ua = &storage.UserAnalytics{
			Address:          addr,
			TotalVolume:      new(big.Int),
			FirstTransaction: at,
		}
	}

	ua = &storage.UserAnalytics{
		Address:           addr,
		TotalTransactions: ua.TotalTransactions + 1,
		TotalVolume:       new(big.Int).Set(ua.TotalVolume),
		FirstTransaction:  ua.FirstTransaction,
		LastTransaction:   at,
	}
	if volume != nil {
		ua.TotalVolume.Add(ua.TotalVolume, volume)
	}
	return sess.putAnalytics(ctx, ua)
}

// moveBalance shifts amount between materialized balances. The zero
// address side is skipped; supply totals account for it.
func (a *Applier) moveBalance(ctx context.Context, sess *session, from, to common.Address, amount *big.Int) error {
	if from != zeroAddress {
		balance, err := sess.getBalance(ctx, a.store, from)
		if err != nil {
			return err
		}
		if err := sess.putBalance(ctx, from, new(big.Int).Sub(balance, amount)); err != nil {
			return err
		}
	}
	if to != zeroAddress {
		balance, err := sess.getBalance(ctx, a.store, to)
		if err != nil {
			return err
		}
		if err := sess.putBalance(ctx, to, new(big.Int).Add(balance, amount)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) applyProposalCreated(ctx context.Context, sess *session, e *events.ProposalCreatedEvent) (ApplyResult, error) {
	if !e.ProposalID.IsUint64() {
		return 0, fmt.Errorf("proposal id %s out of range", e.ProposalID)
	}
	id := e.ProposalID.Uint64()

	p := &storage.Proposal{
		ID:           id,
		Title:        proposalTitle(e.Description),
		Description:  e.Description,
		Proposer:     e.Proposer,
		Status:       storage.ProposalStatusActive,
		VotesFor:     new(big.Int),
		VotesAgainst: new(big.Int),
		TotalVotes:   new(big.Int),
		BlockNumber:  e.BlockNumber,
	}

	// Proposal timing is not carried in the log; side-read it from the
	// governance contract. A failed side read keeps the proposal with
	// zero timing rather than losing the event.
	if a.config.GovernanceContract != zeroAddress {
		meta, err := a.feed.ProposalMetadata(ctx, a.config.GovernanceContract, e.ProposalID)
		if err != nil {
			a.logger.Warn("proposal metadata side read failed",
				zap.Uint64("proposal_id", id),
				zap.Error(err))
		} else {
			p.StartTime = meta.StartTime
			p.EndTime = meta.EndTime
			if meta.Executed {
				p.Status = storage.ProposalStatusExecuted
			}
		}
	}

	if err := sess.putProposal(ctx, p); err != nil {
		return 0, err
	}
	return Applied, nil
}

// proposalTitle derives the display title from the first line of the
// description
func proposalTitle(description string) string {
	for i := 0; i < len(description); i++ {
		if description[i] == '\n' {
			description = description[:i]
			break
		}
	}
	if description == "" {
		return "Untitled Proposal"
	}
	return description
}

func (a *Applier) applyVoteCast(ctx context.Context, sess *session, e *events.VoteCastEvent) (ApplyResult, error) {
	if !e.ProposalID.IsUint64() {
		return 0, fmt.Errorf("proposal id %s out of range", e.ProposalID)
	}
	id := e.ProposalID.Uint64()

	p, err := sess.getProposal(ctx, a.store, id)
	if err != nil {
		return 0, err
	}
	if p == nil {
		a.logger.Warn("vote on unknown proposal",
			zap.Uint64("proposal_id", id),
			zap.String("voter", e.Voter.Hex()))
		return Rejected, nil
	}

	// One vote per (proposal, voter); a second vote never re-counts
	prior, err := sess.getVote(ctx, a.store, id, e.Voter)
	if err != nil {
		return 0, err
	}
	if prior != nil {
		a.logger.Warn("duplicate vote rejected",
			zap.Uint64("proposal_id", id),
			zap.String("voter", e.Voter.Hex()))
		return Rejected, nil
	}

	vote := &storage.Vote{
		ProposalID:  id,
		Voter:       e.Voter,
		Support:     e.Support,
		Weight:      e.Weight,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.BlockTime,
	}
	if err := sess.putVote(ctx, vote); err != nil {
		return 0, err
	}

	updated := &storage.Proposal{}
	*updated = *p
	updated.VotesFor = new(big.Int).Set(p.VotesFor)
	updated.VotesAgainst = new(big.Int).Set(p.VotesAgainst)
	if e.Support {
		updated.VotesFor.Add(updated.VotesFor, e.Weight)
	} else {
		updated.VotesAgainst.Add(updated.VotesAgainst, e.Weight)
	}
	updated.TotalVotes = new(big.Int).Add(updated.VotesFor, updated.VotesAgainst)

	if err := sess.putProposal(ctx, updated); err != nil {
		return 0, err
	}
	return Applied, nil
}
