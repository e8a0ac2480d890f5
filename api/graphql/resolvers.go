package graphql

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/engine"
	"github.com/tokenlytics/engine-go/storage"
)

// resolveTransaction resolves a derived transaction by identity
func (s *Schema) resolveTransaction(p graphql.ResolveParams) (interface{}, error) {
	hashStr, ok := p.Args["hash"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid transaction hash")
	}
	logIndex, _ := p.Args["logIndex"].(int)
	if logIndex < 0 {
		return nil, fmt.Errorf("invalid log index")
	}

	tx, err := s.storage.GetTransaction(p.Context, common.HexToHash(hashStr), uint(logIndex))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to get transaction",
			zap.String("hash", hashStr),
			zap.Error(err))
		return nil, err
	}

	return transactionToMap(tx), nil
}

// resolveTransactions resolves transactions with filtering
func (s *Schema) resolveTransactions(p graphql.ResolveParams) (interface{}, error) {
	filter := &storage.TransactionFilter{}

	if v, ok := p.Args["type"].(string); ok {
		filter.Type = storage.TransactionType(v)
	}
	if v, ok := p.Args["from"].(string); ok {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("invalid from address %q", v)
		}
		addr := common.HexToAddress(v)
		filter.From = &addr
	}
	if v, ok := p.Args["to"].(string); ok {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("invalid to address %q", v)
		}
		addr := common.HexToAddress(v)
		filter.To = &addr
	}
	if v, ok := p.Args["startTime"].(string); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid startTime: %w", err)
		}
		filter.StartTime = t
	}
	if v, ok := p.Args["endTime"].(string); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid endTime: %w", err)
		}
		filter.EndTime = t
	}
	filter.Limit, _ = p.Args["limit"].(int)
	filter.Offset, _ = p.Args["offset"].(int)

	txs, err := s.storage.GetTransactions(p.Context, filter)
	if err != nil {
		s.logger.Error("failed to get transactions", zap.Error(err))
		return nil, err
	}

	result := make([]map[string]interface{}, len(txs))
	for i, tx := range txs {
		result[i] = transactionToMap(tx)
	}
	return result, nil
}

// resolveTransactionsByAddress resolves transactions touching an address
func (s *Schema) resolveTransactionsByAddress(p graphql.ResolveParams) (interface{}, error) {
	addrStr, ok := p.Args["address"].(string)
	if !ok || !common.IsHexAddress(addrStr) {
		return nil, fmt.Errorf("invalid address")
	}
	limit, _ := p.Args["limit"].(int)
	offset, _ := p.Args["offset"].(int)

	txs, err := s.storage.GetTransactionsByAddress(p.Context, common.HexToAddress(addrStr), limit, offset)
	if err != nil {
		s.logger.Error("failed to get transactions by address",
			zap.String("address", addrStr),
			zap.Error(err))
		return nil, err
	}

	result := make([]map[string]interface{}, len(txs))
	for i, tx := range txs {
		result[i] = transactionToMap(tx)
	}
	return result, nil
}

// resolveAnalytics resolves the per-address activity aggregate
func (s *Schema) resolveAnalytics(p graphql.ResolveParams) (interface{}, error) {
	addrStr, ok := p.Args["address"].(string)
	if !ok || !common.IsHexAddress(addrStr) {
		return nil, fmt.Errorf("invalid address")
	}

	analytics, err := s.storage.GetUserAnalytics(p.Context, common.HexToAddress(addrStr))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to get analytics",
			zap.String("address", addrStr),
			zap.Error(err))
		return nil, err
	}

	return analyticsToMap(analytics), nil
}

// resolveProposal resolves a governance proposal by id
func (s *Schema) resolveProposal(p graphql.ResolveParams) (interface{}, error) {
	idStr, ok := p.Args["id"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid proposal id")
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid proposal id format: %w", err)
	}

	proposal, err := s.storage.GetProposal(p.Context, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to get proposal",
			zap.Uint64("id", id),
			zap.Error(err))
		return nil, err
	}

	return proposalToMap(proposal), nil
}

// resolveProposals resolves proposals with optional status filtering
func (s *Schema) resolveProposals(p graphql.ResolveParams) (interface{}, error) {
	var status storage.ProposalStatus
	if v, ok := p.Args["status"].(string); ok {
		status = storage.ProposalStatus(v)
	}
	limit, _ := p.Args["limit"].(int)
	offset, _ := p.Args["offset"].(int)

	proposals, err := s.storage.GetProposals(p.Context, status, limit, offset)
	if err != nil {
		s.logger.Error("failed to get proposals", zap.Error(err))
		return nil, err
	}

	result := make([]map[string]interface{}, len(proposals))
	for i, proposal := range proposals {
		result[i] = proposalToMap(proposal)
	}
	return result, nil
}

// resolveVotes resolves all votes recorded for a proposal
func (s *Schema) resolveVotes(p graphql.ResolveParams) (interface{}, error) {
	idStr, ok := p.Args["proposalId"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid proposal id")
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid proposal id format: %w", err)
	}

	votes, err := s.storage.GetVotes(p.Context, id)
	if err != nil {
		s.logger.Error("failed to get votes",
			zap.Uint64("proposal_id", id),
			zap.Error(err))
		return nil, err
	}

	result := make([]map[string]interface{}, len(votes))
	for i, vote := range votes {
		result[i] = voteToMap(vote)
	}
	return result, nil
}

// resolveMetrics resolves the latest token metrics snapshot
func (s *Schema) resolveMetrics(p graphql.ResolveParams) (interface{}, error) {
	snapshot, err := s.storage.GetLatestSnapshot(p.Context)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to get latest snapshot", zap.Error(err))
		return nil, err
	}

	return snapshotToMap(snapshot), nil
}

// resolveMetricsHistory resolves snapshots within a timeframe
func (s *Schema) resolveMetricsHistory(p graphql.ResolveParams) (interface{}, error) {
	timeframe, _ := p.Args["timeframe"].(string)
	limit, _ := p.Args["limit"].(int)

	now := time.Now()
	snapshots, err := s.storage.GetSnapshots(p.Context, now.Add(-parseTimeframe(timeframe)), now, limit)
	if err != nil {
		s.logger.Error("failed to get snapshot history", zap.Error(err))
		return nil, err
	}

	result := make([]map[string]interface{}, len(snapshots))
	for i, snapshot := range snapshots {
		result[i] = snapshotToMap(snapshot)
	}
	return result, nil
}

// resolveTopHolders resolves the highest balances
func (s *Schema) resolveTopHolders(p graphql.ResolveParams) (interface{}, error) {
	limit, _ := p.Args["limit"].(int)

	holders, err := s.storage.GetTopHolders(p.Context, limit)
	if err != nil {
		s.logger.Error("failed to get top holders", zap.Error(err))
		return nil, err
	}

	result := make([]map[string]interface{}, len(holders))
	for i, holder := range holders {
		result[i] = holderToMap(holder)
	}
	return result, nil
}

// resolveStatus resolves the engine pipeline status
func (s *Schema) resolveStatus(p graphql.ResolveParams) (interface{}, error) {
	if s.status != nil {
		if st := s.status(); st != nil {
			return map[string]interface{}{
				"state":        st.State,
				"cursorHeight": fmt.Sprintf("%d", st.CursorHeight),
				"feedHeight":   fmt.Sprintf("%d", st.FeedHeight),
				"startedAt":    st.StartedAt.UTC().Format(time.RFC3339),
			}, nil
		}
	}

	// No engine attached: report the cursor from the store
	var height uint64
	cursor, err := s.storage.GetCursor(p.Context)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if cursor != nil {
		height = cursor.BlockNumber
	}

	return map[string]interface{}{
		"state":        engine.StateWatching,
		"cursorHeight": fmt.Sprintf("%d", height),
		"feedHeight":   "0",
		"startedAt":    time.Time{}.UTC().Format(time.RFC3339),
	}, nil
}
