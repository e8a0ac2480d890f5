package graphql

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/tokenlytics/engine-go/storage"
)

// bigString renders a big.Int as a decimal string, treating nil as zero
func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// timeString renders a timestamp as RFC3339, or nil for the zero time
func timeString(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func transactionToMap(tx *storage.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"hash":        tx.Hash.Hex(),
		"logIndex":    int(tx.LogIndex),
		"from":        strings.ToLower(tx.From.Hex()),
		"to":          strings.ToLower(tx.To.Hex()),
		"amount":      bigString(tx.Amount),
		"fee":         bigString(tx.Fee),
		"type":        string(tx.Type),
		"status":      string(tx.Status),
		"blockNumber": fmt.Sprintf("%d", tx.BlockNumber),
		"timestamp":   tx.Timestamp.UTC().Format(time.RFC3339),
	}
}

func analyticsToMap(a *storage.UserAnalytics) map[string]interface{} {
	return map[string]interface{}{
		"address":           strings.ToLower(a.Address.Hex()),
		"totalTransactions": int(a.TotalTransactions),
		"totalVolume":       bigString(a.TotalVolume),
		"firstTransaction":  timeString(a.FirstTransaction),
		"lastTransaction":   timeString(a.LastTransaction),
	}
}

func proposalToMap(p *storage.Proposal) map[string]interface{} {
	return map[string]interface{}{
		"id":           fmt.Sprintf("%d", p.ID),
		"title":        p.Title,
		"description":  p.Description,
		"proposer":     strings.ToLower(p.Proposer.Hex()),
		"status":       string(p.Status),
		"startTime":    timeString(p.StartTime),
		"endTime":      timeString(p.EndTime),
		"votesFor":     bigString(p.VotesFor),
		"votesAgainst": bigString(p.VotesAgainst),
		"totalVotes":   bigString(p.TotalVotes),
		"blockNumber":  fmt.Sprintf("%d", p.BlockNumber),
	}
}

func voteToMap(v *storage.Vote) map[string]interface{} {
	return map[string]interface{}{
		"proposalId":  fmt.Sprintf("%d", v.ProposalID),
		"voter":       strings.ToLower(v.Voter.Hex()),
		"support":     v.Support,
		"weight":      bigString(v.Weight),
		"blockNumber": fmt.Sprintf("%d", v.BlockNumber),
		"timestamp":   v.Timestamp.UTC().Format(time.RFC3339),
	}
}

func snapshotToMap(s *storage.TokenMetricsSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"totalSupply":       bigString(s.TotalSupply),
		"circulatingSupply": bigString(s.CirculatingSupply),
		"burnedTokens":      bigString(s.BurnedTokens),
		"holders":           int(s.Holders),
		"transfers24h":      int(s.Transfers24h),
		"volume24h":         bigString(s.Volume24h),
		"timestamp":         s.Timestamp.UTC().Format(time.RFC3339),
	}
}

func holderToMap(h *storage.Holder) map[string]interface{} {
	return map[string]interface{}{
		"address": strings.ToLower(h.Address.Hex()),
		"balance": bigString(h.Balance),
	}
}
