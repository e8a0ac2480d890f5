package storage

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Derived records are stored as JSON. The records are small aggregates of
// addresses, big integers and timestamps; JSON keeps them inspectable with
// off-the-shelf tooling and is the same shape the API serves.

// EncodeTransaction encodes a derived transaction record
func EncodeTransaction(tx *Transaction) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction cannot be nil")
	}
	return json.Marshal(tx)
}

// DecodeTransaction decodes a derived transaction record
func DecodeTransaction(data []byte) (*Transaction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return &tx, nil
}

// EncodeUserAnalytics encodes a per-address analytics record
func EncodeUserAnalytics(ua *UserAnalytics) ([]byte, error) {
	if ua == nil {
		return nil, fmt.Errorf("analytics cannot be nil")
	}
	return json.Marshal(ua)
}

// DecodeUserAnalytics decodes a per-address analytics record
func DecodeUserAnalytics(data []byte) (*UserAnalytics, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var ua UserAnalytics
	if err := json.Unmarshal(data, &ua); err != nil {
		return nil, fmt.Errorf("failed to decode analytics: %w", err)
	}
	if ua.TotalVolume == nil {
		ua.TotalVolume = new(big.Int)
	}
	return &ua, nil
}

// EncodeProposal encodes a governance proposal
func EncodeProposal(p *Proposal) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("proposal cannot be nil")
	}
	return json.Marshal(p)
}

// DecodeProposal decodes a governance proposal
func DecodeProposal(data []byte) (*Proposal, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var p Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode proposal: %w", err)
	}
	if p.VotesFor == nil {
		p.VotesFor = new(big.Int)
	}
	if p.VotesAgainst == nil {
		p.VotesAgainst = new(big.Int)
	}
	if p.TotalVotes == nil {
		p.TotalVotes = new(big.Int)
	}
	return &p, nil
}

// EncodeVote encodes a recorded vote
func EncodeVote(v *Vote) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("vote cannot be nil")
	}
	return json.Marshal(v)
}

// DecodeVote decodes a recorded vote
func DecodeVote(data []byte) (*Vote, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var v Vote
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode vote: %w", err)
	}
	return &v, nil
}

// EncodeSnapshot encodes a token metrics snapshot
func EncodeSnapshot(s *TokenMetricsSnapshot) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot cannot be nil")
	}
	return json.Marshal(s)
}

// DecodeSnapshot decodes a token metrics snapshot
func DecodeSnapshot(data []byte) (*TokenMetricsSnapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var s TokenMetricsSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

// EncodeAppliedEvent encodes an applied-event record
func EncodeAppliedEvent(ae *AppliedEvent) ([]byte, error) {
	if ae == nil {
		return nil, fmt.Errorf("applied event cannot be nil")
	}
	return json.Marshal(ae)
}

// DecodeAppliedEvent decodes an applied-event record
func DecodeAppliedEvent(data []byte) (*AppliedEvent, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var ae AppliedEvent
	if err := json.Unmarshal(data, &ae); err != nil {
		return nil, fmt.Errorf("failed to decode applied event: %w", err)
	}
	return &ae, nil
}

// EncodeCursor encodes the applied-block cursor
func EncodeCursor(c *Cursor) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cursor cannot be nil")
	}
	return json.Marshal(c)
}

// DecodeCursor decodes the applied-block cursor
func DecodeCursor(data []byte) (*Cursor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}
	return &c, nil
}

// EncodeRollbackWatermark encodes the rollback watermark
func EncodeRollbackWatermark(w *RollbackWatermark) ([]byte, error) {
	if w == nil {
		return nil, fmt.Errorf("watermark cannot be nil")
	}
	return json.Marshal(w)
}

// DecodeRollbackWatermark decodes the rollback watermark
func DecodeRollbackWatermark(data []byte) (*RollbackWatermark, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var w RollbackWatermark
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode watermark: %w", err)
	}
	return &w, nil
}

// EncodeSupplyTotals encodes cumulative supply totals
func EncodeSupplyTotals(s *SupplyTotals) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("supply totals cannot be nil")
	}
	return json.Marshal(s)
}

// DecodeSupplyTotals decodes cumulative supply totals
func DecodeSupplyTotals(data []byte) (*SupplyTotals, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	var s SupplyTotals
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode supply totals: %w", err)
	}
	if s.Minted == nil {
		s.Minted = new(big.Int)
	}
	if s.Burned == nil {
		s.Burned = new(big.Int)
	}
	return &s, nil
}

// EncodeBigInt encodes a big integer for index values
func EncodeBigInt(n *big.Int) []byte {
	if n == nil {
		return []byte{}
	}
	return n.Bytes()
}

// DecodeBigInt decodes a big integer from index value bytes.
// Empty input decodes to zero.
func DecodeBigInt(data []byte) *big.Int {
	return new(big.Int).SetBytes(data)
}
