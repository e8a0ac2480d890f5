package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/storage"
)

// parseLimit reads the limit query parameter, applying the default and
// the configured page size cap
func (s *Server) parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > s.config.MaxPageSize {
		limit = s.config.MaxPageSize
	}
	return limit, nil
}

// parseOffset reads the offset query parameter
func parseOffset(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("offset")
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, errors.New("offset must be a non-negative integer")
	}
	return offset, nil
}

// parseTimeParam reads a time query parameter, accepting RFC3339 or
// unix seconds
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs >= 0 {
		return time.Unix(secs, 0), nil
	}
	return time.Time{}, errors.New(name + " must be RFC3339 or unix seconds")
}

// parseAddressParam reads and validates an address path parameter
func parseAddressParam(r *http.Request, name string) (common.Address, error) {
	raw := chi.URLParam(r, name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(raw), nil
}

// handleTransactions handles GET /api/transactions
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	filter := &storage.TransactionFilter{}

	switch typ := r.URL.Query().Get("type"); typ {
	case "":
	case string(storage.TxTypeTransfer), string(storage.TxTypeMint), string(storage.TxTypeBurn):
		filter.Type = storage.TransactionType(typ)
	default:
		writeError(w, http.StatusBadRequest, "unknown transaction type "+typ)
		return
	}

	if from := r.URL.Query().Get("from"); from != "" {
		if !common.IsHexAddress(from) {
			writeError(w, http.StatusBadRequest, "invalid from address")
			return
		}
		addr := common.HexToAddress(from)
		filter.From = &addr
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if !common.IsHexAddress(to) {
			writeError(w, http.StatusBadRequest, "invalid to address")
			return
		}
		addr := common.HexToAddress(to)
		filter.To = &addr
	}

	var err error
	if filter.StartTime, err = parseTimeParam(r, "startTime"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.EndTime, err = parseTimeParam(r, "endTime"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = s.parseLimit(r, 50); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = parseOffset(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := s.storage.GetTransactions(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to get transactions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// handleTransaction handles GET /api/transactions/{hash}
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	hash := common.HexToHash(chi.URLParam(r, "hash"))

	logIndex := 0
	if raw := r.URL.Query().Get("logIndex"); raw != "" {
		var err error
		if logIndex, err = strconv.Atoi(raw); err != nil || logIndex < 0 {
			writeError(w, http.StatusBadRequest, "logIndex must be a non-negative integer")
			return
		}
	}

	tx, err := s.storage.GetTransaction(r.Context(), hash, uint(logIndex))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		s.logger.Error("failed to get transaction",
			zap.String("hash", hash.Hex()),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get transaction")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// handleAddressTransactions handles GET /api/address/{address}/transactions
func (s *Server) handleAddressTransactions(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddressParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := s.parseLimit(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := s.storage.GetTransactionsByAddress(r.Context(), addr, limit, offset)
	if err != nil {
		s.logger.Error("failed to get transactions by address",
			zap.String("address", addr.Hex()),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":      addr,
		"transactions": txs,
		"count":        len(txs),
	})
}

// handleAnalytics handles GET /api/analytics/{address}
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddressParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	analytics, err := s.storage.GetUserAnalytics(r.Context(), addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// An address the indexer has never seen has empty analytics
			writeJSON(w, http.StatusOK, storage.NewUserAnalytics(addr))
			return
		}
		s.logger.Error("failed to get analytics",
			zap.String("address", addr.Hex()),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get analytics")
		return
	}

	writeJSON(w, http.StatusOK, analytics)
}

// handleTokenMetrics handles GET /api/metrics
func (s *Server) handleTokenMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.storage.GetLatestSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no metrics snapshot yet")
			return
		}
		s.logger.Error("failed to get latest snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// handleTokenMetricsHistory handles GET /api/metrics/history?timeframe=
func (s *Server) handleTokenMetricsHistory(w http.ResponseWriter, r *http.Request) {
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "24h"
	}

	window, err := parseHistoryTimeframe(timeframe)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := s.parseLimit(r, 288)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	snapshots, err := s.storage.GetSnapshots(r.Context(), now.Add(-window), now, limit)
	if err != nil {
		s.logger.Error("failed to get snapshot history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get metrics history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timeframe": timeframe,
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// parseHistoryTimeframe converts a timeframe string to a duration
func parseHistoryTimeframe(tf string) (time.Duration, error) {
	switch tf {
	case "1h":
		return time.Hour, nil
	case "24h":
		return 24 * time.Hour, nil
	case "7d":
		return 7 * 24 * time.Hour, nil
	case "30d":
		return 30 * 24 * time.Hour, nil
	}
	if d, err := time.ParseDuration(tf); err == nil && d > 0 {
		return d, nil
	}
	return 0, errors.New("timeframe must be one of 1h, 24h, 7d, 30d or a Go duration")
}

// handleProposals handles GET /api/proposals?status=
func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	var status storage.ProposalStatus
	switch raw := r.URL.Query().Get("status"); raw {
	case "":
	case string(storage.ProposalStatusActive), string(storage.ProposalStatusPassed),
		string(storage.ProposalStatusFailed), string(storage.ProposalStatusExecuted):
		status = storage.ProposalStatus(raw)
	default:
		writeError(w, http.StatusBadRequest, "unknown proposal status")
		return
	}

	limit, err := s.parseLimit(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	proposals, err := s.storage.GetProposals(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("failed to get proposals", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get proposals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposals": proposals,
		"count":     len(proposals),
	})
}

// handleProposal handles GET /api/proposals/{id}
func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	proposal, err := s.storage.GetProposal(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "proposal not found")
			return
		}
		s.logger.Error("failed to get proposal",
			zap.Uint64("id", id),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get proposal")
		return
	}

	writeJSON(w, http.StatusOK, proposal)
}

// handleProposalVotes handles GET /api/proposals/{id}/votes
func (s *Server) handleProposalVotes(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	votes, err := s.storage.GetVotes(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get votes",
			zap.Uint64("proposal_id", id),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get votes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposalId": id,
		"votes":      votes,
		"count":      len(votes),
	})
}

// handleTopHolders handles GET /api/holders/top?limit=
func (s *Server) handleTopHolders(w http.ResponseWriter, r *http.Request) {
	limit, err := s.parseLimit(r, 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	holders, err := s.storage.GetTopHolders(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to get top holders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get holders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"holders": holders,
		"count":   len(holders),
	})
}

// handleSupply handles GET /api/supply
func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	totals, err := s.storage.GetSupplyTotals(r.Context())
	if err != nil {
		s.logger.Error("failed to get supply totals", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get supply")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"minted":      totals.Minted,
		"burned":      totals.Burned,
		"totalSupply": totals.TotalSupply(),
	})
}

// StatusResponse represents the status endpoint response
type StatusResponse struct {
	State        string     `json:"state"`
	CursorHeight uint64     `json:"cursorHeight"`
	FeedHeight   uint64     `json:"feedHeight"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status != nil {
		st := s.status.Status()
		resp := StatusResponse{
			State:        st.State,
			CursorHeight: st.CursorHeight,
			FeedHeight:   st.FeedHeight,
		}
		if !st.StartedAt.IsZero() {
			startedAt := st.StartedAt
			resp.StartedAt = &startedAt
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// No engine attached: report the cursor from the store
	var height uint64
	cursor, err := s.storage.GetCursor(r.Context())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("failed to get cursor", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get status")
		return
	}
	if cursor != nil {
		height = cursor.BlockNumber
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		State:        "unknown",
		CursorHeight: height,
	})
}
