package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/storage"
)

// Engine states
const (
	StateWatching    = "watching"
	StateRollingBack = "rolling_back"
	StateReplaying   = "replaying"
)

var (
	// ErrReorgTooDeep is returned when the divergence point lies deeper
	// than MaxReorgDepth below the cursor. The rollback boundary cannot
	// be determined safely; the engine halts.
	ErrReorgTooDeep = errors.New("reorganization beyond maximum depth")

	// ErrFeedBehindCursor is returned when the feed head sits further
	// below the stored cursor than any plausible reorg. Indicates the
	// feed was switched or reset; surfaced as a configuration error.
	ErrFeedBehindCursor = errors.New("feed is behind the stored cursor")
)

// ReorgHandler detects chain reorganizations against recorded block
// hashes and reverts derived state to the common ancestor
type ReorgHandler struct {
	store   storage.Storage
	feed    Feed
	applier *Applier
	config  *Config
	logger  *zap.Logger
	metrics *Metrics
}

// NewReorgHandler creates a reorg handler
func NewReorgHandler(store storage.Storage, feed Feed, applier *Applier, config *Config, logger *zap.Logger, metrics *Metrics) *ReorgHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReorgHandler{
		store:   store,
		feed:    feed,
		applier: applier,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Check compares the feed's hash at the cursor height against the hash
// recorded when that block was applied. It returns the common ancestor
// height and whether a reorg was detected.
func (r *ReorgHandler) Check(ctx context.Context, cursor *storage.Cursor) (uint64, bool, error) {
	feedHash, err := r.feed.BlockHash(ctx, cursor.BlockNumber)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get feed hash at %d: %w", cursor.BlockNumber, err)
	}
	if feedHash == cursor.BlockHash {
		return cursor.BlockNumber, false, nil
	}

	ancestor, err := r.findCommonAncestor(ctx, cursor.BlockNumber)
	if err != nil {
		return 0, false, err
	}
	return ancestor, true, nil
}

// findCommonAncestor walks back from the divergent height comparing
// recorded hashes against the feed. Heights without a recorded hash had
// nothing applied and are skipped.
func (r *ReorgHandler) findCommonAncestor(ctx context.Context, from uint64) (uint64, error) {
	floor := uint64(0)
	if from > r.config.MaxReorgDepth {
		floor = from - r.config.MaxReorgDepth
	}

	for h := from; h > floor; h-- {
		recorded, err := r.store.GetBlockHash(ctx, h-1)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("failed to read recorded hash at %d: %w", h-1, err)
		}

		feedHash, err := r.feed.BlockHash(ctx, h-1)
		if err != nil {
			return 0, fmt.Errorf("failed to get feed hash at %d: %w", h-1, err)
		}
		if feedHash == recorded {
			return h - 1, nil
		}
	}

	// No recorded block within the search window matched. If nothing at
	// all was recorded below the window the ancestor is simply the
	// window floor; a recorded mismatch at the floor means the true
	// divergence lies deeper.
	if _, err := r.store.GetBlockHash(ctx, floor); err == nil {
		return 0, fmt.Errorf("%w: no common ancestor within %d blocks of %d",
			ErrReorgTooDeep, r.config.MaxReorgDepth, from)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	return floor, nil
}

// Rollback reverts every applied event above the common ancestor in
// strict reverse (blockNumber, logIndex) order. The inversions, cursor
// reset and watermark clear commit in one atomic batch; a crash before
// commit leaves the watermark so the rollback is redone from intact
// state on restart.
func (r *ReorgHandler) Rollback(ctx context.Context, fromBlock, ancestor uint64) error {
	r.metrics.SetState(StateRollingBack)
	defer r.metrics.SetState(StateWatching)

	watermark := &storage.RollbackWatermark{
		FromBlock: fromBlock,
		ToBlock:   ancestor,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.SetRollbackWatermark(ctx, watermark); err != nil {
		return fmt.Errorf("failed to persist rollback watermark: %w", err)
	}

	applied, err := r.store.GetAppliedEventsInRange(ctx, ancestor+1, fromBlock)
	if err != nil {
		return fmt.Errorf("failed to load applied events for rollback: %w", err)
	}

	batch := r.store.NewBatch()
	defer batch.Close()
	sess := r.applier.newSession(batch)

	for i := len(applied) - 1; i >= 0; i-- {
		if err := r.applier.Invert(ctx, sess, applied[i]); err != nil {
			return fmt.Errorf("failed to invert event %s[%d]: %w",
				applied[i].TxHash.Hex(), applied[i].LogIndex, err)
		}
	}

	for h := ancestor + 1; h <= fromBlock; h++ {
		if err := batch.DeleteBlockHash(ctx, h); err != nil {
			return err
		}
	}

	// The new canonical hash at the ancestor anchors the replay
	ancestorHash, err := r.feed.BlockHash(ctx, ancestor)
	if err != nil {
		return fmt.Errorf("failed to get ancestor hash: %w", err)
	}
	if err := batch.SetCursor(ctx, &storage.Cursor{BlockNumber: ancestor, BlockHash: ancestorHash}); err != nil {
		return err
	}
	if err := batch.ClearRollbackWatermark(ctx); err != nil {
		return err
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	if r.metrics != nil {
		r.metrics.ReorgsTotal.Inc()
		r.metrics.ReorgDepth.Observe(float64(fromBlock - ancestor))
		r.metrics.RolledBackEventsTotal.Add(float64(len(applied)))
	}

	r.logger.Info("rolled back reorganized blocks",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("ancestor", ancestor),
		zap.Int("events_inverted", len(applied)))

	return nil
}

// ResumePending redoes a rollback that was interrupted before its atomic
// commit. Called once at startup.
func (r *ReorgHandler) ResumePending(ctx context.Context) error {
	watermark, err := r.store.GetRollbackWatermark(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read rollback watermark: %w", err)
	}

	r.logger.Warn("resuming interrupted rollback",
		zap.Uint64("from_block", watermark.FromBlock),
		zap.Uint64("to_block", watermark.ToBlock))

	return r.Rollback(ctx, watermark.FromBlock, watermark.ToBlock)
}
