package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/abi"
	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/storage"
)

// Status is a point-in-time view of engine progress for the status API
type Status struct {
	State        string    `json:"state"`
	CursorHeight uint64    `json:"cursorHeight"`
	FeedHeight   uint64    `json:"feedHeight"`
	StartedAt    time.Time `json:"startedAt"`
}

// Engine drives the cursor -> decode -> apply pipeline and owns the
// reorg handler and snapshotter
type Engine struct {
	store       storage.Storage
	feed        Feed
	bus         *events.EventBus
	applier     *Applier
	reorg       *ReorgHandler
	snapshotter *Snapshotter
	config      *Config
	logger      *zap.Logger
	metrics     *Metrics

	mu     sync.RWMutex
	status Status
}

// NewEngine creates an engine. The configuration is defaulted and
// validated here.
func NewEngine(store storage.Storage, feed Feed, bus *events.EventBus, config *Config, logger *zap.Logger, metrics *Metrics) (*Engine, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	applier := NewApplier(store, feed, config, logger.Named("applier"))

	return &Engine{
		store:       store,
		feed:        feed,
		bus:         bus,
		applier:     applier,
		reorg:       NewReorgHandler(store, feed, applier, config, logger.Named("reorg"), metrics),
		snapshotter: NewSnapshotter(store, bus, config.SnapshotInterval, logger.Named("snapshotter"), metrics),
		config:      config,
		logger:      logger,
		metrics:     metrics,
		status:      Status{State: StateWatching},
	}, nil
}

// Snapshotter exposes the engine's snapshotter for standalone ticking
func (e *Engine) Snapshotter() *Snapshotter {
	return e.snapshotter
}

// Status returns the current engine status
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Engine) setState(state string) {
	e.mu.Lock()
	e.status.State = state
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.SetState(state)
	}
}

func (e *Engine) setHeights(cursor, feed uint64) {
	e.mu.Lock()
	if cursor > 0 {
		e.status.CursorHeight = cursor
	}
	if feed > 0 {
		e.status.FeedHeight = feed
	}
	e.mu.Unlock()
	if e.metrics != nil {
		if cursor > 0 {
			e.metrics.CursorHeight.Set(float64(cursor))
		}
		if feed > 0 {
			e.metrics.FeedHeight.Set(float64(feed))
		}
	}
}

// Run executes the indexing loop until the context is cancelled or a
// fatal error occurs. The snapshotter runs alongside it. Cancellation
// is honored between blocks, never mid-batch.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.status.StartedAt = time.Now().UTC()
	e.mu.Unlock()
	e.setState(StateWatching)

	if err := e.reorg.ResumePending(ctx); err != nil {
		return fmt.Errorf("failed to resume pending rollback: %w", err)
	}

	var wg sync.WaitGroup
	snapCtx, cancelSnap := context.WithCancel(ctx)
	defer cancelSnap()
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.snapshotter.Run(snapCtx)
	}()
	defer wg.Wait()

	e.logger.Info("engine started",
		zap.String("token_contract", e.config.TokenContract.Hex()),
		zap.Uint64("start_block", e.config.StartBlock))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return nil
		default:
		}

		advanced, err := e.step(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if !advanced {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(e.config.PollInterval):
			}
		}
	}
}

// step performs one unit of progress: a reorg check, then at most one
// batch of blocks. It reports whether the cursor advanced.
func (e *Engine) step(ctx context.Context) (bool, error) {
	var head uint64
	err := withRetry(ctx, e.config.MaxRetries, e.config.RetryDelay, func(ctx context.Context) error {
		var err error
		head, err = e.feed.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get feed head: %w", err)
	}
	e.setHeights(0, head)

	next := e.config.StartBlock
	cursor, err := e.store.GetCursor(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("failed to read cursor: %w", err)
	}

	if cursor != nil {
		if head+e.config.MaxReorgDepth < cursor.BlockNumber {
			return false, fmt.Errorf("%w: head %d, cursor %d", ErrFeedBehindCursor, head, cursor.BlockNumber)
		}

		if head >= cursor.BlockNumber {
			ancestor, reorged, err := e.reorg.Check(ctx, cursor)
			if err != nil {
				return false, err
			}
			if reorged {
				e.setState(StateRollingBack)
				if err := e.reorg.Rollback(ctx, cursor.BlockNumber, ancestor); err != nil {
					return false, err
				}
				e.setState(StateReplaying)
				// The replay is the normal pipeline resuming from the
				// reset cursor
				return true, nil
			}
		}
		next = cursor.BlockNumber + 1
	}

	if next > head {
		if e.Status().State == StateReplaying {
			e.setState(StateWatching)
		}
		return false, nil
	}

	to := next + e.config.BatchSize - 1
	if to > head {
		to = head
	}

	if err := e.processRange(ctx, next, to); err != nil {
		return false, err
	}
	if e.Status().State == StateReplaying && to >= head {
		e.setState(StateWatching)
	}
	return true, nil
}

// processRange fetches, decodes and applies logs for [from, to]. Each
// block's mutations commit in one atomic batch together with its
// applied-event records and a cursor advance; events publish only after
// the commit.
func (e *Engine) processRange(ctx context.Context, from, to uint64) error {
	addresses := []common.Address{e.config.TokenContract}
	if e.config.GovernanceContract != zeroAddress && e.config.GovernanceContract != e.config.TokenContract {
		addresses = append(addresses, e.config.GovernanceContract)
	}

	var logs []types.Log
	err := withRetry(ctx, e.config.MaxRetries, e.config.RetryDelay, func(ctx context.Context) error {
		var err error
		logs, err = e.feed.FilterLogs(ctx, from, to, addresses, abi.Topics())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch logs %d-%d: %w", from, to, err)
	}

	e.prefetchHeaders(ctx, logs)

	decoded := e.decodeLogs(ctx, logs)

	// Group by block, preserving ascending (block, logIndex) order
	sort.SliceStable(decoded, func(i, j int) bool {
		ri, rj := decoded[i].Ref(), decoded[j].Ref()
		if ri.BlockNumber != rj.BlockNumber {
			return ri.BlockNumber < rj.BlockNumber
		}
		return ri.LogIndex < rj.LogIndex
	})

	for start := 0; start < len(decoded); {
		end := start
		blockNum := decoded[start].Ref().BlockNumber
		for end < len(decoded) && decoded[end].Ref().BlockNumber == blockNum {
			end++
		}

		if err := e.applyBlock(ctx, decoded[start:end]); err != nil {
			return err
		}
		start = end
	}

	// Blocks at the range tail may carry no events; the cursor still
	// advances so the range is never re-fetched
	var lastApplied uint64
	if len(decoded) > 0 {
		lastApplied = decoded[len(decoded)-1].Ref().BlockNumber
	}
	if lastApplied < to {
		tailHash, err := e.feed.BlockHash(ctx, to)
		if err != nil {
			return fmt.Errorf("failed to get hash of block %d: %w", to, err)
		}
		if err := e.commitCursor(ctx, &storage.Cursor{BlockNumber: to, BlockHash: tailHash}); err != nil {
			return err
		}
	}
	e.setHeights(to, 0)

	return nil
}

// prefetchHeaders warms the feed's block time cache for the distinct
// blocks of a fetched batch in a single round trip. Failures are
// harmless: decoding falls back to per-hash lookups.
func (e *Engine) prefetchHeaders(ctx context.Context, logs []types.Log) {
	hb, ok := e.feed.(headerBatcher)
	if !ok || len(logs) == 0 {
		return
	}

	seen := make(map[uint64]bool)
	numbers := make([]uint64, 0, len(logs))
	for i := range logs {
		if n := logs[i].BlockNumber; !seen[n] {
			seen[n] = true
			numbers = append(numbers, n)
		}
	}

	if _, err := hb.BatchHeaders(ctx, numbers); err != nil {
		e.logger.Debug("header prefetch failed",
			zap.Int("blocks", len(numbers)),
			zap.Error(err))
	}
}

// decodeLogs decodes a fetched batch, fanning out across workers.
// Decoding is pure, so only ordering matters and that is restored by
// writing results by index. Unknown and malformed entries are skipped.
func (e *Engine) decodeLogs(ctx context.Context, logs []types.Log) []events.ChainEvent {
	results := make([]events.ChainEvent, len(logs))

	workers := e.config.DecodeWorkers
	if workers > len(logs) {
		workers = len(logs)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.decodeLog(ctx, &logs[i])
			}
		}()
	}
	for i := range logs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	decoded := make([]events.ChainEvent, 0, len(logs))
	for _, ev := range results {
		if ev != nil {
			decoded = append(decoded, ev)
		}
	}
	return decoded
}

// decodeLog decodes one entry, returning nil for entries to skip
func (e *Engine) decodeLog(ctx context.Context, log *types.Log) events.ChainEvent {
	blockTime, err := e.feed.BlockTime(ctx, log.BlockHash)
	if err != nil {
		e.logger.Error("failed to resolve block time",
			zap.Uint64("block", log.BlockNumber),
			zap.Error(err))
		return nil
	}

	ev, err := abi.Decode(log, blockTime)
	if err != nil {
		switch {
		case errors.Is(err, abi.ErrUnknownSchema):
			e.logger.Debug("skipping unknown event",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index))
			if e.metrics != nil {
				e.metrics.EventsSkippedTotal.WithLabelValues("unknown_schema").Inc()
			}
		default:
			e.logger.Error("malformed event entry",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err))
			if e.metrics != nil {
				e.metrics.DecodeErrorsTotal.Inc()
			}
		}
		return nil
	}

	if e.metrics != nil {
		e.metrics.EventsDecodedTotal.WithLabelValues(string(ev.Kind())).Inc()
	}
	return ev
}

// applyBlock applies one block's events in ascending log index order and
// commits them atomically with the cursor advance
func (e *Engine) applyBlock(ctx context.Context, blockEvents []events.ChainEvent) error {
	ref := blockEvents[0].Ref()
	start := time.Now()

	var published []events.ChainEvent

	err := withRetry(ctx, e.config.MaxRetries, e.config.RetryDelay, func(ctx context.Context) error {
		published = published[:0]

		batch := e.store.NewBatch()
		defer batch.Close()
		sess := e.applier.newSession(batch)

		for _, ev := range blockEvents {
			result, err := e.applier.Apply(ctx, sess, ev)
			if err != nil {
				return fmt.Errorf("failed to apply %s %s[%d]: %w",
					ev.Kind(), ev.Ref().TxHash.Hex(), ev.Ref().LogIndex, err)
			}

			switch result {
			case Applied:
				published = append(published, ev)
				if e.metrics != nil {
					e.metrics.EventsAppliedTotal.WithLabelValues(string(ev.Kind())).Inc()
				}
			case AlreadyApplied:
				if e.metrics != nil {
					e.metrics.EventsSkippedTotal.WithLabelValues("already_applied").Inc()
				}
			case Rejected:
				if e.metrics != nil {
					e.metrics.EventsSkippedTotal.WithLabelValues("rejected").Inc()
				}
			}
		}

		if err := batch.SetBlockHash(ctx, ref.BlockNumber, ref.BlockHash); err != nil {
			return err
		}
		if err := batch.SetCursor(ctx, &storage.Cursor{
			BlockNumber: ref.BlockNumber,
			BlockHash:   ref.BlockHash,
		}); err != nil {
			return err
		}

		return batch.Commit()
	})
	if err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.ApplyDuration.Observe(time.Since(start).Seconds())
	}
	e.setHeights(ref.BlockNumber, 0)

	// Publish only after the commit so subscribers never observe an
	// event a crash could unapply
	if e.bus != nil {
		for _, ev := range published {
			e.bus.Publish(ev)
		}
	}

	return nil
}

// commitCursor durably advances the cursor past empty tail blocks
func (e *Engine) commitCursor(ctx context.Context, cursor *storage.Cursor) error {
	return withRetry(ctx, e.config.MaxRetries, e.config.RetryDelay, func(ctx context.Context) error {
		batch := e.store.NewBatch()
		defer batch.Close()
		if err := batch.SetBlockHash(ctx, cursor.BlockNumber, cursor.BlockHash); err != nil {
			return err
		}
		if err := batch.SetCursor(ctx, cursor); err != nil {
			return err
		}
		return batch.Commit()
	})
}
