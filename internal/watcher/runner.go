package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"curatewatch/internal/metrics"
	"curatewatch/internal/model"
	"curatewatch/internal/storage"
)

// ChainSource is the chain access the runner needs.
type ChainSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// EventDecoder turns raw logs into typed registry events.
type EventDecoder interface {
	Decode(log types.Log) (*model.RegistryEvent, error)
	Topic0() []common.Hash
}

// MetadataResolver resolves optional market metadata for an occurrence.
type MetadataResolver interface {
	Resolve(ctx context.Context, occ model.Occurrence) model.ResolvedMarket
}

// Sender delivers one occurrence and reports the journal record.
type Sender interface {
	Notify(ctx context.Context, occ model.Occurrence, market model.ResolvedMarket) (model.NotificationRecord, error)
}

// RunConfig holds runtime settings for the watcher.
type RunConfig struct {
	Registry      common.Address
	Confirmations uint64
	PollInterval  time.Duration
	BatchSize     uint64

	// StartBlock, when set, takes precedence over the persisted cursor and
	// processing begins at exactly that block.
	StartBlock *uint64

	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner drives the poll cycle: fetch confirmed logs, decode, correlate,
// resolve, notify, advance the cursor. It owns overall error containment:
// chain failures pause until the next scheduled cycle, and only a cursor
// persistence failure is fatal.
type Runner struct {
	cfg        RunConfig
	chain      ChainSource
	decoder    EventDecoder
	correlator *Correlator
	resolver   MetadataResolver
	sender     Sender
	cursor     *CursorStore
	journal    storage.Journal
	metrics    *metrics.Metrics
	logger     *zap.Logger

	lastProcessed uint64
	bootstrapped  bool
}

// NewRunner builds a Runner with its dependencies. journal and metrics may be
// nil.
func NewRunner(
	cfg RunConfig,
	chain ChainSource,
	decoder EventDecoder,
	correlator *Correlator,
	resolver MetadataResolver,
	sender Sender,
	cursor *CursorStore,
	journal storage.Journal,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chain,
		decoder:    decoder,
		correlator: correlator,
		resolver:   resolver,
		sender:     sender,
		cursor:     cursor,
		journal:    journal,
		metrics:    m,
		logger:     logger,
	}
}

type persistError struct {
	err error
}

func (e *persistError) Error() string { return "persist cursor: " + e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

// Run executes the polling loop until ctx is cancelled. It returns an error
// only when the cursor can no longer be persisted; every other failure is
// logged and retried on the next cycle.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.RunCycle(ctx); err != nil {
			var persist *persistError
			if errors.As(err, &persist) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			r.metrics.CycleError()
			r.logger.Warn("poll cycle failed", zap.Error(err))
		} else {
			r.metrics.Cycle()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) validate() error {
	if r.chain == nil {
		return fmt.Errorf("chain source is nil")
	}
	if r.decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	if r.correlator == nil {
		return fmt.Errorf("correlator is nil")
	}
	if r.sender == nil {
		return fmt.Errorf("sender is nil")
	}
	if r.cursor == nil {
		return fmt.Errorf("cursor store is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// RunCycle performs one poll cycle. Exported so a single cycle can be driven
// in isolation.
func (r *Runner) RunCycle(ctx context.Context) error {
	if !r.bootstrapped {
		if err := r.bootstrap(ctx); err != nil {
			return err
		}
	}

	head, err := r.latestWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("get head block: %w", err)
	}

	if head <= r.cfg.Confirmations {
		return nil
	}
	target := head - r.cfg.Confirmations
	if r.lastProcessed >= target {
		r.logger.Debug("up to date",
			zap.Uint64("last_processed", r.lastProcessed),
			zap.Uint64("target", target))
		return nil
	}

	ranges, err := SplitRange(r.lastProcessed+1, target, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.processRange(ctx, blockRange); err != nil {
			return err
		}

		if err := r.cursor.Save(blockRange.To); err != nil {
			return &persistError{err: err}
		}
		r.lastProcessed = blockRange.To
	}

	return nil
}

func (r *Runner) bootstrap(ctx context.Context) error {
	if r.cfg.StartBlock != nil {
		start := *r.cfg.StartBlock
		if start > 0 {
			r.lastProcessed = start - 1
		}
		r.logger.Info("starting from configured block", zap.Uint64("start", start))
		r.bootstrapped = true
		return nil
	}

	cursor, ok, err := r.cursor.Load()
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if ok {
		r.lastProcessed = cursor.LastBlock
		r.logger.Info("resuming from cursor", zap.Uint64("last_block", cursor.LastBlock))
		r.bootstrapped = true
		return nil
	}

	head, err := r.latestWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("get head block: %w", err)
	}
	if head > r.cfg.Confirmations {
		r.lastProcessed = head - r.cfg.Confirmations
	}
	r.logger.Info("no cursor, starting at confirmed head", zap.Uint64("last_block", r.lastProcessed))
	r.bootstrapped = true
	return nil
}

func (r *Runner) processRange(ctx context.Context, blockRange BlockRange) error {
	r.logger.Info("querying blocks",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To))

	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
	if err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
	}
	sortLogs(logs)

	events := make([]model.RegistryEvent, 0, len(logs))
	for _, log := range logs {
		event, err := r.decoder.Decode(log)
		if err != nil {
			// One bad entry never aborts the batch.
			r.metrics.MalformedLog()
			r.logger.Warn("skipping malformed log", zap.Error(err))
			continue
		}
		if event == nil {
			continue
		}
		r.metrics.EventDecoded()
		r.logger.Info("detected event",
			zap.String("event", string(event.Kind)),
			zap.Uint64("block", event.BlockNumber),
			zap.String("tx", event.TxHash.Hex()),
			zap.String("item_id", event.ItemID.Hex()))
		events = append(events, *event)
	}

	occurrences := r.correlator.Collect(events)
	records := make([]model.NotificationRecord, 0, len(occurrences))
	for _, occ := range occurrences {
		market := r.resolver.Resolve(ctx, occ)
		record, err := r.sender.Notify(ctx, occ, market)
		if err != nil {
			// Accepted loss: the key stays seen and is not retried.
			r.metrics.NotificationDropped()
			r.logger.Warn("notification delivery failed",
				zap.String("key", occ.Key),
				zap.Error(err))
			continue
		}
		r.metrics.NotificationSent()
		r.logger.Info("sent notification",
			zap.String("key", occ.Key),
			zap.Uint64("block", occ.BlockNumber))
		records = append(records, record)
	}

	if r.journal != nil && len(records) > 0 {
		if err := r.journal.PutNotificationBatch(records); err != nil {
			r.logger.Warn("journal write failed", zap.Error(err))
		}
	}

	return nil
}

func (r *Runner) latestWithRetry(ctx context.Context) (uint64, error) {
	var head uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = r.chain.LatestBlockNumber(ctx)
		if err != nil {
			r.logger.Warn("head block fetch failed", zap.Error(err))
		}
		return err
	})
	return head, err
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Registry, r.decoder.Topic0())
		if err != nil {
			r.logger.Warn("filter logs failed",
				zap.Error(err),
				zap.Uint64("from", fromBlock),
				zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func sortLogs(logs []types.Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		if logs[i].TxIndex != logs[j].TxIndex {
			return logs[i].TxIndex < logs[j].TxIndex
		}
		return logs[i].Index < logs[j].Index
	})
}
