package indexer

import (
	"context"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/marketplace-indexer/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics/metricsTypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type SyncStatus string

const (
	SyncStatus_Done SyncStatus = "done"
	// SyncStatus_Noop means the lock was taken but there was nothing to scan.
	SyncStatus_Noop SyncStatus = "noop"
	// SyncStatus_Busy means another pass holds the lock. Every number is zero.
	SyncStatus_Busy  SyncStatus = "busy"
	SyncStatus_Error SyncStatus = "error"
)

type SyncOptions struct {
	// From overrides the computed start block. It is still clamped to the deploy block.
	From *uint64
	// Span overrides the configured max span. Values below the min span are raised to it.
	Span uint64
}

type SyncResult struct {
	Status  SyncStatus `json:"status"`
	Scanned uint64     `json:"scanned"`
	From    uint64     `json:"from"`
	To      uint64     `json:"to"`
	SafeTip uint64     `json:"safeTip"`
	Applied int        `json:"applied"`
	Rpc     string     `json:"rpc"`
}

// IsBusy reports whether the pass was refused because the lock was held.
func (r *SyncResult) IsBusy() bool {
	return r.Status == SyncStatus_Busy
}

// Sync runs one pass from the resolved start block up to the safe tip. It
// returns a busy result without error when another pass holds the lock.
func (idx *Indexer) Sync(ctx context.Context, opts *SyncOptions) (*SyncResult, error) {
	if opts == nil {
		opts = &SyncOptions{}
	}
	return idx.lockedSync(ctx, opts, nil)
}

// lockedSync acquires the lock, runs prepare (if any) and then the pass. The
// lock is released on every path once acquired.
func (idx *Indexer) lockedSync(ctx context.Context, opts *SyncOptions, prepare func(ctx context.Context) error) (res *SyncResult, err error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "indexer.Sync")
	defer span.Finish()
	if opts.From != nil {
		span.SetTag("from_override", *opts.From)
	}

	startTime := time.Now()

	acquired, err := idx.Store.AcquireLock(ctx, idx.Config.IndexerConfig.LockTTL)
	if err != nil {
		idx.Logger.Sugar().Errorw("Failed to acquire sync lock", zap.Error(err))
		span.SetTag("error", true)
		span.SetTag("error.message", err.Error())
		_ = idx.MetricsSink.Incr(metricsTypes.Metric_Incr_SyncRun, []metricsTypes.MetricsLabel{
			{Name: "status", Value: string(SyncStatus_Error)},
		}, 1)
		return nil, NewIndexError(IndexError_StorageUnavailable, err).WithMessage("failed to acquire lock")
	}
	if !acquired {
		idx.Logger.Sugar().Infow("Sync lock is held by another pass, skipping")
		span.SetTag("busy", true)
		_ = idx.MetricsSink.Incr(metricsTypes.Metric_Incr_SyncRun, []metricsTypes.MetricsLabel{
			{Name: "status", Value: string(SyncStatus_Busy)},
		}, 1)
		return &SyncResult{Status: SyncStatus_Busy, Rpc: idx.rpcHost()}, nil
	}

	defer func() {
		// the caller's context may already be cancelled
		if releaseErr := idx.Store.ReleaseLock(context.Background()); releaseErr != nil {
			idx.Logger.Sugar().Errorw("Failed to release sync lock, it will expire on its own",
				zap.Duration("ttl", idx.Config.IndexerConfig.LockTTL),
				zap.Error(releaseErr),
			)
		}

		status := SyncStatus_Error
		if err == nil {
			status = res.Status
		}
		labels := []metricsTypes.MetricsLabel{{Name: "status", Value: string(status)}}
		_ = idx.MetricsSink.Incr(metricsTypes.Metric_Incr_SyncRun, labels, 1)
		_ = idx.MetricsSink.Timing(metricsTypes.Metric_Timing_SyncDuration, time.Since(startTime), labels)

		span.SetTag("status", string(status))
		span.SetTag("total_duration_ms", time.Since(startTime).Milliseconds())
		if err != nil {
			span.SetTag("error", true)
			span.SetTag("error.message", err.Error())
		}
		idx.publishSyncCompleted(status, res, err)
	}()

	if prepare != nil {
		if err := prepare(ctx); err != nil {
			return nil, err
		}
	}
	return idx.runSync(ctx, opts)
}

func (idx *Indexer) runSync(ctx context.Context, opts *SyncOptions) (*SyncResult, error) {
	cfg := idx.Config.IndexerConfig

	tip, err := idx.Fetcher.GetLatestBlock(ctx)
	if err != nil {
		idx.Logger.Sugar().Errorw("Failed to get latest block", zap.Error(err))
		return nil, NewIndexError(IndexError_ChainUnavailable, err).WithMessage("failed to get latest block")
	}

	var safeTip uint64
	if tip > cfg.Confirmations {
		safeTip = tip - cfg.Confirmations
	}
	_ = idx.MetricsSink.Gauge(metricsTypes.Metric_Gauge_SafeTip, float64(safeTip), nil)

	if safeTip == 0 {
		idx.Logger.Sugar().Infow("Chain is not deeper than the confirmation depth, nothing to do",
			zap.Uint64("tip", tip),
			zap.Uint64("confirmations", cfg.Confirmations),
		)
		return &SyncResult{Status: SyncStatus_Noop, Rpc: idx.rpcHost()}, nil
	}

	start, err := idx.resolveStartBlock(ctx, opts, safeTip)
	if err != nil {
		return nil, err
	}
	if start > safeTip {
		idx.Logger.Sugar().Infow("Start block is past the safe tip, nothing to do",
			zap.Uint64("start", start),
			zap.Uint64("safeTip", safeTip),
		)
		return &SyncResult{
			Status:  SyncStatus_Noop,
			From:    start,
			To:      safeTip,
			SafeTip: safeTip,
			Rpc:     idx.rpcHost(),
		}, nil
	}

	idx.Logger.Sugar().Infow("Starting sync",
		zap.Uint64("from", start),
		zap.Uint64("safeTip", safeTip),
		zap.Uint64("tip", tip),
	)

	minSpan := max(cfg.MinBlockSpan, 1)
	baseSpan := idx.initialSpan(opts, minSpan)
	span := baseSpan

	var scanned uint64
	applied := 0
	from := start
	for from <= safeTip {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "sync cancelled")
		}

		to := from + span - 1
		if to > safeTip || to < from {
			to = safeTip
		}

		logs, err := idx.Fetcher.FetchLogs(ctx, from, to)
		if err != nil {
			if !ethereum.IsRangeTooLargeError(err) {
				idx.Logger.Sugar().Errorw("Failed to fetch logs",
					zap.Uint64("from", from),
					zap.Uint64("to", to),
					zap.Error(err),
				)
				return nil, NewIndexError(IndexError_ChainUnavailable, err).WithBlockNumber(from)
			}
			if span <= minSpan {
				idx.Logger.Sugar().Errorw("Provider rejected the minimum span",
					zap.Uint64("from", from),
					zap.Uint64("span", span),
					zap.Error(err),
				)
				return nil, NewIndexError(IndexError_RangeTooLarge, err).
					WithBlockNumber(from).
					WithMetadata("span", span)
			}
			span = max(span/2, minSpan)
			_ = idx.MetricsSink.Incr(metricsTypes.Metric_Incr_SpanShrunk, nil, 1)
			idx.Logger.Sugar().Infow("Provider rejected range, shrinking span",
				zap.Uint64("from", from),
				zap.Uint64("to", to),
				zap.Uint64("span", span),
			)
			continue
		}

		n, err := idx.applyLogs(ctx, logs)
		applied += n
		if err != nil {
			return nil, err
		}

		if err := idx.Store.SetCursor(ctx, to); err != nil {
			return nil, NewIndexError(IndexError_StorageUnavailable, err).WithBlockNumber(to)
		}
		_ = idx.MetricsSink.Gauge(metricsTypes.Metric_Gauge_Cursor, float64(to), nil)
		_ = idx.MetricsSink.Incr(metricsTypes.Metric_Incr_BlocksScanned, nil, float64(to-from+1))

		idx.Logger.Sugar().Debugw("Applied chunk",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Int("logs", len(logs)),
			zap.Int("applied", n),
		)

		scanned += to - from + 1
		if cfg.RememberSpan {
			idx.lastSpan.Store(span)
		} else {
			span = baseSpan
		}
		if to == safeTip {
			break
		}
		from = to + 1
	}

	idx.Logger.Sugar().Infow("Finished sync",
		zap.Uint64("from", start),
		zap.Uint64("to", safeTip),
		zap.Uint64("scanned", scanned),
		zap.Int("applied", applied),
	)
	return &SyncResult{
		Status:  SyncStatus_Done,
		Scanned: scanned,
		From:    start,
		To:      safeTip,
		SafeTip: safeTip,
		Applied: applied,
		Rpc:     idx.rpcHost(),
	}, nil
}

// resolveStartBlock picks an explicit from, else the cursor minus the reorg
// backtrack, else the deploy block (or the safe tip when no deploy block is
// configured). The result is never below the deploy block.
func (idx *Indexer) resolveStartBlock(ctx context.Context, opts *SyncOptions, safeTip uint64) (uint64, error) {
	cfg := idx.Config.IndexerConfig

	var start uint64
	if opts.From != nil {
		start = *opts.From
	} else {
		cursor, err := idx.Store.GetCursor(ctx)
		if err != nil {
			return 0, NewIndexError(IndexError_StorageUnavailable, err).WithMessage("failed to read cursor")
		}
		switch {
		case cursor > 0 && cursor > cfg.ReorgBacktrack:
			start = cursor - cfg.ReorgBacktrack
		case cursor > 0:
			start = 0
		case cfg.DeployBlock > 0:
			start = cfg.DeployBlock
		default:
			start = safeTip
		}
	}
	if start < cfg.DeployBlock {
		start = cfg.DeployBlock
	}
	return start, nil
}

func (idx *Indexer) initialSpan(opts *SyncOptions, minSpan uint64) uint64 {
	span := idx.Config.IndexerConfig.MaxBlockSpan
	if opts.Span > 0 {
		span = opts.Span
	} else if idx.Config.IndexerConfig.RememberSpan {
		if last := idx.lastSpan.Load(); last > 0 {
			span = last
		}
	}
	return max(span, minSpan)
}

func (idx *Indexer) publishSyncCompleted(status SyncStatus, res *SyncResult, err error) {
	if idx.EventBus == nil {
		return
	}
	data := &eventBusTypes.SyncCompletedData{
		Status:      string(status),
		CompletedAt: time.Now(),
	}
	if res != nil {
		data.Scanned = res.Scanned
		data.From = res.From
		data.To = res.To
		data.SafeTip = res.SafeTip
		data.Applied = res.Applied
	}
	if err != nil {
		data.Error = err.Error()
	}
	idx.EventBus.Publish(&eventBusTypes.Event{
		Name: eventBusTypes.Event_SyncCompleted,
		Data: data,
	})
}
