// Package scheduler runs the sync engine on a fixed interval.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/indexer"
	"go.uber.org/zap"
)

const DefaultSyncInterval = 30 * time.Second

type Syncer interface {
	Sync(ctx context.Context, opts *indexer.SyncOptions) (*indexer.SyncResult, error)
}

type SchedulerConfig struct {
	Interval time.Duration
}

type Scheduler struct {
	Logger       *zap.Logger
	Config       *SchedulerConfig
	Syncer       Syncer
	ShutdownChan chan bool

	shouldShutdown *atomic.Bool
}

func NewScheduler(cfg *SchedulerConfig, s Syncer, l *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSyncInterval
	}
	shouldShutdown := &atomic.Bool{}
	shouldShutdown.Store(false)
	return &Scheduler{
		Logger:         l,
		Config:         cfg,
		Syncer:         s,
		ShutdownChan:   make(chan bool, 1),
		shouldShutdown: shouldShutdown,
	}
}

// Start runs a pass immediately and then once per interval until ctx is
// done or a value is sent on ShutdownChan. A pass in progress is allowed
// to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.Logger.Sugar().Infow("Starting sync scheduler", zap.Duration("interval", s.Config.Interval))

	// stopped is closed when Start returns so the listener below never outlives it
	stopped := make(chan struct{})
	defer close(stopped)
	wake := make(chan struct{})

	go func() {
		select {
		case <-s.ShutdownChan:
			s.Logger.Sugar().Infow("Received shutdown signal")
			s.shouldShutdown.Store(true)
			close(wake)
		case <-ctx.Done():
		case <-stopped:
		}
	}()

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		if s.shouldShutdown.Load() {
			s.Logger.Sugar().Infow("Shutting down sync scheduler...")
			return
		}
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.Logger.Sugar().Infow("Context done, stopping sync scheduler")
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single pass and logs the outcome. Errors never stop the scheduler.
func (s *Scheduler) RunOnce(ctx context.Context) *indexer.SyncResult {
	res, err := s.Syncer.Sync(ctx, nil)
	if err != nil {
		s.Logger.Sugar().Errorw("Scheduled sync failed", zap.Error(err))
		return nil
	}
	switch res.Status {
	case indexer.SyncStatus_Busy:
		s.Logger.Sugar().Infow("Scheduled sync skipped, another pass holds the lock")
	case indexer.SyncStatus_Noop:
		s.Logger.Sugar().Debugw("Scheduled sync had nothing to do",
			zap.Uint64("safeTip", res.SafeTip),
		)
	default:
		s.Logger.Sugar().Infow("Scheduled sync finished",
			zap.Uint64("from", res.From),
			zap.Uint64("to", res.To),
			zap.Uint64("scanned", res.Scanned),
			zap.Int("applied", res.Applied),
		)
	}
	return res
}
