package indexer

import (
	"context"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/eventBus/eventBusTypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReindexFrom rewinds the cursor to height-1 and runs a pass starting at
// height. Listings learned below height are kept. A zero height is rejected
// before anything is written.
func (idx *Indexer) ReindexFrom(ctx context.Context, height uint64) (*SyncResult, error) {
	if height == 0 {
		return nil, NewIndexError(IndexError_Validation, errors.New("missing 'from' (block)"))
	}
	idx.Logger.Sugar().Infow("Reindexing", zap.Uint64("from", height))

	return idx.lockedSync(ctx, &SyncOptions{From: &height}, func(ctx context.Context) error {
		if err := idx.Store.SetCursor(ctx, height-1); err != nil {
			return NewIndexError(IndexError_StorageUnavailable, err).WithMessage("failed to rewind cursor")
		}
		return nil
	})
}

// ClearAll removes every listing and the cursor so the next pass rebuilds
// from the deploy block. It fails with ErrSyncInProgress when a pass holds
// the lock.
func (idx *Indexer) ClearAll(ctx context.Context) error {
	acquired, err := idx.Store.AcquireLock(ctx, idx.Config.IndexerConfig.LockTTL)
	if err != nil {
		return NewIndexError(IndexError_StorageUnavailable, err).WithMessage("failed to acquire lock")
	}
	if !acquired {
		return ErrSyncInProgress
	}
	defer func() {
		if releaseErr := idx.Store.ReleaseLock(context.Background()); releaseErr != nil {
			idx.Logger.Sugar().Errorw("Failed to release sync lock, it will expire on its own", zap.Error(releaseErr))
		}
	}()

	if err := idx.Store.ClearListings(ctx); err != nil {
		return NewIndexError(IndexError_StorageUnavailable, err).WithMessage("failed to clear listings")
	}
	if err := idx.Store.DeleteCursor(ctx); err != nil {
		return NewIndexError(IndexError_StorageUnavailable, err).WithMessage("failed to delete cursor")
	}
	idx.Logger.Sugar().Infow("Cleared all listings and the cursor")

	if idx.EventBus != nil {
		idx.EventBus.Publish(&eventBusTypes.Event{
			Name: eventBusTypes.Event_ListingsCleared,
			Data: time.Now(),
		})
	}
	return nil
}
