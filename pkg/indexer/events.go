package indexer

import (
	"context"

	"github.com/Layr-Labs/marketplace-indexer/pkg/marketEvents"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics/metricsTypes"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// applyLogs decodes and applies logs in the order given. Listed upserts,
// Canceled and Purchased remove, anything else is skipped. It returns the
// number of events applied before any store error.
func (idx *Indexer) applyLogs(ctx context.Context, logs []types.Log) (int, error) {
	applied := 0
	for _, lg := range logs {
		event, err := idx.Decoder.Decode(lg)
		if err != nil {
			idx.Logger.Sugar().Debugw("Skipping undecodable log",
				zap.Uint64("blockNumber", lg.BlockNumber),
				zap.Uint("logIndex", lg.Index),
				zap.Error(err),
			)
			idx.incrSkipped("decode_failure")
			continue
		}

		switch event.Kind {
		case marketEvents.EventKind_Listed:
			err = idx.Store.UpsertListing(ctx, &storage.ActiveListing{
				ListingId:   event.ListingId,
				NftContract: event.Nft,
				TokenId:     event.TokenId,
				Seller:      event.Seller,
				PriceWei:    event.Price,
			})
		case marketEvents.EventKind_Canceled, marketEvents.EventKind_Purchased:
			err = idx.Store.RemoveListing(ctx, event.ListingId)
		default:
			idx.incrSkipped("unrecognized")
			continue
		}
		if err != nil {
			return applied, NewIndexError(IndexError_StorageUnavailable, err).
				WithBlockNumber(event.BlockNumber).
				WithMetadata("listingId", event.ListingId).
				WithMetadata("event", string(event.Kind))
		}

		applied++
		_ = idx.MetricsSink.Incr(metricsTypes.Metric_Incr_EventsApplied, []metricsTypes.MetricsLabel{
			{Name: "event", Value: string(event.Kind)},
		}, 1)
		idx.Logger.Sugar().Debugw("Applied event",
			zap.String("event", string(event.Kind)),
			zap.String("listingId", event.ListingId),
			zap.Uint64("blockNumber", event.BlockNumber),
			zap.Uint64("logIndex", event.LogIndex),
		)
	}
	return applied, nil
}

func (idx *Indexer) incrSkipped(reason string) {
	_ = idx.MetricsSink.Incr(metricsTypes.Metric_Incr_EventsSkipped, []metricsTypes.MetricsLabel{
		{Name: "reason", Value: reason},
	}, 1)
}
