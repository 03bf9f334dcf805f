package indexer

import (
	"context"

	"github.com/Layr-Labs/marketplace-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/marketplace-indexer/pkg/marketEvents"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const (
	DefaultLiveLookback uint64 = 150_000
	MaxLiveLookback     uint64 = 1_000_000
)

// LiveScanResult is the active set folded straight from chain logs.
type LiveScanResult struct {
	From     uint64                   `json:"from"`
	To       uint64                   `json:"to"`
	Scanned  uint64                   `json:"scanned"`
	Listings []*storage.ActiveListing `json:"-"`
}

// ScanRecent folds the last lookback blocks up to the chain head into an
// active set without touching the store or the lock. Listings created before
// the window are missing from the result. Used to cross check the projection.
func (idx *Indexer) ScanRecent(ctx context.Context, lookback uint64) (*LiveScanResult, error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "indexer.ScanRecent")
	defer span.Finish()

	if lookback == 0 {
		return nil, NewIndexError(IndexError_Validation, errors.New("lookback must be greater than 0"))
	}
	lookback = min(lookback, MaxLiveLookback)
	cfg := idx.Config.IndexerConfig

	tip, err := idx.Fetcher.GetLatestBlock(ctx)
	if err != nil {
		return nil, NewIndexError(IndexError_ChainUnavailable, err).WithMessage("failed to get latest block")
	}
	var start uint64
	if tip > lookback {
		start = tip - lookback
	}
	start = max(start, cfg.DeployBlock)

	res := &LiveScanResult{From: start, To: tip}
	if start > tip {
		return res, nil
	}

	active := make(map[string]*storage.ActiveListing)
	minSpan := max(cfg.MinBlockSpan, 1)
	baseSpan := max(cfg.MaxBlockSpan, minSpan)
	chunkSpan := baseSpan

	from := start
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "live scan cancelled")
		}
		to := from + chunkSpan - 1
		if to > tip || to < from {
			to = tip
		}

		logs, err := idx.Fetcher.FetchLogs(ctx, from, to)
		if err != nil {
			if !ethereum.IsRangeTooLargeError(err) {
				return nil, NewIndexError(IndexError_ChainUnavailable, err).WithBlockNumber(from)
			}
			if chunkSpan <= minSpan {
				return nil, NewIndexError(IndexError_RangeTooLarge, err).WithBlockNumber(from)
			}
			chunkSpan = max(chunkSpan/2, minSpan)
			continue
		}

		for _, lg := range logs {
			event, err := idx.Decoder.Decode(lg)
			if err != nil {
				continue
			}
			switch event.Kind {
			case marketEvents.EventKind_Listed:
				active[event.ListingId] = &storage.ActiveListing{
					ListingId:   event.ListingId,
					NftContract: event.Nft,
					TokenId:     event.TokenId,
					Seller:      event.Seller,
					PriceWei:    event.Price,
				}
			case marketEvents.EventKind_Canceled, marketEvents.EventKind_Purchased:
				delete(active, event.ListingId)
			}
		}

		res.Scanned += to - from + 1
		chunkSpan = baseSpan
		if to == tip {
			break
		}
		from = to + 1
	}

	res.Listings = make([]*storage.ActiveListing, 0, len(active))
	for _, l := range active {
		res.Listings = append(res.Listings, l)
	}
	idx.Logger.Sugar().Infow("Finished live scan",
		zap.Uint64("from", res.From),
		zap.Uint64("to", res.To),
		zap.Int("active", len(res.Listings)),
	)
	return res, nil
}
