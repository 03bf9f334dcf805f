// Package fetcher retrieves ordered marketplace logs from a chain log source.
package fetcher

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// LogClient is the chain capability the indexer consumes.
type LogClient interface {
	GetLatestBlock(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, address string, fromBlock uint64, toBlock uint64) ([]types.Log, error)
}

type FetcherConfig struct {
	// ContractAddress is the only address logs are requested for
	ContractAddress string
}

type Fetcher struct {
	Client        LogClient
	Logger        *zap.Logger
	FetcherConfig *FetcherConfig
}

func NewFetcher(client LogClient, cfg *FetcherConfig, l *zap.Logger) *Fetcher {
	l.Sugar().Infow("Created fetcher", zap.Any("config", cfg))
	return &Fetcher{
		Client:        client,
		Logger:        l,
		FetcherConfig: cfg,
	}
}

func (f *Fetcher) GetLatestBlock(ctx context.Context) (uint64, error) {
	return f.Client.GetLatestBlock(ctx)
}

// FetchLogs returns the contract's logs in [startBlockInclusive, endBlockInclusive]
// ordered by block number then log index. Logs flagged as removed by the
// provider are dropped. Provider errors are returned as-is.
func (f *Fetcher) FetchLogs(ctx context.Context, startBlockInclusive uint64, endBlockInclusive uint64) ([]types.Log, error) {
	if startBlockInclusive > endBlockInclusive {
		return nil, errors.Errorf("invalid block range [%d, %d]", startBlockInclusive, endBlockInclusive)
	}
	f.Logger.Sugar().Debugw("Fetching logs for contract",
		zap.Uint64("startBlock", startBlockInclusive),
		zap.Uint64("endBlock", endBlockInclusive),
		zap.String("contract", f.FetcherConfig.ContractAddress),
	)

	logs, err := f.Client.GetLogs(ctx, f.FetcherConfig.ContractAddress, startBlockInclusive, endBlockInclusive)
	if err != nil {
		return nil, err
	}

	filtered := make([]types.Log, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			f.Logger.Sugar().Debugw("Dropping removed log",
				zap.Uint64("blockNumber", lg.BlockNumber),
				zap.Uint("logIndex", lg.Index),
			)
			continue
		}
		filtered = append(filtered, lg)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].BlockNumber != filtered[j].BlockNumber {
			return filtered[i].BlockNumber < filtered[j].BlockNumber
		}
		return filtered[i].Index < filtered[j].Index
	})

	f.Logger.Sugar().Debugw("Fetched logs for contract",
		zap.Uint64("startBlock", startBlockInclusive),
		zap.Uint64("endBlock", endBlockInclusive),
		zap.Int("count", len(filtered)),
	)
	return filtered, nil
}
