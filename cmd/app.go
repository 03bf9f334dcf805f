package cmd

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"github.com/Layr-Labs/marketplace-indexer/internal/tracer"
	"github.com/Layr-Labs/marketplace-indexer/internal/version"
	"github.com/Layr-Labs/marketplace-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/marketplace-indexer/pkg/eventBus"
	"github.com/Layr-Labs/marketplace-indexer/pkg/fetcher"
	"github.com/Layr-Labs/marketplace-indexer/pkg/indexer"
	"github.com/Layr-Labs/marketplace-indexer/pkg/logger"
	"github.com/Layr-Labs/marketplace-indexer/pkg/marketEvents"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics"
	"github.com/Layr-Labs/marketplace-indexer/pkg/service/listingsDataService"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage/storeFactory"
	"github.com/pkg/errors"
	promClient "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app is the set of components every command is built from.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	client       *ethereum.Client
	store        storage.ListingStore
	eventBus     *eventBus.EventBus
	metricsSink  *metrics.MetricsSink
	promRegistry *promClient.Registry

	indexer  *indexer.Indexer
	listings *listingsDataService.ListingsDataService
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg := config.NewConfig()

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, l, errors.Wrap(err, "invalid configuration")
	}
	return cfg, l, nil
}

func newApp(command string) (*app, error) {
	cfg, l, err := loadConfig()
	if err != nil {
		if l != nil {
			l.Sugar().Errorw("Failed to load config", zap.Error(err))
		}
		return nil, err
	}

	l.Sugar().Infow("marketplace-indexer",
		zap.String("command", command),
		zap.String("version", version.GetVersion()),
		zap.String("commit", version.GetCommit()),
		zap.Uint64("chainId", cfg.ChainId),
		zap.String("marketplace", cfg.IndexerConfig.MarketplaceAddress),
		zap.String("store", string(cfg.StoreConfig.Backend)),
	)

	tracer.StartTracer(cfg.DataDogConfig.TracingEnabled, fmt.Sprintf("chain-%d", cfg.ChainId))

	promRegistry := promClient.NewRegistry()
	metricsClients, err := metrics.InitMetricsSinksFromConfig(cfg, promRegistry, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup metrics clients")
	}
	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, metricsClients)
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup metrics sink")
	}

	store, err := storeFactory.NewListingStoreFromConfig(cfg, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open listing store")
	}

	clientCfg := ethereum.DefaultEthereumClientConfig()
	clientCfg.BaseUrl = cfg.EthereumRpcConfig.RpcUrl
	client := ethereum.NewClient(clientCfg, l)

	decoder, err := marketEvents.NewDecoder(cfg.IndexerConfig.MarketplaceAddress, l)
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "failed to create event decoder")
	}

	f := fetcher.NewFetcher(client, &fetcher.FetcherConfig{
		ContractAddress: cfg.IndexerConfig.MarketplaceAddress,
	}, l)

	eb := eventBus.NewEventBus(l)

	return &app{
		cfg:          cfg,
		logger:       l,
		client:       client,
		store:        store,
		eventBus:     eb,
		metricsSink:  sink,
		promRegistry: promRegistry,
		indexer:      indexer.NewIndexer(store, f, decoder, eb, sink, l, cfg),
		listings:     listingsDataService.NewListingsDataService(store, l),
	}, nil
}

// verifyChainId refuses to index when the node serves a different chain than configured.
func (a *app) verifyChainId(ctx context.Context) error {
	chainId, err := a.client.GetChainId(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read chain id from the node")
	}
	if chainId != a.cfg.ChainId {
		return errors.Errorf("node at %s serves chain %d, expected %d", a.cfg.EthereumRpcConfig.Host(), chainId, a.cfg.ChainId)
	}
	return nil
}

func (a *app) Close() {
	a.metricsSink.Flush()
	a.client.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Sugar().Errorw("Failed to close listing store", zap.Error(err))
	}
	tracer.StopTracer()
	_ = a.logger.Sync()
}
