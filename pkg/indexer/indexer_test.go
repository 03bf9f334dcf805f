package indexer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"github.com/Layr-Labs/marketplace-indexer/internal/tests"
	"github.com/Layr-Labs/marketplace-indexer/pkg/eventBus"
	"github.com/Layr-Labs/marketplace-indexer/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/marketplace-indexer/pkg/fetcher"
	"github.com/Layr-Labs/marketplace-indexer/pkg/logger"
	"github.com/Layr-Labs/marketplace-indexer/pkg/marketEvents"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage/levelDbListingStore"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type harness struct {
	idx   *Indexer
	chain *tests.FakeChain
	store storage.ListingStore
	logs  *tests.MarketplaceLogBuilder
	bus   *eventBus.EventBus
}

func testConfig() *config.Config {
	return &config.Config{
		ChainId: 11155111,
		EthereumRpcConfig: config.EthereumRpcConfig{
			RpcUrl: "http://72.46.85.253:8545",
		},
		IndexerConfig: config.IndexerConfig{
			MarketplaceAddress: tests.MarketplaceAddress,
			Confirmations:      12,
			ReorgBacktrack:     200,
			MaxBlockSpan:       100,
			MinBlockSpan:       10,
			DeployBlock:        100,
			LockTTL:            60 * time.Second,
		},
	}
}

func setup(t *testing.T, cfg *config.Config) *harness {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	assert.Nil(t, err)

	db, err := levelDbListingStore.OpenInMemoryLevelDb()
	if err != nil {
		t.Fatalf("Failed to open leveldb: %v", err)
	}
	chainId, address := cfg.GetNamespace()
	store := levelDbListingStore.NewLevelDbListingStore(db, storage.NewNamespace(chainId, address), l)
	t.Cleanup(func() { _ = store.Close() })

	chain := tests.NewFakeChain(1000)
	f := fetcher.NewFetcher(chain, &fetcher.FetcherConfig{ContractAddress: address}, l)

	decoder, err := marketEvents.NewDecoder(address, l)
	assert.Nil(t, err)

	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, nil)
	assert.Nil(t, err)

	bus := eventBus.NewEventBus(l)

	return &harness{
		idx:   NewIndexer(store, f, decoder, bus, sink, l, cfg),
		chain: chain,
		store: store,
		logs:  tests.NewMarketplaceLogBuilder(tests.MarketplaceAddress),
		bus:   bus,
	}
}

func (h *harness) activeIds(t *testing.T) []string {
	listings, err := h.store.ListActiveListings(context.Background())
	assert.Nil(t, err)
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ListingId)
	}
	sort.Strings(ids)
	return ids
}

func (h *harness) cursor(t *testing.T) uint64 {
	cursor, err := h.store.GetCursor(context.Background())
	assert.Nil(t, err)
	return cursor
}

func Test_Sync(t *testing.T) {
	ctx := context.Background()

	t.Run("Should scan from the deploy block to the safe tip", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(
			h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(2)),
			h.logs.Listed(420, 3, 8, tests.NftAddress, 2, tests.SellerAddress, tests.Ether(3)),
		)

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, SyncStatus_Done, res.Status)
		assert.Equal(t, uint64(100), res.From)
		assert.Equal(t, uint64(988), res.To)
		assert.Equal(t, uint64(988), res.SafeTip)
		assert.Equal(t, uint64(889), res.Scanned)
		assert.Equal(t, 2, res.Applied)
		assert.Equal(t, "72.46.85.253:8545", res.Rpc)

		assert.Equal(t, uint64(988), h.cursor(t))
		assert.Equal(t, []string{"7", "8"}, h.activeIds(t))

		calls := h.chain.Calls()
		assert.Len(t, calls, 9)
		assert.Equal(t, [2]uint64{100, 199}, calls[0])
		assert.Equal(t, [2]uint64{900, 988}, calls[8])
	})
	t.Run("Should store the decoded listing", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(h.logs.Listed(150, 0, 7, tests.NftAddress, 42, tests.SellerAddress, tests.Ether(2)))

		_, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)

		listings, err := h.store.ListActiveListings(ctx)
		assert.Nil(t, err)
		assert.Len(t, listings, 1)
		assert.Equal(t, &storage.ActiveListing{
			ListingId:   "7",
			NftContract: tests.NftAddress,
			TokenId:     "42",
			Seller:      tests.SellerAddress,
			PriceWei:    "2000000000000000000",
		}, listings[0])
	})
	t.Run("Should converge when the same events are applied twice", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(h.logs.Listed(900, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(2)))

		_, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		first, _ := h.store.ListActiveListings(ctx)

		// the second pass re-scans the backtrack window, which includes block 900
		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, uint64(788), res.From)
		assert.Equal(t, 1, res.Applied)

		second, _ := h.store.ListActiveListings(ctx)
		assert.Equal(t, first, second)
	})
	t.Run("Should remove listings that were canceled or purchased", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(
			h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)),
			h.logs.Listed(150, 1, 8, tests.NftAddress, 2, tests.SellerAddress, tests.Ether(1)),
			h.logs.Listed(151, 0, 9, tests.NftAddress, 3, tests.SellerAddress, tests.Ether(1)),
			h.logs.Canceled(300, 0, 7),
			h.logs.Purchased(500, 0, 8, tests.BuyerAddress, tests.Ether(1)),
		)

		_, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, []string{"9"}, h.activeIds(t))
	})
	t.Run("Should treat cancel and purchase of unknown ids as a no-op", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(
			h.logs.Canceled(150, 0, 404),
			h.logs.Purchased(151, 0, 405, tests.BuyerAddress, tests.Ether(1)),
		)

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, SyncStatus_Done, res.Status)
		assert.Len(t, h.activeIds(t), 0)
	})
	t.Run("Should apply a listing then its cancel in the same block in log order", func(t *testing.T) {
		h := setup(t, testConfig())
		// added out of order, the fetcher sorts by block then log index
		h.chain.AddLogs(
			h.logs.Canceled(150, 1, 7),
			h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)),
		)

		_, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Len(t, h.activeIds(t), 0)
	})
	t.Run("Should leave a canceled listing active when applied in reverse order", func(t *testing.T) {
		h := setup(t, testConfig())
		listed := h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1))
		canceled := h.logs.Canceled(150, 1, 7)

		applied, err := h.idx.applyLogs(ctx, []types.Log{listed, canceled})
		assert.Nil(t, err)
		assert.Equal(t, 2, applied)
		assert.Len(t, h.activeIds(t), 0)

		applied, err = h.idx.applyLogs(ctx, []types.Log{canceled, listed})
		assert.Nil(t, err)
		assert.Equal(t, 2, applied)
		assert.Equal(t, []string{"7"}, h.activeIds(t))
	})
	t.Run("Should overwrite a listing that is listed again", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(
			h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)),
			h.logs.Listed(160, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(5)),
		)

		_, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)

		listings, _ := h.store.ListActiveListings(ctx)
		assert.Len(t, listings, 1)
		assert.Equal(t, tests.Ether(5).String(), listings[0].PriceWei)
	})
	t.Run("Should skip logs that fail to decode", func(t *testing.T) {
		h := setup(t, testConfig())
		broken := h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1))
		broken.Data = broken.Data[:10]
		noTopics := h.logs.Canceled(151, 0, 8)
		noTopics.Topics = nil

		h.chain.AddLogs(
			broken,
			noTopics,
			h.logs.Listed(152, 0, 9, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)),
		)

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, 1, res.Applied)
		assert.Equal(t, []string{"9"}, h.activeIds(t))
	})
}

func Test_SyncStartBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("Should start at the safe tip when there is no cursor or deploy block", func(t *testing.T) {
		cfg := testConfig()
		cfg.IndexerConfig.DeployBlock = 0
		h := setup(t, cfg)

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, uint64(988), res.From)
		assert.Equal(t, uint64(1), res.Scanned)
	})
	t.Run("Should back track from the cursor", func(t *testing.T) {
		h := setup(t, testConfig())
		assert.Nil(t, h.store.SetCursor(ctx, 900))

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, uint64(700), res.From)
		assert.Equal(t, [2]uint64{700, 799}, h.chain.Calls()[0])
	})
	t.Run("Should floor the back track at zero", func(t *testing.T) {
		cfg := testConfig()
		cfg.IndexerConfig.DeployBlock = 0
		h := setup(t, cfg)
		h.chain.SetHead(300)
		assert.Nil(t, h.store.SetCursor(ctx, 150))

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, uint64(0), res.From)
		assert.Equal(t, uint64(288), res.To)
		assert.Equal(t, uint64(289), res.Scanned)
	})
	t.Run("Should clamp the back track to the deploy block", func(t *testing.T) {
		h := setup(t, testConfig())
		assert.Nil(t, h.store.SetCursor(ctx, 250))

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), res.From)
	})
	t.Run("Should use an explicit from over the cursor", func(t *testing.T) {
		h := setup(t, testConfig())
		assert.Nil(t, h.store.SetCursor(ctx, 900))
		from := uint64(400)

		res, err := h.idx.Sync(ctx, &SyncOptions{From: &from})
		assert.Nil(t, err)
		assert.Equal(t, uint64(400), res.From)
		assert.Equal(t, [2]uint64{400, 499}, h.chain.Calls()[0])
	})
	t.Run("Should clamp an explicit from to the deploy block", func(t *testing.T) {
		h := setup(t, testConfig())
		from := uint64(10)

		res, err := h.idx.Sync(ctx, &SyncOptions{From: &from})
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), res.From)
	})
	t.Run("Should report the window unchanged when the start is past the safe tip", func(t *testing.T) {
		h := setup(t, testConfig())
		from := uint64(2000)

		res, err := h.idx.Sync(ctx, &SyncOptions{From: &from})
		assert.Nil(t, err)
		assert.Equal(t, SyncStatus_Noop, res.Status)
		assert.Equal(t, uint64(0), res.Scanned)
		assert.Equal(t, uint64(2000), res.From)
		assert.Equal(t, uint64(988), res.To)
		assert.Equal(t, uint64(988), res.SafeTip)
		assert.Len(t, h.chain.Calls(), 0)
	})
	t.Run("Should do nothing while the chain is shallower than the confirmation depth", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.SetHead(12)

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, SyncStatus_Noop, res.Status)
		assert.Equal(t, uint64(0), res.SafeTip)
		assert.Len(t, h.chain.Calls(), 0)

		acquired, err := h.store.AcquireLock(ctx, time.Minute)
		assert.Nil(t, err)
		assert.True(t, acquired)
	})
}

func Test_SyncSpan(t *testing.T) {
	ctx := context.Background()

	t.Run("Should shrink the span until the provider accepts it and scan the full window", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.MaxSpan = 30
		h.chain.AddLogs(
			h.logs.Listed(130, 0, 1, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)),
			h.logs.Listed(987, 0, 2, tests.NftAddress, 2, tests.SellerAddress, tests.Ether(1)),
		)

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, SyncStatus_Done, res.Status)
		assert.Equal(t, uint64(889), res.Scanned)
		assert.Equal(t, uint64(988), h.cursor(t))
		assert.Equal(t, []string{"1", "2"}, h.activeIds(t))

		// accepted ranges tile [100, 988] with no gaps
		next := uint64(100)
		for _, call := range h.chain.Calls() {
			if call[1]-call[0]+1 > 30 {
				continue
			}
			assert.Equal(t, next, call[0])
			next = call[1] + 1
		}
		assert.Equal(t, uint64(989), next)

		calls := h.chain.Calls()
		assert.Equal(t, [2]uint64{100, 199}, calls[0])
		assert.Equal(t, [2]uint64{100, 149}, calls[1])
		assert.Equal(t, [2]uint64{100, 124}, calls[2])
		// the span goes back to the max after a successful chunk
		assert.Equal(t, [2]uint64{125, 224}, calls[3])
	})
	t.Run("Should keep the last successful span when configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.IndexerConfig.RememberSpan = true
		h := setup(t, cfg)
		h.chain.MaxSpan = 30

		_, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)

		rejected := 0
		for _, call := range h.chain.Calls() {
			if call[1]-call[0]+1 > 30 {
				rejected++
			}
		}
		assert.Equal(t, 2, rejected)

		before := len(h.chain.Calls())
		_, err = h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		for _, call := range h.chain.Calls()[before:] {
			assert.LessOrEqual(t, call[1]-call[0]+1, uint64(25))
		}
	})
	t.Run("Should clamp a span override to the minimum span", func(t *testing.T) {
		h := setup(t, testConfig())

		_, err := h.idx.Sync(ctx, &SyncOptions{Span: 3})
		assert.Nil(t, err)
		assert.Equal(t, [2]uint64{100, 109}, h.chain.Calls()[0])
	})
	t.Run("Should use a span override for every chunk", func(t *testing.T) {
		h := setup(t, testConfig())

		_, err := h.idx.Sync(ctx, &SyncOptions{Span: 500})
		assert.Nil(t, err)
		assert.Equal(t, [][2]uint64{{100, 599}, {600, 988}}, h.chain.Calls())
	})
	t.Run("Should fail when the provider rejects the minimum span", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.MaxSpan = 5

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, res)
		assert.NotNil(t, err)
		assert.True(t, errors.Is(err, ErrChainUnavailable))

		var indexErr *IndexError
		assert.True(t, errors.As(err, &indexErr))
		assert.Equal(t, IndexError_RangeTooLarge, indexErr.Type)
		assert.Equal(t, uint64(100), indexErr.BlockNumber)

		assert.Equal(t, uint64(0), h.cursor(t))
	})
}

func Test_SyncFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Should surface provider errors and release the lock", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)))
		h.chain.Err = errors.New("connection refused")

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, ErrChainUnavailable))
		assert.Equal(t, uint64(0), h.cursor(t))
		assert.Len(t, h.chain.Calls(), 1)

		h.chain.Err = nil
		res, err = h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, SyncStatus_Done, res.Status)
		assert.Equal(t, []string{"7"}, h.activeIds(t))
	})
	t.Run("Should surface a failure to read the chain height", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.HeadErr = errors.New("503 service unavailable")

		_, err := h.idx.Sync(ctx, nil)
		assert.True(t, errors.Is(err, ErrChainUnavailable))

		acquired, _ := h.store.AcquireLock(ctx, time.Minute)
		assert.True(t, acquired)
	})
	t.Run("Should keep the cursor at the last fully applied chunk", func(t *testing.T) {
		h := setup(t, testConfig())
		calls := 0
		h.chain.BeforeGetLogs = func(ctx context.Context) {
			calls++
			if calls == 3 {
				h.chain.Err = errors.New("connection reset by peer")
			}
		}

		_, err := h.idx.Sync(ctx, nil)
		assert.NotNil(t, err)
		assert.Equal(t, uint64(299), h.cursor(t))
	})
	t.Run("Should surface storage errors", func(t *testing.T) {
		h := setup(t, testConfig())
		assert.Nil(t, h.store.Close())

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, storage.ErrStorageUnavailable))
	})
	t.Run("Should stop when the context is cancelled", func(t *testing.T) {
		h := setup(t, testConfig())
		cctx, cancel := context.WithCancel(ctx)
		h.chain.BeforeGetLogs = func(ctx context.Context) {
			cancel()
		}

		_, err := h.idx.Sync(cctx, nil)
		assert.True(t, errors.Is(err, context.Canceled))

		acquired, _ := h.store.AcquireLock(ctx, time.Minute)
		assert.True(t, acquired)
	})
}

func Test_SyncSingleFlight(t *testing.T) {
	ctx := context.Background()

	t.Run("Should let exactly one concurrent sync do the work", func(t *testing.T) {
		h := setup(t, testConfig())

		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		h.chain.BeforeGetLogs = func(ctx context.Context) {
			once.Do(func() {
				close(entered)
				<-release
			})
		}

		var wg sync.WaitGroup
		var first *SyncResult
		var firstErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, firstErr = h.idx.Sync(ctx, nil)
		}()

		<-entered
		second, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.True(t, second.IsBusy())
		assert.Equal(t, uint64(0), second.Scanned)
		assert.Equal(t, uint64(0), second.From)
		assert.Equal(t, uint64(0), second.To)
		assert.Equal(t, uint64(0), second.SafeTip)

		close(release)
		wg.Wait()

		assert.Nil(t, firstErr)
		assert.Equal(t, SyncStatus_Done, first.Status)
		assert.Equal(t, uint64(889), first.Scanned)
	})
	t.Run("Should report busy while the lock is held elsewhere", func(t *testing.T) {
		h := setup(t, testConfig())
		acquired, _ := h.store.AcquireLock(ctx, time.Minute)
		assert.True(t, acquired)

		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, SyncStatus_Busy, res.Status)
		assert.Len(t, h.chain.Calls(), 0)
	})
}

func Test_SyncEvents(t *testing.T) {
	t.Run("Should publish a completed event for every pass that held the lock", func(t *testing.T) {
		h := setup(t, testConfig())
		consumer := &eventBusTypes.Consumer{
			Id:      "test",
			Context: context.Background(),
			Channel: make(chan *eventBusTypes.Event, 4),
		}
		h.bus.Subscribe(consumer)

		_, err := h.idx.Sync(context.Background(), nil)
		assert.Nil(t, err)

		select {
		case event := <-consumer.Channel:
			assert.Equal(t, eventBusTypes.Event_SyncCompleted, event.Name)
			data := event.Data.(*eventBusTypes.SyncCompletedData)
			assert.Equal(t, "done", data.Status)
			assert.Equal(t, uint64(889), data.Scanned)
			assert.Equal(t, uint64(988), data.SafeTip)
		case <-time.After(time.Second):
			t.Fatal("no event published")
		}
	})
}

func Test_Admin(t *testing.T) {
	ctx := context.Background()

	t.Run("Should reindex from the given height regardless of a higher cursor", func(t *testing.T) {
		h := setup(t, testConfig())
		assert.Nil(t, h.store.SetCursor(ctx, 5000))
		assert.Nil(t, h.store.UpsertListing(ctx, &storage.ActiveListing{ListingId: "1", PriceWei: "1"}))
		h.chain.AddLogs(h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)))

		res, err := h.idx.ReindexFrom(ctx, 100)
		assert.Nil(t, err)
		assert.Equal(t, SyncStatus_Done, res.Status)
		assert.Equal(t, uint64(100), res.From)

		calls := h.chain.Calls()
		assert.GreaterOrEqual(t, calls[0][0], uint64(99))
		assert.Equal(t, uint64(988), h.cursor(t))
		assert.Equal(t, []string{"1", "7"}, h.activeIds(t))
	})
	t.Run("Should reject a missing reindex height without touching the cursor", func(t *testing.T) {
		h := setup(t, testConfig())
		assert.Nil(t, h.store.SetCursor(ctx, 5000))

		res, err := h.idx.ReindexFrom(ctx, 0)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, uint64(5000), h.cursor(t))
		assert.Len(t, h.chain.Calls(), 0)
	})
	t.Run("Should not rewind the cursor when a sync is running", func(t *testing.T) {
		h := setup(t, testConfig())
		assert.Nil(t, h.store.SetCursor(ctx, 5000))
		acquired, _ := h.store.AcquireLock(ctx, time.Minute)
		assert.True(t, acquired)

		res, err := h.idx.ReindexFrom(ctx, 100)
		assert.Nil(t, err)
		assert.True(t, res.IsBusy())
		assert.Equal(t, uint64(5000), h.cursor(t))
	})
	t.Run("Should clear every listing and the cursor", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(
			h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)),
			h.logs.Listed(151, 0, 8, tests.NftAddress, 2, tests.SellerAddress, tests.Ether(1)),
		)
		_, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)

		consumer := &eventBusTypes.Consumer{Id: "test", Channel: make(chan *eventBusTypes.Event, 1)}
		h.bus.Subscribe(consumer)

		assert.Nil(t, h.idx.ClearAll(ctx))
		assert.Len(t, h.activeIds(t), 0)
		assert.Equal(t, uint64(0), h.cursor(t))

		event := <-consumer.Channel
		assert.Equal(t, eventBusTypes.Event_ListingsCleared, event.Name)

		// a fresh pass rebuilds from the deploy block
		res, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), res.From)
		assert.Equal(t, []string{"7", "8"}, h.activeIds(t))
	})
	t.Run("Should refuse to clear while a sync holds the lock", func(t *testing.T) {
		h := setup(t, testConfig())
		assert.Nil(t, h.store.UpsertListing(ctx, &storage.ActiveListing{ListingId: "1", PriceWei: "1"}))
		acquired, _ := h.store.AcquireLock(ctx, time.Minute)
		assert.True(t, acquired)

		err := h.idx.ClearAll(ctx)
		assert.True(t, errors.Is(err, ErrSyncInProgress))
		assert.Equal(t, []string{"1"}, h.activeIds(t))
	})
	t.Run("Should report the cursor and listing count", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.AddLogs(h.logs.Listed(150, 0, 7, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)))
		_, err := h.idx.Sync(ctx, nil)
		assert.Nil(t, err)

		status, err := h.idx.GetStatus(ctx)
		assert.Nil(t, err)
		assert.Equal(t, &Status{LastBlock: 988, ActiveListings: 1}, status)
	})
}

func Test_ScanRecent(t *testing.T) {
	ctx := context.Background()

	seed := func(h *harness) {
		h.chain.AddLogs(
			h.logs.Listed(150, 0, 1, tests.NftAddress, 1, tests.SellerAddress, tests.Ether(1)),
			h.logs.Listed(200, 0, 2, tests.NftAddress, 2, tests.SellerAddress, tests.Ether(2)),
			h.logs.Canceled(300, 0, 1),
			h.logs.Listed(995, 0, 4, tests.NftAddress, 4, tests.SellerAddress, tests.Ether(4)),
			h.logs.Purchased(996, 0, 4, tests.BuyerAddress, tests.Ether(4)),
			h.logs.Listed(999, 0, 3, tests.NftAddress, 3, tests.SellerAddress, tests.Ether(3)),
		)
	}
	ids := func(res *LiveScanResult) []string {
		out := make([]string, 0, len(res.Listings))
		for _, l := range res.Listings {
			out = append(out, l.ListingId)
		}
		sort.Strings(out)
		return out
	}

	t.Run("Should fold recent logs up to the head without touching the store", func(t *testing.T) {
		h := setup(t, testConfig())
		seed(h)

		res, err := h.idx.ScanRecent(ctx, 950)
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), res.From)
		assert.Equal(t, uint64(1000), res.To)
		assert.Equal(t, uint64(901), res.Scanned)
		assert.Equal(t, []string{"2", "3"}, ids(res))

		assert.Empty(t, h.activeIds(t))
		assert.Equal(t, uint64(0), h.cursor(t))
	})
	t.Run("Should only see listings inside the lookback window", func(t *testing.T) {
		h := setup(t, testConfig())
		seed(h)

		res, err := h.idx.ScanRecent(ctx, 100)
		assert.Nil(t, err)
		assert.Equal(t, uint64(900), res.From)
		assert.Equal(t, []string{"3"}, ids(res))
		assert.Equal(t, [][2]uint64{{900, 999}, {1000, 1000}}, h.chain.Calls())
	})
	t.Run("Should shrink the span when the provider rejects it", func(t *testing.T) {
		h := setup(t, testConfig())
		seed(h)
		h.chain.MaxSpan = 30

		res, err := h.idx.ScanRecent(ctx, 950)
		assert.Nil(t, err)
		assert.Equal(t, []string{"2", "3"}, ids(res))
	})
	t.Run("Should run while a sync holds the lock", func(t *testing.T) {
		h := setup(t, testConfig())
		seed(h)
		acquired, err := h.store.AcquireLock(ctx, time.Minute)
		assert.Nil(t, err)
		assert.True(t, acquired)

		res, err := h.idx.ScanRecent(ctx, 950)
		assert.Nil(t, err)
		assert.Len(t, res.Listings, 2)
	})
	t.Run("Should reject a zero lookback", func(t *testing.T) {
		h := setup(t, testConfig())

		res, err := h.idx.ScanRecent(ctx, 0)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Len(t, h.chain.Calls(), 0)
	})
	t.Run("Should surface provider errors", func(t *testing.T) {
		h := setup(t, testConfig())
		h.chain.Err = errors.New("connection refused")

		res, err := h.idx.ScanRecent(ctx, 950)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, ErrChainUnavailable))
	})
}
