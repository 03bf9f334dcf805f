package indexer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"github.com/Layr-Labs/marketplace-indexer/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/marketplace-indexer/pkg/fetcher"
	"github.com/Layr-Labs/marketplace-indexer/pkg/marketEvents"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Indexer projects marketplace logs into the active listing store. Every
// mutation of the store happens while holding the store's sync lock.
type Indexer struct {
	Logger      *zap.Logger
	Store       storage.ListingStore
	Fetcher     *fetcher.Fetcher
	Decoder     *marketEvents.Decoder
	EventBus    eventBusTypes.IEventBus
	MetricsSink *metrics.MetricsSink
	Config      *config.Config

	// last span that returned logs, used when IndexerConfig.RememberSpan is set
	lastSpan atomic.Uint64
}

// IndexErrorType identifies different categories of indexing errors
type IndexErrorType int

const (
	// IndexError_StorageUnavailable is a backend fault of the listing store
	IndexError_StorageUnavailable IndexErrorType = 1
	// IndexError_ChainUnavailable is any provider failure other than a range limit
	IndexError_ChainUnavailable IndexErrorType = 2
	// IndexError_RangeTooLarge is raised only when the provider rejects the minimum span.
	// Retrying at the floor would keep the lock held until its TTL runs out, so
	// the pass fails instead and the next pass starts from the same cursor.
	IndexError_RangeTooLarge IndexErrorType = 3
	// IndexError_Validation is bad caller input, rejected before any state changes
	IndexError_Validation IndexErrorType = 4
)

var (
	ErrValidation       = errors.New("validation error")
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrSyncInProgress is returned by admin operations that find the lock held.
	ErrSyncInProgress = errors.New("sync already in progress")
)

func (t IndexErrorType) String() string {
	switch t {
	case IndexError_StorageUnavailable:
		return "storage_unavailable"
	case IndexError_ChainUnavailable:
		return "chain_unavailable"
	case IndexError_RangeTooLarge:
		return "range_too_large"
	case IndexError_Validation:
		return "validation"
	}
	return "unknown"
}

// IndexError represents a structured error during a sync pass
type IndexError struct {
	Type        IndexErrorType
	Err         error
	BlockNumber uint64
	Metadata    map[string]interface{}
	Message     string
}

func (e *IndexError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("IndexError(%s): %s: %s", e.Type, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("IndexError(%s): %s", e.Type, e.Err.Error())
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// Is lets callers match the error class with errors.Is. Storage faults match
// storage.ErrStorageUnavailable through Unwrap.
func (e *IndexError) Is(target error) bool {
	switch e.Type {
	case IndexError_Validation:
		return target == ErrValidation
	case IndexError_ChainUnavailable, IndexError_RangeTooLarge:
		return target == ErrChainUnavailable
	}
	return false
}

func NewIndexError(t IndexErrorType, err error) *IndexError {
	return &IndexError{
		Type:     t,
		Err:      err,
		Metadata: make(map[string]interface{}),
	}
}

func (e *IndexError) WithBlockNumber(blockNumber uint64) *IndexError {
	e.BlockNumber = blockNumber
	return e
}

func (e *IndexError) WithMetadata(key string, value interface{}) *IndexError {
	e.Metadata[key] = value
	return e
}

func (e *IndexError) WithMessage(message string) *IndexError {
	e.Message = message
	return e
}

func NewIndexer(
	store storage.ListingStore,
	f *fetcher.Fetcher,
	d *marketEvents.Decoder,
	eb eventBusTypes.IEventBus,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *Indexer {
	return &Indexer{
		Logger:      l,
		Store:       store,
		Fetcher:     f,
		Decoder:     d,
		EventBus:    eb,
		MetricsSink: ms,
		Config:      cfg,
	}
}

// Status is the read-only view of the projection.
type Status struct {
	LastBlock      uint64 `json:"lastBlock"`
	ActiveListings int    `json:"activeListings"`
}

// GetStatus reads the cursor and the number of active listings without taking the lock.
func (idx *Indexer) GetStatus(ctx context.Context) (*Status, error) {
	cursor, err := idx.Store.GetCursor(ctx)
	if err != nil {
		return nil, NewIndexError(IndexError_StorageUnavailable, err)
	}
	listings, err := idx.Store.ListActiveListings(ctx)
	if err != nil {
		return nil, NewIndexError(IndexError_StorageUnavailable, err)
	}
	return &Status{
		LastBlock:      cursor,
		ActiveListings: len(listings),
	}, nil
}

func (idx *Indexer) rpcHost() string {
	return idx.Config.EthereumRpcConfig.Host()
}
