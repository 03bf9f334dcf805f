package listingsDataService

import (
	"context"
	"math/big"
	"slices"

	"github.com/Layr-Labs/marketplace-indexer/internal/types/numbers"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/Layr-Labs/marketplace-indexer/pkg/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 24
	MaxLimit     = 60
)

// ErrInvalidArgument marks caller input that cannot be parsed.
var ErrInvalidArgument = errors.New("invalid argument")

type ListingsDataService struct {
	store  storage.ListingStore
	logger *zap.Logger
}

func NewListingsDataService(store storage.ListingStore, logger *zap.Logger) *ListingsDataService {
	return &ListingsDataService{
		store:  store,
		logger: logger,
	}
}

// ListingsFilter holds optional equality and inclusive price filters. Empty
// fields do not filter. Prices are decimal ether strings.
type ListingsFilter struct {
	Seller string
	Nft    string
	MinEth string
	MaxEth string
}

// Listing is an active listing with its price rendered in ether.
type Listing struct {
	storage.ActiveListing
	PriceEth string `json:"priceEth" csv:"price_eth"`
}

type ListActiveResult struct {
	Items []*Listing `json:"items"`
	// NextCursor is nil once a page comes back shorter than the limit.
	NextCursor *string `json:"nextCursor"`
}

// ClampLimit bounds limit to [1, MaxLimit].
func ClampLimit(limit int) int {
	return min(max(limit, 1), MaxLimit)
}

type priceRange struct {
	min *big.Int
	max *big.Int
}

func parsePriceRange(filter *ListingsFilter) (*priceRange, error) {
	r := &priceRange{}
	if filter.MinEth != "" {
		v, err := numbers.ParseEtherToWei(filter.MinEth)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidArgument, err.Error())
		}
		r.min = v
	}
	if filter.MaxEth != "" {
		v, err := numbers.ParseEtherToWei(filter.MaxEth)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidArgument, err.Error())
		}
		r.max = v
	}
	return r, nil
}

func (r *priceRange) contains(price *big.Int) bool {
	if r.min != nil && price.Cmp(r.min) < 0 {
		return false
	}
	if r.max != nil && price.Cmp(r.max) > 0 {
		return false
	}
	return true
}

type sortableListing struct {
	listing *storage.ActiveListing
	id      *big.Int
	price   *big.Int
}

// ListActive filters the active set, orders it by listing id descending and
// returns at most limit rows with ids strictly below cursor.
func (lds *ListingsDataService) ListActive(ctx context.Context, filter *ListingsFilter, cursor string, limit int) (*ListActiveResult, error) {
	if filter == nil {
		filter = &ListingsFilter{}
	}
	limit = ClampLimit(limit)

	prices, err := parsePriceRange(filter)
	if err != nil {
		return nil, err
	}

	var cursorId *big.Int
	if cursor != "" {
		cursorId, err = numbers.ParseUint256(cursor)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidArgument, err.Error())
		}
	}

	seller := utils.NormalizeAddress(filter.Seller)
	nft := utils.NormalizeAddress(filter.Nft)

	listings, err := lds.store.ListActiveListings(ctx)
	if err != nil {
		return nil, err
	}

	rows := lds.toSortable(listings)

	rows = utils.Filter(rows, func(r *sortableListing) bool {
		if seller != "" && !utils.AreAddressesEqual(r.listing.Seller, seller) {
			return false
		}
		if nft != "" && !utils.AreAddressesEqual(r.listing.NftContract, nft) {
			return false
		}
		if cursorId != nil && r.id.Cmp(cursorId) >= 0 {
			return false
		}
		return prices.contains(r.price)
	})

	sortByIdDesc(rows)

	if len(rows) > limit {
		rows = rows[:limit]
	}

	result := &ListActiveResult{
		Items: utils.Map(rows, toListing),
	}
	if len(result.Items) == limit {
		next := result.Items[len(result.Items)-1].ListingId
		result.NextCursor = &next
	}
	return result, nil
}

// Render orders listings by id descending and adds ether prices. Rows with
// unparseable ids or prices are dropped.
func (lds *ListingsDataService) Render(listings []*storage.ActiveListing) []*Listing {
	rows := lds.toSortable(listings)
	sortByIdDesc(rows)
	return utils.Map(rows, toListing)
}

func (lds *ListingsDataService) toSortable(listings []*storage.ActiveListing) []*sortableListing {
	rows := make([]*sortableListing, 0, len(listings))
	for _, l := range listings {
		id, err := numbers.ParseUint256(l.ListingId)
		if err != nil {
			lds.logger.Sugar().Debugw("Skipping listing with invalid id", zap.String("listingId", l.ListingId))
			continue
		}
		price, err := numbers.ParseUint256(l.PriceWei)
		if err != nil {
			lds.logger.Sugar().Debugw("Skipping listing with invalid price",
				zap.String("listingId", l.ListingId),
				zap.String("priceWei", l.PriceWei),
			)
			continue
		}
		rows = append(rows, &sortableListing{listing: l, id: id, price: price})
	}
	return rows
}

func sortByIdDesc(rows []*sortableListing) {
	slices.SortFunc(rows, func(a, b *sortableListing) int {
		return b.id.Cmp(a.id)
	})
}

func toListing(r *sortableListing, i uint64) *Listing {
	return &Listing{
		ActiveListing: *r.listing,
		PriceEth:      numbers.FormatWeiAsEther(r.price),
	}
}

// IsInvalidArgument reports whether err came from unparseable caller input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
