package listingsDataService

import (
	"context"
	"fmt"
	"testing"

	"github.com/Layr-Labs/marketplace-indexer/internal/tests"
	"github.com/Layr-Labs/marketplace-indexer/pkg/logger"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage/levelDbListingStore"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage/storageTest"
	"github.com/stretchr/testify/assert"
)

const otherSeller = "0x90f79bf6eb2c4f870365e785982e1f101e93b906"

func setup(t *testing.T) (*ListingsDataService, storage.ListingStore) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	assert.Nil(t, err)

	db, err := levelDbListingStore.OpenInMemoryLevelDb()
	if err != nil {
		t.Fatalf("Failed to open leveldb: %v", err)
	}
	store := levelDbListingStore.NewLevelDbListingStore(db, storageTest.DefaultNamespace, l)
	t.Cleanup(func() { _ = store.Close() })

	return NewListingsDataService(store, l), store
}

// seedFive stores listings 1..5 priced 1..5 ETH. Even ids belong to otherSeller.
func seedFive(t *testing.T, store storage.ListingStore) {
	for i := int64(1); i <= 5; i++ {
		seller := tests.SellerAddress
		if i%2 == 0 {
			seller = otherSeller
		}
		err := store.UpsertListing(context.Background(), &storage.ActiveListing{
			ListingId:   fmt.Sprintf("%d", i),
			NftContract: tests.NftAddress,
			TokenId:     fmt.Sprintf("%d", 100+i),
			Seller:      seller,
			PriceWei:    tests.Ether(i).String(),
		})
		assert.Nil(t, err)
	}
}

func ids(res *ListActiveResult) []string {
	out := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		out = append(out, item.ListingId)
	}
	return out
}

func Test_ListActive(t *testing.T) {
	ctx := context.Background()

	t.Run("Should paginate by listing id descending", func(t *testing.T) {
		lds, store := setup(t)
		seedFive(t, store)

		res, err := lds.ListActive(ctx, &ListingsFilter{}, "", 2)
		assert.Nil(t, err)
		assert.Equal(t, []string{"5", "4"}, ids(res))
		assert.NotNil(t, res.NextCursor)
		assert.Equal(t, "4", *res.NextCursor)

		res, err = lds.ListActive(ctx, &ListingsFilter{}, *res.NextCursor, 2)
		assert.Nil(t, err)
		assert.Equal(t, []string{"3", "2"}, ids(res))
		assert.Equal(t, "2", *res.NextCursor)

		res, err = lds.ListActive(ctx, &ListingsFilter{}, *res.NextCursor, 2)
		assert.Nil(t, err)
		assert.Equal(t, []string{"1"}, ids(res))
		assert.Nil(t, res.NextCursor)
	})
	t.Run("Should filter by an inclusive ether price range", func(t *testing.T) {
		lds, store := setup(t)
		seedFive(t, store)

		res, err := lds.ListActive(ctx, &ListingsFilter{MinEth: "2", MaxEth: "4"}, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Equal(t, []string{"4", "3", "2"}, ids(res))
		assert.Nil(t, res.NextCursor)
	})
	t.Run("Should accept fractional ether bounds", func(t *testing.T) {
		lds, store := setup(t)
		seedFive(t, store)

		res, err := lds.ListActive(ctx, &ListingsFilter{MinEth: "4.5"}, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Equal(t, []string{"5"}, ids(res))

		res, err = lds.ListActive(ctx, &ListingsFilter{MaxEth: "0.999999999999999999"}, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Len(t, res.Items, 0)
	})
	t.Run("Should filter by seller ignoring case", func(t *testing.T) {
		lds, store := setup(t)
		seedFive(t, store)

		res, err := lds.ListActive(ctx, &ListingsFilter{Seller: "0x90F79bf6EB2c4f870365E785982E1f101E93b906"}, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Equal(t, []string{"4", "2"}, ids(res))
	})
	t.Run("Should filter by nft contract", func(t *testing.T) {
		lds, store := setup(t)
		seedFive(t, store)

		res, err := lds.ListActive(ctx, &ListingsFilter{Nft: "0xE7F1725E7734CE288F8367E1BB143E90BB3F0512"}, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Len(t, res.Items, 5)

		res, err = lds.ListActive(ctx, &ListingsFilter{Nft: tests.MarketplaceAddress}, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Len(t, res.Items, 0)
	})
	t.Run("Should order ids numerically", func(t *testing.T) {
		lds, store := setup(t)
		for _, id := range []string{"9", "10", "100"} {
			assert.Nil(t, store.UpsertListing(ctx, &storage.ActiveListing{ListingId: id, PriceWei: "1"}))
		}

		res, err := lds.ListActive(ctx, nil, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Equal(t, []string{"100", "10", "9"}, ids(res))

		res, err = lds.ListActive(ctx, nil, "10", DefaultLimit)
		assert.Nil(t, err)
		assert.Equal(t, []string{"9"}, ids(res))
	})
	t.Run("Should render the price in ether", func(t *testing.T) {
		lds, store := setup(t)
		assert.Nil(t, store.UpsertListing(ctx, &storage.ActiveListing{ListingId: "1", PriceWei: "1500000000000000000"}))

		res, err := lds.ListActive(ctx, nil, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Equal(t, "1.5", res.Items[0].PriceEth)
		assert.Equal(t, "1500000000000000000", res.Items[0].PriceWei)
	})
	t.Run("Should skip records with unparseable ids or prices", func(t *testing.T) {
		lds, store := setup(t)
		assert.Nil(t, store.UpsertListing(ctx, &storage.ActiveListing{ListingId: "abc", PriceWei: "1"}))
		assert.Nil(t, store.UpsertListing(ctx, &storage.ActiveListing{ListingId: "2", PriceWei: "-"}))
		assert.Nil(t, store.UpsertListing(ctx, &storage.ActiveListing{ListingId: "3", PriceWei: "1"}))

		res, err := lds.ListActive(ctx, nil, "", DefaultLimit)
		assert.Nil(t, err)
		assert.Equal(t, []string{"3"}, ids(res))
	})
	t.Run("Should clamp the limit", func(t *testing.T) {
		lds, store := setup(t)
		seedFive(t, store)

		res, err := lds.ListActive(ctx, nil, "", 0)
		assert.Nil(t, err)
		assert.Equal(t, []string{"5"}, ids(res))

		assert.Equal(t, MaxLimit, ClampLimit(1000))
		assert.Equal(t, 1, ClampLimit(-3))
		assert.Equal(t, 24, ClampLimit(24))
	})
	t.Run("Should reject unparseable input", func(t *testing.T) {
		lds, store := setup(t)
		seedFive(t, store)

		for _, filter := range []*ListingsFilter{
			{MinEth: "cheap"},
			{MaxEth: "-1"},
			{MinEth: "0.0000000000000000001"},
		} {
			_, err := lds.ListActive(ctx, filter, "", DefaultLimit)
			assert.True(t, IsInvalidArgument(err), "filter %+v", filter)
		}

		_, err := lds.ListActive(ctx, nil, "not-a-number", DefaultLimit)
		assert.True(t, IsInvalidArgument(err))
	})
	t.Run("Should return storage errors as-is", func(t *testing.T) {
		lds, store := setup(t)
		assert.Nil(t, store.Close())

		_, err := lds.ListActive(ctx, nil, "", DefaultLimit)
		assert.ErrorIs(t, err, storage.ErrStorageUnavailable)
		assert.False(t, IsInvalidArgument(err))
	})
}
