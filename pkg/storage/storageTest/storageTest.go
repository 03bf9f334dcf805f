// Package storageTest is a behavioural suite every ListingStore backend runs.
package storageTest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/stretchr/testify/assert"
)

// StoreOpener opens a store for ns against one shared backing database.
type StoreOpener func(ns storage.Namespace) storage.ListingStore

// NewBackend returns an opener over a fresh, empty backing database.
type NewBackend func(t *testing.T) StoreOpener

var (
	DefaultNamespace = storage.NewNamespace(11155111, "0x5fbdb2315678afecb367f032d93f642f64180aa3")
	OtherNamespace   = storage.NewNamespace(1, "0x5fbdb2315678afecb367f032d93f642f64180aa3")
)

func listing(id string, price string) *storage.ActiveListing {
	return &storage.ActiveListing{
		ListingId:   id,
		NftContract: "0xe7f1725e7734ce288f8367e1bb143e90bb3f0512",
		TokenId:     id,
		Seller:      "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		PriceWei:    price,
	}
}

func ids(listings []*storage.ActiveListing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.ListingId)
	}
	sort.Strings(out)
	return out
}

func RunListingStoreTests(t *testing.T, newBackend NewBackend) {
	ctx := context.Background()

	open := func(t *testing.T) storage.ListingStore {
		store := newBackend(t)(DefaultNamespace)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("Cursor", func(t *testing.T) {
		t.Run("Should read an absent cursor as 0", func(t *testing.T) {
			store := open(t)
			cursor, err := store.GetCursor(ctx)
			assert.Nil(t, err)
			assert.Equal(t, uint64(0), cursor)
		})
		t.Run("Should set, rewind and delete the cursor", func(t *testing.T) {
			store := open(t)

			assert.Nil(t, store.SetCursor(ctx, 12345))
			cursor, err := store.GetCursor(ctx)
			assert.Nil(t, err)
			assert.Equal(t, uint64(12345), cursor)

			assert.Nil(t, store.SetCursor(ctx, 99))
			cursor, _ = store.GetCursor(ctx)
			assert.Equal(t, uint64(99), cursor)

			assert.Nil(t, store.DeleteCursor(ctx))
			cursor, err = store.GetCursor(ctx)
			assert.Nil(t, err)
			assert.Equal(t, uint64(0), cursor)
		})
	})

	t.Run("Listings", func(t *testing.T) {
		t.Run("Should return an empty set", func(t *testing.T) {
			store := open(t)
			listings, err := store.ListActiveListings(ctx)
			assert.Nil(t, err)
			assert.Len(t, listings, 0)
		})
		t.Run("Should upsert idempotently", func(t *testing.T) {
			store := open(t)

			assert.Nil(t, store.UpsertListing(ctx, listing("7", "100")))
			assert.Nil(t, store.UpsertListing(ctx, listing("7", "100")))

			listings, err := store.ListActiveListings(ctx)
			assert.Nil(t, err)
			assert.Len(t, listings, 1)
			assert.Equal(t, listing("7", "100"), listings[0])
		})
		t.Run("Should overwrite an existing listing", func(t *testing.T) {
			store := open(t)

			assert.Nil(t, store.UpsertListing(ctx, listing("7", "100")))
			assert.Nil(t, store.UpsertListing(ctx, listing("7", "250")))

			listings, err := store.ListActiveListings(ctx)
			assert.Nil(t, err)
			assert.Len(t, listings, 1)
			assert.Equal(t, "250", listings[0].PriceWei)
		})
		t.Run("Should treat removing an unknown id as a no-op", func(t *testing.T) {
			store := open(t)
			assert.Nil(t, store.RemoveListing(ctx, "404"))

			listings, err := store.ListActiveListings(ctx)
			assert.Nil(t, err)
			assert.Len(t, listings, 0)
		})
		t.Run("Should remove only the given listing", func(t *testing.T) {
			store := open(t)
			for _, id := range []string{"1", "2", "3"} {
				assert.Nil(t, store.UpsertListing(ctx, listing(id, "1")))
			}
			assert.Nil(t, store.RemoveListing(ctx, "2"))
			assert.Nil(t, store.RemoveListing(ctx, "2"))

			listings, err := store.ListActiveListings(ctx)
			assert.Nil(t, err)
			assert.Equal(t, []string{"1", "3"}, ids(listings))
		})
		t.Run("Should clear listings without touching the cursor", func(t *testing.T) {
			store := open(t)
			assert.Nil(t, store.SetCursor(ctx, 500))
			for _, id := range []string{"1", "2", "3"} {
				assert.Nil(t, store.UpsertListing(ctx, listing(id, "1")))
			}

			assert.Nil(t, store.ClearListings(ctx))

			listings, err := store.ListActiveListings(ctx)
			assert.Nil(t, err)
			assert.Len(t, listings, 0)

			cursor, _ := store.GetCursor(ctx)
			assert.Equal(t, uint64(500), cursor)

			assert.Nil(t, store.UpsertListing(ctx, listing("9", "1")))
			listings, _ = store.ListActiveListings(ctx)
			assert.Equal(t, []string{"9"}, ids(listings))
		})
		t.Run("Should clear an empty store", func(t *testing.T) {
			store := open(t)
			assert.Nil(t, store.ClearListings(ctx))
		})
	})

	t.Run("Lock", func(t *testing.T) {
		t.Run("Should grant the lock to exactly one caller", func(t *testing.T) {
			store := open(t)

			acquired, err := store.AcquireLock(ctx, time.Minute)
			assert.Nil(t, err)
			assert.True(t, acquired)

			acquired, err = store.AcquireLock(ctx, time.Minute)
			assert.Nil(t, err)
			assert.False(t, acquired)
		})
		t.Run("Should allow reacquiring after release", func(t *testing.T) {
			store := open(t)

			acquired, _ := store.AcquireLock(ctx, time.Minute)
			assert.True(t, acquired)
			assert.Nil(t, store.ReleaseLock(ctx))

			acquired, err := store.AcquireLock(ctx, time.Minute)
			assert.Nil(t, err)
			assert.True(t, acquired)
		})
		t.Run("Should release a lock that is not held", func(t *testing.T) {
			store := open(t)
			assert.Nil(t, store.ReleaseLock(ctx))
		})
	})

	t.Run("Namespaces", func(t *testing.T) {
		t.Run("Should isolate every key by namespace", func(t *testing.T) {
			opener := newBackend(t)
			a := opener(DefaultNamespace)
			b := opener(OtherNamespace)
			t.Cleanup(func() {
				_ = a.Close()
				_ = b.Close()
			})

			assert.Nil(t, a.SetCursor(ctx, 10))
			assert.Nil(t, a.UpsertListing(ctx, listing("1", "1")))
			acquired, _ := a.AcquireLock(ctx, time.Minute)
			assert.True(t, acquired)

			cursor, err := b.GetCursor(ctx)
			assert.Nil(t, err)
			assert.Equal(t, uint64(0), cursor)

			listings, err := b.ListActiveListings(ctx)
			assert.Nil(t, err)
			assert.Len(t, listings, 0)

			acquired, err = b.AcquireLock(ctx, time.Minute)
			assert.Nil(t, err)
			assert.True(t, acquired)

			assert.Nil(t, b.ClearListings(ctx))
			listings, _ = a.ListActiveListings(ctx)
			assert.Len(t, listings, 1)
		})
	})
}
