package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Namespace(t *testing.T) {
	ns := NewNamespace(11155111, "0xABCDEF0123456789abcdef0123456789ABCDEF01")

	t.Run("Should lowercase the address in every key", func(t *testing.T) {
		assert.Equal(t, "11155111:0xabcdef0123456789abcdef0123456789abcdef01", ns.String())
		assert.Equal(t, "11155111:0xabcdef0123456789abcdef0123456789abcdef01:idx:lastBlock", ns.CursorKey())
		assert.Equal(t, "11155111:0xabcdef0123456789abcdef0123456789abcdef01:idx:activeIds", ns.ActiveIdsKey())
		assert.Equal(t, "11155111:0xabcdef0123456789abcdef0123456789abcdef01:idx:listing:7", ns.ListingKey("7"))
		assert.Equal(t, "11155111:0xabcdef0123456789abcdef0123456789abcdef01:idx:lock", ns.LockKey())
	})
	t.Run("Should not collide across chains", func(t *testing.T) {
		other := NewNamespace(1, ns.ContractAddress)
		assert.NotEqual(t, ns.CursorKey(), other.CursorKey())
	})
}

func Test_StorageError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("sync failed: %w", NewStorageError("redis", "SetCursor", cause))

	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "redis: SetCursor: connection reset")
}

func Test_ActiveListingSerialization(t *testing.T) {
	t.Run("Should round trip", func(t *testing.T) {
		a := &ActiveListing{ListingId: "1", NftContract: "0xaa", TokenId: "2", Seller: "0xbb", PriceWei: "3"}
		data, err := a.Marshal()
		assert.Nil(t, err)
		assert.JSONEq(t, `{"listingId":"1","nftContract":"0xaa","tokenId":"2","seller":"0xbb","priceWei":"3"}`, string(data))

		parsed, err := UnmarshalActiveListing(data)
		assert.Nil(t, err)
		assert.Equal(t, a, parsed)
	})
	t.Run("Should reject garbage", func(t *testing.T) {
		_, err := UnmarshalActiveListing([]byte("not json"))
		assert.NotNil(t, err)
		_, err = UnmarshalActiveListing([]byte(`{}`))
		assert.NotNil(t, err)
	})
}
