package contractAbi

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func Test_MarketplaceAbi(t *testing.T) {
	l := zap.NewNop()

	t.Run("Should parse all marketplace events", func(t *testing.T) {
		a, err := GetMarketplaceAbi(l)
		assert.Nil(t, err)

		for _, name := range []string{EventName_Listed, EventName_Canceled, EventName_Purchased} {
			_, ok := a.Events[name]
			assert.True(t, ok, name)
		}
	})
	t.Run("Should compute the Listed event signature", func(t *testing.T) {
		a, err := GetMarketplaceAbi(l)
		assert.Nil(t, err)

		expected := crypto.Keccak256Hash([]byte("Listed(uint256,address,uint256,address,uint256)"))
		assert.Equal(t, expected, a.Events[EventName_Listed].ID)
	})
	t.Run("Should ignore duplicate fallback errors", func(t *testing.T) {
		json := `[{"type":"fallback"},{"type":"fallback"}]`
		_, err := UnmarshalJsonToAbi(json, l)
		assert.Nil(t, err)
	})
	t.Run("Should return an error for invalid json", func(t *testing.T) {
		_, err := UnmarshalJsonToAbi(`{not json`, l)
		assert.NotNil(t, err)
	})
}
