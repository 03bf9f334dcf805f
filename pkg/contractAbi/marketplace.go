package contractAbi

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"go.uber.org/zap"
)

// Event names emitted by the marketplace contract.
const (
	EventName_Listed    = "Listed"
	EventName_Canceled  = "Canceled"
	EventName_Purchased = "Purchased"
)

// MarketplaceEventsAbi is the event subset of the marketplace contract ABI.
// Only these three events are indexed.
const MarketplaceEventsAbi = `[
	{
		"type": "event",
		"name": "Listed",
		"anonymous": false,
		"inputs": [
			{"name": "listingId", "type": "uint256", "indexed": true},
			{"name": "nft", "type": "address", "indexed": true},
			{"name": "tokenId", "type": "uint256", "indexed": true},
			{"name": "seller", "type": "address", "indexed": false},
			{"name": "price", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "Canceled",
		"anonymous": false,
		"inputs": [
			{"name": "listingId", "type": "uint256", "indexed": true}
		]
	},
	{
		"type": "event",
		"name": "Purchased",
		"anonymous": false,
		"inputs": [
			{"name": "listingId", "type": "uint256", "indexed": true},
			{"name": "buyer", "type": "address", "indexed": true},
			{"name": "price", "type": "uint256", "indexed": false}
		]
	}
]`

// GetMarketplaceAbi parses MarketplaceEventsAbi.
func GetMarketplaceAbi(l *zap.Logger) (*abi.ABI, error) {
	return UnmarshalJsonToAbi(MarketplaceEventsAbi, l)
}
