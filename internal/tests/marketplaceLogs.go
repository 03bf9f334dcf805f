package tests

import (
	"math/big"

	"github.com/Layr-Labs/marketplace-indexer/pkg/contractAbi"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const (
	MarketplaceAddress = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	NftAddress         = "0xe7f1725e7734ce288f8367e1bb143e90bb3f0512"
	SellerAddress      = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	BuyerAddress       = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
)

var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Ether returns n ETH in wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneEther)
}

// MarketplaceLogBuilder produces ABI encoded marketplace logs.
type MarketplaceLogBuilder struct {
	abi     *abi.ABI
	address common.Address
}

func NewMarketplaceLogBuilder(address string) *MarketplaceLogBuilder {
	a, err := contractAbi.GetMarketplaceAbi(zap.NewNop())
	if err != nil {
		panic(err)
	}
	return &MarketplaceLogBuilder{
		abi:     a,
		address: common.HexToAddress(address),
	}
}

func (b *MarketplaceLogBuilder) build(eventName string, blockNumber uint64, logIndex uint, topics []common.Hash, data ...interface{}) types.Log {
	event := b.abi.Events[eventName]
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address:     b.address,
		Topics:      append([]common.Hash{event.ID}, topics...),
		Data:        packed,
		BlockNumber: blockNumber,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(blockNumber*1000 + uint64(logIndex))),
		Index:       logIndex,
	}
}

func addressTopic(address string) common.Hash {
	return common.BytesToHash(common.HexToAddress(address).Bytes())
}

func (b *MarketplaceLogBuilder) Listed(blockNumber uint64, logIndex uint, listingId int64, nft string, tokenId int64, seller string, price *big.Int) types.Log {
	return b.build(contractAbi.EventName_Listed, blockNumber, logIndex,
		[]common.Hash{
			common.BigToHash(big.NewInt(listingId)),
			addressTopic(nft),
			common.BigToHash(big.NewInt(tokenId)),
		},
		common.HexToAddress(seller), price,
	)
}

func (b *MarketplaceLogBuilder) Canceled(blockNumber uint64, logIndex uint, listingId int64) types.Log {
	return b.build(contractAbi.EventName_Canceled, blockNumber, logIndex,
		[]common.Hash{common.BigToHash(big.NewInt(listingId))},
	)
}

func (b *MarketplaceLogBuilder) Purchased(blockNumber uint64, logIndex uint, listingId int64, buyer string, price *big.Int) types.Log {
	return b.build(contractAbi.EventName_Purchased, blockNumber, logIndex,
		[]common.Hash{
			common.BigToHash(big.NewInt(listingId)),
			addressTopic(buyer),
		},
		price,
	)
}
