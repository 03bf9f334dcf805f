// Package marketEvents maps raw marketplace logs onto typed listing events.
package marketEvents

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/marketplace-indexer/pkg/contractAbi"
	"github.com/Layr-Labs/marketplace-indexer/pkg/parser"
	"github.com/Layr-Labs/marketplace-indexer/pkg/transactionLogParser"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type EventKind string

const (
	EventKind_Listed       EventKind = "Listed"
	EventKind_Canceled     EventKind = "Canceled"
	EventKind_Purchased    EventKind = "Purchased"
	EventKind_Unrecognized EventKind = "Unrecognized"
)

// ErrDecodeFailure is returned for logs that cannot be decoded at all. The
// sync engine skips these without aborting.
var ErrDecodeFailure = errors.New("failed to decode marketplace log")

// MarketEvent is a decoded marketplace log. Integers are base 10 strings,
// addresses are lowercase hex.
type MarketEvent struct {
	Kind      EventKind
	ListingId string
	Nft       string
	TokenId   string
	Seller    string
	Buyer     string
	Price     string

	BlockNumber     uint64
	LogIndex        uint64
	TransactionHash string
}

type Decoder struct {
	logger *zap.Logger
	parser *transactionLogParser.TransactionLogParser
}

// NewDecoder builds a decoder for the marketplace deployed at address.
func NewDecoder(address string, l *zap.Logger) (*Decoder, error) {
	a, err := contractAbi.GetMarketplaceAbi(l)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		logger: l,
		parser: transactionLogParser.NewTransactionLogParser(l, a, transactionLogParser.SingleAddressQualifier(address)),
	}, nil
}

func decodeFailure(lg types.Log, reason string) error {
	return errors.Wrapf(ErrDecodeFailure, "block %d log %d: %s", lg.BlockNumber, lg.Index, reason)
}

// Decode never panics. Logs from other addresses or with unknown signatures
// decode to EventKind_Unrecognized; malformed logs return ErrDecodeFailure.
func (d *Decoder) Decode(lg types.Log) (*MarketEvent, error) {
	event := &MarketEvent{
		Kind:            EventKind_Unrecognized,
		BlockNumber:     lg.BlockNumber,
		LogIndex:        uint64(lg.Index),
		TransactionHash: lg.TxHash.Hex(),
	}

	decoded, err := d.parser.DecodeLog(lg)
	if err != nil {
		switch {
		case errors.Is(err, transactionLogParser.ErrUninterestingLog),
			errors.Is(err, transactionLogParser.ErrUnknownEvent):
			return event, nil
		case errors.Is(err, transactionLogParser.ErrNoTopics):
			return nil, decodeFailure(lg, "log has no topics")
		default:
			return nil, decodeFailure(lg, err.Error())
		}
	}

	args := newArgumentResolver(decoded)

	switch decoded.EventName {
	case contractAbi.EventName_Listed:
		event.Kind = EventKind_Listed
		event.ListingId = args.integer(0, "listingId")
		event.Nft = args.addr(1, "nft")
		event.TokenId = args.integer(2, "tokenId")
		event.Seller = args.addr(3, "seller")
		event.Price = args.integer(4, "price")
	case contractAbi.EventName_Canceled:
		event.Kind = EventKind_Canceled
		event.ListingId = args.integer(0, "listingId")
	case contractAbi.EventName_Purchased:
		event.Kind = EventKind_Purchased
		event.ListingId = args.integer(0, "listingId")
		event.Buyer = args.addr(1, "buyer")
		event.Price = args.integer(2, "price")
	default:
		return event, nil
	}

	if len(args.missing) > 0 {
		return nil, decodeFailure(lg, fmt.Sprintf("%s missing arguments: %s", decoded.EventName, strings.Join(args.missing, ", ")))
	}
	return event, nil
}

// argumentResolver reads positional arguments first and falls back to the
// named output map.
type argumentResolver struct {
	log     *parser.DecodedLog
	missing []string
}

func newArgumentResolver(log *parser.DecodedLog) *argumentResolver {
	return &argumentResolver{log: log}
}

func (r *argumentResolver) lookup(index int, name string) interface{} {
	if index < len(r.log.Arguments) && r.log.Arguments[index].Value != nil {
		return r.log.Arguments[index].Value
	}
	if v, ok := r.log.OutputData[name]; ok && v != nil {
		return v
	}
	return nil
}

func (r *argumentResolver) integer(index int, name string) string {
	switch v := r.lookup(index, name).(type) {
	case *big.Int:
		if v != nil && v.Sign() >= 0 {
			return v.String()
		}
	case uint64:
		return new(big.Int).SetUint64(v).String()
	case string:
		if n, ok := new(big.Int).SetString(v, 0); ok && n.Sign() >= 0 {
			return n.String()
		}
	}
	r.missing = append(r.missing, name)
	return ""
}

func (r *argumentResolver) addr(index int, name string) string {
	switch v := r.lookup(index, name).(type) {
	case common.Address:
		return strings.ToLower(v.Hex())
	case string:
		if common.IsHexAddress(v) {
			return strings.ToLower(common.HexToAddress(v).Hex())
		}
	}
	r.missing = append(r.missing, name)
	return ""
}
