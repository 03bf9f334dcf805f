package transactionLogParser

import (
	"fmt"

	"github.com/Layr-Labs/marketplace-indexer/pkg/parser"
	"github.com/Layr-Labs/marketplace-indexer/pkg/utils"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNoTopics         = errors.New("log has no topics")
	ErrUnknownEvent     = errors.New("no event in abi matches log signature")
	ErrUninterestingLog = errors.New("log emitted by an uninteresting address")
	ErrMalformedLogData = errors.New("failed to unpack log data")
)

// InterestingLogQualifier decides which emitting addresses are decoded.
type InterestingLogQualifier interface {
	IsInterestingAddress(address string) bool
}

// SingleAddressQualifier accepts logs from exactly one contract.
type SingleAddressQualifier string

func (s SingleAddressQualifier) IsInterestingAddress(address string) bool {
	return utils.AreAddressesEqual(string(s), address)
}

// TransactionLogParser decodes raw logs against a single contract ABI.
type TransactionLogParser struct {
	logger                  *zap.Logger
	abi                     *abi.ABI
	interestingLogQualifier InterestingLogQualifier
}

func NewTransactionLogParser(
	logger *zap.Logger,
	contractAbi *abi.ABI,
	interestingLogQualifier InterestingLogQualifier,
) *TransactionLogParser {
	return &TransactionLogParser{
		logger:                  logger,
		abi:                     contractAbi,
		interestingLogQualifier: interestingLogQualifier,
	}
}

// DecodeLog decodes lg into a DecodedLog. Logs from other addresses return
// ErrUninterestingLog, logs whose signature is not in the ABI return
// ErrUnknownEvent.
func (tlp *TransactionLogParser) DecodeLog(lg types.Log) (*parser.DecodedLog, error) {
	logAddress := lg.Address.Hex()

	if tlp.interestingLogQualifier != nil && !tlp.interestingLogQualifier.IsInterestingAddress(logAddress) {
		return nil, ErrUninterestingLog
	}

	if len(lg.Topics) == 0 {
		tlp.logger.Sugar().Debugw("Log has no topics",
			zap.String("address", logAddress),
			zap.Uint64("blockNumber", lg.BlockNumber),
			zap.Uint("logIndex", lg.Index),
		)
		return nil, ErrNoTopics
	}

	decodedLog := &parser.DecodedLog{
		BlockNumber:     lg.BlockNumber,
		LogIndex:        uint64(lg.Index),
		TransactionHash: lg.TxHash.Hex(),
		Address:         logAddress,
	}

	event, err := tlp.abi.EventByID(lg.Topics[0])
	if err != nil {
		tlp.logger.Sugar().Debugw(fmt.Sprintf("Failed to find event by ID '%s'", lg.Topics[0]))
		return decodedLog, errors.Wrap(ErrUnknownEvent, lg.Topics[0].Hex())
	}

	decodedLog.EventName = event.RawName
	decodedLog.Arguments = make([]parser.Argument, len(event.Inputs))

	// topics[1:] line up with the indexed inputs only, not with every input
	indexedTopics := lg.Topics[1:]
	topicIdx := 0
	for i, input := range event.Inputs {
		decodedLog.Arguments[i] = parser.Argument{
			Name:    input.Name,
			Type:    input.Type.String(),
			Indexed: input.Indexed,
		}
		if !input.Indexed {
			continue
		}
		if topicIdx >= len(indexedTopics) {
			tlp.logger.Sugar().Warnw("Log is missing an indexed topic",
				zap.String("eventName", event.Name),
				zap.String("argument", input.Name),
			)
			continue
		}
		d, err := ParseLogValueForType(input, indexedTopics[topicIdx].Hex())
		topicIdx++
		if err != nil {
			tlp.logger.Sugar().Errorw("Failed to parse log value for type", zap.Error(err))
			continue
		}
		decodedLog.Arguments[i].Value = d
	}

	outputDataMap := make(map[string]interface{})
	if len(lg.Data) > 0 {
		if err := tlp.abi.UnpackIntoMap(outputDataMap, event.Name, lg.Data); err != nil {
			tlp.logger.Sugar().Errorw("Failed to unpack data",
				zap.Error(err),
				zap.String("address", logAddress),
				zap.String("eventName", event.Name),
				zap.String("transactionHash", lg.TxHash.Hex()),
			)
			return nil, errors.Wrap(ErrMalformedLogData, err.Error())
		}
	}
	decodedLog.OutputData = outputDataMap

	for i, input := range event.Inputs {
		if input.Indexed {
			continue
		}
		if v, ok := outputDataMap[input.Name]; ok {
			decodedLog.Arguments[i].Value = v
		}
	}
	return decodedLog, nil
}

// ParseLogValueForType converts a hex encoded topic to a Go value based on
// the ABI argument type.
func ParseLogValueForType(argument abi.Argument, value string) (interface{}, error) {
	valueBytes, err := hexutil.Decode(value)
	if err != nil {
		return nil, err
	}
	switch argument.Type.T {
	case abi.IntTy, abi.UintTy:
		return abi.ReadInteger(argument.Type, valueBytes)
	case abi.BoolTy:
		return readBool(valueBytes)
	case abi.AddressTy:
		return common.HexToAddress(value), nil
	case abi.StringTy:
		return value, nil
	case abi.BytesTy, abi.FixedBytesTy:
		// hex encoded as-is
		return value, nil
	default:
		return value, nil
	}
}

var (
	errBadBool = fmt.Errorf("abi: improperly encoded boolean value")
)

func readBool(word []byte) (bool, error) {
	if len(word) != 32 {
		return false, errBadBool
	}
	for _, b := range word[:31] {
		if b != 0 {
			return false, errBadBool
		}
	}
	switch word[31] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errBadBool
	}
}
