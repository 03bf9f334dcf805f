package contractAbi

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"go.uber.org/zap"
)

// go-ethereum rejects ABIs declaring more than one receive or fallback, but
// the events are still parsed.
var ignorableAbiErrors = []string{
	"only single receive is allowed",
	"only single fallback is allowed",
}

// UnmarshalJsonToAbi parses a JSON ABI.
func UnmarshalJsonToAbi(json string, l *zap.Logger) (*abi.ABI, error) {
	a := &abi.ABI{}
	err := a.UnmarshalJSON([]byte(json))
	if err == nil {
		return a, nil
	}
	for _, msg := range ignorableAbiErrors {
		if strings.Contains(err.Error(), msg) {
			return a, nil
		}
	}
	l.Sugar().Warnw("Error unmarshaling abi json", zap.Error(err))
	return nil, err
}
