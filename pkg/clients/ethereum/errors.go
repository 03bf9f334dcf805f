package ethereum

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC error codes providers use when an eth_getLogs window is too wide.
// LimitExceeded is shared with rate limiting, so it only counts together with
// a range message.
const (
	RpcErrorCode_InvalidParams = -32602
	RpcErrorCode_LimitExceeded = -32005
)

// rangeTooLargeMessages are substrings seen in provider responses when a
// log query spans too many blocks or returns too many results.
var rangeTooLargeMessages = []string{
	"exceeds max results",
	"invalid parameters",
	"query returned more than",
	"response size exceeded",
	"range too large",
	"range is too large",
	"range is too wide",
	"range too wide",
	"exceed maximum block range",
	"max block range",
	"block range limit",
	"too many blocks",
}

// rangeLimitedPattern matches "is limited to a 10,000 block range" style messages.
var rangeLimitedPattern = regexp.MustCompile(`limited to (a |an )?[\d,]+ ?(block )?range`)

func hasRangeMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range rangeTooLargeMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return rangeLimitedPattern.MatchString(msg)
}

// IsRangeTooLargeError reports whether err means the requested log window
// should be narrowed and retried.
func IsRangeTooLargeError(err error) bool {
	if err == nil {
		return false
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case RpcErrorCode_InvalidParams:
			return true
		case RpcErrorCode_LimitExceeded:
			return hasRangeMessage(rpcErr.Error())
		}
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusRequestEntityTooLarge {
		return true
	}

	return hasRangeMessage(err.Error())
}

// ProviderError is a provider error carrying a JSON-RPC code. It
// satisfies rpc.Error and is mainly useful for simulating providers.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) ErrorCode() int {
	return e.Code
}
