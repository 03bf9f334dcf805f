package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/Layr-Labs/marketplace-indexer/pkg/logger"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

const testRpcUrl = "http://72.46.85.253:8545"

type rpcRequest struct {
	Id     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcResponder answers JSON-RPC calls by method, echoing the request id.
func rpcResponder(t *testing.T, results map[string]string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		r := &rpcRequest{}
		if err := json.Unmarshal(body, r); err != nil {
			t.Errorf("invalid rpc request: %s", string(body))
			return nil, err
		}
		payload, ok := results[r.Method]
		if !ok {
			return httpmock.NewStringResponse(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, r.Id)), nil
		}
		return httpmock.NewStringResponse(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,%s}`, r.Id, payload)), nil
	}
}

func setupClient(t *testing.T, results map[string]string) *Client {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	assert.Nil(t, err)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("POST", testRpcUrl, rpcResponder(t, results))

	cfg := DefaultEthereumClientConfig()
	cfg.BaseUrl = testRpcUrl

	client := NewClient(cfg, l)
	client.SetHttpClient(&http.Client{Transport: transport})
	t.Cleanup(client.Close)
	return client
}

func Test_EthereumClient(t *testing.T) {
	t.Run("Should return the latest block", func(t *testing.T) {
		client := setupClient(t, map[string]string{
			"eth_blockNumber": `"result":"0x1b4"`,
		})
		block, err := client.GetLatestBlock(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, uint64(436), block)
	})
	t.Run("Should return the chain id", func(t *testing.T) {
		client := setupClient(t, map[string]string{
			"eth_chainId": `"result":"0xaa36a7"`,
		})
		chainId, err := client.GetChainId(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, uint64(11155111), chainId)
	})
	t.Run("Should return logs for a range", func(t *testing.T) {
		client := setupClient(t, map[string]string{
			"eth_getLogs": `"result":[{
				"address":"0xabcdef0123456789abcdef0123456789abcdef01",
				"topics":["0x0000000000000000000000000000000000000000000000000000000000000001"],
				"data":"0x",
				"blockNumber":"0x10",
				"transactionHash":"0x00000000000000000000000000000000000000000000000000000000000000aa",
				"transactionIndex":"0x0",
				"blockHash":"0x00000000000000000000000000000000000000000000000000000000000000bb",
				"logIndex":"0x2",
				"removed":false
			}]`,
		})
		logs, err := client.GetLogs(context.Background(), "0xabcdef0123456789abcdef0123456789abcdef01", 10, 20)
		assert.Nil(t, err)
		assert.Len(t, logs, 1)
		assert.Equal(t, uint64(16), logs[0].BlockNumber)
		assert.Equal(t, uint(2), logs[0].Index)
	})
	t.Run("Should surface a range too large provider error", func(t *testing.T) {
		client := setupClient(t, map[string]string{
			"eth_getLogs": `"error":{"code":-32602,"message":"query exceeds max results 10000"}`,
		})
		_, err := client.GetLogs(context.Background(), "0xabcdef0123456789abcdef0123456789abcdef01", 0, 100000)
		assert.NotNil(t, err)
		assert.True(t, IsRangeTooLargeError(err))
	})
	t.Run("Should not classify a rate limited provider as range too large", func(t *testing.T) {
		client := setupClient(t, map[string]string{
			"eth_getLogs": `"error":{"code":-32005,"message":"daily request count exceeded, request rate limited"}`,
		})
		_, err := client.GetLogs(context.Background(), "0xabcdef0123456789abcdef0123456789abcdef01", 0, 10)
		assert.NotNil(t, err)
		assert.False(t, IsRangeTooLargeError(err))
	})
	t.Run("Should not classify other provider errors as range too large", func(t *testing.T) {
		client := setupClient(t, map[string]string{
			"eth_getLogs": `"error":{"code":-32000,"message":"header not found"}`,
		})
		_, err := client.GetLogs(context.Background(), "0xabcdef0123456789abcdef0123456789abcdef01", 0, 10)
		assert.NotNil(t, err)
		assert.False(t, IsRangeTooLargeError(err))
	})
	t.Run("Should report the provider host", func(t *testing.T) {
		client := setupClient(t, map[string]string{})
		assert.Equal(t, "72.46.85.253:8545", client.Host())
	})
}

func Test_IsRangeTooLargeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"max results message", errors.New("query exceeds max results 10000"), true},
		{"invalid parameters message", errors.New("Invalid parameters were provided to the RPC method"), true},
		{"block range message", errors.New("eth_getLogs is limited to a 10,000 block range"), true},
		{"invalid params code", &ProviderError{Code: RpcErrorCode_InvalidParams, Message: "oops"}, true},
		{"limit exceeded code with range message", &ProviderError{Code: RpcErrorCode_LimitExceeded, Message: "query returned more than 10000 results"}, true},
		{"limit exceeded code for rate limiting", &ProviderError{Code: RpcErrorCode_LimitExceeded, Message: "daily request count exceeded, request rate limited"}, false},
		{"limit exceeded code without message", &ProviderError{Code: RpcErrorCode_LimitExceeded, Message: "oops"}, false},
		{"block range too wide", errors.New("block range is too wide"), true},
		{"maximum block range", errors.New("exceed maximum block range: 5000"), true},
		{"unrelated block range mention", errors.New("invalid block range: from is after to"), false},
		{"wrapped", fmt.Errorf("fetch failed: %w", &ProviderError{Code: RpcErrorCode_InvalidParams, Message: "x"}), true},
		{"unrelated", errors.New("connection refused"), false},
		{"unrelated code", &ProviderError{Code: -32000, Message: "header not found"}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsRangeTooLargeError(test.err))
		})
	}
}
