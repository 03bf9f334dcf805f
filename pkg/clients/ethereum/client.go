// Package ethereum wraps the go-ethereum JSON-RPC client with the small
// surface the indexer needs: the current head and filtered logs.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

type EthereumClientConfig struct {
	BaseUrl string
	// RequestTimeout bounds every individual RPC call. Zero means no timeout.
	RequestTimeout time.Duration
}

func DefaultEthereumClientConfig() *EthereumClientConfig {
	return &EthereumClientConfig{
		RequestTimeout: 30 * time.Second,
	}
}

type Client struct {
	clientConfig *EthereumClientConfig
	httpClient   *http.Client
	logger       *zap.Logger

	mu        sync.Mutex
	ethClient *ethclient.Client
}

func NewClient(cfg *EthereumClientConfig, l *zap.Logger) *Client {
	l.Sugar().Infow("Creating ethereum client", zap.String("host", hostFromUrl(cfg.BaseUrl)))
	return &Client{
		clientConfig: cfg,
		httpClient:   http.DefaultClient,
		logger:       l,
	}
}

// SetHttpClient replaces the transport used for RPC calls. Any existing
// connection is dropped and re-dialed on next use.
func (c *Client) SetHttpClient(client *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = client
	if c.ethClient != nil {
		c.ethClient.Close()
		c.ethClient = nil
	}
}

// Host is the provider host, reported with sync results for diagnostics.
func (c *Client) Host() string {
	return hostFromUrl(c.clientConfig.BaseUrl)
}

func (c *Client) getEthClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ethClient != nil {
		return c.ethClient, nil
	}
	rpcClient, err := rpc.DialOptions(ctx, c.clientConfig.BaseUrl, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		c.logger.Sugar().Errorw("Failed to dial ethereum rpc", zap.String("host", c.Host()), zap.Error(err))
		return nil, fmt.Errorf("failed to dial ethereum rpc: %w", err)
	}
	c.ethClient = ethclient.NewClient(rpcClient)
	return c.ethClient, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.clientConfig.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.clientConfig.RequestTimeout)
}

// GetLatestBlock returns the current head block number.
func (c *Client) GetLatestBlock(ctx context.Context) (uint64, error) {
	ec, err := c.getEthClient(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	blockNumber, err := ec.BlockNumber(ctx)
	if err != nil {
		c.logger.Sugar().Errorw("Failed to get latest block", zap.Error(err))
		return 0, err
	}
	return blockNumber, nil
}

// GetChainId returns the chain id reported by the provider.
func (c *Client) GetChainId(ctx context.Context) (uint64, error) {
	ec, err := c.getEthClient(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	chainId, err := ec.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return chainId.Uint64(), nil
}

// GetLogs returns all logs emitted by address in [fromBlock, toBlock].
// Provider errors are returned unwrapped so IsRangeTooLargeError can
// inspect them.
func (c *Client) GetLogs(ctx context.Context, address string, fromBlock uint64, toBlock uint64) ([]types.Log, error) {
	ec, err := c.getEthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{common.HexToAddress(address)},
	}
	logs, err := ec.FilterLogs(ctx, query)
	if err != nil {
		c.logger.Sugar().Debugw("Failed to get logs",
			zap.String("address", address),
			zap.Uint64("fromBlock", fromBlock),
			zap.Uint64("toBlock", toBlock),
			zap.Error(err),
		)
		return nil, err
	}
	return logs, nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ethClient != nil {
		c.ethClient.Close()
		c.ethClient = nil
	}
}

func hostFromUrl(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil || u.Host == "" {
		return rawUrl
	}
	return u.Host
}
