package tests

import (
	"context"
	"fmt"
	"sync"

	"github.com/Layr-Labs/marketplace-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/marketplace-indexer/pkg/utils"
	"github.com/ethereum/go-ethereum/core/types"
)

// FakeChain is an in-memory log source. It can reject wide ranges the way
// hosted providers do and can be paused inside GetLogs.
type FakeChain struct {
	mu sync.Mutex

	head uint64
	logs []types.Log

	// MaxSpan rejects queries spanning more than this many blocks. Zero disables.
	MaxSpan uint64
	// Err, when set, is returned from every GetLogs call.
	Err error
	// HeadErr, when set, is returned from GetLatestBlock.
	HeadErr error
	// BeforeGetLogs runs at the start of every GetLogs call.
	BeforeGetLogs func(ctx context.Context)

	calls [][2]uint64
}

func NewFakeChain(head uint64) *FakeChain {
	return &FakeChain{head: head}
}

func (f *FakeChain) SetHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
}

func (f *FakeChain) AddLogs(logs ...types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, logs...)
}

// Calls returns the [from, to] ranges requested so far, including rejected ones.
func (f *FakeChain) Calls() [][2]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][2]uint64, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeChain) GetLatestBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HeadErr != nil {
		return 0, f.HeadErr
	}
	return f.head, nil
}

func (f *FakeChain) GetLogs(ctx context.Context, address string, fromBlock uint64, toBlock uint64) ([]types.Log, error) {
	if f.BeforeGetLogs != nil {
		f.BeforeGetLogs(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]uint64{fromBlock, toBlock})

	if f.Err != nil {
		return nil, f.Err
	}
	if f.MaxSpan > 0 && toBlock-fromBlock+1 > f.MaxSpan {
		return nil, &ethereum.ProviderError{
			Code:    ethereum.RpcErrorCode_InvalidParams,
			Message: fmt.Sprintf("query exceeds max results, range %d > %d", toBlock-fromBlock+1, f.MaxSpan),
		}
	}

	out := make([]types.Log, 0)
	for _, lg := range f.logs {
		if lg.BlockNumber < fromBlock || lg.BlockNumber > toBlock {
			continue
		}
		if !utils.AreAddressesEqual(lg.Address.Hex(), address) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}
