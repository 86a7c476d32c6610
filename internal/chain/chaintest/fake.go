// Package chaintest provides in-memory node and contract doubles.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"pairstream/internal/chain"
	"pairstream/internal/dex"
)

// Contract is a chain.Contract serving fixed pair state.
// It records whether two callers ever used it at the same time.
type Contract struct {
	Address  common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	Supply   *big.Int
	Delay    time.Duration
	CallErr  error
	WatchErr error

	mu      sync.Mutex
	batches [][]types.Log
	pollErr error

	active  atomic.Int32
	overlap atomic.Bool
	calls   atomic.Int64
	closed  atomic.Int32
}

// NewContract returns a contract with non-zero reserves and supply.
func NewContract(address common.Address) *Contract {
	return &Contract{
		Address:  address,
		Reserve0: big.NewInt(1_000_000),
		Reserve1: big.NewInt(2_000_000),
		Supply:   big.NewInt(3_000_000),
	}
}

func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.active.Add(-1)
	c.calls.Add(1)

	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.CallErr != nil {
		return nil, c.CallErr
	}

	switch method {
	case dex.MethodGetReserves:
		return []interface{}{new(big.Int).Set(c.Reserve0), new(big.Int).Set(c.Reserve1), uint32(0)}, nil
	case dex.MethodTotalSupply:
		return []interface{}{new(big.Int).Set(c.Supply)}, nil
	default:
		return nil, fmt.Errorf("unsupported method %s", method)
	}
}

func (c *Contract) WatchEvent(ctx context.Context, event string) (chain.EventWatch, error) {
	if c.WatchErr != nil {
		return nil, c.WatchErr
	}
	return &watch{contract: c}, nil
}

func (c *Contract) Close() {
	c.closed.Add(1)
}

// QueueLogs appends the result of one future filter poll.
func (c *Contract) QueueLogs(logs ...types.Log) {
	c.mu.Lock()
	c.batches = append(c.batches, logs)
	c.mu.Unlock()
}

// FailNextPoll makes the next filter poll return err.
func (c *Contract) FailNextPoll(err error) {
	c.mu.Lock()
	c.pollErr = err
	c.mu.Unlock()
}

// Overlapped reports whether two calls ever ran concurrently on this handle.
func (c *Contract) Overlapped() bool {
	return c.overlap.Load()
}

// Calls returns the number of calls served.
func (c *Contract) Calls() int64 {
	return c.calls.Load()
}

// Closed returns how many times Close was called.
func (c *Contract) Closed() int {
	return int(c.closed.Load())
}

type watch struct {
	contract *Contract
}

func (w *watch) Poll(ctx context.Context) ([]types.Log, error) {
	c := w.contract
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollErr != nil {
		err := c.pollErr
		c.pollErr = nil
		return nil, err
	}
	if len(c.batches) == 0 {
		return nil, nil
	}
	logs := c.batches[0]
	c.batches = c.batches[1:]
	return logs, nil
}

func (w *watch) Uninstall(ctx context.Context) error {
	return nil
}

// Dialer hands out contracts and remembers every one it created.
type Dialer struct {
	mu        sync.Mutex
	contracts map[common.Address][]*Contract
	FailAfter int
	Configure func(*Contract)
}

// NewDialer returns a dialer with no failure injection.
func NewDialer() *Dialer {
	return &Dialer{contracts: make(map[common.Address][]*Contract), FailAfter: -1}
}

// Dial matches pool.Dialer.
func (d *Dialer) Dial(ctx context.Context, address common.Address) (chain.Contract, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAfter == 0 {
		return nil, errors.New("dial refused")
	}
	if d.FailAfter > 0 {
		d.FailAfter--
	}
	c := NewContract(address)
	if d.Configure != nil {
		d.Configure(c)
	}
	d.contracts[address] = append(d.contracts[address], c)
	return c, nil
}

// Contracts returns the handles dialed for address, in dial order.
func (d *Dialer) Contracts(address common.Address) []*Contract {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Contract, len(d.contracts[address]))
	copy(out, d.contracts[address])
	return out
}

// All returns every handle dialed.
func (d *Dialer) All() []*Contract {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Contract
	for _, list := range d.contracts {
		out = append(out, list...)
	}
	return out
}

// SwapLog builds a raw pair Swap log.
func SwapLog(pair common.Address, block uint64, tx common.Hash, amount0In, amount1In, amount0Out, amount1Out int64) types.Log {
	pairABI, err := dex.PairABI()
	if err != nil {
		panic(err)
	}
	event := pairABI.Events[dex.EventSwap]
	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(amount0In),
		big.NewInt(amount1In),
		big.NewInt(amount0Out),
		big.NewInt(amount1Out),
	)
	if err != nil {
		panic(err)
	}
	router := common.BytesToHash(common.HexToAddress("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff").Bytes())
	return types.Log{
		Address:     pair,
		Topics:      []common.Hash{event.ID, router, router},
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
	}
}
