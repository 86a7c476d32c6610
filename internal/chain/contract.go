package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Contract is a read handle bound to one contract over its own connection.
// A handle serves one caller at a time.
type Contract interface {
	Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error)
	WatchEvent(ctx context.Context, event string) (EventWatch, error)
	Close()
}

// EventWatch is an installed log filter.
type EventWatch interface {
	Poll(ctx context.Context) ([]types.Log, error)
	Uninstall(ctx context.Context) error
}

// PairContract is a Contract backed by a dedicated RPC connection.
type PairContract struct {
	address   common.Address
	abi       abi.ABI
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// DialContract opens a new RPC connection bound to address.
func DialContract(ctx context.Context, rpcURL string, address common.Address, contractABI abi.ABI) (*PairContract, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address.Hex(), err)
	}
	return &PairContract{
		address:   address,
		abi:       contractABI,
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Address returns the bound contract address.
func (c *PairContract) Address() common.Address {
	return c.address
}

// Call performs an eth_call against the latest block and unpacks the result.
func (c *PairContract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: data}
	out, err := c.ethClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), err)
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// WatchEvent installs a log filter for event starting at the latest block.
func (c *PairContract) WatchEvent(ctx context.Context, event string) (EventWatch, error) {
	ev, ok := c.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("unknown event %s", event)
	}

	params := map[string]interface{}{
		"address":   c.address,
		"topics":    [][]common.Hash{{ev.ID}},
		"fromBlock": "latest",
	}
	var id string
	if err := c.rpcClient.CallContext(ctx, &id, "eth_newFilter", params); err != nil {
		return nil, fmt.Errorf("eth_newFilter %s on %s: %w", event, c.address.Hex(), err)
	}
	return &logFilter{rpcClient: c.rpcClient, id: id}, nil
}

// Close closes the underlying connection.
func (c *PairContract) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

type logFilter struct {
	rpcClient *rpc.Client
	id        string
}

func (f *logFilter) Poll(ctx context.Context) ([]types.Log, error) {
	var logs []types.Log
	if err := f.rpcClient.CallContext(ctx, &logs, "eth_getFilterChanges", f.id); err != nil {
		return nil, fmt.Errorf("eth_getFilterChanges: %w", err)
	}
	return logs, nil
}

func (f *logFilter) Uninstall(ctx context.Context) error {
	var ok bool
	if err := f.rpcClient.CallContext(ctx, &ok, "eth_uninstallFilter", f.id); err != nil {
		return fmt.Errorf("eth_uninstallFilter: %w", err)
	}
	return nil
}
