package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Block is the subset of a block header the pollers need.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  uint64
}

type rpcBlock struct {
	Number     hexutil.Uint64 `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
}

// Client wraps a go-ethereum RPC connection used for block discovery.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return newClient(rpcClient), nil
}

func newClient(rpcClient *rpc.Client) *Client {
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// NewBlockFilter installs a new-block filter on the node and returns its id.
func (c *Client) NewBlockFilter(ctx context.Context) (string, error) {
	var id string
	if err := c.rpcClient.CallContext(ctx, &id, "eth_newBlockFilter"); err != nil {
		return "", fmt.Errorf("eth_newBlockFilter: %w", err)
	}
	return id, nil
}

// PollBlockFilter returns the block hashes observed since the previous poll.
func (c *Client) PollBlockFilter(ctx context.Context, id string) ([]common.Hash, error) {
	var hashes []common.Hash
	if err := c.rpcClient.CallContext(ctx, &hashes, "eth_getFilterChanges", id); err != nil {
		return nil, fmt.Errorf("eth_getFilterChanges: %w", err)
	}
	return hashes, nil
}

// UninstallFilter removes a filter previously installed on the node.
func (c *Client) UninstallFilter(ctx context.Context, id string) error {
	var ok bool
	if err := c.rpcClient.CallContext(ctx, &ok, "eth_uninstallFilter", id); err != nil {
		return fmt.Errorf("eth_uninstallFilter: %w", err)
	}
	return nil
}

// BlockByHash fetches a block header without transactions.
func (c *Client) BlockByHash(ctx context.Context, hash common.Hash) (Block, error) {
	var raw *rpcBlock
	if err := c.rpcClient.CallContext(ctx, &raw, "eth_getBlockByHash", hash, false); err != nil {
		return Block{}, fmt.Errorf("eth_getBlockByHash %s: %w", hash.Hex(), err)
	}
	if raw == nil {
		return Block{}, fmt.Errorf("block %s not found", hash.Hex())
	}
	return raw.toBlock(), nil
}

// LatestBlock fetches the current head header.
func (c *Client) LatestBlock(ctx context.Context) (Block, error) {
	header, err := c.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return Block{}, err
	}
	return Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  header.Time,
	}, nil
}

func (b rpcBlock) toBlock() Block {
	return Block{
		Number:     uint64(b.Number),
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Timestamp:  uint64(b.Timestamp),
	}
}
