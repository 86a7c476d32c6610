package chaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"pairstream/internal/chain"
)

// Node is an in-memory block source. Each PollBlockFilter call returns the
// next queued batch of hashes.
type Node struct {
	mu        sync.Mutex
	blocks    map[common.Hash]chain.Block
	batches   [][]common.Hash
	failBlock map[common.Hash]error
	filters   int
	removed   int
}

// NewNode returns an empty node.
func NewNode() *Node {
	return &Node{
		blocks:    make(map[common.Hash]chain.Block),
		failBlock: make(map[common.Hash]error),
	}
}

// Chain builds n linked blocks on top of parent and returns them in order.
func Chain(start uint64, parent common.Hash, n int) []chain.Block {
	out := make([]chain.Block, 0, n)
	for i := 0; i < n; i++ {
		number := start + uint64(i)
		block := chain.Block{
			Number:     number,
			Hash:       HashOf(fmt.Sprintf("block-%d-%s", number, parent.Hex())),
			ParentHash: parent,
		}
		out = append(out, block)
		parent = block.Hash
	}
	return out
}

// HashOf derives a deterministic hash from a label.
func HashOf(label string) common.Hash {
	return crypto.Keccak256Hash([]byte(label))
}

// AddBlocks makes blocks fetchable by hash.
func (n *Node) AddBlocks(blocks ...chain.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, block := range blocks {
		n.blocks[block.Hash] = block
	}
}

// Announce queues one filter poll result with the given blocks' hashes.
func (n *Node) Announce(blocks ...chain.Block) {
	hashes := make([]common.Hash, 0, len(blocks))
	for _, block := range blocks {
		hashes = append(hashes, block.Hash)
	}
	n.AddBlocks(blocks...)
	n.mu.Lock()
	n.batches = append(n.batches, hashes)
	n.mu.Unlock()
}

// FailBlock makes BlockByHash fail for hash.
func (n *Node) FailBlock(hash common.Hash, err error) {
	n.mu.Lock()
	n.failBlock[hash] = err
	n.mu.Unlock()
}

// Pending returns how many queued poll results are not consumed yet.
func (n *Node) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.batches)
}

// Filters returns installed and uninstalled filter counts.
func (n *Node) Filters() (installed, removed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.filters, n.removed
}

func (n *Node) NewBlockFilter(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.filters++
	return fmt.Sprintf("0x%x", n.filters), nil
}

func (n *Node) PollBlockFilter(ctx context.Context, id string) ([]common.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.batches) == 0 {
		return nil, nil
	}
	hashes := n.batches[0]
	n.batches = n.batches[1:]
	return hashes, nil
}

func (n *Node) BlockByHash(ctx context.Context, hash common.Hash) (chain.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failBlock[hash]; err != nil {
		return chain.Block{}, err
	}
	block, ok := n.blocks[hash]
	if !ok {
		return chain.Block{}, fmt.Errorf("block %s not found", hash.Hex())
	}
	return block, nil
}

func (n *Node) UninstallFilter(ctx context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed++
	return nil
}

func (n *Node) LatestBlock(ctx context.Context) (chain.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var head chain.Block
	found := false
	for _, block := range n.blocks {
		if !found || block.Number > head.Number {
			head = block
			found = true
		}
	}
	if !found {
		return chain.Block{}, fmt.Errorf("no blocks")
	}
	return head, nil
}
