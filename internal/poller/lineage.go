package poller

import (
	"github.com/ethereum/go-ethereum/common"

	"pairstream/internal/chain"
)

// LineageTracker remembers the last accepted block hash.
// It is owned by a single goroutine.
type LineageTracker struct {
	prev   common.Hash
	seeded bool
}

// Observe advances the tracker to block. It reports a gap when block's parent
// is not the previously accepted block, along with the hash that was expected.
// The first observed block only seeds the tracker.
func (t *LineageTracker) Observe(block chain.Block) (common.Hash, bool) {
	if !t.seeded {
		t.seeded = true
		t.prev = block.Hash
		return common.Hash{}, false
	}
	expected := t.prev
	t.prev = block.Hash
	return expected, block.ParentHash != expected
}

// Head returns the last accepted hash.
func (t *LineageTracker) Head() (common.Hash, bool) {
	return t.prev, t.seeded
}
