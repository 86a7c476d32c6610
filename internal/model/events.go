package model

import "sort"

// PairStatusEvent describes the point-in-time state of a pair as of a block.
type PairStatusEvent struct {
	Pair      PairID `json:"pair"`
	PairID    string `json:"pair_id"`
	Reserve0  string `json:"reserve_0"`
	Reserve1  string `json:"reserve_1"`
	LPShares  string `json:"lp_shares"`
	Block     uint64 `json:"block"`
	Timestamp int64  `json:"timestamp"`
}

// SwapEvent describes a single on-chain swap of a pair.
type SwapEvent struct {
	Pair       PairID `json:"pair"`
	PairID     string `json:"pair_id"`
	Amount0In  string `json:"amount_0_in"`
	Amount1In  string `json:"amount_1_in"`
	Amount0Out string `json:"amount_0_out"`
	Amount1Out string `json:"amount_1_out"`
	Tx         string `json:"tx"`
	Block      uint64 `json:"block"`
	Timestamp  int64  `json:"timestamp"`
}

// SwapBatch holds the swaps returned by one poll tick, in upstream log order.
type SwapBatch struct {
	Swaps []SwapEvent `json:"swaps"`
}

// Blocks returns the distinct block numbers in the batch, ascending.
func (b SwapBatch) Blocks() []uint64 {
	seen := make(map[uint64]struct{}, len(b.Swaps))
	blocks := make([]uint64, 0, 1)
	for _, swap := range b.Swaps {
		if _, ok := seen[swap.Block]; ok {
			continue
		}
		seen[swap.Block] = struct{}{}
		blocks = append(blocks, swap.Block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	return blocks
}
