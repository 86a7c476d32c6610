package pool

import (
	"context"
	"errors"
	"fmt"

	"pairstream/internal/chain"
	"pairstream/internal/dex"
	"pairstream/internal/model"
)

// SwapFilter polls the Swap log filter installed for one pair.
type SwapFilter struct {
	pair  model.MonitoredPair
	watch chain.EventWatch
}

// Pair returns the pair the filter watches.
func (f *SwapFilter) Pair() model.MonitoredPair {
	return f.pair
}

// Poll returns the swaps seen since the previous poll, in upstream order.
// Entries that fail to decode are reported in the joined error while the
// remaining swaps are still returned.
func (f *SwapFilter) Poll(ctx context.Context) ([]dex.SwapLog, error) {
	logs, err := f.watch.Poll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s swap poll: %w", f.pair.ID, err)
	}
	if len(logs) == 0 {
		return nil, nil
	}

	swaps := make([]dex.SwapLog, 0, len(logs))
	var errs []error
	for i, log := range logs {
		if log.Removed {
			continue
		}
		swap, err := dex.DecodeSwap(log)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s decode swap %d (tx %s): %w", f.pair.ID, i, log.TxHash.Hex(), err))
			continue
		}
		swaps = append(swaps, swap)
	}
	return swaps, errors.Join(errs...)
}

// Uninstall removes the filter from the node.
func (f *SwapFilter) Uninstall(ctx context.Context) error {
	return f.watch.Uninstall(ctx)
}
