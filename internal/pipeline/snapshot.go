package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"pairstream/internal/model"
	"pairstream/internal/worker"
)

// Snapshot reads the current status of every pair once, tagged with the
// latest block number.
func Snapshot(ctx context.Context, rt *Runtime) ([]model.PairStatusEvent, error) {
	head, err := rt.node.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}

	type reading struct {
		reserve0 *big.Int
		reserve1 *big.Int
		supply   *big.Int
	}
	futures := make([]*worker.Future[reading], 0, len(rt.pools))
	for _, p := range rt.pools {
		p := p
		futures = append(futures, worker.Submit(rt.workers, ctx, func(ctx context.Context) (reading, error) {
			reserve0, reserve1, err := p.FetchReserves(ctx)
			if err != nil {
				return reading{}, err
			}
			supply, err := p.FetchLPSupply(ctx)
			if err != nil {
				return reading{}, err
			}
			return reading{reserve0: reserve0, reserve1: reserve1, supply: supply}, nil
		}))
	}

	events := make([]model.PairStatusEvent, 0, len(futures))
	var errs []error
	for i, future := range futures {
		r, err := future.Await(ctx)
		pair := rt.pools[i].Pair()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pair.ID, err))
			continue
		}
		events = append(events, model.PairStatusEvent{
			Pair:      pair.ID,
			PairID:    pair.Address,
			Reserve0:  r.reserve0.String(),
			Reserve1:  r.reserve1.String(),
			LPShares:  r.supply.String(),
			Block:     head.Number,
			Timestamp: time.Now().UnixMilli(),
		})
	}
	return events, errors.Join(errs...)
}
