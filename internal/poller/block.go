package poller

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairstream/internal/chain"
	"pairstream/internal/model"
	"pairstream/internal/worker"
)

const lineageBuffer = 256

// Node is the block source used by BlockPoller.
type Node interface {
	NewBlockFilter(ctx context.Context) (string, error)
	PollBlockFilter(ctx context.Context, id string) ([]common.Hash, error)
	BlockByHash(ctx context.Context, hash common.Hash) (chain.Block, error)
	UninstallFilter(ctx context.Context, id string) error
}

// PairReader reads the point-in-time state of one pair.
type PairReader interface {
	Pair() model.MonitoredPair
	FetchReserves(ctx context.Context) (*big.Int, *big.Int, error)
	FetchLPSupply(ctx context.Context) (*big.Int, error)
}

// BlockOptions configures a BlockPoller.
type BlockOptions struct {
	Interval time.Duration
	Recorder Recorder
	Logger   *zap.Logger
}

// BlockPoller turns new-block notifications into one PairStatusEvent per
// pair per block.
//
// Blocks are dispatched without waiting for earlier blocks to complete, so
// events for consecutive blocks may be published out of order. Consumers
// order by the block field. Lineage is checked in notification order.
type BlockPoller struct {
	node     Node
	pairs    []PairReader
	workers  *worker.Pool
	sink     Sink
	recorder Recorder
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	tracker LineageTracker
}

type reserves struct {
	reserve0 *big.Int
	reserve1 *big.Int
}

type pendingBlock struct {
	hash  common.Hash
	block *worker.Future[chain.Block]
}

type pairRead struct {
	pair     PairReader
	reserves *worker.Future[reserves]
	supply   *worker.Future[*big.Int]
}

// NewBlockPoller wires a poller over node for pairs.
func NewBlockPoller(node Node, pairs []PairReader, workers *worker.Pool, sink Sink, opts BlockOptions) *BlockPoller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &BlockPoller{
		node:     node,
		pairs:    pairs,
		workers:  workers,
		sink:     sink,
		recorder: opts.Recorder,
		interval: opts.Interval,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// Run installs a block filter and polls it until ctx is done. It returns an
// error only when the filter cannot be installed; otherwise it returns
// ctx.Err() after in-flight blocks have drained.
func (p *BlockPoller) Run(ctx context.Context) error {
	filterID, err := p.node.NewBlockFilter(ctx)
	if err != nil {
		return fmt.Errorf("install block filter: %w", err)
	}
	p.logger.Info("block filter installed",
		zap.String("filter", filterID),
		zap.Int("pairs", len(p.pairs)),
		zap.Duration("interval", p.interval),
	)

	lineage := make(chan pendingBlock, lineageBuffer)
	lineageDone := make(chan struct{})
	go func() {
		defer close(lineageDone)
		p.checkLineage(ctx, lineage)
	}()

	var inflight sync.WaitGroup
	defer func() {
		close(lineage)
		inflight.Wait()
		<-lineageDone

		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.node.UninstallFilter(cleanupCtx, filterID); err != nil {
			p.logger.Debug("uninstall block filter failed", zap.Error(err))
		}
	}()

	for {
		p.tick(ctx, filterID, lineage, &inflight)
		if err := sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

func (p *BlockPoller) tick(ctx context.Context, filterID string, lineage chan<- pendingBlock, inflight *sync.WaitGroup) {
	hashes, err := p.node.PollBlockFilter(ctx, filterID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("block filter poll failed", zap.Error(err))
		publishAnomaly(ctx, p.sink, p.logger, model.Anomaly{
			Kind:      model.AnomalyRemoteCallFailure,
			Operation: "eth_getFilterChanges",
			Error:     err.Error(),
			Timestamp: p.now().UnixMilli(),
		})
		return
	}

	for _, hash := range hashes {
		if !p.dispatch(ctx, hash, lineage, inflight) {
			return
		}
	}
}

// dispatch schedules the block fetch and every pair read for hash and returns
// without waiting for them.
func (p *BlockPoller) dispatch(ctx context.Context, hash common.Hash, lineage chan<- pendingBlock, inflight *sync.WaitGroup) bool {
	start := p.now()
	p.logger.Debug("new block", zap.String("hash", hash.Hex()))

	block := worker.Submit(p.workers, ctx, func(ctx context.Context) (chain.Block, error) {
		return p.node.BlockByHash(ctx, hash)
	})
	select {
	case lineage <- pendingBlock{hash: hash, block: block}:
	case <-ctx.Done():
		return false
	}

	reads := make([]pairRead, 0, len(p.pairs))
	for _, pair := range p.pairs {
		pair := pair
		reads = append(reads, pairRead{
			pair: pair,
			reserves: worker.Submit(p.workers, ctx, func(ctx context.Context) (reserves, error) {
				reserve0, reserve1, err := pair.FetchReserves(ctx)
				return reserves{reserve0: reserve0, reserve1: reserve1}, err
			}),
			supply: worker.Submit(p.workers, ctx, func(ctx context.Context) (*big.Int, error) {
				return pair.FetchLPSupply(ctx)
			}),
		})
	}

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		p.complete(ctx, hash, start, block, reads)
	}()
	return true
}

func (p *BlockPoller) complete(ctx context.Context, hash common.Hash, start time.Time, pending *worker.Future[chain.Block], reads []pairRead) {
	block, err := pending.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("block fetch failed", zap.String("hash", hash.Hex()), zap.Error(err))
		publishAnomaly(ctx, p.sink, p.logger, model.Anomaly{
			Kind:      model.AnomalyRemoteCallFailure,
			BlockHash: hash.Hex(),
			Operation: "eth_getBlockByHash",
			Error:     err.Error(),
			Timestamp: p.now().UnixMilli(),
		})
		return
	}

	var wg sync.WaitGroup
	for _, read := range reads {
		wg.Add(1)
		go func(read pairRead) {
			defer wg.Done()
			p.completePair(ctx, block, read)
		}(read)
	}
	wg.Wait()

	if ctx.Err() == nil {
		p.recorder.Observe(model.ProcessBlock, start)
	}
}

func (p *BlockPoller) completePair(ctx context.Context, block chain.Block, read pairRead) {
	pair := read.pair.Pair()

	res, err := read.reserves.Await(ctx)
	operation := "getReserves"
	var supply *big.Int
	if err == nil {
		supply, err = read.supply.Await(ctx)
		operation = "totalSupply"
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		kind := failureKind(err)
		p.logger.Warn("pair read failed",
			zap.String("pair", string(pair.ID)),
			zap.Uint64("block", block.Number),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		publishAnomaly(ctx, p.sink, p.logger, model.Anomaly{
			Kind:      kind,
			Pair:      pair.ID,
			PairID:    pair.Address,
			Block:     block.Number,
			BlockHash: block.Hash.Hex(),
			Operation: operation,
			Error:     err.Error(),
			Timestamp: p.now().UnixMilli(),
		})
		return
	}

	event := model.PairStatusEvent{
		Pair:      pair.ID,
		PairID:    pair.Address,
		Reserve0:  res.reserve0.String(),
		Reserve1:  res.reserve1.String(),
		LPShares:  supply.String(),
		Block:     block.Number,
		Timestamp: p.now().UnixMilli(),
	}
	if err := p.sink.PublishPairStatus(ctx, event); err != nil {
		p.logger.Warn("publish pair status failed",
			zap.String("pair", string(pair.ID)),
			zap.Uint64("block", block.Number),
			zap.Error(err),
		)
	}
}

func (p *BlockPoller) checkLineage(ctx context.Context, pending <-chan pendingBlock) {
	for next := range pending {
		block, err := next.block.Await(ctx)
		if err != nil {
			continue
		}
		expected, gap := p.tracker.Observe(block)
		if !gap {
			continue
		}
		p.logger.Warn("block lineage gap",
			zap.Uint64("block", block.Number),
			zap.String("hash", block.Hash.Hex()),
			zap.String("parent", block.ParentHash.Hex()),
			zap.String("expected_parent", expected.Hex()),
		)
		publishAnomaly(ctx, p.sink, p.logger, model.Anomaly{
			Kind:           model.AnomalyLineageGap,
			Block:          block.Number,
			BlockHash:      block.Hash.Hex(),
			ParentHash:     block.ParentHash.Hex(),
			ExpectedParent: expected.Hex(),
			Timestamp:      p.now().UnixMilli(),
		})
	}
}
