package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pairstream/internal/dex"
	"pairstream/internal/model"
)

// SwapSource yields the swaps of one pair since the previous poll. Poll may
// return decoded swaps together with an error for entries it had to drop.
type SwapSource interface {
	Pair() model.MonitoredPair
	Poll(ctx context.Context) ([]dex.SwapLog, error)
}

// SwapOptions configures a SwapPoller.
type SwapOptions struct {
	Interval time.Duration
	Recorder Recorder
	Logger   *zap.Logger
}

// SwapPoller publishes one SwapBatch per non-empty poll of a pair's swap filter.
type SwapPoller struct {
	source   SwapSource
	sink     Sink
	recorder Recorder
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSwapPoller wires a poller over source.
func NewSwapPoller(source SwapSource, sink Sink, opts SwapOptions) *SwapPoller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &SwapPoller{
		source:   source,
		sink:     sink,
		recorder: opts.Recorder,
		interval: opts.Interval,
		logger:   opts.Logger.With(zap.String("pair", string(source.Pair().ID))),
		now:      time.Now,
	}
}

// Run polls until ctx is done and returns ctx.Err().
func (p *SwapPoller) Run(ctx context.Context) error {
	p.logger.Info("swap poller started", zap.Duration("interval", p.interval))
	for {
		p.tick(ctx)
		if err := sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

func (p *SwapPoller) tick(ctx context.Context) {
	pair := p.source.Pair()
	swaps, err := p.source.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// swaps decoded alongside a failure are still published below
		p.logger.Warn("swap poll failed", zap.Int("decoded", len(swaps)), zap.Error(err))
		publishAnomaly(ctx, p.sink, p.logger, model.Anomaly{
			Kind:      failureKind(err),
			Pair:      pair.ID,
			PairID:    pair.Address,
			Operation: "eth_getFilterChanges",
			Error:     err.Error(),
			Timestamp: p.now().UnixMilli(),
		})
	}
	if len(swaps) == 0 {
		return
	}

	start := p.now()
	batch := BuildSwapBatch(pair, swaps, start.UnixMilli())
	if len(swaps) > 1 {
		p.logger.Debug("multiple swaps in one poll", zap.Int("swaps", len(swaps)))
	}
	if blocks := batch.Blocks(); len(blocks) > 1 {
		p.logger.Warn("swap batch spans blocks", zap.Uint64s("blocks", blocks))
		publishAnomaly(ctx, p.sink, p.logger, model.Anomaly{
			Kind:      model.AnomalyCrossBlockBatch,
			Pair:      pair.ID,
			PairID:    pair.Address,
			Blocks:    blocks,
			Timestamp: start.UnixMilli(),
		})
	}

	if err := p.sink.PublishSwapBatch(ctx, batch); err != nil {
		p.logger.Warn("publish swap batch failed", zap.Error(err))
	}
	p.recorder.Observe(model.ProcessSwap, start)
}

// BuildSwapBatch maps decoded swaps to events, keeping upstream order.
func BuildSwapBatch(pair model.MonitoredPair, swaps []dex.SwapLog, timestamp int64) model.SwapBatch {
	events := make([]model.SwapEvent, 0, len(swaps))
	for _, swap := range swaps {
		events = append(events, model.SwapEvent{
			Pair:       pair.ID,
			PairID:     pair.Address,
			Amount0In:  swap.Amount0In.String(),
			Amount1In:  swap.Amount1In.String(),
			Amount0Out: swap.Amount0Out.String(),
			Amount1Out: swap.Amount1Out.String(),
			Tx:         swap.TxHash.Hex(),
			Block:      swap.BlockNumber,
			Timestamp:  timestamp,
		})
	}
	return model.SwapBatch{Swaps: events}
}
