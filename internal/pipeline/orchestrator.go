package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pairstream/internal/poller"
	"pairstream/internal/pool"
	"pairstream/internal/sink"
	"pairstream/internal/stats"
)

// Orchestrator runs the block poller, one swap poller per pair, and the
// stats reporter until the context is cancelled.
type Orchestrator struct {
	rt     *Runtime
	sink   sink.Sink
	stats  *stats.Aggregator
	logger *zap.Logger
}

func NewOrchestrator(rt *Runtime, out sink.Sink, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		rt:     rt,
		sink:   out,
		stats:  stats.NewAggregator(rt.workers, rt.runID, logger.Named("stats")),
		logger: logger,
	}
}

// Run returns nil on cancellation and an error if any component fails to
// start. Swap filters are installed before any loop begins.
func (o *Orchestrator) Run(ctx context.Context) error {
	settings := o.rt.settings

	filters := make([]*pool.SwapFilter, 0, len(o.rt.pools))
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, f := range filters {
			if err := f.Uninstall(cleanupCtx); err != nil {
				o.logger.Debug("uninstall swap filter failed",
					zap.String("pair", string(f.Pair().ID)),
					zap.Error(err),
				)
			}
		}
	}()
	for _, p := range o.rt.pools {
		f, err := p.LatestSwapFilter(ctx)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}

	readers := make([]poller.PairReader, 0, len(o.rt.pools))
	for _, p := range o.rt.pools {
		readers = append(readers, p)
	}
	blocks := poller.NewBlockPoller(o.rt.node, readers, o.rt.workers, o.sink, poller.BlockOptions{
		Interval: settings.BlockInterval,
		Recorder: o.stats,
		Logger:   o.logger.Named("blocks"),
	})

	o.logger.Info("pipeline starting",
		zap.String("run_id", o.rt.runID),
		zap.Int("pairs", len(o.rt.pools)),
		zap.Duration("block_interval", settings.BlockInterval),
		zap.Duration("swap_interval", settings.SwapInterval),
		zap.Duration("stats_interval", settings.StatsInterval),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := blocks.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("block poller: %w", err)
	})

	for _, f := range filters {
		swaps := poller.NewSwapPoller(f, o.sink, poller.SwapOptions{
			Interval: settings.SwapInterval,
			Recorder: o.stats,
			Logger:   o.logger.Named("swaps"),
		})
		g.Go(func() error {
			err := swaps.Run(gctx)
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("swap poller: %w", err)
		})
	}

	g.Go(func() error {
		err := o.stats.ReportLoop(gctx, settings.StatsInterval, o.sink)
		if gctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("stats reporter: %w", err)
	})

	err := g.Wait()
	o.logger.Info("pipeline stopped", zap.Error(err))
	return err
}
