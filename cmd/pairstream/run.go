package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairstream/internal/chain"
	"pairstream/internal/config"
	"pairstream/internal/dex"
	"pairstream/internal/pipeline"
	"pairstream/internal/pool"
)

func runStream(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, closeNode, err := startRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNode()
	defer rt.Close()

	out, metrics, err := buildSinks(ctx, cfg, rt.RunID(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn("close sinks", zap.Error(err))
		}
	}()
	if metrics != nil {
		rt.WatchPools(metrics.collector)
		stopMetrics := metrics.serve(logger)
		defer stopMetrics()
	}

	logger.Info("pairstream start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("run_id", rt.RunID()),
		zap.Stringers("pairs", cfg.Pairs),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("workers", cfg.Workers),
		zap.Strings("sinks", cfg.Sinks),
	)

	return pipeline.NewOrchestrator(rt, out, logger).Run(ctx)
}

// startRuntime connects the shared node client and one pool per pair.
func startRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline.Runtime, func(), error) {
	node, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	pairABI, err := dex.PairABI()
	if err != nil {
		node.Close()
		return nil, nil, err
	}
	var dial pool.Dialer = func(ctx context.Context, address common.Address) (chain.Contract, error) {
		contract, err := chain.DialContract(ctx, cfg.RPCURL, address, pairABI)
		if err != nil {
			return nil, err
		}
		return contract, nil
	}

	rt, err := pipeline.NewRuntime(ctx, cfg.Pairs, node, dial, pipeline.Settings{
		PoolSize:       cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
		DialRetries:    cfg.DialRetries,
		DialBackoff:    cfg.DialBackoff,
		BlockInterval:  cfg.BlockInterval,
		SwapInterval:   cfg.SwapInterval,
		StatsInterval:  cfg.StatsInterval,
		Workers:        cfg.Workers,
	}, logger)
	if err != nil {
		node.Close()
		return nil, nil, err
	}
	return rt, node.Close, nil
}
