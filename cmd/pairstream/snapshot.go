package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairstream/internal/pipeline"
)

// runSnapshot prints one pair_status JSON line per pair.
func runSnapshot(cmd *cobra.Command, _ []string) error {
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

	events, err := pipeline.Snapshot(ctx, rt)
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, event := range events {
		if encErr := enc.Encode(event); encErr != nil {
			return encErr
		}
	}
	if err != nil {
		logger.Warn("snapshot incomplete", zap.Int("pairs", len(events)), zap.Error(err))
		return err
	}
	return nil
}
