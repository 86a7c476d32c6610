package sink

import (
	"context"

	"go.uber.org/zap"

	"pairstream/internal/model"
)

// Console writes events to the structured log.
type Console struct {
	logger *zap.Logger
}

func NewConsole(logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{logger: logger.Named("events")}
}

func (c *Console) PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error {
	c.logger.Info("pair status",
		zap.String("pair", string(event.Pair)),
		zap.String("pair_id", event.PairID),
		zap.String("reserve_0", event.Reserve0),
		zap.String("reserve_1", event.Reserve1),
		zap.String("lp_shares", event.LPShares),
		zap.Uint64("block", event.Block),
		zap.Int64("timestamp", event.Timestamp),
	)
	return nil
}

func (c *Console) PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error {
	c.logger.Info("swap batch",
		zap.Int("swaps", len(batch.Swaps)),
		zap.Any("events", batch.Swaps),
	)
	return nil
}

func (c *Console) PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error {
	c.logger.Warn("anomaly",
		zap.String("kind", string(anomaly.Kind)),
		zap.Any("detail", anomaly),
	)
	return nil
}

func (c *Console) PublishStats(ctx context.Context, report model.StatsReport) error {
	c.logger.Info("process stats",
		zap.String("run_id", report.RunID),
		zap.Any(string(model.ProcessBlock), report.Block),
		zap.Any(string(model.ProcessSwap), report.Swap),
	)
	return nil
}

func (c *Console) Close() error {
	return nil
}
