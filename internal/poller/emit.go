package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"pairstream/internal/model"
	"pairstream/internal/pool"
)

const DefaultInterval = 300 * time.Millisecond

// Sink receives everything the pollers produce.
type Sink interface {
	PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error
	PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error
	PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error
}

// Recorder takes latency samples.
type Recorder interface {
	Observe(class model.ProcessClass, start time.Time)
}

type nopRecorder struct{}

func (nopRecorder) Observe(model.ProcessClass, time.Time) {}

func failureKind(err error) model.AnomalyKind {
	if errors.Is(err, pool.ErrPoolExhausted) {
		return model.AnomalyPoolExhausted
	}
	return model.AnomalyRemoteCallFailure
}

func publishAnomaly(ctx context.Context, sink Sink, logger *zap.Logger, anomaly model.Anomaly) {
	if err := sink.PublishAnomaly(ctx, anomaly); err != nil {
		logger.Warn("publish anomaly failed",
			zap.String("kind", string(anomaly.Kind)),
			zap.Error(err),
		)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
