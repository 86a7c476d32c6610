package pool

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairstream/internal/chain"
)

const DefaultDialBackoff = 500 * time.Millisecond

// dialHandle opens one handle, retrying up to retries times with a doubling
// pause. Only connection setup is retried; calls on the handle never are.
func dialHandle(ctx context.Context, dial Dialer, address common.Address, retries int, backoff time.Duration, logger *zap.Logger) (chain.Contract, error) {
	if backoff <= 0 {
		backoff = DefaultDialBackoff
	}

	for attempt := 0; ; attempt++ {
		conn, err := dial(ctx, address)
		if err == nil {
			return conn, nil
		}
		if attempt >= retries {
			return nil, err
		}
		logger.Warn("dial failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		pause := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			pause.Stop()
			return nil, ctx.Err()
		case <-pause.C:
		}
		backoff *= 2
	}
}
