package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pairstream/internal/chain"
	"pairstream/internal/model"
	"pairstream/internal/poller"
	"pairstream/internal/pool"
	"pairstream/internal/worker"
)

// Node is the block source shared by every component.
type Node interface {
	poller.Node
	LatestBlock(ctx context.Context) (chain.Block, error)
}

// Settings are the tunables of a run.
type Settings struct {
	PoolSize       int
	AcquireTimeout time.Duration
	DialRetries    int
	DialBackoff    time.Duration
	BlockInterval  time.Duration
	SwapInterval   time.Duration
	StatsInterval  time.Duration
	Workers        int
}

// PoolWatcher observes pool occupancy.
type PoolWatcher interface {
	WatchPool(pair model.PairID, size int, inUse func() int)
}

// Runtime is built once at startup and handed to everything that needs the
// pair list, the pools, or the interval settings. Close releases every
// pooled connection.
type Runtime struct {
	runID    string
	pairs    []model.MonitoredPair
	node     Node
	pools    []*pool.Pool
	workers  *worker.Pool
	settings Settings
	logger   *zap.Logger
}

// NewRuntime dials a pool per pair. Any failure closes what was opened.
func NewRuntime(ctx context.Context, pairs []model.MonitoredPair, node Node, dial pool.Dialer, settings Settings, logger *zap.Logger) (*Runtime, error) {
	if node == nil {
		return nil, fmt.Errorf("node is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rt := &Runtime{
		runID:    uuid.NewString(),
		pairs:    append([]model.MonitoredPair(nil), pairs...),
		node:     node,
		workers:  worker.NewPool(settings.Workers),
		settings: settings,
		logger:   logger,
	}

	for _, pair := range pairs {
		p, err := pool.New(ctx, pair, pool.Options{
			Size:           settings.PoolSize,
			AcquireTimeout: settings.AcquireTimeout,
			DialRetries:    settings.DialRetries,
			DialBackoff:    settings.DialBackoff,
			Logger:         logger,
		}, dial)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.pools = append(rt.pools, p)
	}

	logger.Info("runtime ready",
		zap.String("run_id", rt.runID),
		zap.Int("pairs", len(rt.pairs)),
		zap.Int("workers", rt.workers.Size()),
	)
	return rt, nil
}

// RunID identifies this process run.
func (r *Runtime) RunID() string {
	return r.runID
}

// Pools returns one pool per pair, in pair order.
func (r *Runtime) Pools() []*pool.Pool {
	return r.pools
}

// WatchPools registers every pool with w.
func (r *Runtime) WatchPools(w PoolWatcher) {
	for _, p := range r.pools {
		w.WatchPool(p.Pair().ID, p.Size(), p.InUse)
	}
}

// Close closes every pool.
func (r *Runtime) Close() {
	for _, p := range r.pools {
		p.Close()
	}
	r.workers.Wait()
}
