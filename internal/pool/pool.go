package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairstream/internal/chain"
	"pairstream/internal/dex"
	"pairstream/internal/model"
)

const (
	DefaultSize           = 6
	DefaultAcquireTimeout = 3 * time.Second
)

// ErrPoolExhausted is returned when no handle frees up within the acquire timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// Dialer opens one contract handle bound to a pair address.
type Dialer func(ctx context.Context, address common.Address) (chain.Contract, error)

// Options configures a Pool. DialRetries is how many times a failed dial is
// retried before New gives up; zero disables retries.
type Options struct {
	Size           int
	AcquireTimeout time.Duration
	DialRetries    int
	DialBackoff    time.Duration
	Logger         *zap.Logger
}

// Pool owns a fixed set of handles for one pair plus one dedicated handle
// reserved for the swap filter.
type Pool struct {
	pair    model.MonitoredPair
	conns   chan chain.Contract
	all     []chain.Contract
	swap    chain.Contract
	timeout time.Duration
	logger  *zap.Logger

	inUse     atomic.Int64
	closeOnce sync.Once
}

// New dials opts.Size pooled handles and the dedicated handle eagerly.
func New(ctx context.Context, pair model.MonitoredPair, opts Options, dial Dialer) (*Pool, error) {
	if dial == nil {
		return nil, fmt.Errorf("dialer is nil")
	}
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	address := common.HexToAddress(pair.Address)
	opened := make([]chain.Contract, 0, opts.Size+1)
	closeOpened := func() {
		for _, conn := range opened {
			conn.Close()
		}
	}

	for i := 0; i < opts.Size+1; i++ {
		conn, err := dialHandle(ctx, dial, address, opts.DialRetries, opts.DialBackoff, logger.With(zap.String("pair", string(pair.ID)), zap.Int("handle", i)))
		if err != nil {
			closeOpened()
			return nil, fmt.Errorf("dial %s handle %d: %w", pair.ID, i, err)
		}
		opened = append(opened, conn)
	}

	p := &Pool{
		pair:    pair,
		conns:   make(chan chain.Contract, opts.Size),
		all:     opened,
		swap:    opened[opts.Size],
		timeout: opts.AcquireTimeout,
		logger:  logger.With(zap.String("pair", string(pair.ID))),
	}
	for _, conn := range opened[:opts.Size] {
		p.conns <- conn
	}

	p.logger.Info("connection pool ready",
		zap.String("address", pair.Address),
		zap.Int("size", opts.Size),
	)
	return p, nil
}

// Pair returns the pair this pool serves.
func (p *Pool) Pair() model.MonitoredPair {
	return p.pair
}

// Size returns the number of pooled handles, excluding the dedicated one.
func (p *Pool) Size() int {
	return cap(p.conns)
}

// InUse returns how many pooled handles are checked out.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Acquire checks out a handle, waiting at most the acquire timeout.
func (p *Pool) Acquire(ctx context.Context) (chain.Contract, error) {
	select {
	case conn := <-p.conns:
		p.inUse.Add(1)
		return conn, nil
	default:
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case conn := <-p.conns:
		p.inUse.Add(1)
		return conn, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s after %s: %w", p.pair.ID, p.timeout, ErrPoolExhausted)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a handle to the pool. It never blocks.
func (p *Pool) Release(conn chain.Contract) {
	if conn == nil {
		return
	}
	p.inUse.Add(-1)
	select {
	case p.conns <- conn:
	default:
		p.logger.Warn("released handle does not belong to pool")
	}
}

// FetchReserves reads the pair reserves with one pooled handle.
func (p *Pool) FetchReserves(ctx context.Context) (*big.Int, *big.Int, error) {
	values, err := p.call(ctx, dex.MethodGetReserves)
	if err != nil {
		return nil, nil, err
	}
	return dex.UnpackReserves(values)
}

// FetchLPSupply reads the LP token supply with one pooled handle.
func (p *Pool) FetchLPSupply(ctx context.Context) (*big.Int, error) {
	values, err := p.call(ctx, dex.MethodTotalSupply)
	if err != nil {
		return nil, err
	}
	return dex.UnpackSupply(values)
}

func (p *Pool) call(ctx context.Context, method string) ([]interface{}, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(conn)

	values, err := conn.Call(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.pair.ID, method, err)
	}
	return values, nil
}

// LatestSwapFilter installs a Swap log filter from the latest block on the
// dedicated handle.
func (p *Pool) LatestSwapFilter(ctx context.Context) (*SwapFilter, error) {
	watch, err := p.swap.WatchEvent(ctx, dex.EventSwap)
	if err != nil {
		return nil, fmt.Errorf("%s swap filter: %w", p.pair.ID, err)
	}
	return &SwapFilter{pair: p.pair, watch: watch}, nil
}

// Close closes every handle. Handles still checked out are closed as well.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for _, conn := range p.all {
			conn.Close()
		}
		p.logger.Debug("connection pool closed")
	})
}
