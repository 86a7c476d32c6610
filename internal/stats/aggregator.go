package stats

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairstream/internal/model"
	"pairstream/internal/worker"
)

const DefaultInterval = 10 * time.Second

// Publisher receives periodic reports.
type Publisher interface {
	PublishStats(ctx context.Context, report model.StatsReport) error
}

// Aggregator collects latency samples per process class and summarizes them
// once per reporting interval.
type Aggregator struct {
	mu      sync.Mutex
	samples map[model.ProcessClass][]int64

	workers *worker.Pool
	runID   string
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregator creates an aggregator. Summaries are computed on workers.
func NewAggregator(workers *worker.Pool, runID string, logger *zap.Logger) *Aggregator {
	if workers == nil {
		workers = worker.NewPool(worker.DefaultWorkers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		samples: newBuffers(),
		workers: workers,
		runID:   runID,
		logger:  logger,
		now:     time.Now,
	}
}

func newBuffers() map[model.ProcessClass][]int64 {
	return map[model.ProcessClass][]int64{
		model.ProcessBlock: nil,
		model.ProcessSwap:  nil,
	}
}

// Record appends one sample in milliseconds.
func (a *Aggregator) Record(class model.ProcessClass, ms int64) {
	a.mu.Lock()
	a.samples[class] = append(a.samples[class], ms)
	a.mu.Unlock()
}

// Observe records the milliseconds elapsed since start.
func (a *Aggregator) Observe(class model.ProcessClass, start time.Time) {
	a.Record(class, a.now().Sub(start).Milliseconds())
}

// Report takes the buffered samples, leaving empty buffers behind, and
// summarizes them.
func (a *Aggregator) Report(ctx context.Context) (model.StatsReport, error) {
	a.mu.Lock()
	taken := a.samples
	a.samples = newBuffers()
	a.mu.Unlock()

	block := worker.Submit(a.workers, ctx, func(context.Context) (model.LatencySummary, error) {
		return Summarize(taken[model.ProcessBlock]), nil
	})
	swap := worker.Submit(a.workers, ctx, func(context.Context) (model.LatencySummary, error) {
		return Summarize(taken[model.ProcessSwap]), nil
	})

	report := model.StatsReport{RunID: a.runID, Timestamp: a.now().UnixMilli()}
	var err error
	if report.Block, err = block.Await(ctx); err != nil {
		return model.StatsReport{}, err
	}
	if report.Swap, err = swap.Await(ctx); err != nil {
		return model.StatsReport{}, err
	}
	return report, nil
}

// ReportLoop reports every interval until ctx is done.
func (a *Aggregator) ReportLoop(ctx context.Context, interval time.Duration, pub Publisher) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		report, err := a.Report(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("stats report failed", zap.Error(err))
			continue
		}
		a.logger.Debug("stats report",
			zap.Int("block_samples", report.Block.Count),
			zap.Int("swap_samples", report.Swap.Count),
		)
		if pub == nil {
			continue
		}
		if err := pub.PublishStats(ctx, report); err != nil {
			a.logger.Warn("publish stats failed", zap.Error(err))
		}
	}
}

// Summarize returns min, max, p50 and p99 of samples. An empty set yields zeros.
func Summarize(samples []int64) model.LatencySummary {
	if len(samples) == 0 {
		return model.LatencySummary{}
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return model.LatencySummary{
		Count: len(sorted),
		MinMs: sorted[0],
		MaxMs: sorted[len(sorted)-1],
		P50Ms: Percentile(sorted, 50),
		P99Ms: Percentile(sorted, 99),
	}
}

// Percentile interpolates linearly between the closest ranks of sorted.
func Percentile(sorted []int64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[hi])-float64(sorted[lo]))*frac
}
