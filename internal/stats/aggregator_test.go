package stats

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"pairstream/internal/model"
	"pairstream/internal/worker"
)

func TestReportSummarizesAndClears(t *testing.T) {
	agg := NewAggregator(worker.NewPool(2), "run-1", nil)
	for _, ms := range []int64{10, 20, 30, 100} {
		agg.Record(model.ProcessBlock, ms)
	}

	report, err := agg.Report(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	block := report.Block
	if block.Count != 4 || block.MinMs != 10 || block.MaxMs != 100 {
		t.Fatalf("block summary mismatch: %+v", block)
	}
	if math.Abs(block.P50Ms-25) > 1e-9 {
		t.Fatalf("p50 mismatch: %v", block.P50Ms)
	}
	if math.Abs(block.P99Ms-97.9) > 1e-9 {
		t.Fatalf("p99 mismatch: %v", block.P99Ms)
	}
	if report.Swap != (model.LatencySummary{}) {
		t.Fatalf("swap summary should be zero: %+v", report.Swap)
	}
	if report.RunID != "run-1" {
		t.Fatalf("run id mismatch: %s", report.RunID)
	}

	next, err := agg.Report(context.Background())
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	if next.Block != (model.LatencySummary{}) || next.Swap != (model.LatencySummary{}) {
		t.Fatalf("expected zero report after clear: %+v", next)
	}
}

func TestPercentileSingleSample(t *testing.T) {
	if got := Percentile([]int64{42}, 99); got != 42 {
		t.Fatalf("percentile mismatch: %v", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Fatalf("empty percentile mismatch: %v", got)
	}
}

func TestSummarizeDoesNotReorderInput(t *testing.T) {
	samples := []int64{30, 10, 20}
	summary := Summarize(samples)
	if summary.P50Ms != 20 {
		t.Fatalf("p50 mismatch: %v", summary.P50Ms)
	}
	if samples[0] != 30 {
		t.Fatalf("input reordered: %v", samples)
	}
}

func TestRecordConcurrentWithReport(t *testing.T) {
	agg := NewAggregator(worker.NewPool(2), "", nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				agg.Record(model.ProcessSwap, int64(j))
			}
		}()
	}

	total := 0
	for i := 0; i < 5; i++ {
		report, err := agg.Report(context.Background())
		if err != nil {
			t.Fatalf("report: %v", err)
		}
		total += report.Swap.Count
	}
	wg.Wait()
	report, err := agg.Report(context.Background())
	if err != nil {
		t.Fatalf("final report: %v", err)
	}
	total += report.Swap.Count

	if total != 1000 {
		t.Fatalf("samples lost: %d", total)
	}
}

func TestObserveUsesMilliseconds(t *testing.T) {
	agg := NewAggregator(nil, "", nil)
	start := time.Unix(0, 0)
	agg.now = func() time.Time { return start.Add(1500 * time.Microsecond) }

	agg.Observe(model.ProcessBlock, start)
	report, err := agg.Report(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Block.MinMs != 1 {
		t.Fatalf("expected 1ms, got %d", report.Block.MinMs)
	}
}

type capturePublisher struct {
	mu      sync.Mutex
	reports []model.StatsReport
}

func (c *capturePublisher) PublishStats(ctx context.Context, report model.StatsReport) error {
	c.mu.Lock()
	c.reports = append(c.reports, report)
	c.mu.Unlock()
	return nil
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func TestReportLoopPublishesUntilCanceled(t *testing.T) {
	agg := NewAggregator(worker.NewPool(2), "", nil)
	agg.Record(model.ProcessBlock, 5)
	pub := &capturePublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agg.ReportLoop(ctx, 5*time.Millisecond, pub) }()

	deadline := time.Now().Add(time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if pub.count() < 2 {
		t.Fatalf("expected at least 2 reports, got %d", pub.count())
	}
	pub.mu.Lock()
	first := pub.reports[0]
	pub.mu.Unlock()
	if first.Block.Count != 1 {
		t.Fatalf("first report should carry the sample: %+v", first.Block)
	}
}
