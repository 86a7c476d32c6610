package sink

import (
	"context"
	"errors"

	"pairstream/internal/model"
)

// Sink receives every event the pipeline produces.
type Sink interface {
	PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error
	PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error
	PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error
	PublishStats(ctx context.Context, report model.StatsReport) error
	Close() error
}

// Multi fans every event out to all sinks. A failing sink does not stop the
// others; their errors are joined.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

func (m *Multi) PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error {
	return m.each(func(s Sink) error { return s.PublishPairStatus(ctx, event) })
}

func (m *Multi) PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error {
	return m.each(func(s Sink) error { return s.PublishSwapBatch(ctx, batch) })
}

func (m *Multi) PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error {
	return m.each(func(s Sink) error { return s.PublishAnomaly(ctx, anomaly) })
}

func (m *Multi) PublishStats(ctx context.Context, report model.StatsReport) error {
	return m.each(func(s Sink) error { return s.PublishStats(ctx, report) })
}

func (m *Multi) Close() error {
	return m.each(func(s Sink) error { return s.Close() })
}

func (m *Multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func envelope(runID string, eventType model.EventType, payload interface{}) model.Envelope {
	return model.Envelope{Type: eventType, RunID: runID, Payload: payload}
}
