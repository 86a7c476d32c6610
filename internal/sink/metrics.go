package sink

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pairstream/internal/model"
)

const metricsNamespace = "pairstream"

// Metrics counts published events and exposes the latest latency report.
type Metrics struct {
	EventsTotal    *prometheus.CounterVec
	AnomaliesTotal *prometheus.CounterVec
	SwapsTotal     *prometheus.CounterVec
	LastBlock      *prometheus.GaugeVec
	ProcessLatency *prometheus.GaugeVec
	ProcessSamples *prometheus.GaugeVec

	reg       prometheus.Registerer
	mu        sync.Mutex
	lastBlock map[model.PairID]uint64
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Events published, labeled by event type.",
		}, []string{"type"}),

		AnomaliesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "anomalies_total",
			Help:      "Anomalies reported, labeled by kind.",
		}, []string{"kind"}),

		SwapsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "swaps_total",
			Help:      "Swaps observed, labeled by pair.",
		}, []string{"pair"}),

		LastBlock: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pair_status_last_block",
			Help:      "Highest block with a published pair status, labeled by pair.",
		}, []string{"pair"}),

		ProcessLatency: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "process_time_ms",
			Help:      "Latency summary of the last reporting interval.",
		}, []string{"class", "stat"}),

		ProcessSamples: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "process_samples",
			Help:      "Samples collected in the last reporting interval.",
		}, []string{"class"}),

		reg:       reg,
		lastBlock: make(map[model.PairID]uint64),
	}
}

func (m *Metrics) PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error {
	m.EventsTotal.WithLabelValues(string(model.EventPairStatus)).Inc()

	// Blocks complete out of order; keep the highest.
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.Block > m.lastBlock[event.Pair] {
		m.lastBlock[event.Pair] = event.Block
		m.LastBlock.WithLabelValues(string(event.Pair)).Set(float64(event.Block))
	}
	return nil
}

func (m *Metrics) PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error {
	m.EventsTotal.WithLabelValues(string(model.EventSwapBatch)).Inc()
	for _, swap := range batch.Swaps {
		m.SwapsTotal.WithLabelValues(string(swap.Pair)).Inc()
	}
	return nil
}

func (m *Metrics) PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error {
	m.EventsTotal.WithLabelValues(string(model.EventAnomaly)).Inc()
	m.AnomaliesTotal.WithLabelValues(string(anomaly.Kind)).Inc()
	return nil
}

func (m *Metrics) PublishStats(ctx context.Context, report model.StatsReport) error {
	m.EventsTotal.WithLabelValues(string(model.EventStats)).Inc()
	for _, class := range []model.ProcessClass{model.ProcessBlock, model.ProcessSwap} {
		summary := report.Summary(class)
		label := string(class)
		m.ProcessLatency.WithLabelValues(label, "min").Set(float64(summary.MinMs))
		m.ProcessLatency.WithLabelValues(label, "max").Set(float64(summary.MaxMs))
		m.ProcessLatency.WithLabelValues(label, "p50").Set(summary.P50Ms)
		m.ProcessLatency.WithLabelValues(label, "p99").Set(summary.P99Ms)
		m.ProcessSamples.WithLabelValues(label).Set(float64(summary.Count))
	}
	return nil
}

// WatchPool exposes the checked-out handle count of a pair's pool.
func (m *Metrics) WatchPool(pair model.PairID, size int, inUse func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "pool_connections_in_use",
		Help:        "Pooled connections currently checked out.",
		ConstLabels: prometheus.Labels{"pair": string(pair), "size": strconv.Itoa(size)},
	}, func() float64 { return float64(inUse()) })
}

func (m *Metrics) Close() error {
	return nil
}
