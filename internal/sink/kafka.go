package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"pairstream/internal/model"
)

// KafkaConfig holds producer settings. Delivery failures are reported to
// Logger since writes do not wait for the broker.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Logger  *zap.Logger
}

// Kafka publishes JSON envelopes keyed by pair so each pair stays on one partition.
type Kafka struct {
	writer *kafka.Writer
	runID  string
}

func NewKafka(cfg KafkaConfig, runID string) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion:   deliveryReporter(logger.Named("kafka")),
	}
	return &Kafka{writer: writer, runID: runID}, nil
}

func deliveryReporter(logger *zap.Logger) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		types := make([]string, 0, len(messages))
		for _, msg := range messages {
			for _, h := range msg.Headers {
				if h.Key == "type" {
					types = append(types, string(h.Value))
				}
			}
		}
		logger.Warn("kafka delivery failed",
			zap.Int("messages", len(messages)),
			zap.Strings("types", types),
			zap.Error(err),
		)
	}
}

func (k *Kafka) PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error {
	return k.publish(ctx, string(event.Pair), envelope(k.runID, model.EventPairStatus, event))
}

func (k *Kafka) PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error {
	key := ""
	if len(batch.Swaps) > 0 {
		key = string(batch.Swaps[0].Pair)
	}
	return k.publish(ctx, key, envelope(k.runID, model.EventSwapBatch, batch))
}

func (k *Kafka) PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error {
	key := string(anomaly.Pair)
	if key == "" {
		key = string(anomaly.Kind)
	}
	return k.publish(ctx, key, envelope(k.runID, model.EventAnomaly, anomaly))
}

func (k *Kafka) PublishStats(ctx context.Context, report model.StatsReport) error {
	return k.publish(ctx, string(model.EventStats), envelope(k.runID, model.EventStats, report))
}

func (k *Kafka) publish(ctx context.Context, key string, env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(env.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", env.Type, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
