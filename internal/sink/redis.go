package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"pairstream/internal/model"
)

const (
	streamMaxLen int64 = 10000

	redisStreamKey = "pairstream:events"
	redisStatsKey  = "pairstream:stats:latest"
)

// RedisConfig holds connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis keeps the latest status per pair and appends every event to a
// capped stream.
type Redis struct {
	rdb   *redis.Client
	runID string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig, runID string) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return newRedis(rdb, runID), nil
}

func newRedis(rdb *redis.Client, runID string) *Redis {
	return &Redis{rdb: rdb, runID: runID}
}

func pairStatusKey(pair model.PairID) string {
	return "pairstream:status:" + string(pair)
}

func pairStatusBlockKey(pair model.PairID) string {
	return pairStatusKey(pair) + ":block"
}

// setIfNewer writes KEYS[1] and its block KEYS[2] unless a later block is
// already stored. Returns 1 when written.
var setIfNewer = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '-1')
if tonumber(ARGV[2]) < current then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

// PublishPairStatus appends the event to the stream and updates the latest
// status key. Reads complete out of block order, so an older block never
// replaces a newer one.
func (r *Redis) PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal pair status: %w", err)
	}
	keys := []string{pairStatusKey(event.Pair), pairStatusBlockKey(event.Pair)}
	if err := setIfNewer.Run(ctx, r.rdb, keys, string(data), strconv.FormatUint(event.Block, 10)).Err(); err != nil {
		return fmt.Errorf("redis: pair status %s: %w", event.Pair, err)
	}
	return r.append(ctx, model.EventPairStatus, string(event.Pair), event)
}

func (r *Redis) PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error {
	pair := ""
	if len(batch.Swaps) > 0 {
		pair = string(batch.Swaps[0].Pair)
	}
	return r.append(ctx, model.EventSwapBatch, pair, batch)
}

func (r *Redis) PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error {
	return r.append(ctx, model.EventAnomaly, string(anomaly.Pair), anomaly)
}

func (r *Redis) PublishStats(ctx context.Context, report model.StatsReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, redisStatsKey, data, 0)
	if err := r.xadd(ctx, pipe, model.EventStats, "", report); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: stats: %w", err)
	}
	return nil
}

func (r *Redis) append(ctx context.Context, eventType model.EventType, pair string, payload interface{}) error {
	pipe := r.rdb.Pipeline()
	if err := r.xadd(ctx, pipe, eventType, pair, payload); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: xadd %s: %w", eventType, err)
	}
	return nil
}

func (r *Redis) xadd(ctx context.Context, pipe redis.Pipeliner, eventType model.EventType, pair string, payload interface{}) error {
	data, err := json.Marshal(envelope(r.runID, eventType, payload))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: redisStreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(eventType),
			"pair":    pair,
			"payload": string(data),
		},
	})
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
