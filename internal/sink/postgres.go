package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pairstream/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pair_status (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL,
	pair        TEXT NOT NULL,
	pair_id     TEXT NOT NULL,
	block       BIGINT NOT NULL,
	reserve_0   NUMERIC NOT NULL,
	reserve_1   NUMERIC NOT NULL,
	lp_shares   NUMERIC NOT NULL,
	ts_ms       BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS pair_status_pair_block ON pair_status (pair, block);

CREATE TABLE IF NOT EXISTS swap_events (
	id           BIGSERIAL PRIMARY KEY,
	run_id       TEXT NOT NULL,
	pair         TEXT NOT NULL,
	pair_id      TEXT NOT NULL,
	tx           TEXT NOT NULL,
	block        BIGINT NOT NULL,
	amount_0_in  NUMERIC NOT NULL,
	amount_1_in  NUMERIC NOT NULL,
	amount_0_out NUMERIC NOT NULL,
	amount_1_out NUMERIC NOT NULL,
	ts_ms        BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS swap_events_pair_block ON swap_events (pair, block);

CREATE TABLE IF NOT EXISTS anomalies (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	pair       TEXT,
	block      BIGINT,
	detail     JSONB NOT NULL,
	ts_ms      BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS process_stats (
	run_id  TEXT NOT NULL,
	ts_ms   BIGINT NOT NULL,
	class   TEXT NOT NULL,
	samples INTEGER NOT NULL,
	min_ms  BIGINT NOT NULL,
	max_ms  BIGINT NOT NULL,
	p50_ms  DOUBLE PRECISION NOT NULL,
	p99_ms  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, ts_ms, class)
);
`

// Postgres stores events in relational tables.
type Postgres struct {
	pool  *pgxpool.Pool
	runID string
}

// NewPostgres connects and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn, runID string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return &Postgres{pool: pool, runID: runID}, nil
}

func (s *Postgres) PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pair_status (run_id, pair, pair_id, block, reserve_0, reserve_1, lp_shares, ts_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		s.runID,
		string(event.Pair),
		event.PairID,
		int64(event.Block),
		event.Reserve0,
		event.Reserve1,
		event.LPShares,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert pair status: %w", err)
	}
	return nil
}

func (s *Postgres) PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error {
	if len(batch.Swaps) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, swap := range batch.Swaps {
		b.Queue(`
			INSERT INTO swap_events (
				run_id, pair, pair_id, tx, block, amount_0_in, amount_1_in, amount_0_out, amount_1_out, ts_ms
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			s.runID,
			string(swap.Pair),
			swap.PairID,
			swap.Tx,
			int64(swap.Block),
			swap.Amount0In,
			swap.Amount1In,
			swap.Amount0Out,
			swap.Amount1Out,
			swap.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for range batch.Swaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert swap: %w", err)
		}
	}
	return nil
}

func (s *Postgres) PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error {
	detail, err := json.Marshal(anomaly)
	if err != nil {
		return fmt.Errorf("marshal anomaly: %w", err)
	}
	var pair *string
	if anomaly.Pair != "" {
		p := string(anomaly.Pair)
		pair = &p
	}
	var block *int64
	if anomaly.Block != 0 {
		b := int64(anomaly.Block)
		block = &b
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO anomalies (run_id, kind, pair, block, detail, ts_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.runID, string(anomaly.Kind), pair, block, detail, anomaly.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: insert anomaly: %w", err)
	}
	return nil
}

func (s *Postgres) PublishStats(ctx context.Context, report model.StatsReport) error {
	classes := []model.ProcessClass{model.ProcessBlock, model.ProcessSwap}
	b := &pgx.Batch{}
	for _, class := range classes {
		summary := report.Summary(class)
		b.Queue(`
			INSERT INTO process_stats (run_id, ts_ms, class, samples, min_ms, max_ms, p50_ms, p99_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (run_id, ts_ms, class) DO NOTHING
		`,
			report.RunID,
			report.Timestamp,
			string(class),
			summary.Count,
			summary.MinMs,
			summary.MaxMs,
			summary.P50Ms,
			summary.P99Ms,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for range classes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert stats: %w", err)
		}
	}
	return nil
}

func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
