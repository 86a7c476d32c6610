package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pairstream/internal/model"
)

// JSONL appends one envelope per line to a file.
type JSONL struct {
	path  string
	runID string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewJSONL opens path for appending, creating parent directories.
func NewJSONL(path, runID string) (*JSONL, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl output path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &JSONL{
		path:   path,
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (s *JSONL) PublishPairStatus(ctx context.Context, event model.PairStatusEvent) error {
	return s.write(envelope(s.runID, model.EventPairStatus, event))
}

func (s *JSONL) PublishSwapBatch(ctx context.Context, batch model.SwapBatch) error {
	return s.write(envelope(s.runID, model.EventSwapBatch, batch))
}

func (s *JSONL) PublishAnomaly(ctx context.Context, anomaly model.Anomaly) error {
	return s.write(envelope(s.runID, model.EventAnomaly, anomaly))
}

func (s *JSONL) PublishStats(ctx context.Context, report model.StatsReport) error {
	return s.write(envelope(s.runID, model.EventStats, report))
}

func (s *JSONL) write(env model.Envelope) error {
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return fmt.Errorf("jsonl sink closed")
	}
	if _, err := s.writer.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.writer = nil
	if flushErr != nil {
		return fmt.Errorf("flush output: %w", flushErr)
	}
	return closeErr
}
