package model

// ProcessClass tags a latency sample with the loop that produced it.
type ProcessClass string

const (
	ProcessBlock ProcessClass = "BLOCK_PROCESS"
	ProcessSwap  ProcessClass = "SWAP_PROCESS"
)

// LatencySummary is the per-class summary of one reporting interval.
type LatencySummary struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_process_time_ms"`
	MaxMs int64   `json:"max_process_time_ms"`
	P50Ms float64 `json:"p50_process_time_ms"`
	P99Ms float64 `json:"p99_process_time_ms"`
}

// StatsReport is emitted once per reporting interval.
type StatsReport struct {
	RunID     string         `json:"run_id"`
	Timestamp int64          `json:"timestamp"`
	Block     LatencySummary `json:"BLOCK_PROCESS"`
	Swap      LatencySummary `json:"SWAP_PROCESS"`
}

// Summary returns the summary for a class.
func (r StatsReport) Summary(class ProcessClass) LatencySummary {
	if class == ProcessSwap {
		return r.Swap
	}
	return r.Block
}
