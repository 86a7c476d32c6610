package model

// AnomalyKind tags an anomaly or failure so downstream consumers can alert on it.
type AnomalyKind string

const (
	AnomalyLineageGap        AnomalyKind = "LINEAGE_GAP"
	AnomalyCrossBlockBatch   AnomalyKind = "CROSS_BLOCK_BATCH"
	AnomalyPoolExhausted     AnomalyKind = "POOL_EXHAUSTED"
	AnomalyRemoteCallFailure AnomalyKind = "REMOTE_CALL_FAILURE"
)

// Anomaly is reported through the same channel as regular events.
// Fields that do not apply to a kind are left empty.
type Anomaly struct {
	Kind           AnomalyKind `json:"kind"`
	Pair           PairID      `json:"pair,omitempty"`
	PairID         string      `json:"pair_id,omitempty"`
	Block          uint64      `json:"block,omitempty"`
	BlockHash      string      `json:"block_hash,omitempty"`
	ParentHash     string      `json:"parent_hash,omitempty"`
	ExpectedParent string      `json:"expected_parent,omitempty"`
	Blocks         []uint64    `json:"blocks,omitempty"`
	Operation      string      `json:"operation,omitempty"`
	Error          string      `json:"error,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}
