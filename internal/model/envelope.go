package model

// EventType names the payload carried in an Envelope.
type EventType string

const (
	EventPairStatus EventType = "pair_status"
	EventSwapBatch  EventType = "swap_batch"
	EventAnomaly    EventType = "anomaly"
	EventStats      EventType = "stats"
)

// Envelope is the serialized form used by file and bus sinks.
type Envelope struct {
	Type    EventType   `json:"type"`
	RunID   string      `json:"run_id,omitempty"`
	Payload interface{} `json:"payload"`
}
