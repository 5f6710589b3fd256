// Package events provides the in-process event bus and event types.
package events

// EventType represents different event types
type EventType string

const (
	CycleStarted      EventType = "CYCLE_STARTED"
	CycleCompleted    EventType = "CYCLE_COMPLETED"
	CycleFailed       EventType = "CYCLE_FAILED"
	TradesExecuted    EventType = "TRADES_EXECUTED"
	SnapshotsCaptured EventType = "SNAPSHOTS_CAPTURED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// CycleStartedData contains data for CycleStarted events
type CycleStartedData struct {
	InstanceID   string `json:"instance_id"`
	DecisionGate bool   `json:"decision_gate"`
}

// EventType returns the event type for CycleStartedData
func (d *CycleStartedData) EventType() EventType {
	return CycleStarted
}

// CycleCompletedData contains data for CycleCompleted events
type CycleCompletedData struct {
	InstanceID    string `json:"instance_id"`
	DurationMs    int64  `json:"duration_ms"`
	AgentsRun     int    `json:"agents_run"`
	AgentsFailed  int    `json:"agents_failed"`
	TradesApplied int    `json:"trades_applied"`
}

// EventType returns the event type for CycleCompletedData
func (d *CycleCompletedData) EventType() EventType {
	return CycleCompleted
}

// CycleFailedData contains data for CycleFailed events
type CycleFailedData struct {
	InstanceID string `json:"instance_id"`
	Error      string `json:"error"`
}

// EventType returns the event type for CycleFailedData
func (d *CycleFailedData) EventType() EventType {
	return CycleFailed
}

// TradesExecutedData contains data for TradesExecuted events
type TradesExecutedData struct {
	InstanceID string   `json:"instance_id"`
	AgentID    string   `json:"agent_id"`
	TradeIDs   []string `json:"trade_ids"`
	TotalValue float64  `json:"total_value"`
}

// EventType returns the event type for TradesExecutedData
func (d *TradesExecutedData) EventType() EventType {
	return TradesExecuted
}

// SnapshotsCapturedData contains data for SnapshotsCaptured events
type SnapshotsCapturedData struct {
	BatchID  string `json:"batch_id"`
	Captured int    `json:"captured"`
	Phase    string `json:"phase"` // pre_trade or post_trade
}

// EventType returns the event type for SnapshotsCapturedData
func (d *SnapshotsCapturedData) EventType() EventType {
	return SnapshotsCaptured
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
