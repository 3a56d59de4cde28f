package api

import "time"

type (
	EventType string

	// DispatchEvent describes a step lifecycle transition, published to
	// WebSocket subscribers
	DispatchEvent struct {
		Timestamp  time.Time  `json:"timestamp"`
		Type       EventType  `json:"type"`
		WorkflowID WorkflowID `json:"workflow_id,omitempty"`
		NodeID     NodeID     `json:"node_id,omitempty"`
		Error      string     `json:"error,omitempty"`
		StepIndex  int        `json:"step_index"`
	}
)

const (
	EventStepStarted     EventType = "step.started"
	EventStepCompleted   EventType = "step.completed"
	EventStepFailed      EventType = "step.failed"
	EventStreamCompleted EventType = "stream.completed"
)
