package api

type (
	// NodeID is a unique identifier for a workflow node
	NodeID string

	// WorkflowID is a unique identifier for a workflow
	WorkflowID string

	// UserID identifies the user a workflow execution belongs to
	UserID string
)
