package api

import (
	"encoding/json"
	"errors"
)

type (
	// StepRequest is the body of a step dispatch call. TriggerOutput and
	// WebhookBody default to empty JSON objects when omitted
	StepRequest struct {
		Nodes         []*NodeConfig   `json:"nodes"`
		Edges         []*Edge         `json:"edges,omitempty"`
		WorkflowID    WorkflowID      `json:"workflow_id,omitempty"`
		UserID        UserID          `json:"user_id,omitempty"`
		TriggerOutput json.RawMessage `json:"trigger_output,omitempty"`
		WebhookBody   json.RawMessage `json:"webhook_body,omitempty"`
	}

	// StepResponse carries the results of one dispatched step
	StepResponse struct {
		Data []json.RawMessage `json:"data"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)

var (
	ErrNodesRequired = errors.New("nodes required")
	ErrNodeNil       = errors.New("node has nil config")
)

// EmptyObject is the default for omitted trigger and webhook payloads
var EmptyObject = json.RawMessage(`{}`)

func (r *StepRequest) Validate() error {
	if len(r.Nodes) == 0 {
		return ErrNodesRequired
	}
	for _, n := range r.Nodes {
		if n == nil {
			return ErrNodeNil
		}
		if err := n.Validate(); err != nil {
			return err
		}
	}
	for _, e := range r.Edges {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Trigger returns the trigger payload, defaulting to an empty object
func (r *StepRequest) Trigger() json.RawMessage {
	if len(r.TriggerOutput) == 0 {
		return EmptyObject
	}
	return r.TriggerOutput
}

// Webhook returns the webhook payload, defaulting to an empty object
func (r *StepRequest) Webhook() json.RawMessage {
	if len(r.WebhookBody) == 0 {
		return EmptyObject
	}
	return r.WebhookBody
}
