package api_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weave-services/weave/engine/pkg/api"
)

func TestStepRequestValidate(t *testing.T) {
	req := &api.StepRequest{}
	assert.ErrorIs(t, req.Validate(), api.ErrNodesRequired)

	req.Nodes = []*api.NodeConfig{nil}
	assert.ErrorIs(t, req.Validate(), api.ErrNodeNil)

	req.Nodes = []*api.NodeConfig{{
		ID:   "t1",
		Type: api.NodeTypeTransform,
		Transform: &api.TransformNodeConfig{
			Mapping: map[string]string{"v": "trigger.v"},
		},
	}}
	assert.NoError(t, req.Validate())

	req.Edges = []*api.Edge{{Source: "t1"}}
	assert.ErrorIs(t, req.Validate(), api.ErrEdgeEndpointEmpty)
}

func TestStepRequestPayloadDefaults(t *testing.T) {
	req := &api.StepRequest{}
	assert.Equal(t, api.EmptyObject, req.Trigger())
	assert.Equal(t, api.EmptyObject, req.Webhook())

	req.TriggerOutput = json.RawMessage(`{"a":1}`)
	req.WebhookBody = json.RawMessage(`{"b":2}`)
	assert.Equal(t, `{"a":1}`, string(req.Trigger()))
	assert.Equal(t, `{"b":2}`, string(req.Webhook()))
}

func TestNewStreamCompletion(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	res := api.NewStreamCompletion("hello world", at)

	assert.Equal(t, "cmpl-18bcfe5687b", res.ID)
	assert.Equal(t, api.ObjectChatCompletion, res.Object)
	assert.Equal(t, api.ModelStreamRebuilt, res.Model)
	assert.Equal(t, at.Unix(), res.Created)
	assert.Len(t, res.Choices, 1)
	assert.Equal(t, api.RoleAssistant, res.Choices[0].Message.Role)
	assert.Equal(t, "hello world", res.Choices[0].Message.Content)
	assert.Equal(t, api.FinishReasonStop, res.Choices[0].FinishReason)
}
