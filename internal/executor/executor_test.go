package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/weave-services/weave/engine/internal/executor"
	"github.com/weave-services/weave/engine/internal/graph"
	"github.com/weave-services/weave/engine/pkg/api"
)

func runContext() *executor.RunContext {
	return &executor.RunContext{
		TriggerOutput: json.RawMessage(
			`{"user":{"name":"Ada","score":42}}`,
		),
		WebhookBody: json.RawMessage(`{"source":"github"}`),
	}
}

func echoHandler(value string) executor.Handler {
	return func(
		_ context.Context, _ *api.NodeConfig, _ *executor.RunContext,
	) (*executor.Result, error) {
		return &executor.Result{
			Value: json.RawMessage(value),
		}, nil
	}
}

func TestRegistryDispatch(t *testing.T) {
	reg := executor.NewRegistry(5 * time.Second)
	reg.Register(api.NodeTypeTransform, echoHandler(`{"ok":true}`))

	node := &api.NodeConfig{ID: "t", Type: api.NodeTypeTransform}
	res, err := reg.ExecuteNode(context.Background(), node, runContext())
	assert.NoError(t, err)
	assert.False(t, res.IsStream())
	assert.JSONEq(t, `{"ok":true}`, string(res.Value))
}

func TestRegistryNoHandler(t *testing.T) {
	reg := executor.NewRegistry(5 * time.Second)

	node := &api.NodeConfig{ID: "x", Type: api.NodeTypeChat}
	_, err := reg.ExecuteNode(context.Background(), node, runContext())
	assert.ErrorIs(t, err, executor.ErrNoHandler)
}

func TestRegistryHandlerFailure(t *testing.T) {
	reg := executor.NewRegistry(5 * time.Second)
	boom := errors.New("boom")
	reg.Register(api.NodeTypeHTTP, func(
		_ context.Context, _ *api.NodeConfig, _ *executor.RunContext,
	) (*executor.Result, error) {
		return nil, boom
	})

	node := &api.NodeConfig{ID: "h", Type: api.NodeTypeHTTP}
	_, err := reg.ExecuteNode(context.Background(), node, runContext())
	assert.ErrorIs(t, err, executor.ErrNodeFailed)
	assert.ErrorIs(t, err, boom)
}

func TestExecuteGroupMergesByNodeID(t *testing.T) {
	reg := executor.NewRegistry(5 * time.Second)
	reg.Register(api.NodeTypeTransform, func(
		_ context.Context, node *api.NodeConfig, _ *executor.RunContext,
	) (*executor.Result, error) {
		value, _ := json.Marshal(map[string]any{
			"from": string(node.ID),
		})
		return &executor.Result{Value: value}, nil
	})

	nodes := []*api.NodeConfig{
		{ID: "left", Type: api.NodeTypeTransform},
		{Type: api.NodeTypeTransform},
	}
	entry := &graph.Group{Members: nodes}

	res, err := reg.Execute(context.Background(), entry, runContext())
	assert.NoError(t, err)
	assert.JSONEq(t,
		`{"left":{"from":"left"},"1":{"from":""}}`,
		string(res.Value))
}

func TestStreamCollapse(t *testing.T) {
	stream := executor.NewStream(4)
	go func() {
		stream.Send(json.RawMessage(`{"token":"Hello"}`))
		stream.Send(json.RawMessage(`{"token":", "}`))
		stream.Send(json.RawMessage(`{"other":"ignored"}`))
		stream.Send(json.RawMessage(`{"token":"world"}`))
		stream.Close(nil)
	}()

	value, err := executor.CollapseStream(stream)
	assert.NoError(t, err)
	assert.Equal(t, "Hello, world",
		gjson.GetBytes(value, "choices.0.message.content").String())
	assert.Equal(t, api.ObjectChatCompletion,
		gjson.GetBytes(value, "object").String())
}

func TestStreamCollapseError(t *testing.T) {
	boom := errors.New("model went away")
	stream := executor.NewStream(1)
	go func() {
		stream.Send(json.RawMessage(`{"token":"partial"}`))
		stream.Close(boom)
	}()

	_, err := executor.CollapseStream(stream)
	assert.ErrorIs(t, err, boom)
}
