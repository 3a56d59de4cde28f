package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/weave-services/weave/engine/pkg/api"
)

// transformRoot is the document transform paths resolve against
type transformRoot struct {
	Trigger json.RawMessage `json:"trigger"`
	Webhook json.RawMessage `json:"webhook"`
}

var ErrTransformNoMatch = errors.New("transform path matched nothing")

// NewTransformHandler returns the handler backing transform nodes. Each
// mapping entry resolves a query path against {"trigger":..,"webhook":..}
// and stores the match under the output field
func NewTransformHandler() Handler {
	return func(
		_ context.Context, node *api.NodeConfig, rc *RunContext,
	) (*Result, error) {
		return Transform(node.Transform.Mapping, rc)
	}
}

// Transform applies a field-to-path mapping over the run context
func Transform(
	mapping map[string]string, rc *RunContext,
) (*Result, error) {
	doc, err := json.Marshal(transformRoot{
		Trigger: rc.TriggerOutput,
		Webhook: rc.WebhookBody,
	})
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(mapping))
	for field := range mapping {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := map[string]any{}
	for _, field := range fields {
		path := mapping[field]
		match := gjson.GetBytes(doc, path)
		if !match.Exists() {
			return nil, fmt.Errorf("%w: %s", ErrTransformNoMatch, path)
		}
		out[field] = match.Value()
	}

	value, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &Result{Value: value}, nil
}
