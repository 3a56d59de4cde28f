package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/weave-services/weave/engine/pkg/api"
	"github.com/weave-services/weave/engine/pkg/log"
)

type (
	// HTTPInvoker posts the run context to a node's configured endpoint
	// and returns the response document
	HTTPInvoker struct {
		httpClient *http.Client
	}

	httpNodeRequest struct {
		TriggerOutput json.RawMessage `json:"trigger_output"`
		WebhookBody   json.RawMessage `json:"webhook_body"`
	}
)

var (
	ErrHTTPStatus      = errors.New("node endpoint returned HTTP error")
	ErrHTTPBadResponse = errors.New("node endpoint returned invalid JSON")
)

const httpUserAgent = "Weave-Engine/1.0"

// NewHTTPInvoker creates the handler backing http nodes
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Handler exposes the invoker as a registry handler
func (c *HTTPInvoker) Handler() Handler {
	return func(
		ctx context.Context, node *api.NodeConfig, rc *RunContext,
	) (*Result, error) {
		return c.Invoke(ctx, node, rc)
	}
}

// Invoke posts the run context and returns the endpoint's JSON response
func (c *HTTPInvoker) Invoke(
	ctx context.Context, node *api.NodeConfig, rc *RunContext,
) (*Result, error) {
	cfg := node.HTTP
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(
			ctx, time.Duration(cfg.Timeout)*time.Millisecond,
		)
		defer cancel()
	}

	body, err := json.Marshal(httpNodeRequest{
		TriggerOutput: rc.TriggerOutput,
		WebhookBody:   rc.WebhookBody,
	})
	if err != nil {
		return nil, err
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, method, cfg.Endpoint, bytes.NewBuffer(body),
	)
	if err != nil {
		slog.Error("Failed to create node request",
			log.NodeID(node.ID),
			log.Error(err))
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", httpUserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		slog.Error("Node request failed",
			log.NodeID(node.ID),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Failed to read node response",
			log.NodeID(node.ID),
			log.Error(err))
		return nil, err
	}

	if resp.StatusCode < http.StatusOK ||
		resp.StatusCode >= http.StatusMultipleChoices {
		slog.Error("Node endpoint error",
			log.NodeID(node.ID),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPStatus, resp.StatusCode)
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%w: %s", ErrHTTPBadResponse, cfg.Endpoint)
	}
	return &Result{Value: respBody}, nil
}
