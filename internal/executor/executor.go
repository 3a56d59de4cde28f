// Package executor runs workflow nodes. A Registry maps node types to
// handlers and dispatches uniformly over single nodes and level groups.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/weave-services/weave/engine/internal/graph"
	"github.com/weave-services/weave/engine/pkg/api"
	"github.com/weave-services/weave/engine/pkg/log"
)

type (
	// RunContext carries the per-request inputs every node can see
	RunContext struct {
		TriggerOutput json.RawMessage
		WebhookBody   json.RawMessage
	}

	// Result is the outcome of executing one graph entry. Exactly one of
	// Value or Stream is set
	Result struct {
		Value  json.RawMessage
		Stream *Stream
	}

	// Stream delivers a node's output incrementally. Err is valid only
	// after the chunk channel has closed
	Stream struct {
		ch   chan json.RawMessage
		done chan struct{}
		err  error
	}

	// Handler executes a single node of a given type
	Handler func(
		context.Context, *api.NodeConfig, *RunContext,
	) (*Result, error)

	// Registry maps node types to handlers and executes graph entries
	Registry struct {
		handlers map[api.NodeType]Handler
		timeout  time.Duration
	}
)

var (
	ErrNoHandler   = errors.New("no handler for node type")
	ErrNodeFailed  = errors.New("node execution failed")
	ErrStreamInGrp = errors.New("streamed result inside group")
)

// NewRegistry creates an empty handler registry. The timeout bounds each
// node execution
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		handlers: map[api.NodeType]Handler{},
		timeout:  timeout,
	}
}

// Register installs the handler for a node type, replacing any previous one
func (r *Registry) Register(t api.NodeType, h Handler) {
	r.handlers[t] = h
}

// Execute runs a graph entry, dispatching to group or single execution
func (r *Registry) Execute(
	ctx context.Context, entry graph.Entry, rc *RunContext,
) (*Result, error) {
	if entry.IsGroup() {
		return r.executeGroup(ctx, entry.Nodes(), rc)
	}
	return r.ExecuteNode(ctx, entry.Nodes()[0], rc)
}

// ExecuteNode runs one node under the registry's execution timeout
func (r *Registry) ExecuteNode(
	ctx context.Context, node *api.NodeConfig, rc *RunContext,
) (*Result, error) {
	h, ok := r.handlers[node.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, node.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	res, err := h(ctx, node, rc)
	if err != nil {
		cancel()
		slog.Error("Node execution failed",
			log.NodeID(node.ID),
			log.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrNodeFailed, err)
	}

	if res.IsStream() {
		// the stream producer owns the context until it closes
		go func() {
			<-res.Stream.Done()
			cancel()
		}()
		return res, nil
	}
	cancel()
	return res, nil
}

// executeGroup runs group members sequentially in graph order and merges
// their results into one object keyed by node ID. Members without an ID
// are keyed by position. Streamed member results are collapsed into a
// completion document before merging.
func (r *Registry) executeGroup(
	ctx context.Context, nodes []*api.NodeConfig, rc *RunContext,
) (*Result, error) {
	merged := map[string]json.RawMessage{}
	for i, node := range nodes {
		res, err := r.ExecuteNode(ctx, node, rc)
		if err != nil {
			return nil, err
		}

		value := res.Value
		if res.IsStream() {
			value, err = CollapseStream(res.Stream)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStreamInGrp, err)
			}
		}

		key := string(node.ID)
		if key == "" {
			key = strconv.Itoa(i)
		}
		merged[key] = value
	}

	value, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	return &Result{Value: value}, nil
}

func (r *Result) IsStream() bool {
	return r.Stream != nil
}

// NewStream creates a stream with the given chunk buffer capacity
func NewStream(capacity int) *Stream {
	return &Stream{
		ch:   make(chan json.RawMessage, capacity),
		done: make(chan struct{}),
	}
}

// Send delivers one chunk to the consumer
func (s *Stream) Send(chunk json.RawMessage) {
	s.ch <- chunk
}

// Close ends the stream. A non-nil err marks the stream as failed and is
// visible to the consumer once the chunk channel drains
func (s *Stream) Close(err error) {
	s.err = err
	close(s.ch)
	close(s.done)
}

// Done is closed once the producer has finished the stream
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Chunks returns the channel of stream frames
func (s *Stream) Chunks() <-chan json.RawMessage {
	return s.ch
}

// Err reports the terminal stream error. Only valid after Chunks closes
func (s *Stream) Err() error {
	return s.err
}

// CollapseStream drains a stream, buffering every chunk's token field, and
// returns the reconstructed chat-completion document
func CollapseStream(s *Stream) (json.RawMessage, error) {
	content := BufferTokens(s)
	if err := s.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(api.NewStreamCompletion(content, time.Now()))
}

// BufferTokens drains a stream and concatenates the token field of each
// chunk. Chunks without a token field contribute nothing
func BufferTokens(s *Stream) string {
	var content []byte
	for chunk := range s.Chunks() {
		content = append(content, TokenOf(chunk)...)
	}
	return string(content)
}

// TokenOf extracts the token field from one stream chunk
func TokenOf(chunk json.RawMessage) string {
	return gjson.GetBytes(chunk, "token").String()
}
