package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/weave-services/weave/engine/pkg/api"
)

// ChatRunner executes chat nodes against a configured chat model
type ChatRunner struct {
	model     model.BaseChatModel
	modelName string
}

const streamChunkBuffer = 64

var ErrChatModelUnset = errors.New("chat model not configured")

// NewChatRunner creates the handler backing chat nodes. A nil model
// disables chat execution
func NewChatRunner(m model.BaseChatModel, modelName string) *ChatRunner {
	return &ChatRunner{
		model:     m,
		modelName: modelName,
	}
}

// Handler exposes the runner as a registry handler
func (c *ChatRunner) Handler() Handler {
	return func(
		ctx context.Context, node *api.NodeConfig, rc *RunContext,
	) (*Result, error) {
		return c.Run(ctx, node.Chat, rc)
	}
}

// Run generates a completion for the node's prompt. When the node asks
// for streaming, the result is a stream of token chunks
func (c *ChatRunner) Run(
	ctx context.Context, cfg *api.ChatNodeConfig, rc *RunContext,
) (*Result, error) {
	if c.model == nil {
		return nil, ErrChatModelUnset
	}

	msgs := c.buildMessages(cfg, rc)
	if cfg.Stream {
		return c.runStream(ctx, msgs)
	}
	return c.runGenerate(ctx, msgs)
}

// buildMessages renders the prompt with the run context substituted for
// the {{trigger}} and {{webhook}} placeholders
func (c *ChatRunner) buildMessages(
	cfg *api.ChatNodeConfig, rc *RunContext,
) []*schema.Message {
	var msgs []*schema.Message
	if cfg.System != "" {
		msgs = append(msgs, schema.SystemMessage(cfg.System))
	}
	prompt := strings.NewReplacer(
		"{{trigger}}", string(rc.TriggerOutput),
		"{{webhook}}", string(rc.WebhookBody),
	).Replace(cfg.Prompt)
	return append(msgs, schema.UserMessage(prompt))
}

func (c *ChatRunner) runGenerate(
	ctx context.Context, msgs []*schema.Message,
) (*Result, error) {
	msg, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return nil, err
	}

	value, err := json.Marshal(api.NewCompletion(
		c.modelName, msg.Content, time.Now(),
	))
	if err != nil {
		return nil, err
	}
	return &Result{Value: value}, nil
}

func (c *ChatRunner) runStream(
	ctx context.Context, msgs []*schema.Message,
) (*Result, error) {
	sr, err := c.model.Stream(ctx, msgs)
	if err != nil {
		return nil, err
	}

	stream := NewStream(streamChunkBuffer)
	go func() {
		defer sr.Close()
		for {
			msg, err := sr.Recv()
			if err == io.EOF {
				stream.Close(nil)
				return
			}
			if err != nil {
				stream.Close(err)
				return
			}
			if msg.Content == "" {
				continue
			}
			chunk, err := json.Marshal(api.StreamChunk{
				Token: msg.Content,
			})
			if err != nil {
				stream.Close(err)
				return
			}
			stream.Send(chunk)
		}
	}()
	return &Result{Stream: stream}, nil
}
