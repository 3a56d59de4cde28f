package api

import (
	"fmt"
	"time"
)

type (
	// Completion is the chat-completion document reconstructed from a
	// streamed model response
	Completion struct {
		ID      string    `json:"id"`
		Object  string    `json:"object"`
		Model   string    `json:"model"`
		Created int64     `json:"created"`
		Choices []*Choice `json:"choices"`
	}

	Choice struct {
		Message      *ChatMessage `json:"message"`
		FinishReason string       `json:"finish_reason"`
		Index        int          `json:"index"`
	}

	ChatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	// StreamChunk is one frame of a streamed model response
	StreamChunk struct {
		Token string `json:"token"`
	}
)

const (
	ObjectChatCompletion = "chat.completion"
	ModelStreamRebuilt   = "stream-reconstructed"

	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	FinishReasonStop = "stop"
)

// NewCompletion builds a chat-completion document with a single assistant
// choice
func NewCompletion(model, content string, at time.Time) *Completion {
	return &Completion{
		ID:      fmt.Sprintf("cmpl-%x", at.UnixMilli()),
		Object:  ObjectChatCompletion,
		Model:   model,
		Created: at.Unix(),
		Choices: []*Choice{{
			Message: &ChatMessage{
				Role:    RoleAssistant,
				Content: content,
			},
			FinishReason: FinishReasonStop,
			Index:        0,
		}},
	}
}

// NewStreamCompletion builds the unified completion document for a fully
// buffered stream of tokens
func NewStreamCompletion(content string, at time.Time) *Completion {
	return NewCompletion(ModelStreamRebuilt, content, at)
}
