package api

import (
	"errors"
	"fmt"

	"github.com/weave-services/weave/engine/pkg/util"
)

type (
	NodeType string

	// NodeConfig describes a single workflow node and how to execute it
	NodeConfig struct {
		HTTP      *HTTPNodeConfig      `json:"http,omitempty"`
		Script    *ScriptNodeConfig    `json:"script,omitempty"`
		Transform *TransformNodeConfig `json:"transform,omitempty"`
		Chat      *ChatNodeConfig      `json:"chat,omitempty"`
		ID        NodeID               `json:"id,omitempty"`
		Name      string               `json:"name,omitempty"`
		Type      NodeType             `json:"type"`
	}

	// HTTPNodeConfig invokes an external endpoint with the run context
	HTTPNodeConfig struct {
		Endpoint string `json:"endpoint"`
		Method   string `json:"method,omitempty"`
		Timeout  int64  `json:"timeout,omitempty"`
	}

	// ScriptNodeConfig runs a sandboxed script against the run context
	ScriptNodeConfig struct {
		Language string `json:"language"`
		Source   string `json:"source"`
	}

	// TransformNodeConfig maps output fields from run context query paths
	TransformNodeConfig struct {
		Mapping map[string]string `json:"mapping"`
	}

	// ChatNodeConfig generates a model completion, optionally streamed
	ChatNodeConfig struct {
		Prompt string `json:"prompt"`
		System string `json:"system,omitempty"`
		Model  string `json:"model,omitempty"`
		Stream bool   `json:"stream,omitempty"`
	}

	// Edge is a directed dependency between two nodes
	Edge struct {
		Source NodeID `json:"source"`
		Target NodeID `json:"target"`
	}
)

const (
	NodeTypeHTTP      NodeType = "http"
	NodeTypeScript    NodeType = "script"
	NodeTypeTransform NodeType = "transform"
	NodeTypeChat      NodeType = "chat"

	ScriptLangLua = "lua"
)

var (
	ErrInvalidNodeType      = errors.New("invalid node type")
	ErrHTTPRequired         = errors.New("http config required")
	ErrEndpointEmpty        = errors.New("endpoint empty")
	ErrScriptRequired       = errors.New("script config required")
	ErrScriptLanguageEmpty  = errors.New("script language empty")
	ErrScriptSourceEmpty    = errors.New("script source empty")
	ErrTransformRequired    = errors.New("transform config required")
	ErrTransformMappingNil  = errors.New("transform mapping empty")
	ErrChatRequired         = errors.New("chat config required")
	ErrChatPromptEmpty      = errors.New("chat prompt empty")
	ErrEdgeEndpointEmpty    = errors.New("edge endpoint empty")
	ErrNegativeTimeout      = errors.New("timeout cannot be negative")
	ErrUnsupportedScriptLng = errors.New("unsupported script language")
)

var validNodeTypes = util.SetOf(
	NodeTypeHTTP,
	NodeTypeScript,
	NodeTypeTransform,
	NodeTypeChat,
)

func (n *NodeConfig) Validate() error {
	if !validNodeTypes.Contains(n.Type) {
		return fmt.Errorf("%w: %s", ErrInvalidNodeType, n.Type)
	}

	switch n.Type {
	case NodeTypeHTTP:
		return n.validateHTTPConfig()
	case NodeTypeScript:
		return n.validateScriptConfig()
	case NodeTypeTransform:
		return n.validateTransformConfig()
	case NodeTypeChat:
		return n.validateChatConfig()
	}
	return nil
}

func (n *NodeConfig) validateHTTPConfig() error {
	if n.HTTP == nil {
		return ErrHTTPRequired
	}
	if n.HTTP.Endpoint == "" {
		return ErrEndpointEmpty
	}
	if n.HTTP.Timeout < 0 {
		return ErrNegativeTimeout
	}
	return nil
}

func (n *NodeConfig) validateScriptConfig() error {
	if n.Script == nil {
		return ErrScriptRequired
	}
	if n.Script.Language == "" {
		return ErrScriptLanguageEmpty
	}
	if n.Script.Language != ScriptLangLua {
		return fmt.Errorf("%w: %s",
			ErrUnsupportedScriptLng, n.Script.Language)
	}
	if n.Script.Source == "" {
		return ErrScriptSourceEmpty
	}
	return nil
}

func (n *NodeConfig) validateTransformConfig() error {
	if n.Transform == nil {
		return ErrTransformRequired
	}
	if len(n.Transform.Mapping) == 0 {
		return ErrTransformMappingNil
	}
	return nil
}

func (n *NodeConfig) validateChatConfig() error {
	if n.Chat == nil {
		return ErrChatRequired
	}
	if n.Chat.Prompt == "" {
		return ErrChatPromptEmpty
	}
	return nil
}

func (e *Edge) Validate() error {
	if e.Source == "" || e.Target == "" {
		return ErrEdgeEndpointEmpty
	}
	return nil
}
