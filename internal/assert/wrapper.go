package assert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weave-services/weave/engine/internal/config"
	"github.com/weave-services/weave/engine/pkg/api"
)

// Wrapper wraps testify assertions with engine-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 100 * time.Millisecond

// New creates a new test assertion wrapper
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
	}
}

// NodeValid asserts that a node config is valid
func (w *Wrapper) NodeValid(n *api.NodeConfig) {
	w.Helper()
	w.NoError(n.Validate())

	switch n.Type {
	case api.NodeTypeHTTP:
		w.NotNil(n.HTTP, "HTTP nodes should have HTTPNodeConfig")
		if n.HTTP != nil {
			w.NotEmpty(n.HTTP.Endpoint)
		}
	case api.NodeTypeScript:
		w.NotNil(n.Script, "script nodes should have ScriptNodeConfig")
		if n.Script != nil {
			w.NotEmpty(n.Script.Language)
			w.NotEmpty(n.Script.Source)
		}
	}
}

// NodeInvalid asserts that a node config is invalid and returns the
// validation error
func (w *Wrapper) NodeInvalid(
	n *api.NodeConfig, expectedErrorContains string,
) error {
	w.Helper()
	err := n.Validate()
	w.Error(err)
	if err != nil && expectedErrorContains != "" {
		w.Contains(err.Error(), expectedErrorContains)
	}
	return err
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.NodeTimeout > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
