package helpers

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/weave-services/weave/engine/internal/config"
)

// NewTestConfig creates a default configuration with debug logging enabled
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.NodeTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// WithMiniredis runs fn against an in-memory Redis server and ensures
// cleanup happens automatically
func WithMiniredis(t *testing.T, fn func(*miniredis.Miniredis)) {
	t.Helper()
	server, err := miniredis.Run()
	assert.NoError(t, err)
	defer server.Close()
	fn(server)
}
