// Package server exposes the step-dispatch HTTP API
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/weave-services/weave/engine/internal/events"
	"github.com/weave-services/weave/engine/internal/executor"
	"github.com/weave-services/weave/engine/internal/graph"
	"github.com/weave-services/weave/engine/internal/store"
	"github.com/weave-services/weave/engine/pkg/api"
)

type (
	// Executor runs one graph entry against the request's run context
	Executor interface {
		Execute(
			context.Context, graph.Entry, *executor.RunContext,
		) (*executor.Result, error)
	}

	// StateStore reads and writes per-run node state
	StateStore interface {
		Results(context.Context, json.RawMessage) ([]json.RawMessage, error)
		SetNodeState(
			context.Context, json.RawMessage, api.NodeID, json.RawMessage,
		) error
		AppendResult(context.Context, json.RawMessage, json.RawMessage) error
	}

	// BackgroundQueue accepts fire-and-forget persistence work
	BackgroundQueue interface {
		Enqueue(name string, fn func(context.Context) error)
	}

	// Server implements the HTTP API for the step dispatcher
	Server struct {
		exec      Executor
		state     StateStore
		execStore store.ExecutionStore
		archiver  *store.Archiver
		queue     BackgroundQueue
		hub       *events.Hub
		sockets   map[*Client]struct{}
		mu        sync.Mutex
	}

	// Options collects the server's collaborators. Archiver may be nil
	Options struct {
		Executor   Executor
		State      StateStore
		Executions store.ExecutionStore
		Archiver   *store.Archiver
		Queue      BackgroundQueue
		Hub        *events.Hub
	}
)

// NewServer creates a new HTTP API server
func NewServer(opts Options) *Server {
	return &Server{
		exec:      opts.Executor,
		state:     opts.State,
		execStore: opts.Executions,
		archiver:  opts.Archiver,
		queue:     opts.Queue,
		hub:       opts.Hub,
		sockets:   map[*Client]struct{}{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware. Preflights are answered inline and never reach a
	// handler
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers", "Content-Type",
		)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	// Step dispatcher
	router.POST("/api/step-v3/:step", s.handleStep)

	// Event stream
	router.GET("/engine/ws", s.handleWebSocket)

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[c] = struct{}{}
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
