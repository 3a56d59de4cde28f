package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weave-services/weave/engine/internal/executor"
	"github.com/weave-services/weave/engine/internal/graph"
	"github.com/weave-services/weave/engine/internal/store"
	"github.com/weave-services/weave/engine/pkg/api"
	"github.com/weave-services/weave/engine/pkg/log"
)

const stepPathPrefix = "/api/step-v3"

// handleStep dispatches one step of the posted workflow. Non-streaming
// results answer with a redirect to the next step or the final result
// set; streaming results are relayed as server-sent events
func (s *Server) handleStep(c *gin.Context) {
	stepIndex := parseStepIndex(c.Param("step"))

	var req api.StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}

	g, err := graph.Build(req.Nodes, req.Edges)
	if err != nil {
		badRequest(c, err)
		return
	}
	entry, err := g.Entry(stepIndex)
	if err != nil {
		badRequest(c, err)
		return
	}

	trigger := req.Trigger()
	rc := &executor.RunContext{
		TriggerOutput: trigger,
		WebhookBody:   req.Webhook(),
	}
	existing := s.loadResults(c.Request.Context(), trigger)

	s.hub.StepStarted(req.WorkflowID, stepIndex)

	res, err := s.exec.Execute(c.Request.Context(), entry, rc)
	if err != nil {
		s.hub.StepFailed(req.WorkflowID, stepIndex, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusInternalServerError,
		})
		return
	}

	if res.IsStream() {
		s.streamStep(c, &req, entry, g, stepIndex, res.Stream, existing)
		return
	}

	results := append(existing, res.Value)
	s.persistStep(&req, entry, res.Value, results, s.isFinal(g, stepIndex))
	s.hub.StepCompleted(req.WorkflowID, stepIndex)

	if !s.isFinal(g, stepIndex) {
		c.Header("Location", nextStepPath(stepIndex+1))
		c.JSON(http.StatusTemporaryRedirect, api.StepResponse{
			Data: results,
		})
		return
	}
	c.JSON(http.StatusOK, api.StepResponse{Data: results})
}

// streamStep relays stream chunks as SSE frames while buffering their
// tokens, then persists the reconstructed completion and points the
// client at the next step
func (s *Server) streamStep(
	c *gin.Context, req *api.StepRequest, entry graph.Entry, g *graph.Graph,
	stepIndex int, stream *executor.Stream, existing []json.RawMessage,
) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")

	var content []byte
	for chunk := range stream.Chunks() {
		c.SSEvent("", string(chunk))
		c.Writer.Flush()
		content = append(content, executor.TokenOf(chunk)...)
	}
	if err := stream.Err(); err != nil {
		slog.Warn("Stream ended with error",
			log.WorkflowID(req.WorkflowID),
			log.StepIndex(stepIndex),
			log.Error(err))
	}

	// a stream that produced no tokens contributes no result
	results := existing
	if len(content) > 0 {
		unified, err := json.Marshal(api.NewStreamCompletion(
			string(content), time.Now(),
		))
		if err != nil {
			slog.Error("Failed to marshal stream completion",
				log.WorkflowID(req.WorkflowID),
				log.Error(err))
			return
		}
		results = append(results, json.RawMessage(unified))
		s.persistNodeResult(req, entry, unified)
	}
	if s.isFinal(g, stepIndex) {
		s.persistExecution(req, results)
	}
	s.hub.StreamCompleted(req.WorkflowID, stepIndex)

	if !s.isFinal(g, stepIndex) {
		c.SSEvent("redirect", nextStepPath(stepIndex+1))
		c.Writer.Flush()
	}
}

// loadResults fetches the run's prior step results. Failures degrade to
// an empty history
func (s *Server) loadResults(
	ctx context.Context, trigger json.RawMessage,
) []json.RawMessage {
	existing, err := s.state.Results(ctx, trigger)
	if err != nil {
		slog.Warn("Failed to load workflow state",
			log.Error(err))
		return nil
	}
	return existing
}

// persistStep enqueues the fire-and-forget writes for one completed step:
// per-node state, the run's result list, and at the final step the
// execution record
func (s *Server) persistStep(
	req *api.StepRequest, entry graph.Entry, value json.RawMessage,
	results []json.RawMessage, final bool,
) {
	s.persistNodeResult(req, entry, value)
	if final {
		s.persistExecution(req, results)
	}
}

// persistNodeResult enqueues the step value as each entry node's state
// and appends it to the run's result list
func (s *Server) persistNodeResult(
	req *api.StepRequest, entry graph.Entry, value json.RawMessage,
) {
	trigger := req.Trigger()

	for _, node := range entry.Nodes() {
		if node.ID == "" {
			continue
		}
		nodeID := node.ID
		s.queue.Enqueue("set_node_state", func(ctx context.Context) error {
			return s.state.SetNodeState(ctx, trigger, nodeID, value)
		})
	}

	s.queue.Enqueue("append_result", func(ctx context.Context) error {
		return s.state.AppendResult(ctx, trigger, value)
	})
}

// persistExecution enqueues the run's execution record and its optional
// archive copy
func (s *Server) persistExecution(
	req *api.StepRequest, results []json.RawMessage,
) {
	rec := &store.ExecutionRecord{
		WorkflowID:  req.WorkflowID,
		UserID:      req.UserID,
		Results:     results,
		CompletedAt: time.Now().UTC(),
	}
	s.queue.Enqueue("store_execution", func(ctx context.Context) error {
		return s.execStore.SaveExecution(ctx, rec)
	})
	if s.archiver != nil {
		s.queue.Enqueue("archive_execution",
			func(ctx context.Context) error {
				_, err := s.archiver.Archive(ctx, rec)
				return err
			})
	}
}

func (s *Server) isFinal(g *graph.Graph, stepIndex int) bool {
	return stepIndex+1 >= g.Len()
}

// parseStepIndex reads the step index from the path segment, treating
// anything unparseable as the first step
func parseStepIndex(segment string) int {
	idx, err := strconv.Atoi(segment)
	if err != nil || idx < 0 {
		return 0
	}
	return idx
}

func nextStepPath(index int) string {
	return fmt.Sprintf("%s/%d", stepPathPrefix, index)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, api.ErrorResponse{
		Error:  err.Error(),
		Status: http.StatusBadRequest,
	})
}
