// Package store persists completed workflow executions
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/weave-services/weave/engine/pkg/api"
)

type (
	// ExecutionRecord is the document saved when a workflow's final step
	// completes
	ExecutionRecord struct {
		WorkflowID  api.WorkflowID    `json:"workflow_id" bson:"workflow_id"`
		UserID      api.UserID        `json:"user_id" bson:"user_id"`
		Results     []json.RawMessage `json:"results" bson:"results"`
		CompletedAt time.Time         `json:"completed_at" bson:"completed_at"`
	}

	// ExecutionStore saves completed workflow executions
	ExecutionStore interface {
		SaveExecution(context.Context, *ExecutionRecord) error
		Close(context.Context) error
	}

	// MemoryStore keeps execution records in memory. Used in tests and
	// when no Mongo URI is configured
	MemoryStore struct {
		mu      sync.Mutex
		records []*ExecutionRecord
	}
)

var _ ExecutionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory execution store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveExecution(
	_ context.Context, rec *ExecutionRecord,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}

// Records returns a snapshot of the saved executions
func (s *MemoryStore) Records() []*ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]*ExecutionRecord, len(s.records))
	copy(res, s.records)
	return res
}
