package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weave-services/weave/engine/internal/store"
)

func sampleRecord() *store.ExecutionRecord {
	return &store.ExecutionRecord{
		WorkflowID: "wf-1",
		UserID:     "user-1",
		Results: []json.RawMessage{
			json.RawMessage(`{"step":0}`),
			json.RawMessage(`{"step":1}`),
		},
		CompletedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreSavesRecords(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	assert.NoError(t, s.SaveExecution(ctx, sampleRecord()))
	assert.NoError(t, s.SaveExecution(ctx, sampleRecord()))

	records := s.Records()
	assert.Len(t, records, 2)
	assert.Equal(t, "wf-1", string(records[0].WorkflowID))
	assert.Len(t, records[0].Results, 2)

	assert.NoError(t, s.Close(ctx))
}

func TestMemoryStoreSnapshotIsolated(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	assert.NoError(t, s.SaveExecution(ctx, sampleRecord()))
	records := s.Records()

	assert.NoError(t, s.SaveExecution(ctx, sampleRecord()))
	assert.Len(t, records, 1)
	assert.Len(t, s.Records(), 2)
}
