// Package state persists workflow run state in Redis. A run is identified
// by a digest of its trigger payload, so every step of the same workflow
// execution lands on the same keys without any session handshake.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weave-services/weave/engine/pkg/api"
)

type (
	// Store reads and writes per-run node state
	Store struct {
		rdb    *redis.Client
		prefix string
		ttl    time.Duration
	}

	nodeState struct {
		Data json.RawMessage `json:"data"`
	}
)

// New creates a run-state store over an existing Redis client
func New(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

// RunKey derives the run identifier from the trigger payload. Formatting
// differences in equivalent JSON do not change the key
func RunKey(trigger json.RawMessage) string {
	sum := sha256.Sum256(compactJSON(trigger))
	return hex.EncodeToString(sum[:])
}

func compactJSON(raw json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	compacted, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return compacted
}

// Results returns the prior node results of a run in execution order. A
// run with no recorded state yields an empty slice
func (s *Store) Results(
	ctx context.Context, trigger json.RawMessage,
) ([]json.RawMessage, error) {
	vals, err := s.rdb.LRange(ctx, s.resultsKey(trigger), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	results := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		results[i] = json.RawMessage(v)
	}
	return results, nil
}

// SetNodeState records a node's result document under the run
func (s *Store) SetNodeState(
	ctx context.Context, trigger json.RawMessage, nodeID api.NodeID,
	value json.RawMessage,
) error {
	doc, err := json.Marshal(nodeState{Data: value})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.nodeKey(trigger, nodeID), doc, s.ttl).Err()
}

// AppendResult appends a step result to the run's ordered result list
func (s *Store) AppendResult(
	ctx context.Context, trigger json.RawMessage, value json.RawMessage,
) error {
	resultsKey := s.resultsKey(trigger)

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, resultsKey, string(value))
	pipe.Expire(ctx, resultsKey, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// NodeState returns the stored result for one node of a run
func (s *Store) NodeState(
	ctx context.Context, trigger json.RawMessage, nodeID api.NodeID,
) (json.RawMessage, bool, error) {
	raw, err := s.rdb.Get(ctx, s.nodeKey(trigger, nodeID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var doc nodeState
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, err
	}
	return doc.Data, true, nil
}

func (s *Store) nodeKey(
	trigger json.RawMessage, nodeID api.NodeID,
) string {
	return fmt.Sprintf("%s:run:%s:node:%s",
		s.prefix, RunKey(trigger), nodeID)
}

func (s *Store) resultsKey(trigger json.RawMessage) string {
	return fmt.Sprintf("%s:run:%s:results", s.prefix, RunKey(trigger))
}
