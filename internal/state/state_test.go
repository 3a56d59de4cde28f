package state_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/weave-services/weave/engine/internal/assert/helpers"
	"github.com/weave-services/weave/engine/internal/state"
)

func newStore(srv *miniredis.Miniredis) *state.Store {
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return state.New(rdb, "test", time.Hour)
}

func TestRunKeyStableAcrossFormatting(t *testing.T) {
	a := state.RunKey(json.RawMessage(`{"a": 1, "b": 2}`))
	b := state.RunKey(json.RawMessage(`{"a":1,"b":2}`))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c := state.RunKey(json.RawMessage(`{"a":1,"b":3}`))
	assert.NotEqual(t, a, c)
}

func TestResultsEmptyRun(t *testing.T) {
	helpers.WithMiniredis(t, func(srv *miniredis.Miniredis) {
		store := newStore(srv)

		results, err := store.Results(
			context.Background(), json.RawMessage(`{"fresh":true}`),
		)
		assert.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestAppendResultKeepsOrder(t *testing.T) {
	helpers.WithMiniredis(t, func(srv *miniredis.Miniredis) {
		store := newStore(srv)
		ctx := context.Background()
		trigger := json.RawMessage(`{"run":"r1"}`)

		err := store.AppendResult(ctx, trigger, json.RawMessage(`{"n":1}`))
		assert.NoError(t, err)
		err = store.AppendResult(ctx, trigger, json.RawMessage(`{"n":2}`))
		assert.NoError(t, err)

		results, err := store.Results(ctx, trigger)
		assert.NoError(t, err)
		assert.Len(t, results, 2)
		assert.JSONEq(t, `{"n":1}`, string(results[0]))
		assert.JSONEq(t, `{"n":2}`, string(results[1]))
	})
}

func TestNodeStateWrapsData(t *testing.T) {
	helpers.WithMiniredis(t, func(srv *miniredis.Miniredis) {
		store := newStore(srv)
		ctx := context.Background()
		trigger := json.RawMessage(`{"run":"r2"}`)

		err := store.SetNodeState(
			ctx, trigger, "calc", json.RawMessage(`{"result":84}`),
		)
		assert.NoError(t, err)

		value, ok, err := store.NodeState(ctx, trigger, "calc")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"result":84}`, string(value))

		_, ok, err = store.NodeState(ctx, trigger, "missing")
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRunIsolation(t *testing.T) {
	helpers.WithMiniredis(t, func(srv *miniredis.Miniredis) {
		store := newStore(srv)
		ctx := context.Background()

		err := store.AppendResult(
			ctx, json.RawMessage(`{"run":"a"}`),
			json.RawMessage(`{"v":1}`),
		)
		assert.NoError(t, err)

		results, err := store.Results(
			ctx, json.RawMessage(`{"run":"b"}`),
		)
		assert.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestStateKeysCarryTTL(t *testing.T) {
	helpers.WithMiniredis(t, func(srv *miniredis.Miniredis) {
		store := newStore(srv)
		ctx := context.Background()
		trigger := json.RawMessage(`{"run":"ttl"}`)

		err := store.AppendResult(
			ctx, trigger, json.RawMessage(`{"v":1}`),
		)
		assert.NoError(t, err)

		srv.FastForward(2 * time.Hour)

		results, err := store.Results(ctx, trigger)
		assert.NoError(t, err)
		assert.Empty(t, results)
	})
}
