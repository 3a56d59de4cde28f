package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weave-services/weave/engine/internal/executor"
)

func TestTransformMapping(t *testing.T) {
	res, err := executor.Transform(map[string]string{
		"name":   "trigger.user.name",
		"score":  "trigger.user.score",
		"origin": "webhook.source",
	}, runContext())
	assert.NoError(t, err)
	assert.JSONEq(t,
		`{"name":"Ada","score":42,"origin":"github"}`,
		string(res.Value))
}

func TestTransformMissingPath(t *testing.T) {
	_, err := executor.Transform(map[string]string{
		"missing": "trigger.user.email",
	}, runContext())
	assert.ErrorIs(t, err, executor.ErrTransformNoMatch)
}
