package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
	"gocloud.dev/blob/memblob"

	"github.com/weave-services/weave/engine/internal/store"
)

func TestArchiveWritesJSON(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer func() { _ = bucket.Close() }()

	archiver := store.NewArchiverWithBucket(bucket, "executions/")
	ctx := context.Background()

	key, err := archiver.Archive(ctx, sampleRecord())
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "executions/wf-1/"))
	assert.True(t, strings.HasSuffix(key, ".json"))

	data, err := bucket.ReadAll(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, "wf-1", gjson.GetBytes(data, "workflow_id").String())
	assert.Equal(t, int64(2),
		gjson.GetBytes(data, "results.#").Int())
}

func TestArchiveAnonymousWorkflow(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer func() { _ = bucket.Close() }()

	archiver := store.NewArchiverWithBucket(bucket, "")
	rec := sampleRecord()
	rec.WorkflowID = ""

	key, err := archiver.Archive(context.Background(), rec)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "anonymous/"))
}
