package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gocloud.dev/blob"

	// blob drivers registered for bucket URL schemes
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/weave-services/weave/engine/internal/config"
	"github.com/weave-services/weave/engine/pkg/api"
)

// Archiver writes execution records to a blob bucket as JSON documents
type Archiver struct {
	bucket *blob.Bucket
	prefix string
}

const archiveContentType = "application/json"

// NewArchiver opens the configured bucket URL
func NewArchiver(
	ctx context.Context, cfg config.ArchiveConfig,
) (*Archiver, error) {
	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	return &Archiver{
		bucket: bucket,
		prefix: cfg.Prefix,
	}, nil
}

// NewArchiverWithBucket wraps an already opened bucket
func NewArchiverWithBucket(bucket *blob.Bucket, prefix string) *Archiver {
	return &Archiver{
		bucket: bucket,
		prefix: prefix,
	}
}

// Archive writes one execution record under a fresh key and returns the
// key it was stored at
func (a *Archiver) Archive(
	ctx context.Context, rec *ExecutionRecord,
) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	key := a.keyFor(rec.WorkflowID)
	err = a.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		ContentType: archiveContentType,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (a *Archiver) keyFor(workflowID api.WorkflowID) string {
	wf := string(workflowID)
	if wf == "" {
		wf = "anonymous"
	}
	return fmt.Sprintf("%s%s/%s.json", a.prefix, wf, uuid.NewString())
}

// Close releases the underlying bucket
func (a *Archiver) Close() error {
	return a.bucket.Close()
}
