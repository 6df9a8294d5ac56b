package repository

import (
	"context"
	"io"
)

// PublishProgress is reported by ObjectStorage.PublishTree after every
// completed file, so the caller can translate it into VideoRecord.Progress
// updates per spec.md §4.8.
type PublishProgress struct {
	FilesDone  int
	FilesTotal int
}

// ObjectStorage defines the interface for publishing a rendered artifact
// tree to an S3-compatible bucket. Implementations are provided by the
// infrastructure layer.
type ObjectStorage interface {
	// Upload stores a single object, public-read, with the given content type.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// PublishTree recursively walks localDir and uploads every regular file
	// under keyPrefix, in batches, reporting progress as files complete.
	PublishTree(ctx context.Context, localDir, keyPrefix string, onProgress func(PublishProgress)) error

	// Delete removes an object from the storage.
	Delete(ctx context.Context, key string) error

	// Bucket returns the configured bucket name, used to build public URLs.
	Bucket() string

	// Endpoint returns the configured endpoint host, used to build public URLs.
	Endpoint() string
}
