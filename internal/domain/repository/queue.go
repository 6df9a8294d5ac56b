package repository

import (
	"context"
)

// TranscodeTask represents a video transcoding job message, exactly the
// payload shape from spec.md §4.4.
type TranscodeTask struct {
	UploadID    string `json:"uploadId"`
	FilePath    string `json:"filePath"`
	Filename    string `json:"filename"`
	Packager    string `json:"packager"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	S3Path      string `json:"s3Path,omitempty"`
	UploadToS3  bool   `json:"uploadToS3"`
}

// JobHandler processes one delivered task. Per the exactly-once execution
// design (spec.md §5), the handler must call ack as soon as its atomic
// acquire-for-processing guard succeeds (or immediately, if it decides the
// guard was already lost to a previous delivery) — not after the job
// finishes. A returned error after ack has already been called is treated
// as "the job failed and that failure was already recorded on the video
// record"; an error returned WITHOUT having called ack is treated as a
// transient failure to even attempt the job, and the adapter redelivers it.
type JobHandler func(ctx context.Context, task TranscodeTask, ack func()) error

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishTranscodeTask sends a transcoding task to the queue.
	// Used by the API server to trigger async video processing.
	PublishTranscodeTask(ctx context.Context, task TranscodeTask) error

	// ConsumeTranscodeTasks starts consuming transcoding tasks from the queue,
	// one at a time (prefetch=1), until ctx is cancelled. Used by the worker.
	ConsumeTranscodeTasks(ctx context.Context, handler JobHandler) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
