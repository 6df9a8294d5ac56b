package repository

import (
	"context"

	"github.com/vellum-stream/pipeline/internal/domain/model"
)

// VideoRepository defines the interface for video-record persistence and the
// atomic state-transition guard. Implementations are provided by the
// infrastructure layer (an embedded, crash-durable KV store).
type VideoRepository interface {
	// Create persists a new record. Returns ErrDuplicateVideo if id exists.
	Create(ctx context.Context, record *model.VideoRecord) error

	// Get retrieves a record by id. Returns ErrVideoNotFound if absent.
	Get(ctx context.Context, id string) (*model.VideoRecord, error)

	// Update performs a read-modify-write of the full record under the
	// store's row lock. If the record transitions to completed, CompletedAt
	// is stamped by the store, not by the caller.
	Update(ctx context.Context, record *model.VideoRecord) error

	// ListAll returns every record, for the admin listing view.
	ListAll(ctx context.Context) ([]*model.VideoRecord, error)

	// ListPendingCallbacks selects records eligible for webhook redispatch
	// per VideoRecord.EligibleForCallback, oldest first.
	ListPendingCallbacks(ctx context.Context) ([]*model.VideoRecord, error)

	// TryAcquireForProcessing is the atomic guard from spec.md §4.1: in one
	// atomic statement, transitions
	//   status ∈ {uploading, failed} OR (status = processing AND progress <= 10)
	// to status := processing, progress := 10, and reports whether this
	// caller won the transition along with the resulting record.
	TryAcquireForProcessing(ctx context.Context, id string) (acquired bool, record *model.VideoRecord, err error)
}
