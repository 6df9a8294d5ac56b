package cache

import (
	"context"
	"time"

	"github.com/vellum-stream/pipeline/internal/domain/model"
)

// VideoRecordCache defines the interface for caching VideoRecord reads.
// Implementations handle serialization transparently.
type VideoRecordCache interface {
	// Get retrieves one record by id. Returns nil, nil on cache miss.
	Get(ctx context.Context, id string) (*model.VideoRecord, error)

	// Set stores one record with the given TTL.
	Set(ctx context.Context, record *model.VideoRecord, ttl time.Duration) error

	// Delete removes one record from cache. A no-op if it was not cached.
	Delete(ctx context.Context, id string) error

	// GetAll retrieves the cached admin listing. Returns nil, nil on a miss.
	GetAll(ctx context.Context) ([]*model.VideoRecord, error)

	// SetAll stores the admin listing with the given TTL.
	SetAll(ctx context.Context, records []*model.VideoRecord, ttl time.Duration) error

	// DeleteAll invalidates the cached admin listing.
	DeleteAll(ctx context.Context) error
}
