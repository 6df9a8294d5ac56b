package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vellum-stream/pipeline/internal/domain/model"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
	"github.com/vellum-stream/pipeline/internal/infrastructure/cache"
	"github.com/vellum-stream/pipeline/internal/infrastructure/metrics"
)

// CachedRepositoryConfig configures the read-through cache decorator.
type CachedRepositoryConfig struct {
	// CacheTTL is deliberately short: unlike a catalog entry, a processing
	// record's progress changes every few seconds, and GET /status is
	// expected to be polled frequently while a job runs.
	CacheTTL time.Duration
}

// DefaultCachedRepositoryConfig returns the default configuration.
func DefaultCachedRepositoryConfig() CachedRepositoryConfig {
	return CachedRepositoryConfig{CacheTTL: 5 * time.Second}
}

// cachedVideoRepository wraps a repository.VideoRepository with a Redis
// read-through cache on the two read-heavy endpoints (GET /status, GET
// /videos), invalidating on every write. It implements the full
// repository.VideoRepository interface so it can be substituted anywhere a
// plain store is accepted — the decorator pattern the teacher used to wrap
// VideoService wholesale, applied one layer down at the repository.
type cachedVideoRepository struct {
	delegate repository.VideoRepository
	cache    cache.VideoRecordCache
	sfGroup  singleflight.Group
	cfg      CachedRepositoryConfig
}

// NewCachedVideoRepository constructs the decorator.
func NewCachedVideoRepository(delegate repository.VideoRepository, videoCache cache.VideoRecordCache, cfg CachedRepositoryConfig) repository.VideoRepository {
	return &cachedVideoRepository{delegate: delegate, cache: videoCache, cfg: cfg}
}

// Create is never cached — a just-created record has nothing to read yet.
func (r *cachedVideoRepository) Create(ctx context.Context, record *model.VideoRecord) error {
	return r.delegate.Create(ctx, record)
}

// Get is cache-aside, coalesced with singleflight so a burst of concurrent
// pollers for the same id triggers at most one store read.
func (r *cachedVideoRepository) Get(ctx context.Context, id string) (*model.VideoRecord, error) {
	result, err, shared := r.sfGroup.Do(id, func() (any, error) {
		return r.getWithCache(ctx, id)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}
	return result.(*model.VideoRecord), nil
}

func (r *cachedVideoRepository) getWithCache(ctx context.Context, id string) (*model.VideoRecord, error) {
	cached, err := r.cache.Get(ctx, id)
	if err != nil {
		slog.Warn("cache get failed, falling back to store", "upload_id", id, "error", err)
	}
	if cached != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit).Inc()
		return cached, nil
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss).Inc()

	record, err := r.delegate.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, record, r.cfg.CacheTTL); err != nil {
		slog.Warn("failed to cache record", "upload_id", id, "error", err)
	}
	return record, nil
}

// Update invalidates both the per-record cache entry and the admin listing,
// since any write can change which records that listing would include.
func (r *cachedVideoRepository) Update(ctx context.Context, record *model.VideoRecord) error {
	if err := r.delegate.Update(ctx, record); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, record.ID); err != nil {
		slog.Warn("failed to invalidate cache on update", "upload_id", record.ID, "error", err)
	}
	if err := r.cache.DeleteAll(ctx); err != nil {
		slog.Warn("failed to invalidate listing cache on update", "error", err)
	}
	return nil
}

// ListAll is cache-aside under one fixed key.
func (r *cachedVideoRepository) ListAll(ctx context.Context) ([]*model.VideoRecord, error) {
	cached, err := r.cache.GetAll(ctx)
	if err != nil {
		slog.Warn("cache getall failed, falling back to store", "error", err)
	}
	if cached != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit).Inc()
		return cached, nil
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss).Inc()

	records, err := r.delegate.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetAll(ctx, records, r.cfg.CacheTTL); err != nil {
		slog.Warn("failed to cache listing", "error", err)
	}
	return records, nil
}

// ListPendingCallbacks is never cached — the sweeper's own ticker interval
// already bounds its read frequency, and staleness here would delay a
// webhook retry.
func (r *cachedVideoRepository) ListPendingCallbacks(ctx context.Context) ([]*model.VideoRecord, error) {
	return r.delegate.ListPendingCallbacks(ctx)
}

// TryAcquireForProcessing passes through to the delegate (its atomicity
// guarantee must not be mediated by a cache) and invalidates the cache
// entry on a winning acquire, since the record's status/progress just
// changed underneath any previously cached copy.
func (r *cachedVideoRepository) TryAcquireForProcessing(ctx context.Context, id string) (bool, *model.VideoRecord, error) {
	acquired, record, err := r.delegate.TryAcquireForProcessing(ctx, id)
	if acquired {
		if delErr := r.cache.Delete(ctx, id); delErr != nil {
			slog.Warn("failed to invalidate cache on acquire", "upload_id", id, "error", delErr)
		}
	}
	return acquired, record, err
}
